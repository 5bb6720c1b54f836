package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/orchestrator"
	"github.com/sells-group/diligence-cli/internal/remote"
	"github.com/sells-group/diligence-cli/internal/review"
)

type analyzeRequest struct {
	QuestionIDs []string `json:"question_ids" validate:"omitempty,dive,required"`
	Instruction string   `json:"instruction" validate:"max=8000"`
	Mode        string   `json:"mode" validate:"omitempty,oneof=fast thorough"`
}

type regenerateRequest struct {
	Instruction string `json:"instruction" validate:"max=8000"`
}

type editRequest struct {
	Summary string `json:"summary" validate:"required"`
	Details string `json:"details"`
}

type stageRequest struct {
	Domain    string   `json:"domain"`
	PriorIDs  []string `json:"prior_ids" validate:"omitempty,dive,required"`
	Reference string   `json:"reference"`
}

type batchResponse struct {
	BatchID     string   `json:"batch_id"`
	QuestionIDs []string `json:"question_ids"`
	Skipped     []string `json:"skipped,omitempty"`
	Edited      []string `json:"edited,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "run_id": s.orch.RunID()})
}

func (s *Server) listQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Questions())
}

func (s *Server) listAnswers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

func (s *Server) getAnswer(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.orch.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	opts := []orchestrator.BatchOption{orchestrator.WithOverride(req.Instruction)}
	if req.Mode != "" {
		if b, ok := s.modes[req.Mode]; ok {
			opts = append(opts, orchestrator.WithBudget(b))
		}
	}

	var (
		batch *orchestrator.Batch
		err   error
	)
	if len(req.QuestionIDs) == 0 {
		batch, err = s.orch.AnalyzeAll(r.Context(), opts...)
	} else {
		batch, err = s.orch.AnalyzeSubset(r.Context(), req.QuestionIDs, opts...)
	}
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batchResponse{BatchID: batch.ID, QuestionIDs: batch.QuestionIDs, Skipped: batch.Skipped, Edited: batch.Edited})
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	batch, err := s.orch.Regenerate(r.Context(), chi.URLParam(r, "id"), req.Instruction)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batchResponse{BatchID: batch.ID, QuestionIDs: batch.QuestionIDs})
}

func (s *Server) editAnswer(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.orch.EditAnswer(r.Context(), id, req.Summary, req.Details); err != nil {
		writeOrchestratorError(w, err)
		return
	}
	rec, _ := s.orch.Get(id)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := s.orch.Batch(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found or already finished")
		return
	}
	b.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listStages(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusNotFound, "review pipeline is not configured")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusOK, nonNilResults(s.pipeline.Results()))
		return
	}
	writeJSON(w, http.StatusOK, nonNilResults(s.pipeline.History(name, r.URL.Query().Get("domain"))))
}

func (s *Server) runStage(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusNotFound, "review pipeline is not configured")
		return
	}
	var req stageRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	res, err := s.pipeline.RunStage(r.Context(), chi.URLParam(r, "name"), review.Inputs{
		Domain:    req.Domain,
		Answers:   s.orch.Snapshot(),
		Questions: s.orch.Questions(),
		PriorIDs:  req.PriorIDs,
		Reference: req.Reference,
	})
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// diffStage compares the two latest iterations of a stage for a domain.
func (s *Server) diffStage(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusNotFound, "review pipeline is not configured")
		return
	}
	history := s.pipeline.History(chi.URLParam(r, "name"), r.URL.Query().Get("domain"))
	if len(history) < 2 {
		writeError(w, http.StatusNotFound, "stage needs at least two iterations to compare")
		return
	}
	writeJSON(w, http.StatusOK, review.Diff(history[len(history)-2], history[len(history)-1]))
}

// decode reads a JSON body into dst and validates it. When optional is true
// an empty body is accepted as the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(optional && errors.Is(err, io.EOF)) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid field "+verrs[0].Field()+": "+verrs[0].Tag())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrQuestionsNotFound):
		writeError(w, http.StatusNotFound, "some questions not found")
	case errors.Is(err, orchestrator.ErrInFlight):
		writeError(w, http.StatusConflict, "question is already being analyzed")
	case errors.Is(err, orchestrator.ErrNoQuestions):
		writeError(w, http.StatusBadRequest, "no questions requested")
	default:
		zap.L().Error("api: orchestrator request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeStageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrUnknownStage):
		writeError(w, http.StatusNotFound, "unknown stage")
	case errors.Is(err, review.ErrStageInput):
		writeError(w, http.StatusConflict, "stage input is not available yet")
	case errors.Is(err, answer.ErrUnrecoverable):
		writeError(w, http.StatusBadGateway, orchestrator.MsgValidation)
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, remote.ErrRateLimited),
		errors.Is(err, remote.ErrTimeout), errors.Is(err, remote.ErrProvider):
		zap.L().Warn("api: stage call failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, orchestrator.UserMessage(err))
	default:
		zap.L().Error("api: stage failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func nonNilResults(rs []model.StageResult) []model.StageResult {
	if rs == nil {
		return []model.StageResult{}
	}
	return rs
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
