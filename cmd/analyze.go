package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/budget"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/orchestrator"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Answer due-diligence questions from the data room",
	Long:  "Analyzes every question (or the --questions subset) concurrently against the documents under documents.root and stores the answers as a new run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode, _ := cmd.Flags().GetString("mode")
		if mode == "" {
			mode = cfg.Analysis.Mode
		}
		if mode != "fast" && mode != "thorough" {
			return eris.Errorf("invalid mode %q (want fast or thorough)", mode)
		}
		ids, _ := cmd.Flags().GetStringSlice("questions")
		instruction, _ := cmd.Flags().GetString("instruction")
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = filepath.Base(filepath.Clean(cfg.Documents.Root))
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initEnv(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		questions, err := loadQuestions(ctx, env)
		if err != nil {
			return err
		}

		run, err := env.Store.CreateRun(ctx, name, mode)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		orch, err := newOrchestrator(env, questions, run.ID, mode)
		if err != nil {
			return err
		}

		updates, unsubscribe := orch.Subscribe()
		defer unsubscribe()

		opts := []orchestrator.BatchOption{orchestrator.WithOverride(instruction)}
		var batch *orchestrator.Batch
		if len(ids) == 0 {
			batch, err = orch.AnalyzeAll(ctx, opts...)
		} else {
			batch, err = orch.AnalyzeSubset(ctx, ids, opts...)
		}
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("analysis started",
			zap.String("run_id", run.ID),
			zap.String("mode", mode),
			zap.Int("questions", len(batch.QuestionIDs)),
		)

		go trackProgress(updates, batch.QuestionIDs, newProgressBar(len(batch.QuestionIDs)))

		if err := batch.Wait(ctx); err != nil {
			batch.Cancel()
			<-batch.Done()
		}

		records := orch.Snapshot()
		reportUsage(os.Stderr, env.Caller.Usage())
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				RunID   string               `json:"run_id"`
				Answers []model.AnswerRecord `json:"answers"`
			}{run.ID, records})
		}

		fmt.Fprintf(os.Stdout, "Run %s\n", run.ID)
		formatAnswers(os.Stdout, questions, records)
		if ctx.Err() != nil {
			return eris.New("analysis cancelled")
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("mode", "", "context budget: fast or thorough (default from config)")
	analyzeCmd.Flags().StringSlice("questions", nil, "question ids to analyze (default all)")
	analyzeCmd.Flags().String("instruction", "", "replace the default analysis instruction")
	analyzeCmd.Flags().String("name", "", "run name (default the data room directory name)")
	analyzeCmd.Flags().Bool("json", false, "print answers as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// newOrchestrator builds an orchestrator over the configured data room that
// records answers under runID.
func newOrchestrator(env *appEnv, questions []model.Question, runID, mode string) (*orchestrator.Orchestrator, error) {
	budgeter, err := initBudgeter()
	if err != nil {
		return nil, err
	}
	shape, err := answer.ParseShape(cfg.Analysis.AnswerShape)
	if err != nil {
		return nil, err
	}
	contract, err := answer.ContractFor(shape, env.Validator)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(questions, newDocumentSource(), budgeter, env.Caller, contract,
		orchestrator.Config{
			Model:       env.Model,
			Temperature: cfg.Analysis.Temperature,
			MaxTokens:   cfg.Analysis.MaxTokens,
			Budget:      budget.ModeBudget(cfg.Budget, mode),
			Concurrency: cfg.Analysis.Concurrency,
		},
		orchestrator.WithRecorder(env.Store),
		orchestrator.WithRunID(runID),
	)
}

// reportUsage logs and prints the tokens and estimated cost of a command.
func reportUsage(out io.Writer, u model.TokenUsage) {
	zap.L().Info("token usage",
		zap.Int("input_tokens", u.InputTokens),
		zap.Int("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.Cost),
	)
	_, _ = fmt.Fprintf(out, "Tokens: %d in, %d out (est. $%.4f)\n", u.InputTokens, u.OutputTokens, u.Cost)
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Analyzing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

// progress is the part of a progress bar trackProgress drives.
type progress interface {
	Add(n int) error
}

// trackProgress advances bar once per question in ids that reaches a
// terminal state, until updates is closed or every question has resolved.
func trackProgress(updates <-chan model.AnswerRecord, ids []string, bar progress) int {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	resolved := 0
	for rec := range updates {
		if !pending[rec.QuestionID] || !rec.State.Terminal() {
			continue
		}
		delete(pending, rec.QuestionID)
		resolved++
		_ = bar.Add(1)
		if len(pending) == 0 {
			break
		}
	}
	return resolved
}

// formatAnswers writes one row per question: id, state, and the summary or
// user-facing error.
func formatAnswers(out io.Writer, questions []model.Question, records []model.AnswerRecord) {
	byID := make(map[string]model.AnswerRecord, len(records))
	for _, r := range records {
		byID[r.QuestionID] = r
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "QUESTION\tSTATE\tATTEMPTS\tANSWER")
	_, _ = fmt.Fprintln(w, "--------\t-----\t--------\t------")
	for _, q := range questions {
		r, ok := byID[q.ID]
		if !ok {
			continue
		}
		text := r.Summary
		if r.State == model.AnswerError {
			text = r.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", q.ID, r.State, r.Attempts, truncate(oneLine(text), 80))
	}
	_ = w.Flush()
}
