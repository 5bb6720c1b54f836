// Package api exposes the question orchestrator and review pipeline over
// HTTP for the presentation layer.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/budget"
	"github.com/sells-group/diligence-cli/internal/orchestrator"
	"github.com/sells-group/diligence-cli/internal/review"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server routes HTTP requests to one orchestrator and review pipeline.
type Server struct {
	orch     *orchestrator.Orchestrator
	pipeline *review.Pipeline
	modes    map[string]budget.Budget
	origins  []string
	validate *validator.Validate
}

// Option configures a Server.
type Option func(*Server)

// WithModes maps analysis mode names accepted by POST /analyze to budgets.
func WithModes(modes map[string]budget.Budget) Option {
	return func(s *Server) { s.modes = modes }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server. pipeline may be nil, in which case the stage routes
// answer 404.
func New(orch *orchestrator.Orchestrator, pipeline *review.Pipeline, opts ...Option) *Server {
	s := &Server{
		orch:     orch,
		pipeline: pipeline,
		origins:  []string{"*"},
		validate: validator.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/questions", s.listQuestions)
	r.Post("/analyze", s.analyze)

	r.Route("/answers", func(r chi.Router) {
		r.Get("/", s.listAnswers)
		r.Get("/{id}", s.getAnswer)
		r.Put("/{id}", s.editAnswer)
		r.Post("/{id}/regenerate", s.regenerate)
	})

	r.Delete("/batches/{id}", s.cancelBatch)

	r.Route("/stages", func(r chi.Router) {
		r.Get("/", s.listStages)
		r.Post("/{name}", s.runStage)
		r.Get("/{name}/diff", s.diffStage)
	})

	return r
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
