package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/api"
	"github.com/sells-group/diligence-cli/internal/budget"
	"github.com/sells-group/diligence-cli/internal/review"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for interactive analysis and review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		questions, err := loadQuestions(ctx, env)
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		run, err := env.Store.CreateRun(ctx, name, cfg.Analysis.Mode)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		orch, err := newOrchestrator(env, questions, run.ID, cfg.Analysis.Mode)
		if err != nil {
			return err
		}
		defer orch.CancelAll()

		pipeline, err := review.New(env.Caller, review.DefaultStages(env.ReviewModel),
			review.WithRecorder(env.Store),
			review.WithRunID(run.ID),
			review.WithValidator(env.Validator),
		)
		if err != nil {
			return err
		}

		srv := api.New(orch, pipeline,
			api.WithModes(map[string]budget.Budget{
				"fast":     budget.ModeBudget(cfg.Budget, "fast"),
				"thorough": budget.ModeBudget(cfg.Budget, "thorough"),
			}),
			api.WithCORSOrigins(cfg.Server.CORSOrigins),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			orch.CancelAll()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("run_id", run.ID))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("name", "interactive", "name of the run the server records answers under")
	rootCmd.AddCommand(serveCmd)
}
