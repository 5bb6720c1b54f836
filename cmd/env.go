package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-cli/internal/answer"
	"github.com/sells-group/diligence-cli/internal/budget"
	"github.com/sells-group/diligence-cli/internal/config"
	"github.com/sells-group/diligence-cli/internal/cost"
	"github.com/sells-group/diligence-cli/internal/docsource"
	"github.com/sells-group/diligence-cli/internal/model"
	"github.com/sells-group/diligence-cli/internal/registry"
	"github.com/sells-group/diligence-cli/internal/remote"
	"github.com/sells-group/diligence-cli/internal/store"
	anthropicpkg "github.com/sells-group/diligence-cli/pkg/anthropic"
	"github.com/sells-group/diligence-cli/pkg/notion"
)

// appEnv holds the clients and registries shared by the analyze, review
// and serve commands.
type appEnv struct {
	Store       store.Store
	Caller      *remote.Client
	Model       remote.ModelSpec
	ReviewModel remote.ModelSpec
	Validator   *answer.Validator
	Notion      notion.Client // nil when no token is configured
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates cfg for mode and builds the store, remote client and
// validator. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	spec, err := remote.SpecFromConfig(cfg.Model)
	if err != nil {
		return nil, eris.Wrap(err, "model spec")
	}
	reviewSpec := spec
	if cfg.ReviewModel.Name != "" {
		if reviewSpec, err = remote.SpecFromConfig(cfg.ReviewModel); err != nil {
			return nil, eris.Wrap(err, "review model spec")
		}
	}

	validator, err := initValidator()
	if err != nil {
		return nil, err
	}

	caller, err := initCaller()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{
		Store:       st,
		Caller:      caller,
		Model:       spec,
		ReviewModel: reviewSpec,
		Validator:   validator,
	}
	if cfg.Notion.Token != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token)
	}
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "diligence.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCaller builds the remote client for the configured provider.
func initCaller() (*remote.Client, error) {
	var p remote.Provider
	switch cfg.Provider.Name {
	case "anthropic":
		p = remote.NewAnthropicProvider(anthropicpkg.NewClient(cfg.Provider.Key, anthropicpkg.WithBaseURL(cfg.Provider.BaseURL)))
	case "openai":
		p = remote.NewOpenAIProvider(cfg.Provider.Key, cfg.Provider.BaseURL)
	default:
		return nil, eris.Errorf("unsupported provider: %s", cfg.Provider.Name)
	}

	rates := cost.DefaultRates().Merge(pricing(cfg.Pricing.Anthropic), pricing(cfg.Pricing.OpenAI))
	return remote.New(p, remote.ConfigFrom(cfg.Remote), remote.WithCostCalculator(cost.NewCalculator(rates))), nil
}

func pricing(in map[string]config.ModelPricing) map[string]cost.ModelRate {
	out := make(map[string]cost.ModelRate, len(in))
	for name, p := range in {
		out[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	return out
}

func initValidator() (*answer.Validator, error) {
	if cfg.Analysis.RulesFile == "" {
		return answer.NewValidator(answer.DefaultRules()), nil
	}
	rules, err := answer.LoadRules(cfg.Analysis.RulesFile)
	if err != nil {
		return nil, err
	}
	return answer.NewValidator(rules), nil
}

func initBudgeter() (*budget.Budgeter, error) {
	rules := budget.DefaultRules().WithConfig(cfg.Budget)
	if cfg.Budget.RulesFile != "" {
		var err error
		if rules, err = budget.LoadRules(cfg.Budget.RulesFile, rules); err != nil {
			return nil, err
		}
	}
	return budget.New(rules), nil
}

// loadQuestions reads the question registry from the configured source.
func loadQuestions(ctx context.Context, env *appEnv) ([]model.Question, error) {
	if cfg.Questions.Source == "notion" {
		if env.Notion == nil {
			return nil, eris.New("notion.token is required for questions.source=notion")
		}
		qs, err := registry.LoadQuestionRegistry(ctx, env.Notion, cfg.Notion.QuestionDB)
		if err != nil {
			return nil, eris.Wrap(err, "load question registry")
		}
		return qs, nil
	}
	qs, err := registry.LoadQuestionsFromFile(cfg.Questions.File)
	if err != nil {
		return nil, eris.Wrap(err, "load questions")
	}
	zap.L().Info("loaded questions", zap.String("file", cfg.Questions.File), zap.Int("count", len(qs)))
	return qs, nil
}

func newDocumentSource() *docsource.Directory {
	return docsource.NewDirectory(cfg.Documents)
}
