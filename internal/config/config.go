package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log         LogConfig       `yaml:"log" mapstructure:"log"`
	Store       StoreConfig     `yaml:"store" mapstructure:"store"`
	Provider    ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Model       ModelConfig     `yaml:"model" mapstructure:"model"`
	ReviewModel ModelConfig     `yaml:"review_model" mapstructure:"review_model"`
	Remote      RemoteConfig    `yaml:"remote" mapstructure:"remote"`
	Budget      BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Analysis    AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Documents   DocumentsConfig `yaml:"documents" mapstructure:"documents"`
	Questions   QuestionsConfig `yaml:"questions" mapstructure:"questions"`
	Notion      NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Server      ServerConfig    `yaml:"server" mapstructure:"server"`
	Pricing     PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// ProviderConfig selects the chat-completion provider and its credentials.
type ProviderConfig struct {
	Name    string `yaml:"name" mapstructure:"name" validate:"oneof=openai anthropic"`
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ModelConfig names a model and its capability variant. The variant is
// declared here rather than inferred from the model name.
type ModelConfig struct {
	Name            string  `yaml:"name" mapstructure:"name"`
	Variant         string  `yaml:"variant" mapstructure:"variant" validate:"omitempty,oneof=standard reasoning"`
	AnswerOpen      string  `yaml:"answer_open" mapstructure:"answer_open"`
	AnswerClose     string  `yaml:"answer_close" mapstructure:"answer_close"`
	ReasoningEffort string  `yaml:"reasoning_effort" mapstructure:"reasoning_effort" validate:"omitempty,oneof=low medium high"`
	TopP            float64 `yaml:"top_p" mapstructure:"top_p" validate:"gte=0,lte=1"`
	ThinkingBudget  int     `yaml:"thinking_budget" mapstructure:"thinking_budget" validate:"gte=0"`
}

// RemoteConfig configures per-call timeouts, retries and throttling.
type RemoteConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gt=0"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gtefield=InitialBackoffMs"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=1"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
	Burst            int     `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold" validate:"gte=0"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs" validate:"gte=0"`
}

// ModeBudget bounds the context sent for one question.
type ModeBudget struct {
	MaxChars int `yaml:"max_chars" mapstructure:"max_chars" validate:"gt=0"`
	MaxFiles int `yaml:"max_files" mapstructure:"max_files" validate:"gt=0"`
}

// BudgetConfig configures context selection.
type BudgetConfig struct {
	Fast                ModeBudget `yaml:"fast" mapstructure:"fast"`
	Thorough            ModeBudget `yaml:"thorough" mapstructure:"thorough"`
	HeadChars           int        `yaml:"head_chars" mapstructure:"head_chars" validate:"gt=0"`
	TailChars           int        `yaml:"tail_chars" mapstructure:"tail_chars" validate:"gt=0"`
	WindowChars         int        `yaml:"window_chars" mapstructure:"window_chars" validate:"gt=0"`
	MinPriorityFraction float64    `yaml:"min_priority_fraction" mapstructure:"min_priority_fraction" validate:"gte=0,lte=1"`
	RoundRobinChunk     int        `yaml:"round_robin_chunk" mapstructure:"round_robin_chunk" validate:"gt=0"`
	RulesFile           string     `yaml:"rules_file" mapstructure:"rules_file"`
}

// AnalysisConfig configures per-question analysis.
type AnalysisConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=50"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
	AnswerShape string  `yaml:"answer_shape" mapstructure:"answer_shape" validate:"oneof=summary_details source_analysis_conclusion"`
	Mode        string  `yaml:"mode" mapstructure:"mode" validate:"oneof=fast thorough"`
	// RulesFile overrides the answer validator's keyword and pattern lists.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// DocumentsConfig configures the data room directory walk.
type DocumentsConfig struct {
	Root         string   `yaml:"root" mapstructure:"root"`
	Include      []string `yaml:"include" mapstructure:"include"`
	Exclude      []string `yaml:"exclude" mapstructure:"exclude"`
	MaxFileBytes int64    `yaml:"max_file_bytes" mapstructure:"max_file_bytes" validate:"gt=0"`
}

// QuestionsConfig selects where the question registry is loaded from.
type QuestionsConfig struct {
	Source string `yaml:"source" mapstructure:"source" validate:"oneof=file notion"`
	File   string `yaml:"file" mapstructure:"file"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	QuestionDB string `yaml:"question_db" mapstructure:"question_db"`
	MemoDB     string `yaml:"memo_db" mapstructure:"memo_db"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// PricingConfig holds per-provider pricing rates keyed by model name.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DILIGENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "diligence.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)

	v.SetDefault("provider.name", "openai")
	v.SetDefault("provider.key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("model.name", "gpt-4o")
	v.SetDefault("model.variant", "standard")
	v.SetDefault("model.answer_open", "<answer>")
	v.SetDefault("model.answer_close", "</answer>")
	v.SetDefault("model.reasoning_effort", "")
	v.SetDefault("model.top_p", 0)
	v.SetDefault("model.thinking_budget", 0)
	v.SetDefault("review_model.name", "")

	v.SetDefault("remote.timeout_secs", 60)
	v.SetDefault("remote.max_attempts", 3)
	v.SetDefault("remote.initial_backoff_ms", 1000)
	v.SetDefault("remote.max_backoff_ms", 8000)
	v.SetDefault("remote.multiplier", 2.0)
	v.SetDefault("remote.jitter_fraction", 0.1)
	v.SetDefault("remote.rate_limit", 0)
	v.SetDefault("remote.burst", 1)
	v.SetDefault("remote.breaker_threshold", 5)
	v.SetDefault("remote.breaker_reset_secs", 30)

	v.SetDefault("budget.fast.max_chars", 24000)
	v.SetDefault("budget.fast.max_files", 3)
	v.SetDefault("budget.thorough.max_chars", 80000)
	v.SetDefault("budget.thorough.max_files", 10)
	v.SetDefault("budget.head_chars", 4000)
	v.SetDefault("budget.tail_chars", 2000)
	v.SetDefault("budget.window_chars", 1500)
	v.SetDefault("budget.min_priority_fraction", 0.3)
	v.SetDefault("budget.round_robin_chunk", 1200)
	v.SetDefault("budget.rules_file", "")

	v.SetDefault("analysis.concurrency", 5)
	v.SetDefault("analysis.temperature", 0.2)
	v.SetDefault("analysis.max_tokens", 2048)
	v.SetDefault("analysis.answer_shape", "summary_details")
	v.SetDefault("analysis.mode", "thorough")
	v.SetDefault("analysis.rules_file", "")

	v.SetDefault("documents.root", "")
	v.SetDefault("documents.include", []string{"**/*.txt", "**/*.md", "**/*.csv", "**/*.xlsx"})
	v.SetDefault("documents.exclude", []string{"**/.*", "**/~$*"})
	v.SetDefault("documents.max_file_bytes", 20<<20)

	v.SetDefault("questions.source", "file")
	v.SetDefault("questions.file", "questions.yaml")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.question_db", "")
	v.SetDefault("notion.memo_db", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
