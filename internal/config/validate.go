package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// configValidate checks struct tags on Config. Field names are reported by
// their mapstructure key so messages match config.yaml.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// Validate checks the loaded configuration for the given command mode
// ("analyze", "review", "serve", "validate", "runs"). Struct-level rules
// always apply; each mode adds the credentials and paths it needs.
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	switch mode {
	case "analyze":
		problems = append(problems, c.requireProvider()...)
		problems = append(problems, c.requireQuestions()...)
		if c.Documents.Root == "" {
			problems = append(problems, "documents.root is required")
		}
	case "review":
		problems = append(problems, c.requireProvider()...)
	case "serve":
		problems = append(problems, c.requireProvider()...)
		problems = append(problems, c.requireQuestions()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "validate":
	case "runs":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) requireProvider() []string {
	var out []string
	if c.Provider.Key == "" {
		out = append(out, "provider.key is required")
	}
	if c.Model.Name == "" {
		out = append(out, "model.name is required")
	}
	return out
}

func (c *Config) requireQuestions() []string {
	switch c.Questions.Source {
	case "notion":
		var out []string
		if c.Notion.Token == "" {
			out = append(out, "notion.token is required")
		}
		if c.Notion.QuestionDB == "" {
			out = append(out, "notion.question_db is required")
		}
		return out
	default:
		if c.Questions.File == "" {
			return []string{"questions.file is required"}
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
