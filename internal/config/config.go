package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
)

// ErrMissingToken is returned by ValidateForRun when no GitHub token is set.
var ErrMissingToken = errors.New("github token is required (set GITHUB_TOKEN or github.token)")

// Load reads and merges configuration: defaults, then the user file
// (~/.config/prpilot/prpilot.jsonc), then overridePath if given, then
// environment overrides. A missing user file is ignored; a missing override is an error.
func Load(overridePath string) (*Config, error) {
	cfg := DefaultConfig()

	if userPath := UserConfigPath(); userPath != "" {
		userMap, err := loadJSONC(userPath)
		switch {
		case err == nil:
			if err := mergeIntoConfig(&cfg, userMap); err != nil {
				return nil, fmt.Errorf("merging user config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	if overridePath != "" {
		overrideMap, err := loadJSONC(overridePath)
		if err != nil {
			return nil, fmt.Errorf("loading config override: %w", err)
		}
		if err := mergeIntoConfig(&cfg, overrideMap); err != nil {
			return nil, fmt.Errorf("merging config override: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.Reports.Dir = expandHome(cfg.Reports.Dir)
	cfg.Git.WorkDir = expandHome(cfg.Git.WorkDir)

	return &cfg, nil
}

// UserConfigPath returns the path of the user config file, or "" when the
// user config directory cannot be determined.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prpilot", "prpilot.jsonc")
}

// loadJSONC reads a JSONC file and returns it as a map.
func loadJSONC(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jsonData := jsonc.ToJSON(data)
	var m map[string]any
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// mergeIntoConfig marshals the config to a map, deep-merges the source map over it,
// then unmarshals back to the Config struct.
func mergeIntoConfig(cfg *Config, src map[string]any) error {
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var dst map[string]any
	if err := json.Unmarshal(cfgBytes, &dst); err != nil {
		return err
	}

	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return err
	}

	merged, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, cfg)
}

// envOverrides lists the environment variables that override file settings.
// Unset or empty variables leave the file value in place.
type envOverrides struct {
	GitHubToken      string `env:"GITHUB_TOKEN"`
	GitHubOwner      string `env:"GITHUB_OWNER"`
	AIProvider       string `env:"AI_PROVIDER"`
	AIModel          string `env:"AI_MODEL"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	OllamaBaseURL    string `env:"OLLAMA_BASE_URL"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`
	PushgatewayURL   string `env:"PRPILOT_PUSHGATEWAY_URL"`
	ReportDir        string `env:"PRPILOT_REPORT_DIR"`
}

func applyEnvOverrides(cfg *Config) error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	for _, o := range []struct {
		dst *string
		val string
	}{
		{&cfg.GitHub.Token, e.GitHubToken},
		{&cfg.GitHub.Owner, e.GitHubOwner},
		{&cfg.AI.Provider, strings.ToLower(e.AIProvider)},
		{&cfg.AI.Model, e.AIModel},
		{&cfg.AI.GeminiAPIKey, e.GeminiAPIKey},
		{&cfg.AI.AnthropicAPIKey, e.AnthropicAPIKey},
		{&cfg.AI.OllamaBaseURL, e.OllamaBaseURL},
		{&cfg.Telegram.BotToken, e.TelegramBotToken},
		{&cfg.Telegram.ChatID, e.TelegramChatID},
		{&cfg.Metrics.PushgatewayURL, e.PushgatewayURL},
		{&cfg.Reports.Dir, e.ReportDir},
	} {
		if o.val != "" {
			*o.dst = o.val
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints. Validation errors name the JSON path of
// every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ValidateForRun is Validate plus the credentials a sweep needs.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GitHub.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// fieldPath strips the root type from a validator namespace, leaving the
// JSON key path such as "github.merge_method".
func fieldPath(namespace string) string {
	_, path, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	return path
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
