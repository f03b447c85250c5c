package config

import "time"

// Config is the top-level prpilot configuration.
type Config struct {
	GitHub   GitHubConfig   `json:"github"`
	Triage   TriageConfig   `json:"triage"`
	AI       AIConfig       `json:"ai"`
	Git      GitConfig      `json:"git"`
	Telegram TelegramConfig `json:"telegram"`
	Metrics  MetricsConfig  `json:"metrics"`
	Reports  ReportsConfig  `json:"reports"`
}

// GitHubConfig holds the account to sweep and the credentials to do it.
type GitHubConfig struct {
	Token       string `json:"token,omitempty"`
	Owner       string `json:"owner" validate:"required"`
	MergeMethod string `json:"merge_method" validate:"oneof=merge squash rebase"`
}

// TriageConfig controls the decision engine.
type TriageConfig struct {
	ScanMode       string   `json:"scan_mode" validate:"oneof=repositories search"`
	MinAge         string   `json:"min_age"`
	TrustedAuthors []string `json:"trusted_authors" validate:"min=1,dive,required"`
	SuggestionBots []string `json:"suggestion_bots"`
}

// ParseMinAge returns the minimum PR age as a time.Duration. Invalid or
// non-positive values fall back to 10 minutes.
func (t TriageConfig) ParseMinAge() time.Duration {
	d, err := time.ParseDuration(t.MinAge)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// AIConfig selects the language model backend.
type AIConfig struct {
	Provider        string `json:"provider" validate:"oneof=gemini anthropic ollama copilot"`
	Model           string `json:"model,omitempty"`
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	AnthropicURL    string `json:"anthropic_url,omitempty" validate:"omitempty,url"`
	OllamaBaseURL   string `json:"ollama_base_url,omitempty" validate:"omitempty,url"`
}

// GitConfig is the identity used for conflict resolution commits and where
// clones are made.
type GitConfig struct {
	UserName  string `json:"user_name" validate:"required"`
	UserEmail string `json:"user_email" validate:"required,email"`
	WorkDir   string `json:"work_dir,omitempty"`
}

// TelegramConfig holds the bot used for notifications. Notifications are
// disabled unless both fields are set.
type TelegramConfig struct {
	BotToken string `json:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	BaseURL  string `json:"base_url,omitempty" validate:"omitempty,url"`
}

// Enabled reports whether Telegram notifications can be sent.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// MetricsConfig holds the Pushgateway target. An empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url,omitempty" validate:"omitempty,url"`
	Job            string `json:"job"`
}

// ReportsConfig controls the run report archive.
type ReportsConfig struct {
	Dir  string `json:"dir"`
	Keep int    `json:"keep" validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GitHub: GitHubConfig{
			Owner:       "juninmd",
			MergeMethod: "merge",
		},
		Triage: TriageConfig{
			ScanMode: "repositories",
			MinAge:   "10m",
			TrustedAuthors: []string{
				"juninmd",
				"Copilot",
				"imgbot[bot]",
				"renovate[bot]",
				"dependabot[bot]",
				"Jules da Google",
				"google-labs-jules",
			},
			SuggestionBots: []string{"Jules da Google", "google-labs-jules"},
		},
		AI: AIConfig{
			Provider: "gemini",
		},
		Git: GitConfig{
			UserName:  "PR Agent",
			UserEmail: "agent@juninmd.com",
		},
		Metrics: MetricsConfig{
			Job: "prpilot",
		},
		Reports: ReportsConfig{
			Dir:  "~/.local/share/prpilot/runs",
			Keep: 200,
		},
	}
}
