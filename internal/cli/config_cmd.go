package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/sjson"

	"github.com/juninmd/prpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage prpilot configuration",
	Long:  `Show and modify prpilot configuration values.`,
}

var configJSONFlag bool

func init() {
	configShowCmd.Flags().BoolVar(&configJSONFlag, "json", false, "Output raw JSON without formatting")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show merged configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		redacted := redactConfig(appConfig)

		var data []byte
		var err error
		if configJSONFlag {
			data, err = json.Marshal(redacted)
		} else {
			data, err = json.MarshalIndent(redacted, "", "  ")
		}
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// redactConfig returns a copy of the config with secret fields masked.
func redactConfig(cfg *config.Config) *config.Config {
	copy := *cfg
	for _, secret := range []*string{
		&copy.GitHub.Token,
		&copy.AI.GeminiAPIKey,
		&copy.AI.AnthropicAPIKey,
		&copy.Telegram.BotToken,
	} {
		if *secret != "" {
			*secret = "***"
		}
	}
	return &copy
}

// parseValue interprets a command-line value as a bool, then a number, then a string.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// setConfigValue writes key=value into the JSONC file at path, creating it
// if needed. Comments are not preserved.
func setConfigValue(path, key string, value any) error {
	existing := []byte("{}")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		existing = jsonc.ToJSON(data)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading config: %w", err)
	}

	updated, err := sjson.SetBytes(existing, key, value)
	if err != nil {
		return fmt.Errorf("setting key %q: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, updated, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// targetConfigPath is the file config set and init write to.
func targetConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	path := config.UserConfigPath()
	if path == "" {
		return "", errors.New("cannot determine user config directory; pass --config")
	}
	return path, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Long: `Set a configuration value using a dotted key path.

The value is written to the user config file (~/.config/prpilot/prpilot.jsonc),
or to the file named by --config. The file is created if it does not exist.

Note: JSONC comments are not preserved on write.`,
	Example: `  prpilot config set github.owner juninmd
  prpilot config set triage.min_age 30m
  prpilot config set reports.keep 50`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := targetConfigPath()
		if err != nil {
			return err
		}
		value := parseValue(args[1])
		if err := setConfigValue(path, args[0], value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], value)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := targetConfigPath()
		if err != nil {
			return err
		}

		cfg := *appConfig
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("GitHub account to sweep").
					Value(&cfg.GitHub.Owner).
					Validate(func(s string) error {
						if s == "" {
							return errors.New("owner is required")
						}
						return nil
					}),
				huh.NewSelect[string]().
					Title("Merge method").
					Options(huh.NewOptions("merge", "squash", "rebase")...).
					Value(&cfg.GitHub.MergeMethod),
				huh.NewInput().
					Title("Minimum PR age").
					Value(&cfg.Triage.MinAge),
			),
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("AI provider").
					Options(huh.NewOptions("gemini", "anthropic", "ollama", "copilot")...).
					Value(&cfg.AI.Provider),
				huh.NewInput().
					Title("Model (empty for the provider default)").
					Value(&cfg.AI.Model),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Telegram chat ID (empty to disable)").
					Value(&cfg.Telegram.ChatID),
				huh.NewInput().
					Title("Pushgateway URL (empty to disable)").
					Value(&cfg.Metrics.PushgatewayURL),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("config wizard cancelled: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		for key, value := range map[string]any{
			"github.owner":            cfg.GitHub.Owner,
			"github.merge_method":     cfg.GitHub.MergeMethod,
			"triage.min_age":          cfg.Triage.MinAge,
			"ai.provider":             cfg.AI.Provider,
			"ai.model":                cfg.AI.Model,
			"telegram.chat_id":        cfg.Telegram.ChatID,
			"metrics.pushgateway_url": cfg.Metrics.PushgatewayURL,
		} {
			if err := setConfigValue(path, key, value); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nSecrets are read from the environment: GITHUB_TOKEN, GEMINI_API_KEY, ANTHROPIC_API_KEY, TELEGRAM_BOT_TOKEN.\n", path)
		return nil
	},
}
