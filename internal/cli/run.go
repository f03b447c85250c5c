package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/juninmd/prpilot/internal/config"
	"github.com/juninmd/prpilot/internal/llm"
	"github.com/juninmd/prpilot/internal/metrics"
	"github.com/juninmd/prpilot/internal/notify"
	ghprovider "github.com/juninmd/prpilot/internal/provider/github"
	"github.com/juninmd/prpilot/internal/store"
	"github.com/juninmd/prpilot/internal/triage"
	"github.com/juninmd/prpilot/internal/workspace"
)

var (
	runOwner    string
	runMinAge   string
	runNoNotify bool
	runNoReport bool
)

func init() {
	runCmd.Flags().StringVar(&runOwner, "owner", "", "GitHub account to sweep (overrides github.owner)")
	runCmd.Flags().StringVar(&runMinAge, "min-age", "", "Minimum PR age before it is processed, e.g. 10m")
	runCmd.Flags().BoolVar(&runNoNotify, "no-notify", false, "Do not send Telegram notifications")
	runCmd.Flags().BoolVar(&runNoReport, "no-report", false, "Do not archive the run report")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one triage sweep",
	Long: `Run one sweep over every open pull request of the configured account.

Trusted, mature, mergeable PRs with a green pipeline are merged. PRs with merge
conflicts get an AI resolution pushed to their branch. PRs with a failing pipeline
get a single explanatory comment. Everything else is reported as skipped.`,
	Example: `  prpilot run
  prpilot run --owner juninmd --min-age 30m
  prpilot run --no-notify -v`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *appConfig
		if runOwner != "" {
			cfg.GitHub.Owner = runOwner
		}
		if runMinAge != "" {
			if _, err := time.ParseDuration(runMinAge); err != nil {
				return fmt.Errorf("invalid --min-age: %w", err)
			}
			cfg.Triage.MinAge = runMinAge
		}
		if err := cfg.ValidateForRun(); err != nil {
			return err
		}

		ctx := cmd.Context()
		result, err := runSweep(ctx, &cfg)
		if result != nil {
			counts := result.Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %d PRs, %d merged, %d conflicts resolved, %d pipeline failures, %d drafts, %d skipped\n",
				result.ID, result.TotalPRs,
				counts[triage.CategoryMerged],
				counts[triage.CategoryConflictsResolved],
				counts[triage.CategoryPipelineFailures],
				counts[triage.CategoryDrafts],
				counts[triage.CategorySkipped])
		}
		return err
	},
}

// runSweep wires the engine from cfg, runs it, and publishes the result.
func runSweep(ctx context.Context, cfg *config.Config) (*triage.RunResult, error) {
	backend := ghprovider.NewBackend(cfg.GitHub.Token, cfg.GitHub.MergeMethod)

	ws := workspace.NewManager(workspace.Options{
		Token:     cfg.GitHub.Token,
		UserName:  cfg.Git.UserName,
		UserEmail: cfg.Git.UserEmail,
		TempDir:   cfg.Git.WorkDir,
	})

	deps := triage.Deps{
		Directory: backend,
		Workspace: triage.GitWorkspace{Manager: ws},
	}

	completer, err := llm.New(ctx, llm.Options{
		Provider:        cfg.AI.Provider,
		Model:           cfg.AI.Model,
		GeminiAPIKey:    cfg.AI.GeminiAPIKey,
		AnthropicAPIKey: cfg.AI.AnthropicAPIKey,
		AnthropicURL:    cfg.AI.AnthropicURL,
		OllamaBaseURL:   cfg.AI.OllamaBaseURL,
	})
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		slog.Warn("AI backend not configured; conflicts will not be resolved and failure comments use the template",
			"provider", cfg.AI.Provider)
	case err != nil:
		return nil, fmt.Errorf("creating AI client: %w", err)
	default:
		if c, ok := completer.(*llm.CopilotClient); ok {
			defer func() {
				if err := c.Stop(); err != nil {
					slog.Warn("failed to stop copilot client", "error", err)
				}
			}()
		}
		deps.Assistant = llm.NewAssistant(completer)
	}

	if !runNoNotify && cfg.Telegram.Enabled() {
		deps.Notifier = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.BaseURL)
	}

	engine := triage.NewEngine(deps, triage.Options{
		Owner:          cfg.GitHub.Owner,
		ScanMode:       cfg.Triage.ScanMode,
		MinAge:         cfg.Triage.ParseMinAge(),
		TrustedAuthors: cfg.Triage.TrustedAuthors,
		SuggestionBots: cfg.Triage.SuggestionBots,
	})

	result, runErr := engine.Run(ctx)
	if result == nil {
		return nil, runErr
	}

	publish(cfg, result)
	return result, runErr
}

// publish archives the run and pushes metrics. Failures are logged only.
func publish(cfg *config.Config, result *triage.RunResult) {
	// Publishing must not be skipped because the run context was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !runNoReport && cfg.Reports.Dir != "" {
		archive := store.NewArchive(cfg.Reports.Dir)
		if path, err := archive.Save(ctx, result); err != nil {
			slog.Warn("failed to archive run report", "error", err)
		} else {
			slog.Info("run report archived", "path", path)
			if cfg.Reports.Keep > 0 {
				if n, err := archive.Prune(ctx, cfg.Reports.Keep); err != nil {
					slog.Warn("failed to prune run reports", "error", err)
				} else if n > 0 {
					slog.Debug("pruned old run reports", "removed", n)
				}
			}
		}
	}

	if cfg.Metrics.PushgatewayURL != "" {
		rec := metrics.NewRecorder()
		rec.Observe(result)
		if err := rec.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, cfg.GitHub.Owner); err != nil {
			slog.Warn("failed to push metrics", "error", err)
		}
	}
}
