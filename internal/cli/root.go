package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juninmd/prpilot/internal/config"
	"github.com/juninmd/prpilot/internal/logging"
)

var (
	verbose    bool
	logFormat  string
	configPath string
	appConfig  *config.Config

	rootCmd = &cobra.Command{
		Use:   "prpilot",
		Short: "Triage and auto-merge open pull requests across a GitHub account",
		Long: `prpilot sweeps every open pull request of a GitHub account and decides, per PR,
whether to merge it, resolve its merge conflicts with an AI model, report a failing
pipeline, or leave it alone. It is meant to run from cron; each run is stateless.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatAuto, "Log format: auto, text or json")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file layered over the user config")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Setup(logging.Options{Verbose: verbose, Format: logFormat})

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		appConfig = cfg
		return nil
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(reportCmd)
}

// Execute runs the root command. Cancelling ctx stops a run between PRs.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
