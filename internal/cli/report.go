package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/juninmd/prpilot/internal/store"
	"github.com/juninmd/prpilot/internal/triage"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect archived run reports",
}

func init() {
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
}

var reportListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List archived runs",
	Example: `  prpilot report list`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := store.NewArchive(appConfig.Reports.Dir).List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archived runs. Run one with: prpilot run")
			return nil
		}

		headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cellStyle := lipgloss.NewStyle().Padding(0, 1)

		rows := make([][]string, 0, len(summaries))
		for _, s := range summaries {
			rows = append(rows, []string{
				s.ID,
				s.StartedAt.Local().Format("2006-01-02 15:04"),
				s.Owner,
				strconv.Itoa(s.TotalPRs),
				strconv.Itoa(s.Counts[triage.CategoryMerged]),
				strconv.Itoa(s.Counts[triage.CategoryConflictsResolved]),
				strconv.Itoa(s.Counts[triage.CategoryPipelineFailures]),
				strconv.Itoa(s.Counts[triage.CategoryDrafts]),
				strconv.Itoa(s.Counts[triage.CategorySkipped]),
			})
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("RUN", "STARTED", "OWNER", "PRS", "MERGED", "CONFLICTS", "FAILURES", "DRAFTS", "SKIPPED").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})

		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:     "show <run-id>",
	Short:   "Print an archived run report",
	Example: `  prpilot report show cs1k2m3n4o5p6q7r8s9t`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive := store.NewArchive(appConfig.Reports.Dir)
		result, err := archive.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), store.RenderReport(result))
		return err
	},
}
