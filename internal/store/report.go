package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/juninmd/prpilot/internal/triage"
)

var sectionTitles = map[triage.Category]string{
	triage.CategoryMerged:            "Merged",
	triage.CategoryConflictsResolved: "Conflicts resolved",
	triage.CategoryPipelineFailures:  "Pipeline failures",
	triage.CategoryDrafts:            "Drafts",
	triage.CategorySkipped:           "Skipped",
}

// RenderReport renders a run as a markdown document.
func RenderReport(r *triage.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Triage run %s\n\n", r.ID)
	fmt.Fprintf(&b, "- Owner: %s\n", r.Owner)
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Duration: %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(&b, "- Pull requests: %d\n", r.TotalPRs)

	for _, cat := range triage.Categories {
		entries := r.Entries(cat)
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", sectionTitles[cat], len(entries))
		if len(entries) == 0 {
			b.WriteString("_None._\n")
			continue
		}
		for _, e := range entries {
			b.WriteString(reportLine(e))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func reportLine(e triage.Entry) string {
	ref := fmt.Sprintf("%s#%d", e.Repo, e.Number)
	if e.URL != "" {
		ref = fmt.Sprintf("[%s](%s)", ref, e.URL)
	}
	line := fmt.Sprintf("- %s %s", ref, e.Title)
	if e.Author != "" {
		line += fmt.Sprintf(" by @%s", e.Author)
	}
	if e.Files > 0 {
		line += fmt.Sprintf(", %d files", e.Files)
	}
	if e.Reason != "" {
		line += fmt.Sprintf(" (%s)", e.Reason)
	}
	if e.Detail != "" {
		// Multi-line details (failing checks) are indented under the item.
		line += "\n  " + strings.ReplaceAll(strings.TrimSpace(e.Detail), "\n", "\n  ")
	}
	return line
}
