package store

import (
	"time"

	"github.com/juninmd/prpilot/internal/triage"
)

// runMatter is the frontmatter of a run report.
type runMatter struct {
	ID         string                  `yaml:"id"`
	Owner      string                  `yaml:"owner"`
	StartedAt  time.Time               `yaml:"started_at"`
	FinishedAt time.Time               `yaml:"finished_at"`
	TotalPRs   int                     `yaml:"total_prs"`
	Counts     map[triage.Category]int `yaml:"counts"`

	Merged            []triage.Entry `yaml:"merged,omitempty"`
	ConflictsResolved []triage.Entry `yaml:"conflicts_resolved,omitempty"`
	PipelineFailures  []triage.Entry `yaml:"pipeline_failures,omitempty"`
	Drafts            []triage.Entry `yaml:"drafts,omitempty"`
	Skipped           []triage.Entry `yaml:"skipped,omitempty"`
}

func matterFor(r *triage.RunResult) runMatter {
	return runMatter{
		ID:                r.ID,
		Owner:             r.Owner,
		StartedAt:         r.StartedAt.UTC(),
		FinishedAt:        r.FinishedAt.UTC(),
		TotalPRs:          r.TotalPRs,
		Counts:            r.Counts(),
		Merged:            r.Merged,
		ConflictsResolved: r.ConflictsResolved,
		PipelineFailures:  r.PipelineFailures,
		Drafts:            r.Drafts,
		Skipped:           r.Skipped,
	}
}

func (m runMatter) result() *triage.RunResult {
	return &triage.RunResult{
		ID:                m.ID,
		Owner:             m.Owner,
		StartedAt:         m.StartedAt,
		FinishedAt:        m.FinishedAt,
		TotalPRs:          m.TotalPRs,
		Merged:            m.Merged,
		ConflictsResolved: m.ConflictsResolved,
		PipelineFailures:  m.PipelineFailures,
		Drafts:            m.Drafts,
		Skipped:           m.Skipped,
	}
}

// Summary is the header of an archived run, read without its entries.
type Summary struct {
	ID         string
	Owner      string
	StartedAt  time.Time
	FinishedAt time.Time
	TotalPRs   int
	Counts     map[triage.Category]int
}

func (m runMatter) summary() Summary {
	return Summary{
		ID:         m.ID,
		Owner:      m.Owner,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		TotalPRs:   m.TotalPRs,
		Counts:     m.Counts,
	}
}
