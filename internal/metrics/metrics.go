// Package metrics exposes run outcomes as Prometheus metrics and pushes them
// to a Pushgateway at the end of a run.
package metrics

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/juninmd/prpilot/internal/triage"
)

// DefaultJob is the Pushgateway job name.
const DefaultJob = "prpilot"

// Recorder holds the metrics of one process. Each Recorder has its own registry
// so pushes carry only prpilot series.
type Recorder struct {
	reg *prometheus.Registry

	outcomes    *prometheus.CounterVec
	skipReasons *prometheus.CounterVec
	discovered  prometheus.Gauge
	lastRun     prometheus.Gauge
	duration    prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		reg: reg,
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prpilot_pr_outcomes_total",
				Help: "Pull requests processed, by outcome category",
			},
			[]string{"outcome"},
		),
		skipReasons: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prpilot_pr_skipped_total",
				Help: "Skipped pull requests, by reason",
			},
			[]string{"reason"},
		),
		discovered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prpilot_run_prs_discovered",
			Help: "Open pull requests discovered by the most recent run",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prpilot_last_run_timestamp_seconds",
			Help: "Unix time the most recent run finished",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prpilot_run_duration_seconds",
			Help: "Wall time of the most recent run",
		}),
	}
}

// Registry returns the registry the metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Observe records a finished run.
func (r *Recorder) Observe(result *triage.RunResult) {
	for cat, n := range result.Counts() {
		r.outcomes.WithLabelValues(string(cat)).Add(float64(n))
	}
	for reason, n := range result.SkipReasons() {
		r.skipReasons.WithLabelValues(string(reason)).Add(float64(n))
	}
	r.discovered.Set(float64(result.TotalPRs))
	r.duration.Set(result.Duration().Seconds())
	if result.Finished() {
		r.lastRun.Set(float64(result.FinishedAt.Unix()))
	}
}

// Push sends every metric to the Pushgateway at url, grouped by owner.
func (r *Recorder) Push(url, job, owner string) error {
	if job == "" {
		job = DefaultJob
	}
	p := push.New(url, job).Gatherer(r.reg)
	if owner != "" {
		p = p.Grouping("owner", owner)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	slog.Debug("metrics pushed", "url", url, "job", job)
	return nil
}
