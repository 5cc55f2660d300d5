package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "gradeq"

// Recorder holds the metrics of a single run. A CI step exits right after
// grading, so the values are pushed to a Pushgateway instead of scraped.
type Recorder struct {
	Registry *prometheus.Registry

	RunsTotal               *prometheus.CounterVec
	GradesEmittedTotal      prometheus.Counter
	MutationLatencySeconds  *prometheus.HistogramVec
	LastRunTimestampSeconds prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of grading runs, labeled by decision and result.",
			},
			[]string{"decision", "result"},
		),
		GradesEmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grades_emitted_total",
				Help:      "Total number of per-criterion grades included in sent mutations.",
			},
		),
		MutationLatencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mutation_duration_seconds",
				Help:      "Latency of the GradeSubmission mutation (seconds).",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		LastRunTimestampSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last grading run.",
			},
		),
	}
	r.Registry.MustRegister(
		r.RunsTotal,
		r.GradesEmittedTotal,
		r.MutationLatencySeconds,
		r.LastRunTimestampSeconds,
	)
	return r
}

// ObserveRun records the final decision of a run. result is "ok", "error"
// or "none" when nothing was sent.
func (r *Recorder) ObserveRun(decision, result string, now time.Time) {
	r.RunsTotal.WithLabelValues(decision, result).Inc()
	r.LastRunTimestampSeconds.Set(float64(now.Unix()))
}

func (r *Recorder) ObserveMutation(outcome string, d time.Duration, grades int) {
	r.MutationLatencySeconds.WithLabelValues(outcome).Observe(d.Seconds())
	if outcome == "ok" {
		r.GradesEmittedTotal.Add(float64(grades))
	}
}

// Push sends the registry to the Pushgateway at url. An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url string, grouping map[string]string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	p := push.New(url, namespace).Gatherer(r.Registry)
	for k, v := range grouping {
		if strings.TrimSpace(v) != "" {
			p = p.Grouping(k, v)
		}
	}
	return p.AddContext(ctx)
}
