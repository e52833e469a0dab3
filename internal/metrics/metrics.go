package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/curator/internal/rows"
)

const (
	namespace = "curator"

	outcomeLabel = "outcome"
	statusLabel  = "status"

	OutcomeSuccess        = "success"
	OutcomeParseError     = "parse_error"
	OutcomeTransportError = "transport_error"
	OutcomeError          = "error"
)

// Metrics owns its own registry so tests and multiple sessions do not collide.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry    *prometheus.Registry
	attempts    *prometheus.CounterVec
	stale       prometheus.Counter
	submissions *prometheus.CounterVec
	rows        *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_attempts_total",
			Help:      "enrichment calls that finished, by outcome",
		}, []string{outcomeLabel}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_stale_results_total",
			Help:      "enrichment results discarded because a newer attempt superseded them",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "row submissions, by outcome",
		}, []string{outcomeLabel}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows",
			Help:      "rows in the loaded dataset, by status",
		}, []string{statusLabel}),
	}
	m.registry.MustRegister(m.attempts, m.stale, m.submissions, m.rows)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EnrichmentFinished(outcome string) {
	if m == nil {
		return
	}
	m.attempts.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func (m *Metrics) StaleResult() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

func (m *Metrics) SubmissionFinished(outcome string) {
	if m == nil {
		return
	}
	m.submissions.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// ResetRows sets the status gauge from a freshly loaded dataset.
func (m *Metrics) ResetRows(all []rows.Row) {
	if m == nil {
		return
	}
	counts := make(map[rows.Status]int, len(rows.AllStatuses))
	for _, r := range all {
		counts[r.Status]++
	}
	for _, s := range rows.AllStatuses {
		m.rows.With(prometheus.Labels{statusLabel: string(s)}).Set(float64(counts[s]))
	}
}

// ObserveRow is a rowstore listener that keeps the status gauge current.
func (m *Metrics) ObserveRow(prev, next rows.Row) {
	if m == nil || prev.Status == next.Status {
		return
	}
	m.rows.With(prometheus.Labels{statusLabel: string(prev.Status)}).Dec()
	m.rows.With(prometheus.Labels{statusLabel: string(next.Status)}).Inc()
}
