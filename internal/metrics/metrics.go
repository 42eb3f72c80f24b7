// Package metrics exposes the pipeline's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accountpulse"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	jobRuns          *prometheus.CounterVec
	aggregationUnits *prometheus.CounterVec
	contactsRescored *prometheus.CounterVec
	visitEvents      *prometheus.CounterVec
	touchesDue       prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job executions by job and outcome.",
		}, []string{"job", "outcome"}),
		aggregationUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_units_total",
			Help:      "Campaign-day aggregation units by outcome.",
		}, []string{"outcome"}),
		contactsRescored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_rescored_total",
			Help:      "Contacts rescored by outcome.",
		}, []string{"outcome"}),
		visitEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visit_events_total",
			Help:      "Tracking events accepted by kind.",
		}, []string{"kind"}),
		touchesDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sequence_touches_due",
			Help:      "Sequence touches due at the last scan.",
		}),
	}

	m.registry.MustRegister(
		m.jobRuns,
		m.aggregationUnits,
		m.contactsRescored,
		m.visitEvents,
		m.touchesDue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveJobRun counts one job execution.
func (m *Metrics) ObserveJobRun(job string, err error) {
	m.jobRuns.WithLabelValues(job, outcome(err)).Inc()
}

// AddAggregationUnits counts finished aggregation units.
func (m *Metrics) AddAggregationUnits(succeeded, failed int) {
	m.aggregationUnits.WithLabelValues(OutcomeSuccess).Add(float64(succeeded))
	m.aggregationUnits.WithLabelValues(OutcomeFailure).Add(float64(failed))
}

// AddContactsRescored counts rescored contacts.
func (m *Metrics) AddContactsRescored(succeeded, failed int) {
	m.contactsRescored.WithLabelValues(OutcomeSuccess).Add(float64(succeeded))
	m.contactsRescored.WithLabelValues(OutcomeFailure).Add(float64(failed))
}

// ObserveVisitEvent counts one accepted tracking event.
func (m *Metrics) ObserveVisitEvent(kind string) {
	m.visitEvents.WithLabelValues(kind).Inc()
}

// SetTouchesDue records the size of the last due-touch scan.
func (m *Metrics) SetTouchesDue(n int) {
	m.touchesDue.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
