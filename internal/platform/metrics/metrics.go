package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the show orchestrator.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	runsStartedTotal       prometheus.Counter
	plansRejectedTotal     prometheus.Counter
	actionsDispatchedTotal prometheus.Counter
	actionsFailedTotal     prometheus.Counter
	downgradesTotal        prometheus.Counter
	activeRuns             prometheus.Gauge
	errorsTotal            prometheus.Counter
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "show_requests_total",
		Help: "Total number of HTTP requests received",
	})
	runsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "show_runs_started_total",
		Help: "Total number of performance runs started",
	})
	plansRejectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "show_plans_rejected_total",
		Help: "Total number of plans rejected by validation",
	})
	actionsDispatchedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "show_actions_dispatched_total",
		Help: "Total number of actions dispatched to the device gateway",
	})
	actionsFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "show_actions_failed_total",
		Help: "Total number of action dispatches that failed or timed out",
	})
	downgradesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "show_strategy_downgrades_total",
		Help: "Total number of execution strategy downgrades",
	})
	activeRuns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "show_active_runs",
		Help: "Number of performance runs currently executing",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "show_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		runsStartedTotal,
		plansRejectedTotal,
		actionsDispatchedTotal,
		actionsFailedTotal,
		downgradesTotal,
		activeRuns,
		errorsTotal,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		runsStartedTotal:       runsStartedTotal,
		plansRejectedTotal:     plansRejectedTotal,
		actionsDispatchedTotal: actionsDispatchedTotal,
		actionsFailedTotal:     actionsFailedTotal,
		downgradesTotal:        downgradesTotal,
		activeRuns:             activeRuns,
		errorsTotal:            errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncRunsStarted increments the runs started counter.
func (m *Metrics) IncRunsStarted() {
	m.runsStartedTotal.Inc()
}

// IncPlansRejected increments the rejected plans counter.
func (m *Metrics) IncPlansRejected() {
	m.plansRejectedTotal.Inc()
}

// IncActionsDispatched increments the dispatched actions counter.
func (m *Metrics) IncActionsDispatched() {
	m.actionsDispatchedTotal.Inc()
}

// IncActionsFailed increments the failed actions counter.
func (m *Metrics) IncActionsFailed() {
	m.actionsFailedTotal.Inc()
}

// IncDowngrades increments the strategy downgrade counter.
func (m *Metrics) IncDowngrades() {
	m.downgradesTotal.Inc()
}

// SetActiveRuns sets the active runs gauge.
func (m *Metrics) SetActiveRuns(n int) {
	m.activeRuns.Set(float64(n))
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active runs).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
