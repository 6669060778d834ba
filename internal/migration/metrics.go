package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/temirov/glmigrate/internal/gitlab"
)

const (
	metricsNamespaceConstant          = "glmigrate"
	entityResultsMetricNameConstant   = "entity_results_total"
	entityResultsMetricHelpConstant   = "Finalized migration results by entity kind and status."
	remoteRequestsMetricNameConstant  = "remote_requests_total"
	remoteRequestsMetricHelpConstant  = "Remote API requests by instance, method, and outcome."
	phaseDurationMetricNameConstant   = "phase_duration_seconds"
	phaseDurationMetricHelpConstant   = "Wall-clock duration of each migration phase."
	breakerStateMetricNameConstant    = "circuit_breaker_transitions_total"
	breakerStateMetricHelpConstant    = "Circuit breaker state transitions by instance and new state."
	metricLabelKindConstant           = "kind"
	metricLabelStatusConstant         = "status"
	metricLabelInstanceConstant       = "instance"
	metricLabelMethodConstant         = "method"
	metricLabelOutcomeConstant        = "outcome"
	metricLabelStateConstant          = "state"
	requestOutcomeSuccessConstant     = "success"
	requestOutcomeFailureConstant     = "failure"
	breakerStateClosedLabelConstant   = "closed"
	breakerStateOpenLabelConstant     = "open"
	breakerStateHalfOpenLabelConstant = "half_open"
	breakerStateUnknownLabelConstant  = "unknown"
)

// Metrics exposes the run's operational counters for scraping.
type Metrics struct {
	entityResults      *prometheus.CounterVec
	remoteRequests     *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	breakerTransitions *prometheus.CounterVec
}

// NewMetrics registers the migration metric families with the registerer.
func NewMetrics(metricsRegisterer prometheus.Registerer) *Metrics {
	metricsFactory := promauto.With(metricsRegisterer)

	return &Metrics{
		entityResults: metricsFactory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespaceConstant,
				Name:      entityResultsMetricNameConstant,
				Help:      entityResultsMetricHelpConstant,
			},
			[]string{metricLabelKindConstant, metricLabelStatusConstant},
		),
		remoteRequests: metricsFactory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespaceConstant,
				Name:      remoteRequestsMetricNameConstant,
				Help:      remoteRequestsMetricHelpConstant,
			},
			[]string{metricLabelInstanceConstant, metricLabelMethodConstant, metricLabelOutcomeConstant},
		),
		phaseDuration: metricsFactory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespaceConstant,
				Name:      phaseDurationMetricNameConstant,
				Help:      phaseDurationMetricHelpConstant,
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{metricLabelKindConstant},
		),
		breakerTransitions: metricsFactory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespaceConstant,
				Name:      breakerStateMetricNameConstant,
				Help:      breakerStateMetricHelpConstant,
			},
			[]string{metricLabelInstanceConstant, metricLabelStateConstant},
		),
	}
}

// ObserveResult counts one finalized entity result.
func (metrics *Metrics) ObserveResult(finalizedResult Result) {
	if metrics == nil {
		return
	}
	metrics.entityResults.WithLabelValues(string(finalizedResult.EntityKind), string(finalizedResult.Status)).Inc()
}

// ObservePhaseDuration records the wall-clock duration of one phase.
func (metrics *Metrics) ObservePhaseDuration(entityKind EntityKind, durationSeconds float64) {
	if metrics == nil {
		return
	}
	metrics.phaseDuration.WithLabelValues(string(entityKind)).Observe(durationSeconds)
}

// RequestObserver adapts the metrics into the remote client's observer hook.
func (metrics *Metrics) RequestObserver() gitlab.RequestObserver {
	if metrics == nil {
		return nil
	}
	return func(instanceLabel string, method string, statusCode int, requestError error) {
		requestOutcome := requestOutcomeSuccessConstant
		if requestError != nil {
			requestOutcome = requestOutcomeFailureConstant
		}
		metrics.remoteRequests.WithLabelValues(instanceLabel, method, requestOutcome).Inc()
	}
}

// BreakerTransitionHook adapts the metrics into a circuit breaker state hook
// for the named instance.
func (metrics *Metrics) BreakerTransitionHook(instanceLabel string) func(gitlab.BreakerState) {
	if metrics == nil {
		return func(gitlab.BreakerState) {}
	}
	return func(nextState gitlab.BreakerState) {
		metrics.breakerTransitions.WithLabelValues(instanceLabel, breakerStateLabel(nextState)).Inc()
	}
}

func breakerStateLabel(breakerState gitlab.BreakerState) string {
	switch breakerState {
	case gitlab.BreakerStateClosed:
		return breakerStateClosedLabelConstant
	case gitlab.BreakerStateOpen:
		return breakerStateOpenLabelConstant
	case gitlab.BreakerStateHalfOpen:
		return breakerStateHalfOpenLabelConstant
	default:
		return breakerStateUnknownLabelConstant
	}
}
