package reference

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	referenceManagers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bindery_reference_managers",
			Help: "Number of open reference managers.",
		},
	)
	referenceUnsatisfied = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bindery_reference_unsatisfied",
			Help: "Number of open reference managers whose reference is not satisfied.",
		},
	)
	referenceEvaluationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_reference_evaluations_total",
			Help: "Number of candidate set changes evaluated by the binding policy.",
		},
	)
	referenceNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_reference_notifications_total",
			Help: "Number of notifications emitted, by event.",
		},
		[]string{"event"},
	)
	referenceBindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_reference_bindings_total",
			Help: "Number of bind and unbind actions applied.",
		},
		[]string{"action"},
	)
	referenceAcquisitionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_reference_acquisition_failures_total",
			Help: "Number of providers the registry failed to materialize during a bind.",
		},
	)
	referenceListenerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_reference_listener_failures_total",
			Help: "Number of listener callbacks that returned an error or panicked.",
		},
	)
	referenceEvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bindery_reference_evaluation_duration_seconds",
			Help:    "Time taken to evaluate a candidate set change, including acquisition.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	metrics.Registry.MustRegister(
		referenceManagers,
		referenceUnsatisfied,
		referenceEvaluationsTotal,
		referenceNotificationsTotal,
		referenceBindingsTotal,
		referenceAcquisitionFailuresTotal,
		referenceListenerFailuresTotal,
		referenceEvaluationDuration,
	)
}
