package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	registryProviders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bindery_registry_providers",
			Help: "Number of providers currently published.",
		},
	)
	registryAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_registry_acquisitions_total",
			Help: "Number of provider acquisitions, by provider scope and result.",
		},
		[]string{"scope", "result"},
	)
)

func init() {
	metrics.Registry.MustRegister(registryProviders, registryAcquisitions)
}
