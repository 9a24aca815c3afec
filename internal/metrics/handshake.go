package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Handshake-related Prometheus metrics. Defined in a standalone package so
// the coordinator and any HTTP surface can share them without import cycles.

var (
	HandshakeTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_handshake_transitions_total",
		Help: "Transiciones de estado del handshake coordinator",
	}, []string{"from", "to"})

	SyncLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "authgate_sync_latency_ms",
		Help:    "Latencia del social-login sync en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	SyncFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authgate_sync_failures_total",
		Help: "Syncs fallidos (red/5xx); no incluye claims pendientes",
	})

	ClaimOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_claim_outcomes_total",
		Help: "Resoluciones del claim flow (claimed, created, expired, failed)",
	}, []string{"outcome"})

	APIErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_api_errors_total",
		Help: "Errores del backend de sesiones por categoría",
	}, []string{"kind"})
)

// RegisterHandshake registers the handshake metrics on the given registry
// (or default if nil).
func RegisterHandshake(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		HandshakeTransitions, SyncLatency, SyncFailures, ClaimOutcomes, APIErrors,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
