package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WizardEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bidibip_wizard_events_total",
		Help: "Inbound events offered to a wizard, by kind and outcome.",
	}, []string{"module", "kind", "outcome"})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bidibip_wizard_sessions",
		Help: "In-progress wizard sessions.",
	}, []string{"module"})

	TokensInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bidibip_routing_tokens_in_use",
		Help: "Routing tokens currently leased to live controls.",
	}, []string{"module"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bidibip_wizard_submissions_total",
		Help: "Finalized wizard documents.",
	}, []string{"module"})
)

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
