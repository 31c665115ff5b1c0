package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tokgov"

// Governor Prometheus metrics.
var (
	GovernorTokensUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "governor_tokens_used",
		Help:      "Tokens consumed in the current accounting period",
	})

	GovernorDailyBudget = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "governor_daily_budget_tokens",
		Help:      "Configured daily token budget",
	})

	GovernorReservedTokens = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "governor_reserved_tokens",
		Help:      "Tokens held by outstanding reservations",
	})

	GovernorSaverMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "governor_saver_mode",
		Help:      "1 when the governor is in SAVER mode, 0 in PERFORMANCE mode",
	})

	GovernorAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governor_admissions_total",
			Help:      "Admission decisions by priority and result",
		},
		[]string{"priority", "result"}, // result: "admitted" / "refused"
	)

	GovernorRecordedTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "governor_recorded_tokens_total",
		Help:      "Tokens durably recorded",
	})

	GovernorRolloversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "governor_rollovers_total",
		Help:      "Accounting period rollovers",
	})

	GovernorPersistenceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governor_persistence_errors_total",
			Help:      "Failed state store operations",
		},
		[]string{"op"}, // "load" / "save" / "record"
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of completion provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Completion provider request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens reported by the completion provider",
		},
		[]string{"provider", "model", "type"}, // "prompt" / "completion" / "total"
	)
)

var registerOnce sync.Once

// RegisterGovernorMetrics registers governor and provider metrics on the default
// registry. Safe to call more than once; must be called from main (no init()).
func RegisterGovernorMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			GovernorTokensUsed,
			GovernorDailyBudget,
			GovernorReservedTokens,
			GovernorSaverMode,
			GovernorAdmissionsTotal,
			GovernorRecordedTokensTotal,
			GovernorRolloversTotal,
			GovernorPersistenceErrorsTotal,
			ProviderRequestsTotal,
			ProviderRequestDuration,
			ProviderTokensTotal,
		)
	})
}
