package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts records authentication attempts by result (success|failure).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admincore_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// ACLDecisions counts per-request authorization decisions and their outcome
	// (allow|allow_excluded|allow_unmatched|deny|error).
	ACLDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admincore_acl_decisions_total",
			Help: "Total number of ACL authorization decisions",
		},
		[]string{"method", "result"},
	)

	// MenuResolutions counts user menu tree resolutions by result (success|error).
	MenuResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admincore_menu_resolutions_total",
			Help: "Total number of user menu tree resolutions",
		},
		[]string{"result"},
	)

	// AbilityCacheWrites tracks write-through attempts to the ability cache.
	AbilityCacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admincore_ability_cache_writes_total",
			Help: "Total number of ability cache write-through attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admincore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
