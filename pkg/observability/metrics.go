package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for the access-control core. Registered on the default registry;
// exposed via Handler on the health port.
var (
	// ResolutionsTotal counts claims resolutions by outcome. Outcomes:
	// claims_superadmin, claims_role, record, migrated, none, error.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagepass",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Claims resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// ClaimHealsTotal counts token-claim write-throughs by result.
	ClaimHealsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagepass",
			Subsystem: "resolver",
			Name:      "claim_heals_total",
			Help:      "Token claim heal attempts by result",
		},
		[]string{"result"},
	)

	// RecordMigrationsTotal counts email-fallback record migrations.
	RecordMigrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagepass",
			Subsystem: "resolver",
			Name:      "record_migrations_total",
			Help:      "Permission records migrated to a new principal ID",
		},
	)

	// GuardRejectionsTotal counts guard rejections by reason
	// (unauthorized, invalid_token, forbidden).
	GuardRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagepass",
			Subsystem: "guard",
			Name:      "rejections_total",
			Help:      "Requests rejected by the endpoint guard",
		},
		[]string{"reason"},
	)

	// PermissionCacheOps counts permission-record cache hits and misses.
	PermissionCacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stagepass",
			Subsystem: "store",
			Name:      "permission_cache_ops_total",
			Help:      "Permission record cache operations",
		},
		[]string{"op"},
	)

	// RequestDuration tracks API request latency by route and status.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stagepass",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
