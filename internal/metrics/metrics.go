// Package metrics defines the Prometheus collectors shared by the cache store,
// the fetch strategies and the payment relay. Collectors are registered on the
// default registry through promauto and exposed by the server at /-/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts bucket matches by strategy and result ("hit"/"miss").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgehub_cache_lookups_total",
			Help: "Total number of cache lookups by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	// NetworkFetches counts upstream fetches by strategy and outcome ("ok"/"error").
	NetworkFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgehub_network_fetches_total",
			Help: "Total number of network fetches by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// CacheWrites counts best-effort writes by result ("stored"/"skipped"/"failed").
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgehub_cache_writes_total",
			Help: "Total number of cache writes by result",
		},
		[]string{"result"},
	)

	// ShellFallbacks counts navigations answered with the shell document.
	ShellFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgehub_shell_fallbacks_total",
			Help: "Total number of offline navigations served from the shell document",
		},
	)

	// GenerationsDeleted counts stale cache generations removed on activate.
	GenerationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgehub_generations_deleted_total",
			Help: "Total number of stale cache generations deleted during activation",
		},
	)

	// PaymentRequests counts calls to the payment API by endpoint and status.
	PaymentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgehub_payment_requests_total",
			Help: "Total number of payment API requests by endpoint and HTTP status",
		},
		[]string{"endpoint", "status"},
	)
)
