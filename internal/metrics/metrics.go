// Package metrics exposes prometheus instrumentation for the trip cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the trip cache's prometheus metrics on a private
// registry.
type Collector struct {
	reg *prometheus.Registry

	SearchesStarted   prometheus.Counter
	SearchesCancelled prometheus.Counter
	ResultsDelivered  prometheus.Counter
	QueryErrors       *prometheus.CounterVec // kind label: provider|network|empty

	TripsPersisted prometheus.Counter
	PersistErrors  prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	JanitorRuns   prometheus.Counter
	TripsExpired  prometheus.Counter
	RowsCollected *prometheus.CounterVec // table label: stops|lines|locations|tripLegs
}

// NewCollector creates and registers all trip cache metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		SearchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_searches_started_total",
			Help: "Total trip searches started.",
		}),
		SearchesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_searches_cancelled_total",
			Help: "Total in-flight searches cancelled by a newer search.",
		}),
		ResultsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_results_delivered_total",
			Help: "Total successful result sets delivered to observers.",
		}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripcache_query_errors_total",
			Help: "Total failed searches by error kind.",
		}, []string{"kind"}),
		TripsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_trips_persisted_total",
			Help: "Total trips written to the cache.",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_persist_errors_total",
			Help: "Total background cache writes that failed.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_lookup_hits_total",
			Help: "Trip lookups answered from memory or cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_lookup_misses_total",
			Help: "Trip lookups that found nothing.",
		}),
		JanitorRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_janitor_runs_total",
			Help: "Total expiry sweeps executed.",
		}),
		TripsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcache_trips_expired_total",
			Help: "Total trips deleted by the retention sweep.",
		}),
		RowsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripcache_gc_rows_collected_total",
			Help: "Orphaned rows reclaimed by garbage collection, per table.",
		}, []string{"table"}),
	}

	reg.MustRegister(
		c.SearchesStarted, c.SearchesCancelled, c.ResultsDelivered, c.QueryErrors,
		c.TripsPersisted, c.PersistErrors,
		c.CacheHits, c.CacheMisses,
		c.JanitorRuns, c.TripsExpired, c.RowsCollected,
	)
	return c
}

// Handler returns the /metrics http handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
