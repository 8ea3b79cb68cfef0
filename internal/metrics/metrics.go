// Package metrics exposes the Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	identityOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cdp",
		Subsystem: "profile",
		Name:      "identity_outcomes_total",
		Help:      "Identity events processed, by lifecycle outcome.",
	}, []string{"outcome"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cdp",
		Subsystem: "profile",
		Name:      "events_dropped_total",
		Help:      "Raw events dropped before reaching the merge engine.",
	})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cdp",
		Subsystem: "profile",
		Name:      "cache_requests_total",
		Help:      "Profile cache lookups, by tier and result.",
	}, []string{"tier", "result"})

	duplicateGroups = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cdp",
		Subsystem: "profile",
		Name:      "duplicate_groups",
		Help:      "Duplicate groups found by the most recent scan.",
	}, []string{"tenant", "strategy"})

	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cdp",
		Subsystem: "profile",
		Name:      "merges_total",
		Help:      "Master profiles created, by merge mode.",
	}, []string{"mode"})
)

func RecordOutcome(outcome string) {
	identityOutcomes.WithLabelValues(outcome).Inc()
}

func RecordDroppedEvent() {
	eventsDropped.Inc()
}

func RecordCacheHit(tier string) {
	cacheRequests.WithLabelValues(tier, "hit").Inc()
}

func RecordCacheMiss(tier string) {
	cacheRequests.WithLabelValues(tier, "miss").Inc()
}

func SetDuplicateGroups(tenant, strategy string, count int) {
	duplicateGroups.WithLabelValues(tenant, strategy).Set(float64(count))
}

func RecordMerge(mode string) {
	mergesTotal.WithLabelValues(mode).Inc()
}

// Handler adapts the Prometheus scrape endpoint to fasthttp.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}
