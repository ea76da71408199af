// Package metrics holds the prometheus collectors shared by the catalog
// gateway, the orchestrator and the tool registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "metadolphin"

var (
	// catalogRequestsTotal counts upstream catalog calls.
	// Labels: endpoint_class (integration/v2/table, catalog/table, ...),
	// outcome (ok, not_found, forbidden, unavailable, budget_exhausted)
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "requests_total",
		Help:      "Upstream catalog calls by endpoint class and outcome",
	}, []string{"endpoint_class", "outcome"})

	// catalogCacheTotal counts cache lookups.
	// Labels: cache (responses, table_ids), result (hit, miss, expired)
	catalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "cache_total",
		Help:      "Gateway cache lookups by cache and result",
	}, []string{"cache", "result"})

	catalogRequestSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "request_seconds",
		Help:      "Latency of a single upstream catalog HTTP attempt",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	})

	orchestratorRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "rounds",
		Help:      "Model rounds used to answer one question",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 25, 50},
	})

	// orchestratorOutcomesTotal counts how each generation ended.
	// Labels: outcome (done, forced_stop, hallucination_blocked, model_error)
	orchestratorOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "outcomes_total",
		Help:      "Orchestration results by terminal outcome",
	}, []string{"outcome"})

	// toolCallsTotal counts tool executions.
	// Labels: tool, status (ok, error)
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tool",
		Name:      "calls_total",
		Help:      "Tool executions by tool name and status",
	}, []string{"tool", "status"})
)

// Orchestrator outcomes.
const (
	OutcomeDone                 = "done"
	OutcomeForcedStop           = "forced_stop"
	OutcomeHallucinationBlocked = "hallucination_blocked"
	OutcomeModelError           = "model_error"
)

// RecordCatalogRequest records one upstream attempt and its latency.
func RecordCatalogRequest(endpointClass, outcome string, durationSec float64) {
	catalogRequestsTotal.WithLabelValues(endpointClass, outcome).Inc()
	if durationSec > 0 {
		catalogRequestSeconds.Observe(durationSec)
	}
}

// RecordCacheLookup records a hit, miss or expiry on the named cache.
func RecordCacheLookup(cache, result string) {
	catalogCacheTotal.WithLabelValues(cache, result).Inc()
}

// RecordGeneration records the rounds used and the terminal outcome of one question.
func RecordGeneration(rounds int, outcome string) {
	if rounds > 0 {
		orchestratorRounds.Observe(float64(rounds))
	}
	orchestratorOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordToolCall records a tool execution.
func RecordToolCall(tool string, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}
