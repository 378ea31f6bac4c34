package loadcache

import "github.com/outpace-io/loadcache/internal/engine"

// Metrics exposes the cache's observability hooks: Hit/Miss on Get
// resolution, Load for every loader invocation's outcome and latency,
// Evict when a backing silently drops a key, and QueueDepth sampled
// on every enqueue.
//
// Defined as an alias of the engine's Metrics interface so the engine
// can invoke these hooks directly (it cannot import this package, to
// avoid a cycle) while callers only ever see and implement
// loadcache.Metrics.
type Metrics = engine.Metrics

// EvictReason explains why the backing silently dropped an entry.
type EvictReason = engine.EvictReason

const (
	EvictCapacity = engine.EvictCapacity
	EvictTTL      = engine.EvictTTL
)

// NoopMetrics discards every signal; it is the default.
type NoopMetrics = engine.NoopMetrics
