// Package prom implements loadcache.Metrics on top of
// github.com/prometheus/client_golang, mirroring the teacher's
// metrics/prom package one-for-one: same constructor shape
// (registerer, namespace, subsystem, const labels), same registration
// pattern, same compile-time interface assertion.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	loadcache "github.com/outpace-io/loadcache"
)

// Adapter implements loadcache.Metrics and exports Prometheus
// counters/histograms. Safe for concurrent use; every Prometheus
// metric type is goroutine-safe.
type Adapter struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	loads       *prometheus.CounterVec
	loadLatency prometheus.Histogram
	evicts      *prometheus.CounterVec
	queueDepth  prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "loads_total",
				Help:        "Loader invocations by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		loadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Loader invocation latency",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "queue_depth",
			Help:        "Engine inbound queue depth sampled on enqueue",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.loads, a.loadLatency, a.evicts, a.queueDepth)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Load records a loader invocation's outcome and latency.
func (a *Adapter) Load(success bool, dur time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	a.loads.WithLabelValues(outcome).Inc()
	a.loadLatency.Observe(dur.Seconds())
}

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r loadcache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// QueueDepth updates the queue-depth gauge.
func (a *Adapter) QueueDepth(n int) { a.queueDepth.Set(float64(n)) }

func reason(r loadcache.EvictReason) string {
	switch r {
	case loadcache.EvictTTL:
		return "ttl"
	case loadcache.EvictCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Compile-time check: ensure Adapter implements loadcache.Metrics.
var _ loadcache.Metrics = (*Adapter)(nil)
