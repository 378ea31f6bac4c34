package loadcache

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/outpace-io/loadcache/internal/engine"
)

// Option configures a Cache at construction time.
type Option[K comparable, V any, E any] func(*settings[K, V, E])

type settings[K comparable, V any, E any] struct {
	queueCapacity int
	metrics       Metrics
	logger        zerolog.Logger
	clock         func() time.Time
}

// WithQueueCapacity overrides the engine's inbound channel capacity
// (default 128, per spec.md §5).
func WithQueueCapacity[K comparable, V any, E any](n int) Option[K, V, E] {
	return func(s *settings[K, V, E]) { s.queueCapacity = n }
}

// WithMetrics installs a Metrics implementation, e.g. metrics/prom's
// Adapter. The default is NoopMetrics.
func WithMetrics[K comparable, V any, E any](m Metrics) Option[K, V, E] {
	return func(s *settings[K, V, E]) { s.metrics = m }
}

// WithLogger installs a zerolog.Logger the engine logs load lifecycle
// events and race-rule/backing-error warnings through. The default is
// the disabled logger (zerolog.Nop()).
func WithLogger[K comparable, V any, E any](l zerolog.Logger) Option[K, V, E] {
	return func(s *settings[K, V, E]) { s.logger = l }
}

// WithClock overrides the time source used for load-latency metrics
// and logging, for deterministic tests. It does not affect a
// backing/ttl instance's own clock, which is configured separately via
// ttl.WithClock.
func WithClock[K comparable, V any, E any](now func() time.Time) Option[K, V, E] {
	return func(s *settings[K, V, E]) { s.clock = now }
}

func buildSettings[K comparable, V any, E any](opts []Option[K, V, E]) settings[K, V, E] {
	s := settings[K, V, E]{logger: zerolog.Nop()}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func (s settings[K, V, E]) engineConfig() engine.Config[K, V, E] {
	return engine.Config[K, V, E]{
		QueueCapacity: s.queueCapacity,
		Metrics:       s.metrics,
		Logger:        s.logger,
		Clock:         s.clock,
	}
}
