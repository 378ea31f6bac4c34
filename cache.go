// Package loadcache implements an asynchronous loading cache with
// single-flight deduplication: a miss triggers exactly one invocation
// of a user-supplied loader regardless of how many concurrent callers
// asked for the same key, and a pluggable Backing governs eviction and
// expiry (backing/hashmap, backing/lru, backing/ttl).
//
// Design
//
//   - Concurrency: a single goroutine (internal/engine.Engine) owns the
//     Backing exclusively and serializes every state transition by
//     draining one message at a time off a buffered channel. This is
//     the module's only synchronization point — the backing itself
//     never needs a lock.
//
//   - Single-flight: a miss installs a Loading entry fronted by an
//     Announcer (a broadcast-once channel) and spawns the loader in its
//     own goroutine. Every concurrent Get for that key subscribes to
//     the same Announcer instead of invoking the loader again.
//
//   - Race resolution: a client Set/Update always takes precedence over
//     a concurrently-completing loader for the same key. See
//     internal/engine's set() for the exact rule.
//
//   - Backings: hashmap (unbounded), lru (fixed capacity, pluggable
//     eviction policy), ttl (lazy expiry with an amortized-O(1) sweep).
//
// Basic usage
//
//	c, done := loadcache.New[string, string](
//	    func(ctx context.Context, k string) (string, error, bool) {
//	        return strings.ToLower(k), nil, true
//	    },
//	)
//	defer func() { c.Shutdown(); <-done }()
//	v, err := c.Get(context.Background(), "LOL") // "lol"
//
// With a TTL backing
//
//	b := ttl.New[string, string, error](3 * time.Second)
//	c, done := loadcache.WithBacking[string, string, error](b, loader)
//
// With Prometheus metrics
//
//	m := prom.New(nil, "loadcache", "demo", nil)
//	c, done := loadcache.New[string, string](loader, loadcache.WithMetrics[string, string, error](m))
package loadcache

import (
	"context"

	"github.com/outpace-io/loadcache/backing"
	"github.com/outpace-io/loadcache/backing/hashmap"
	"github.com/outpace-io/loadcache/internal/engine"
)

// LoaderFunc fetches the value for a key that missed the cache. ok is
// false on failure, in which case err carries the opaque payload
// delivered to LoadError.LoaderErr.
type LoaderFunc[K comparable, V any, E any] = engine.Loader[K, V, E]

// MetaLoaderFunc is the enriched loader form accepted by
// WithBackingMeta when the backing declares a non-trivial Meta (e.g.
// backing/ttl's per-key TTL override, spec.md §6 and scenario 6).
type MetaLoaderFunc[K comparable, V any, E any] = engine.MetaLoader[K, V, E]

// Cache is the client facade: a handle to the engine's inbound
// channel plus the translation from its Outcome protocol into plain
// (value, error) returns.
type Cache[K comparable, V any, E any] struct {
	eng *engine.Engine[K, V, E]
}

// New constructs a Cache backed by an unbounded hash map. The returned
// channel closes once the engine goroutine exits after Shutdown.
func New[K comparable, V any, E any](loader LoaderFunc[K, V, E], opts ...Option[K, V, E]) (*Cache[K, V, E], <-chan struct{}) {
	return WithBacking[K, V, E](hashmap.New[K, V, E](), loader, opts...)
}

// WithBacking constructs a Cache over an explicit Backing instance.
func WithBacking[K comparable, V any, E any](b backing.Backing[K, V, E], loader LoaderFunc[K, V, E], opts ...Option[K, V, E]) (*Cache[K, V, E], <-chan struct{}) {
	return WithBackingMeta[K, V, E](b, engine.AsMetaLoader(loader), opts...)
}

// WithBackingMeta is WithBacking for a loader that also returns the
// per-entry Meta to store alongside a successful value.
func WithBackingMeta[K comparable, V any, E any](b backing.Backing[K, V, E], loader MetaLoaderFunc[K, V, E], opts ...Option[K, V, E]) (*Cache[K, V, E], <-chan struct{}) {
	s := buildSettings(opts)
	eng := engine.New[K, V, E](b, loader, s.engineConfig())
	done := make(chan struct{})
	go func() {
		eng.Run()
		close(done)
	}()
	return &Cache[K, V, E]{eng: eng}, done
}

// Shutdown stops accepting new operations and lets the engine
// goroutine exit once its inbox drains. Calling it more than once
// panics (closing a closed channel), matching Go's usual close
// discipline.
func (c *Cache[K, V, E]) Shutdown() { c.eng.Shutdown() }

// Get returns the value for k, loading it on a miss. Concurrent Get
// calls for the same missing key share a single loader invocation.
func (c *Cache[K, V, E]) Get(ctx context.Context, k K) (V, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActGet, Key: k})
	return r.Value, err
}

// GetWithMeta is Get plus whether the value came from cache (true) or
// a fresh load (false).
func (c *Cache[K, V, E]) GetWithMeta(ctx context.Context, k K) (V, bool, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActGet, Key: k})
	return r.Value, r.Cached, err
}

// GetIfPresent returns the resident value for k without triggering a
// load. A Loading entry counts as absent.
func (c *Cache[K, V, E]) GetIfPresent(ctx context.Context, k K) (V, bool, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActGetIfPresent, Key: k})
	return r.Value, r.Present, err
}

// Exists reports whether k is resident (Loaded), without loading it.
func (c *Cache[K, V, E]) Exists(ctx context.Context, k K) (bool, error) {
	_, ok, err := c.GetIfPresent(ctx, k)
	return ok, err
}

// Set unconditionally installs v as k's Loaded value, returning any
// prior Loaded value. A concurrently-completing loader for k loses
// the race (spec.md §4.3).
func (c *Cache[K, V, E]) Set(ctx context.Context, k K, v V) (V, bool, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActSet, Key: k, Value: v})
	return r.Value, r.Present, err
}

// SetWithMeta is Set with an explicit backing-specific Meta override
// (e.g. ttl.Meta{TTL: d} for a per-key TTL).
func (c *Cache[K, V, E]) SetWithMeta(ctx context.Context, k K, v V, meta any) (V, bool, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActSet, Key: k, Value: v, Meta: meta})
	return r.Value, r.Present, err
}

// Remove deletes k unconditionally, returning any prior Loaded value.
// If a load for k is in flight, its eventual SetAndUnblock is rejected
// per the race rule.
func (c *Cache[K, V, E]) Remove(ctx context.Context, k K) (V, bool, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActRemove, Key: k})
	return r.Value, r.Present, err
}

// RemoveIf removes every Loaded entry for which pred(k, &v) is true
// and every Loading entry for which pred(k, nil) is true.
func (c *Cache[K, V, E]) RemoveIf(ctx context.Context, pred func(K, *V) bool) error {
	_, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActRemoveIf, Pred: pred})
	return err
}

// Clear empties the backing. Any in-flight loaders will have their
// SetAndUnblock rejected (their key will be absent).
func (c *Cache[K, V, E]) Clear(ctx context.Context) error {
	_, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActClear})
	return err
}

// Update loads k if absent, applies fn to the resulting value, and
// stores the result. Concurrent Updates for a key already loading wait
// for that load before applying fn.
func (c *Cache[K, V, E]) Update(ctx context.Context, k K, fn func(V) V) (V, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActUpdate, Key: k, UpdateFn: fn, LoadIfAbsent: true})
	return r.Value, err
}

// UpdateIfExists is Update but leaves an absent key absent instead of
// loading it first.
func (c *Cache[K, V, E]) UpdateIfExists(ctx context.Context, k K, fn func(V) V) (V, bool, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActUpdate, Key: k, UpdateFn: fn, LoadIfAbsent: false})
	return r.Value, r.Present, err
}

// UpdateMut is Update with an in-place mutator instead of a
// value-to-value function; it does not accept a Meta override.
func (c *Cache[K, V, E]) UpdateMut(ctx context.Context, k K, mutate func(*V)) (V, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActUpdateMut, Key: k, MutateFn: mutate, LoadIfAbsent: true})
	return r.Value, err
}

// UpdateMutIfExists is UpdateMut but leaves an absent key absent.
func (c *Cache[K, V, E]) UpdateMutIfExists(ctx context.Context, k K, mutate func(*V)) (V, bool, error) {
	r, err := c.do(ctx, engine.Action[K, V, E]{Kind: engine.ActUpdateMut, Key: k, MutateFn: mutate, LoadIfAbsent: false})
	return r.Value, r.Present, err
}

// resolved is the facade's normalized view of an engine Outcome, after
// any Loading handle has been awaited.
type resolved[V any] struct {
	Value   V
	Present bool // a value was produced (Found, or Loading resolved to a value)
	Cached  bool // true only for a synchronous Found (never for a resolved Loading)
}

func (c *Cache[K, V, E]) do(ctx context.Context, a engine.Action[K, V, E]) (resolved[V], error) {
	out, commErr := c.eng.Send(ctx, a)
	return c.resolve(ctx, out, commErr)
}

func (c *Cache[K, V, E]) resolve(ctx context.Context, out engine.Outcome[V, E], commErr engine.CommError) (resolved[V], error) {
	if commErr != engine.CommNone {
		return resolved[V]{}, commError[E](commErr, nil)
	}
	switch out.Kind {
	case engine.KindFound:
		return resolved[V]{Value: out.Value, Present: true, Cached: true}, nil
	case engine.KindNone:
		return resolved[V]{}, nil
	case engine.KindError:
		return resolved[V]{}, backingError[E](out.BackingErr)
	case engine.KindLoading:
		return c.awaitLoading(ctx, out.Loading)
	default:
		return resolved[V]{}, nil
	}
}

func (c *Cache[K, V, E]) awaitLoading(ctx context.Context, ch <-chan engine.Result[V, E]) (resolved[V], error) {
	select {
	case r, ok := <-ch:
		if !ok {
			return resolved[V]{}, commError[E](engine.CommJoinFailed, nil)
		}
		if r.HasErr {
			return resolved[V]{}, loaderError(r.Err)
		}
		if r.Comm != engine.CommNone {
			return resolved[V]{}, commError[E](r.Comm, r.BackingErr)
		}
		return resolved[V]{Value: r.Value, Present: true, Cached: false}, nil
	case <-ctx.Done():
		return resolved[V]{}, commError[E](engine.CommAnnouncerRecvFailed, nil)
	}
}
