// Package ttl implements a time-indexed expiring backing: entries
// carry an absolute deadline, expired entries are swept lazily on
// every access, and a separate deadline-ordered sequence lets the
// sweep pop expired keys in amortized O(1) instead of scanning the
// whole map.
//
// Grounded on _examples/original_source/src/backing.rs
// (TtlCacheBacking::{set,remove_old,replace,remove_key,cleanup_expiry,
// expiry_index_on_key_eq}), which is the authoritative source for the
// exact excision algorithm spec.md §4.1.1 only describes in prose.
package ttl

import (
	"context"
	"sort"
	"time"

	"github.com/outpace-io/loadcache/backing"
	"github.com/outpace-io/loadcache/backing/hashmap"
)

// Loader is the enriched per-key-TTL loader form spec.md §6 and
// scenario 6 describe: the loader reports the TTL to apply alongside
// a successful value, overriding the backing's default.
type Loader[K comparable, V any, E any] func(ctx context.Context, k K) (v V, ttl time.Duration, err E, ok bool)

// AdaptLoader wraps a Loader into the engine's MetaLoader shape (value,
// opaque meta, err, ok), packing the returned TTL into a Meta so
// Backing.Set picks it up as a per-key override.
func AdaptLoader[K comparable, V any, E any](l Loader[K, V, E]) func(ctx context.Context, k K) (V, any, E, bool) {
	return func(ctx context.Context, k K) (V, any, E, bool) {
		v, ttl, err, ok := l(ctx, k)
		if !ok {
			return v, nil, err, false
		}
		return v, Meta{TTL: ttl}, err, true
	}
}

// Meta is the per-entry policy input this backing understands: an
// override TTL for one Set call. A nil/absent Meta (or any value that
// isn't a Meta) falls back to the backing's default TTL.
type Meta struct {
	TTL time.Duration
}

// Option configures a Backing at construction time.
type Option[K comparable, V any, E any] func(*Backing[K, V, E])

// WithClock overrides the time source, for deterministic tests.
// Defaults to time.Now.
func WithClock[K comparable, V any, E any](now func() time.Time) Option[K, V, E] {
	return func(b *Backing[K, V, E]) { b.now = now }
}

// Backing wraps an inner backing.Backing for entry storage and
// maintains its own deadline index alongside it. The inner backing is
// typically a hashmap.Backing but can be any Backing[K,V,E] — nothing
// about expiry tracking depends on the inner storage's own eviction
// behavior, which is why the spec describes TTL as composing an inner
// "sub-backing" rather than owning storage outright the way the Rust
// original's TtlCacheBacking does.
type Backing[K comparable, V any, E any] struct {
	defaultTTL time.Duration
	inner      backing.Backing[K, V, E]

	// deadlines holds an entry only for keys currently Loaded; per
	// invariant I5, Loading entries carry no TTL metadata and are
	// therefore absent from both this map and seq.
	deadlines map[K]time.Time
	seq       []expiryRecord[K]

	now     func() time.Time
	onEvict func(K, backing.Entry[V, E])
}

type expiryRecord[K comparable] struct {
	key      K
	deadline time.Time
}

// New constructs a TTL backing with a default TTL and a fresh hashmap
// as its inner store.
func New[K comparable, V any, E any](defaultTTL time.Duration, opts ...Option[K, V, E]) *Backing[K, V, E] {
	return WithBacking[K, V, E](defaultTTL, hashmap.New[K, V, E](), opts...)
}

// WithBacking constructs a TTL backing over a caller-supplied inner
// backing (e.g. an lru.Backing, to bound entry count in addition to
// expiring them by time).
func WithBacking[K comparable, V any, E any](defaultTTL time.Duration, inner backing.Backing[K, V, E], opts ...Option[K, V, E]) *Backing[K, V, E] {
	b := &Backing[K, V, E]{
		defaultTTL: defaultTTL,
		inner:      inner,
		deadlines:  make(map[K]time.Time),
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backing[K, V, E]) Get(k K) (backing.Entry[V, E], bool, error) {
	if err := b.sweep(); err != nil {
		var zero backing.Entry[V, E]
		return zero, false, err
	}
	return b.inner.Get(k)
}

func (b *Backing[K, V, E]) GetMut(k K, fn func(*V)) (bool, error) {
	if err := b.sweep(); err != nil {
		return false, err
	}
	return b.inner.GetMut(k, fn)
}

func (b *Backing[K, V, E]) Set(k K, entry backing.Entry[V, E], meta any) (backing.Entry[V, E], bool, error) {
	if err := b.sweep(); err != nil {
		var zero backing.Entry[V, E]
		return zero, false, err
	}

	prev, hadPrev, err := b.inner.Set(k, entry, nil)
	if err != nil {
		return prev, hadPrev, err
	}
	// Excise even when the inner store had no entry: an inner backing
	// that evicts on its own (e.g. lru) leaves k's old record behind.
	if err := b.exciseExpiry(k); err != nil {
		return prev, hadPrev, err
	}

	if _, ok := entry.Value(); ok {
		ttl := b.defaultTTL
		if m, ok := meta.(Meta); ok {
			ttl = m.TTL
		}
		deadline := b.now().Add(ttl)
		b.deadlines[k] = deadline
		b.insertExpiry(k, deadline)
	}
	// Loading entries (I5): no deadline recorded, nothing to insert.

	return prev, hadPrev, nil
}

func (b *Backing[K, V, E]) Remove(k K) (backing.Entry[V, E], bool, error) {
	if err := b.sweep(); err != nil {
		var zero backing.Entry[V, E]
		return zero, false, err
	}
	prev, hadPrev, err := b.inner.Remove(k)
	if err != nil {
		return prev, hadPrev, err
	}
	if err := b.exciseExpiry(k); err != nil {
		return prev, hadPrev, err
	}
	return prev, hadPrev, nil
}

// Contains reports presence without sweeping: a Loading entry is
// considered present (it is not yet subject to any deadline), a
// Loaded entry is present only while its stored deadline is strictly
// in the future. This is the one read operation that never mutates
// state (see spec.md §4.1); not sweeping means an expired entry already
// reported absent here stays in the inner store (and counts toward
// Len) until the next sweeping op removes it.
func (b *Backing[K, V, E]) Contains(k K) (bool, error) {
	entry, ok, err := b.inner.Get(k)
	if err != nil || !ok {
		return false, err
	}
	if _, loaded := entry.Value(); !loaded {
		return true, nil
	}
	dl, ok := b.deadlines[k]
	if !ok {
		return true, nil
	}
	return b.now().Before(dl), nil
}

func (b *Backing[K, V, E]) RemoveIf(pred func(K, *V) bool) ([]backing.Removed[K, V, E], error) {
	if err := b.sweep(); err != nil {
		return nil, err
	}
	removed, err := b.inner.RemoveIf(pred)
	if err != nil {
		return removed, err
	}
	for _, r := range removed {
		if _, loaded := r.Entry.Value(); loaded {
			if err := b.exciseExpiry(r.Key); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

func (b *Backing[K, V, E]) Clear() error {
	b.deadlines = make(map[K]time.Time)
	b.seq = nil
	return b.inner.Clear()
}

func (b *Backing[K, V, E]) Len() int { return b.inner.Len() }

// sweep pops every expiry record whose deadline has passed and
// removes the corresponding inner entry, in amortized O(1) per
// expired key (the sequence is sorted, so expired records are always
// a prefix).
func (b *Backing[K, V, E]) sweep() error {
	now := b.now()
	for len(b.seq) > 0 && !now.Before(b.seq[0].deadline) {
		rec := b.seq[0]
		b.seq = b.seq[1:]
		delete(b.deadlines, rec.key)
		entry, had, err := b.inner.Remove(rec.key)
		if err != nil {
			return err
		}
		if had && b.onEvict != nil {
			b.onEvict(rec.key, entry)
		}
	}
	return nil
}

// OnTTLEvict registers fn to run whenever a sweep silently drops an
// expired entry. Implements backing.TTLEvictNotifier so the engine can
// wire it to Metrics.Evict(EvictTTL) without this package importing
// the engine or metrics packages.
func (b *Backing[K, V, E]) OnTTLEvict(fn func(K, backing.Entry[V, E])) {
	b.onEvict = fn
}

// insertExpiry places a new record after every existing record with
// an equal deadline, preserving FIFO order among co-expiring keys.
func (b *Backing[K, V, E]) insertExpiry(k K, deadline time.Time) {
	idx := sort.Search(len(b.seq), func(i int) bool {
		return b.seq[i].deadline.After(deadline)
	})
	b.seq = append(b.seq, expiryRecord[K]{})
	copy(b.seq[idx+1:], b.seq[idx:])
	b.seq[idx] = expiryRecord[K]{key: k, deadline: deadline}
}

// exciseExpiry locates and removes the expiry record for k, per
// spec.md §4.1.1: binary search for the first record with k's
// deadline, then scan rightward among records sharing that deadline
// for the matching key.
func (b *Backing[K, V, E]) exciseExpiry(k K) error {
	deadline, ok := b.deadlines[k]
	if !ok {
		return nil
	}
	delete(b.deadlines, k)

	idx, err := b.locate(deadline, k)
	if err != nil {
		return err
	}
	b.seq = append(b.seq[:idx], b.seq[idx+1:]...)
	return nil
}

// locate finds k's record within the run of entries sharing deadline.
// sort.Search returns the leftmost index satisfying its predicate, so
// i always lands on the first (not just any) record with that
// deadline — nothing with index < i can share it — and only a
// rightward scan is needed to find k among duplicates.
func (b *Backing[K, V, E]) locate(deadline time.Time, key K) (int, error) {
	i := sort.Search(len(b.seq), func(i int) bool {
		return !b.seq[i].deadline.Before(deadline)
	})
	if i >= len(b.seq) || !b.seq[i].deadline.Equal(deadline) {
		return -1, backing.ErrExpiryNotFound
	}
	for j := i; j < len(b.seq) && b.seq[j].deadline.Equal(deadline); j++ {
		if b.seq[j].key == key {
			return j, nil
		}
	}
	return -1, backing.ErrExpiryKeyNotFound
}

var (
	_ backing.Backing[string, int, error]         = (*Backing[string, int, error])(nil)
	_ backing.TTLEvictNotifier[string, int, error] = (*Backing[string, int, error])(nil)
)
