// Package backing defines the key→entry store contract that the cache
// engine drives, and the Entry/Announcer types every backing variant
// stores instead of raw values.
//
// A Backing is always owned and called from a single goroutine (the
// engine's); none of the methods here need to be safe for concurrent
// use by multiple goroutines. That single-owner discipline is what
// lets every backing stay lock-free.
package backing

import "errors"

// ErrExpiryNotFound is returned by the TTL backing when a value's
// stored deadline has no matching record in the expiry sequence.
var ErrExpiryNotFound = errors.New("backing: expiry record not found for deadline")

// ErrExpiryKeyNotFound is returned by the TTL backing when a deadline
// has matching records in the expiry sequence but none of them belong
// to the expected key.
var ErrExpiryKeyNotFound = errors.New("backing: expiry record not found for key at deadline")

// Entry is the tagged state a Backing stores for a key: either a
// resident value (Loaded) or an in-progress load (Loading) whose
// Announcer will eventually carry the outcome to every subscriber.
//
// The zero Entry is not meaningful; always construct one via Loaded
// or Loading.
type Entry[V any, E any] struct {
	loaded    bool
	value     V
	announcer *Announcer[V, E]
}

// Loaded builds an authoritative resident entry.
func Loaded[V any, E any](v V) Entry[V, E] {
	return Entry[V, E]{loaded: true, value: v}
}

// Loading builds an in-flight entry fronted by the given announcer.
func Loading[V any, E any](a *Announcer[V, E]) Entry[V, E] {
	return Entry[V, E]{announcer: a}
}

// Value returns the resident value and true if the entry is Loaded.
func (e Entry[V, E]) Value() (V, bool) {
	return e.value, e.loaded
}

// ValuePtr exposes a pointer to the resident value for in-place
// mutation (UpdateMut). Only meaningful when IsLoaded is true; the
// returned pointer aliases the entry, so callers must copy the entry
// back into the backing via Set after mutating if the backing stores
// entries by value (map-backed implementations do).
func (e *Entry[V, E]) ValuePtr() (*V, bool) {
	if !e.loaded {
		return nil, false
	}
	return &e.value, true
}

// IsLoaded reports whether the entry is the Loaded variant.
func (e Entry[V, E]) IsLoaded() bool { return e.loaded }

// AnnouncerHandle returns the in-flight announcer and true if the entry is
// the Loading variant.
func (e Entry[V, E]) AnnouncerHandle() (*Announcer[V, E], bool) {
	if e.loaded {
		return nil, false
	}
	return e.announcer, true
}

// Removed is one (key, entry) pair returned by RemoveIf.
type Removed[K comparable, V any, E any] struct {
	Key   K
	Entry Entry[V, E]
}

// Backing is the minimal synchronous contract every eviction/expiry
// strategy implements. All methods run on the engine goroutine and
// must never block.
//
// Meta carries per-entry policy input (e.g. a per-key TTL override)
// as an opaque value; a backing that doesn't need one simply ignores
// it. This stands in for the per-backing "associated Meta type" the
// spec describes — Go generics can't express an associated type
// cleanly across a family of concrete backings without inflating every
// call site with an extra type parameter the caller usually doesn't
// care about, so Meta is carried as `any` and type-asserted by the
// backing that understands it.
type Backing[K comparable, V any, E any] interface {
	// Get returns the entry for k, if present. Implementations may
	// mutate internal bookkeeping (LRU promotion, TTL sweep).
	Get(k K) (Entry[V, E], bool, error)

	// GetMut invokes fn on a pointer to the resident value for k and
	// reports whether a Loaded entry existed. It does not recompute
	// any backing-specific metadata (e.g. a TTL deadline survives a
	// GetMut-driven mutation, unlike a Set-driven one).
	GetMut(k K, fn func(v *V)) (hadLoaded bool, err error)

	// Set inserts or replaces the entry for k, returning the prior
	// entry if one existed.
	Set(k K, entry Entry[V, E], meta any) (prev Entry[V, E], hadPrev bool, err error)

	// Remove deletes k unconditionally, returning the removed entry.
	Remove(k K) (prev Entry[V, E], hadPrev bool, err error)

	// Contains reports whether k is resident, without side effects
	// beyond what is required to answer correctly (the TTL backing's
	// Contains does not sweep; see its doc comment).
	Contains(k K) (bool, error)

	// RemoveIf removes every entry for which pred returns true and
	// returns the removed (key, entry) pairs. pred receives a pointer
	// to the value for Loaded entries and nil for Loading entries.
	RemoveIf(pred func(k K, v *V) bool) ([]Removed[K, V, E], error)

	// Clear empties the backing.
	Clear() error

	// Len reports the number of resident entries.
	Len() int
}

// CapacityEvictNotifier is implemented by backings that silently drop
// entries to stay within a fixed capacity (backing/lru). The engine
// type-asserts for this optional interface at construction time and
// wires it to Metrics.Evict(EvictCapacity), the way the teacher wires
// cache/shard.go's onEvict callback to its own metrics.
type CapacityEvictNotifier[K comparable, V any, E any] interface {
	OnCapacityEvict(fn func(k K, e Entry[V, E]))
}

// TTLEvictNotifier is implemented by backings that silently drop
// entries because their deadline passed (backing/ttl). The engine
// wires it to Metrics.Evict(EvictTTL).
type TTLEvictNotifier[K comparable, V any, E any] interface {
	OnTTLEvict(fn func(k K, e Entry[V, E]))
}
