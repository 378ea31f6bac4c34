// Package hashmap implements the simplest backing.Backing: an
// unbounded Go map with no eviction or expiry policy of its own.
//
// Grounded on the Rust original's HashMapBacking (backing.rs) and on
// the teacher's plain map[K]*node lookup path (cache/shard.go), minus
// the shard lock — a hashmap backing is only ever touched by the
// engine goroutine.
package hashmap

import "github.com/outpace-io/loadcache/backing"

// Backing is an unbounded map[K]backing.Entry[V,E]. Meta is ignored.
type Backing[K comparable, V any, E any] struct {
	m map[K]backing.Entry[V, E]
}

// New constructs an empty hashmap backing.
func New[K comparable, V any, E any]() *Backing[K, V, E] {
	return &Backing[K, V, E]{m: make(map[K]backing.Entry[V, E])}
}

// From seeds a hashmap backing with pre-loaded values. Every seeded
// key starts out Loaded; callers wanting a Loading seed should use Set
// directly after construction.
func From[K comparable, V any, E any](seed map[K]V) *Backing[K, V, E] {
	b := &Backing[K, V, E]{m: make(map[K]backing.Entry[V, E], len(seed))}
	for k, v := range seed {
		b.m[k] = backing.Loaded[V, E](v)
	}
	return b
}

func (b *Backing[K, V, E]) Get(k K) (backing.Entry[V, E], bool, error) {
	e, ok := b.m[k]
	return e, ok, nil
}

func (b *Backing[K, V, E]) GetMut(k K, fn func(*V)) (bool, error) {
	e, ok := b.m[k]
	if !ok {
		return false, nil
	}
	v, loaded := e.Value()
	if !loaded {
		return false, nil
	}
	fn(&v)
	b.m[k] = backing.Loaded[V, E](v)
	return true, nil
}

func (b *Backing[K, V, E]) Set(k K, entry backing.Entry[V, E], _ any) (backing.Entry[V, E], bool, error) {
	prev, had := b.m[k]
	b.m[k] = entry
	return prev, had, nil
}

func (b *Backing[K, V, E]) Remove(k K) (backing.Entry[V, E], bool, error) {
	prev, had := b.m[k]
	if had {
		delete(b.m, k)
	}
	return prev, had, nil
}

func (b *Backing[K, V, E]) Contains(k K) (bool, error) {
	_, ok := b.m[k]
	return ok, nil
}

func (b *Backing[K, V, E]) RemoveIf(pred func(K, *V) bool) ([]backing.Removed[K, V, E], error) {
	var removed []backing.Removed[K, V, E]
	for k, e := range b.m {
		v, loaded := e.Value()
		var vp *V
		if loaded {
			vp = &v
		}
		if pred(k, vp) {
			removed = append(removed, backing.Removed[K, V, E]{Key: k, Entry: e})
			delete(b.m, k)
		}
	}
	return removed, nil
}

func (b *Backing[K, V, E]) Clear() error {
	b.m = make(map[K]backing.Entry[V, E])
	return nil
}

func (b *Backing[K, V, E]) Len() int { return len(b.m) }

var _ backing.Backing[string, int, error] = (*Backing[string, int, error])(nil)
