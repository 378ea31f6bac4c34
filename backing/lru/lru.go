// Package lru implements a bounded backing.Backing with move-to-front
// LRU eviction (default) or a pluggable EvictionPolicy such as 2Q.
//
// Grounded on the teacher's cache/shard.go: the same intrusive
// MRU/LRU doubly linked list and policy-hook wiring, adapted from a
// sharded, mutex-guarded structure to a single unsharded instance
// driven only by the engine goroutine — the spec's race-resolution
// rule needs one serialization point across Set and loader completion
// for a given key, which a set of independently locked shards cannot
// guarantee (see SPEC_FULL.md §9).
package lru

import "github.com/outpace-io/loadcache/backing"

// Option configures a Backing at construction time.
type Option[K comparable, V any, E any] func(*Backing[K, V, E])

// WithPolicy overrides the default pure-LRU eviction policy, e.g. with
// an instance from the twoq subpackage.
func WithPolicy[K comparable, V any, E any](p Policy[K, V, E]) Option[K, V, E] {
	return func(b *Backing[K, V, E]) { b.policyFactory = p }
}

// WithEvictCallback registers a callback invoked synchronously whenever
// capacity enforcement silently drops an entry. The backing itself
// never reports evictions back to the engine as part of its contract
// (see spec.md's design notes on "LRU eviction does not notify the
// engine"); this hook exists purely so the engine can still feed
// metrics/logging without that notification affecting correctness.
func WithEvictCallback[K comparable, V any, E any](fn func(k K, e backing.Entry[V, E])) Option[K, V, E] {
	return func(b *Backing[K, V, E]) { b.onEvict = fn }
}

// Backing is a fixed-capacity, move-to-front LRU store. Meta is
// ignored — this variant has no per-entry policy input.
type Backing[K comparable, V any, E any] struct {
	m    map[K]*node[K, V, E]
	head *node[K, V, E] // MRU
	tail *node[K, V, E] // LRU
	len  int
	cap  int // 0 = unbounded

	policyFactory Policy[K, V, E]
	pol           EvictionPolicy[K, V, E]
	onEvict       func(K, backing.Entry[V, E])
}

// New constructs an LRU backing with a fixed entry-count capacity.
func New[K comparable, V any, E any](capacity int, opts ...Option[K, V, E]) *Backing[K, V, E] {
	if capacity < 1 {
		capacity = 1
	}
	return newBacking[K, V, E](capacity, opts...)
}

// Unbounded constructs an LRU backing that tracks recency ordering but
// never evicts on its own (capacity enforcement is disabled).
func Unbounded[K comparable, V any, E any](opts ...Option[K, V, E]) *Backing[K, V, E] {
	return newBacking[K, V, E](0, opts...)
}

func newBacking[K comparable, V any, E any](capacity int, opts ...Option[K, V, E]) *Backing[K, V, E] {
	b := &Backing[K, V, E]{
		m:   make(map[K]*node[K, V, E]),
		cap: capacity,
	}
	for _, o := range opts {
		o(b)
	}
	if b.policyFactory == nil {
		b.policyFactory = NewPureLRU[K, V, E]()
	}
	b.pol = b.policyFactory.New(lruHooks[K, V, E]{b: b})
	return b
}

func (b *Backing[K, V, E]) Get(k K) (backing.Entry[V, E], bool, error) {
	n, ok := b.m[k]
	if !ok {
		var zero backing.Entry[V, E]
		return zero, false, nil
	}
	b.pol.OnGet(n)
	return n.entry, true, nil
}

func (b *Backing[K, V, E]) GetMut(k K, fn func(*V)) (bool, error) {
	n, ok := b.m[k]
	if !ok {
		return false, nil
	}
	v, loaded := n.entry.Value()
	if !loaded {
		return false, nil
	}
	fn(&v)
	n.entry = backing.Loaded[V, E](v)
	return true, nil
}

func (b *Backing[K, V, E]) Set(k K, entry backing.Entry[V, E], _ any) (backing.Entry[V, E], bool, error) {
	if n, ok := b.m[k]; ok {
		prev := n.entry
		n.entry = entry
		b.pol.OnUpdate(n)
		return prev, true, nil
	}

	n := &node[K, V, E]{key: k, entry: entry}
	b.m[k] = n
	if ev := b.pol.OnAdd(n); ev != nil {
		b.evict(ev.(*node[K, V, E]))
	}
	b.enforceCapacity()

	var zero backing.Entry[V, E]
	return zero, false, nil
}

func (b *Backing[K, V, E]) Remove(k K) (backing.Entry[V, E], bool, error) {
	n, ok := b.m[k]
	if !ok {
		var zero backing.Entry[V, E]
		return zero, false, nil
	}
	b.pol.OnRemove(n)
	b.unlink(n)
	delete(b.m, k)
	return n.entry, true, nil
}

func (b *Backing[K, V, E]) Contains(k K) (bool, error) {
	_, ok := b.m[k]
	return ok, nil
}

func (b *Backing[K, V, E]) RemoveIf(pred func(K, *V) bool) ([]backing.Removed[K, V, E], error) {
	var removed []backing.Removed[K, V, E]
	for k, n := range b.m {
		v, loaded := n.entry.Value()
		var vp *V
		if loaded {
			vp = &v
		}
		if pred(k, vp) {
			removed = append(removed, backing.Removed[K, V, E]{Key: k, Entry: n.entry})
			b.pol.OnRemove(n)
			b.unlink(n)
			delete(b.m, k)
		}
	}
	return removed, nil
}

func (b *Backing[K, V, E]) Clear() error {
	b.m = make(map[K]*node[K, V, E])
	b.head, b.tail, b.len = nil, nil, 0
	b.pol = b.policyFactory.New(lruHooks[K, V, E]{b: b})
	return nil
}

func (b *Backing[K, V, E]) Len() int { return b.len }

func (b *Backing[K, V, E]) enforceCapacity() {
	if b.cap <= 0 {
		return
	}
	for b.len > b.cap {
		tail := b.tail
		if tail == nil {
			break
		}
		b.pol.OnRemove(tail)
		b.evict(tail)
	}
}

func (b *Backing[K, V, E]) evict(n *node[K, V, E]) {
	b.unlink(n)
	delete(b.m, n.key)
	if b.onEvict != nil {
		b.onEvict(n.key, n.entry)
	}
}

// OnCapacityEvict registers fn to run whenever capacity enforcement
// silently drops an entry, replacing any callback passed via
// WithEvictCallback. Implements backing.CapacityEvictNotifier so the
// engine can wire it to Metrics.Evict(EvictCapacity) without the
// backing needing to import the engine or metrics packages.
func (b *Backing[K, V, E]) OnCapacityEvict(fn func(K, backing.Entry[V, E])) {
	b.onEvict = fn
}

// -------------------- intrusive list mechanics --------------------

func (b *Backing[K, V, E]) insertFront(n *node[K, V, E]) {
	n.prev = nil
	n.next = b.head
	if b.head != nil {
		b.head.prev = n
	}
	b.head = n
	if b.tail == nil {
		b.tail = n
	}
	b.len++
}

func (b *Backing[K, V, E]) moveToFront(n *node[K, V, E]) {
	if n == b.head {
		return
	}
	b.detach(n)
	n.prev = nil
	n.next = b.head
	if b.head != nil {
		b.head.prev = n
	}
	b.head = n
	if b.tail == nil {
		b.tail = n
	}
}

func (b *Backing[K, V, E]) detach(n *node[K, V, E]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if b.head == n {
		b.head = n.next
	}
	if b.tail == n {
		b.tail = n.prev
	}
}

func (b *Backing[K, V, E]) unlink(n *node[K, V, E]) {
	b.detach(n)
	n.prev, n.next = nil, nil
	b.len--
}

func (b *Backing[K, V, E]) back() *node[K, V, E] { return b.tail }

// -------------------- policy hooks --------------------

type lruHooks[K comparable, V any, E any] struct{ b *Backing[K, V, E] }

func (h lruHooks[K, V, E]) MoveToFront(n Node[K, V, E]) { h.b.moveToFront(n.(*node[K, V, E])) }
func (h lruHooks[K, V, E]) PushFront(n Node[K, V, E])   { h.b.insertFront(n.(*node[K, V, E])) }
func (h lruHooks[K, V, E]) Remove(n Node[K, V, E])      { h.b.unlink(n.(*node[K, V, E])) }
func (h lruHooks[K, V, E]) Back() Node[K, V, E] {
	if h.b.tail == nil {
		return nil
	}
	return h.b.tail
}
func (h lruHooks[K, V, E]) Len() int { return h.b.len }

var (
	_ backing.Backing[string, int, error]              = (*Backing[string, int, error])(nil)
	_ backing.CapacityEvictNotifier[string, int, error] = (*Backing[string, int, error])(nil)
)
