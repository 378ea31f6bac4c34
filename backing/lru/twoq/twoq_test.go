package twoq

import (
	"testing"

	"github.com/outpace-io/loadcache/backing/lru"
)

// --- test doubles, same shape as the teacher's policy/twoq tests ---

type testNode[K comparable] struct{ k K }

func (n *testNode[K]) Key() K { return n.k }

type mockHooks[K comparable, V any, E any] struct {
	pushFrontCnt   int
	moveToFrontCnt int
}

func (h *mockHooks[K, V, E]) MoveToFront(n lru.Node[K, V, E]) { h.moveToFrontCnt++ }
func (h *mockHooks[K, V, E]) PushFront(n lru.Node[K, V, E])   { h.pushFrontCnt++ }
func (h *mockHooks[K, V, E]) Remove(lru.Node[K, V, E])        {}
func (h *mockHooks[K, V, E]) Back() lru.Node[K, V, E]         { return nil }
func (h *mockHooks[K, V, E]) Len() int                        { return 0 }

// OnAdd of a first-time key admits it into A1in without eviction.
func TestTwoQ_AddGoesToA1in(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string, int, error]{}
	p := New[string, int, error](2, 4).New(h).(*twoQ[string, int, error])

	n1 := &testNode[string]{k: "a"}
	if ev := p.OnAdd(n1); ev != nil {
		t.Fatalf("OnAdd should not evict yet, got %v", ev)
	}
	if p.inList.Len() != 1 {
		t.Fatalf("A1in must have 1 element, got %d", p.inList.Len())
	}
	if _, ok := p.inIdx[n1]; !ok {
		t.Fatal("n1 must be present in A1in's index")
	}
}

// When A1in overflows, OnAdd evicts its own LRU candidate and excises
// it from both the probationary list and index (unlike a policy that
// merely reports the candidate and leaves bookkeeping to the caller —
// here the policy owns its own queues end to end).
func TestTwoQ_OverflowEvictsAndCleansUpA1in(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string, int, error]{}
	p := New[string, int, error](2, 4).New(h).(*twoQ[string, int, error])

	n1 := &testNode[string]{k: "a"}
	n2 := &testNode[string]{k: "b"}
	n3 := &testNode[string]{k: "c"}

	p.OnAdd(n1) // A1in: [n1]
	p.OnAdd(n2) // A1in: [n2, n1]
	ev := p.OnAdd(n3) // A1in: [n3, n2, n1] -> overflow, evicts n1

	if ev == nil || ev.Key() != "a" {
		t.Fatalf("expected eviction of n1 (a), got %v", ev)
	}
	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must be removed from A1in's index after eviction")
	}
	if p.inList.Len() != 2 {
		t.Fatalf("A1in must have 2 elements after eviction, got %d", p.inList.Len())
	}
	if _, ok := p.ghostIdx["a"]; !ok {
		t.Fatal("evicted key must be admitted to the ghost queue")
	}
}

// Removing a node from A1in places its key into the ghost queue.
func TestTwoQ_OnRemoveFromA1inGoesToGhost(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string, int, error]{}
	p := New[string, int, error](2, 2).New(h).(*twoQ[string, int, error])

	n1 := &testNode[string]{k: "a"}
	p.OnAdd(n1)
	p.OnRemove(n1)

	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must be removed from A1in")
	}
	if _, ok := p.ghostIdx["a"]; !ok {
		t.Fatal("key a must be in the ghost queue")
	}
}

// Re-admitting a ghosted key bypasses A1in and goes straight to Am.
func TestTwoQ_AddFromGhostSkipsA1in(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string, int, error]{}
	p := New[string, int, error](1, 2).New(h).(*twoQ[string, int, error])

	n1 := &testNode[string]{k: "a"}
	p.OnAdd(n1)
	p.OnRemove(n1)
	if _, ok := p.ghostIdx["a"]; !ok {
		t.Fatal("key a must be ghosted after removal")
	}

	n2 := &testNode[string]{k: "a"}
	if ev := p.OnAdd(n2); ev != nil {
		t.Fatalf("re-admission from ghost must not evict, got %v", ev)
	}
	if _, ok := p.inIdx[n2]; ok {
		t.Fatal("n2 must skip A1in and go directly to Am")
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("re-admission must clear the ghost entry")
	}
}

// A Get on an A1in node promotes it out of probation into Am.
func TestTwoQ_GetPromotesFromA1inToAm(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string, int, error]{}
	p := New[string, int, error](2, 2).New(h).(*twoQ[string, int, error])

	n1 := &testNode[string]{k: "a"}
	p.OnAdd(n1)
	p.OnGet(n1)

	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must be promoted out of A1in after Get")
	}
	if h.moveToFrontCnt != 1 {
		t.Fatalf("OnGet must call MoveToFront once, called %d times", h.moveToFrontCnt)
	}
}

// The ghost queue itself is capacity-bounded.
func TestTwoQ_GhostQueueBounded(t *testing.T) {
	t.Parallel()

	h := &mockHooks[string, int, error]{}
	p := New[string, int, error](1, 2).New(h).(*twoQ[string, int, error])

	for _, k := range []string{"a", "b", "c"} {
		n := &testNode[string]{k: k}
		p.OnAdd(n)
		p.OnRemove(n)
	}

	if len(p.ghostIdx) != 2 {
		t.Fatalf("ghost queue must be bounded to capGhost=2, got %d", len(p.ghostIdx))
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("oldest ghost entry (a) must have been evicted")
	}
}
