package lru

// Node is the minimal contract a policy needs to manipulate an
// intrusive list entry without knowing its payload type.
//
// Grounded on the teacher's policy.Node (policy/policy.go): the same
// shape, scoped down from "any cache entry in any shard" to "any entry
// in this one backing's list" now that nothing shards a backing.
type Node[K comparable, V any, E any] interface {
	Key() K
}

// Hooks exposes the O(1) list operations a policy uses to manipulate
// the backing's intrusive MRU/LRU list. Implemented by *Backing.
//
// Grounded on the teacher's policy.Hooks.
type Hooks[K comparable, V any, E any] interface {
	MoveToFront(Node[K, V, E])
	PushFront(Node[K, V, E])
	Remove(Node[K, V, E])
	Back() Node[K, V, E]
	Len() int
}

// EvictionPolicy is a policy instance bound to a particular backing's
// hooks. Grounded on the teacher's policy.ShardPolicy, renamed since
// there is no longer a "shard" — one Backing, one policy instance.
type EvictionPolicy[K comparable, V any, E any] interface {
	// OnAdd is called after a brand-new node is linked at MRU. It may
	// return a node that should be evicted as a consequence (e.g. 2Q's
	// probation queue overflowing).
	OnAdd(Node[K, V, E]) (evict Node[K, V, E])
	OnGet(Node[K, V, E])
	OnUpdate(Node[K, V, E])
	OnRemove(Node[K, V, E])
}

// Policy is a factory that binds an EvictionPolicy to a backing's
// hooks. Grounded on the teacher's policy.Policy.
type Policy[K comparable, V any, E any] interface {
	New(Hooks[K, V, E]) EvictionPolicy[K, V, E]
}

// pureLRUFactory is the default "move-to-front" policy: eviction is
// decided purely by capacity enforcement in the backing, not by the
// policy itself.
type pureLRUFactory[K comparable, V any, E any] struct{}

// NewPureLRU returns the default classic LRU policy factory.
func NewPureLRU[K comparable, V any, E any]() Policy[K, V, E] {
	return pureLRUFactory[K, V, E]{}
}

func (pureLRUFactory[K, V, E]) New(h Hooks[K, V, E]) EvictionPolicy[K, V, E] {
	return &pureLRU[K, V, E]{h: h}
}

type pureLRU[K comparable, V any, E any] struct {
	h Hooks[K, V, E]
}

func (p *pureLRU[K, V, E]) OnAdd(n Node[K, V, E]) (evict Node[K, V, E]) {
	p.h.PushFront(n)
	return nil
}

func (p *pureLRU[K, V, E]) OnGet(n Node[K, V, E])    { p.h.MoveToFront(n) }
func (p *pureLRU[K, V, E]) OnUpdate(n Node[K, V, E]) { p.h.MoveToFront(n) }
func (p *pureLRU[K, V, E]) OnRemove(Node[K, V, E])   {}
