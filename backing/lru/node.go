package lru

import "github.com/outpace-io/loadcache/backing"

// node is an intrusive doubly linked list element. head is MRU, tail
// is LRU. Grounded on the teacher's cache/node.go, with val replaced
// by a backing.Entry so a node can hold either a Loaded value or a
// Loading announcer.
type node[K comparable, V any, E any] struct {
	key   K
	entry backing.Entry[V, E]

	prev *node[K, V, E]
	next *node[K, V, E]
}

func (n *node[K, V, E]) Key() K { return n.key }
