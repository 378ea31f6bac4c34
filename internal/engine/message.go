// Package engine implements the single-goroutine cache actor: the
// exclusive owner of a Backing that serializes every state transition
// by draining one Message at a time off a buffered inbound channel.
//
// Grounded on _examples/original_source/src/internal_cache.rs
// (InternalCacheStore::run/get/set/update/update_mut/remove/unblock),
// translated from Rust's actor-plus-oneshot-reply idiom into Go's
// channel-plus-struct idiom; the teacher's shard RWMutex plays the
// analogous "single serialization point" role (see SPEC_FULL.md §9)
// but the spec's race-resolution rule needs strict
// FIFO ordering between a client Set and a loader's completion for the
// same key, which only a single ordered queue — not a set of
// independently-locked shards — can guarantee.
package engine

import "github.com/outpace-io/loadcache/backing"

// ActionKind tags a Message's payload. The first eight are issued by
// clients through the facade; the last two are issued only by loader
// goroutines reporting back to the engine.
type ActionKind int

const (
	ActGetIfPresent ActionKind = iota
	ActGet
	ActSet
	ActUpdate
	ActUpdateMut
	ActRemove
	ActRemoveIf
	ActClear
	actSetAndUnblock
	actUnblock
)

// Action is a tagged union of every operation the engine understands.
// Only the fields relevant to Kind are populated by the sender.
type Action[K comparable, V any, E any] struct {
	Kind ActionKind

	Key K
	Value V
	Meta any

	UpdateFn     func(V) V
	MutateFn     func(*V)
	LoadIfAbsent bool

	Pred func(K, *V) bool

	// LoaderErr/LoaderOK carry a failing loader's payload on
	// actUnblock; dispatch does not read them (runLoader logs the
	// payload itself before sending).
	LoaderErr E
	LoaderOK  bool
}

// OutcomeKind tags an Outcome's payload.
type OutcomeKind int

const (
	KindFound OutcomeKind = iota
	KindLoading
	KindNone
	KindError
)

// Outcome is the engine's synchronous reply to a Message.
type Outcome[V any, E any] struct {
	Kind       OutcomeKind
	Value      V
	Loading    <-chan Result[V, E]
	BackingErr error
}

// CommError tags a communication/protocol-level failure, as opposed
// to a loader-payload failure (carried separately via HasErr/Err).
// Mirrors the non-Loader members of spec.md §7's LoadError taxonomy.
type CommError int

const (
	CommNone CommError = iota
	CommQueueSendFailed
	CommResponseRecvFailed
	CommAnnouncerRecvFailed
	CommJoinFailed
	CommLookupLoop
	CommNoData
	CommBacking
)

// Result is what a Loading outcome's channel eventually delivers: a
// value, a loader-failure payload, or a communication/protocol
// failure (Comm != CommNone; BackingErr is populated only for
// CommBacking).
type Result[V any, E any] struct {
	Value      V
	Err        E
	HasErr     bool
	Comm       CommError
	BackingErr error
}

// Message couples an Action with the channel its Outcome is delivered
// on. Reply is always buffered (capacity 1) by the sender so the
// engine's send into it never blocks the run loop.
type Message[K comparable, V any, E any] struct {
	Action Action[K, V, E]
	Reply  chan Outcome[V, E]
}

// Removed mirrors backing.Removed, the (key, entry) pairs a backing's
// RemoveIf returns; the engine's removeIf discards them.
type Removed[K comparable, V any, E any] = backing.Removed[K, V, E]
