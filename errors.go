package loadcache

import (
	"fmt"

	"github.com/outpace-io/loadcache/internal/engine"
)

// ErrorKind tags which member of the LoadError taxonomy a value holds.
// Mirrors spec.md §7's five-kind taxonomy, split into its eight
// concrete members (Communication expands into four).
type ErrorKind int

const (
	// ErrLoader means the user's loader reported failure; Err holds
	// its payload verbatim.
	ErrLoader ErrorKind = iota
	// ErrBacking means the backing reported a structural failure
	// (only backing/ttl can produce one).
	ErrBacking
	// ErrQueueSendFailed means ctx was cancelled (or the engine was
	// shut down) while enqueuing the operation.
	ErrQueueSendFailed
	// ErrResponseRecvFailed means ctx was cancelled while awaiting the
	// engine's immediate reply.
	ErrResponseRecvFailed
	// ErrAnnouncerRecvFailed means ctx was cancelled while awaiting a
	// load already in flight.
	ErrAnnouncerRecvFailed
	// ErrJoinFailed means the channel relaying a load's outcome was
	// closed without delivering one.
	ErrJoinFailed
	// ErrLookupLoop means an Update re-post observed Loading again
	// after awaiting the in-flight load — an invariant violation.
	ErrLookupLoop
	// ErrNoData means an Update/UpdateMut re-post found the key gone.
	ErrNoData
)

func (k ErrorKind) String() string {
	switch k {
	case ErrLoader:
		return "loader"
	case ErrBacking:
		return "backing"
	case ErrQueueSendFailed:
		return "queue_send_failed"
	case ErrResponseRecvFailed:
		return "response_recv_failed"
	case ErrAnnouncerRecvFailed:
		return "announcer_recv_failed"
	case ErrJoinFailed:
		return "join_failed"
	case ErrLookupLoop:
		return "lookup_loop"
	case ErrNoData:
		return "no_data"
	default:
		return "unknown"
	}
}

// LoadError is the single error type every Cache operation returns.
// It wraps exactly one of the ErrorKind members; use errors.As to
// reach a loader's own error type E when Kind is ErrLoader and E
// implements error (otherwise read LoaderErr directly), or
// errors.Unwrap to reach a wrapped backing error when Kind is
// ErrBacking.
//
// Grounded on the teacher's lightweight strErr pattern in cache/cache.go,
// generalized into a proper typed taxonomy since this module's error
// surface has eight distinct members the teacher's single local error
// type never needed.
type LoadError[E any] struct {
	Kind       ErrorKind
	LoaderErr  E
	BackingErr error
}

func (e *LoadError[E]) Error() string {
	switch e.Kind {
	case ErrLoader:
		return fmt.Sprintf("loadcache: loader failed: %v", e.LoaderErr)
	case ErrBacking:
		return fmt.Sprintf("loadcache: backing error: %v", e.BackingErr)
	default:
		return fmt.Sprintf("loadcache: %s", e.Kind)
	}
}

func (e *LoadError[E]) Unwrap() error {
	if e.Kind == ErrBacking {
		return e.BackingErr
	}
	if e.Kind == ErrLoader {
		if err, ok := any(e.LoaderErr).(error); ok {
			return err
		}
	}
	return nil
}

func loaderError[E any](err E) *LoadError[E] {
	return &LoadError[E]{Kind: ErrLoader, LoaderErr: err}
}

func backingError[E any](err error) *LoadError[E] {
	return &LoadError[E]{Kind: ErrBacking, BackingErr: err}
}

func commError[E any](c engine.CommError, backingErr error) *LoadError[E] {
	var le LoadError[E]
	le.BackingErr = backingErr
	switch c {
	case engine.CommQueueSendFailed:
		le.Kind = ErrQueueSendFailed
	case engine.CommResponseRecvFailed:
		le.Kind = ErrResponseRecvFailed
	case engine.CommAnnouncerRecvFailed:
		le.Kind = ErrAnnouncerRecvFailed
	case engine.CommJoinFailed:
		le.Kind = ErrJoinFailed
	case engine.CommLookupLoop:
		le.Kind = ErrLookupLoop
	case engine.CommNoData:
		le.Kind = ErrNoData
	case engine.CommBacking:
		le.Kind = ErrBacking
	default:
		le.Kind = ErrJoinFailed
	}
	return &le
}
