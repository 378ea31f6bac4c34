package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/outpace-io/loadcache/backing"
)

// Loader fetches the value for a key that missed the cache. ok is
// false on failure, in which case err carries the opaque payload to
// surface to every waiter (E is not required to be nil-able — a
// failure may be a bare value, as in a loader that always returns the
// int 5).
type Loader[K comparable, V any, E any] func(ctx context.Context, k K) (v V, err E, ok bool)

// MetaLoader is the enriched loader form accepted when the backing
// declares a non-trivial Meta (e.g. backing/ttl's per-key override):
// the loader also returns the Meta to apply when storing the value.
type MetaLoader[K comparable, V any, E any] func(ctx context.Context, k K) (v V, meta any, err E, ok bool)

// Config bundles the engine's construction-time dependencies. Built by
// the root package's functional options and handed to New.
type Config[K comparable, V any, E any] struct {
	QueueCapacity int
	Metrics       Metrics
	Logger        zerolog.Logger
	Clock         func() time.Time
}

// Engine owns a Backing exclusively and is the sole serialization
// point for every state transition on it. All public methods are safe
// to call from any goroutine — they only ever enqueue a Message — but
// dispatch itself runs solely inside Run's loop.
type Engine[K comparable, V any, E any] struct {
	inbox   chan Message[K, V, E]
	data    backing.Backing[K, V, E]
	load    MetaLoader[K, V, E]
	metrics Metrics
	log     zerolog.Logger
	clock   func() time.Time
}

// New constructs an Engine. Use AsMetaLoader (or wrap inline)
// when the caller's loader is the plain three-return form.
func New[K comparable, V any, E any](b backing.Backing[K, V, E], load MetaLoader[K, V, E], cfg Config[K, V, E]) *Engine[K, V, E] {
	qc := cfg.QueueCapacity
	if qc <= 0 {
		qc = 128
	}
	m := cfg.Metrics
	if m == nil {
		m = NoopMetrics{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	e := &Engine[K, V, E]{
		inbox:   make(chan Message[K, V, E], qc),
		data:    b,
		load:    load,
		metrics: m,
		log:     cfg.Logger,
		clock:   clock,
	}

	// Optional interfaces: backings that can silently drop entries
	// (lru on capacity, ttl on expiry) report it back here so Evict
	// metrics stay accurate without those packages importing engine or
	// metrics themselves.
	if n, ok := any(b).(backing.CapacityEvictNotifier[K, V, E]); ok {
		n.OnCapacityEvict(func(k K, _ backing.Entry[V, E]) { e.metrics.Evict(EvictCapacity) })
	}
	if n, ok := any(b).(backing.TTLEvictNotifier[K, V, E]); ok {
		n.OnTTLEvict(func(k K, _ backing.Entry[V, E]) { e.metrics.Evict(EvictTTL) })
	}

	return e
}

// AsMetaLoader adapts a plain Loader (no per-entry Meta) into the
// MetaLoader form the engine always runs internally.
func AsMetaLoader[K comparable, V any, E any](l Loader[K, V, E]) MetaLoader[K, V, E] {
	return func(ctx context.Context, k K) (V, any, E, bool) {
		v, err, ok := l(ctx, k)
		return v, nil, err, ok
	}
}

// Send enqueues a Message, respecting ctx on the send itself (the
// queue's bounded capacity is the spec's backpressure mechanism —
// §5 "Bounded queue and backpressure").
func (e *Engine[K, V, E]) Send(ctx context.Context, a Action[K, V, E]) (out Outcome[V, E], comm CommError) {
	defer func() {
		// Sending on the inbox after Shutdown closed it panics; report
		// that as a failed enqueue instead.
		if r := recover(); r != nil {
			out, comm = Outcome[V, E]{}, CommQueueSendFailed
		}
	}()
	reply := make(chan Outcome[V, E], 1)
	msg := Message[K, V, E]{Action: a, Reply: reply}
	select {
	case e.inbox <- msg:
	case <-ctx.Done():
		var zero Outcome[V, E]
		return zero, CommQueueSendFailed
	}
	e.metrics.QueueDepth(len(e.inbox))
	select {
	case out := <-reply:
		return out, CommNone
	case <-ctx.Done():
		var zero Outcome[V, E]
		return zero, CommResponseRecvFailed
	}
}

// sendInternal is used only by loader goroutines reporting back
// (SetAndUnblock/Unblock). It never carries a caller context — a
// client dropping its ctx must not abort the in-flight loader's
// write-back (Non-goals: "cancellation of in-progress loads on client
// drop").
func (e *Engine[K, V, E]) sendInternal(a Action[K, V, E]) Outcome[V, E] {
	reply := make(chan Outcome[V, E], 1)
	e.inbox <- Message[K, V, E]{Action: a, Reply: reply}
	return <-reply
}

// Run drains the inbox until it is closed. Call it in its own
// goroutine; Close the inbox (via Shutdown) to let it return.
func (e *Engine[K, V, E]) Run() {
	for msg := range e.inbox {
		msg.Reply <- e.dispatch(msg.Action)
	}
}

// Shutdown closes the inbox, letting Run return once drained. Any
// Message already enqueued is still processed first.
func (e *Engine[K, V, E]) Shutdown() { close(e.inbox) }

func (e *Engine[K, V, E]) dispatch(a Action[K, V, E]) Outcome[V, E] {
	switch a.Kind {
	case ActGetIfPresent:
		return e.getIfPresent(a.Key)
	case ActGet:
		return e.get(a.Key)
	case ActSet:
		return e.set(a.Key, a.Value, a.Meta, false)
	case actSetAndUnblock:
		return e.set(a.Key, a.Value, a.Meta, true)
	case actUnblock:
		e.unblock(a.Key)
		return Outcome[V, E]{Kind: KindNone}
	case ActUpdate:
		return e.update(a.Key, a.UpdateFn, a.LoadIfAbsent, a.Meta)
	case ActUpdateMut:
		return e.updateMut(a.Key, a.MutateFn, a.LoadIfAbsent)
	case ActRemove:
		return e.remove(a.Key)
	case ActRemoveIf:
		return e.removeIf(a.Pred)
	case ActClear:
		return e.clear()
	default:
		return Outcome[V, E]{Kind: KindNone}
	}
}

func errOutcome[V any, E any](err error) Outcome[V, E] {
	return Outcome[V, E]{Kind: KindError, BackingErr: err}
}

// -------------------- single-flight Get --------------------

func (e *Engine[K, V, E]) get(k K) Outcome[V, E] {
	entry, found, err := e.data.Get(k)
	if err != nil {
		return errOutcome[V, E](err)
	}

	var a *backing.Announcer[V, E]
	if found {
		if v, ok := entry.Value(); ok {
			e.metrics.Hit()
			return Outcome[V, E]{Kind: KindFound, Value: v}
		}
		a, _ = entry.AnnouncerHandle()
	} else {
		e.metrics.Miss()
		a = backing.NewAnnouncer[V, E]()
		if _, _, err := e.data.Set(k, backing.Loading[V, E](a), nil); err != nil {
			return errOutcome[V, E](err)
		}
		go e.runLoader(k, a)
	}

	ch := make(chan Result[V, E], 1)
	go subscribe(a, ch)
	return Outcome[V, E]{Kind: KindLoading, Loading: ch}
}

// subscribe is the "small task" spec.md §4.3 describes: it waits for
// one announcer to fire and translates its outcome into a Result,
// without ever touching the backing.
func subscribe[V any, E any](a *backing.Announcer[V, E], ch chan<- Result[V, E]) {
	<-a.Done()
	v, err, hasErr := a.Result()
	ch <- Result[V, E]{Value: v, Err: err, HasErr: hasErr}
	close(ch)
}

func (e *Engine[K, V, E]) runLoader(k K, a *backing.Announcer[V, E]) {
	id := uuid.New()
	start := e.clock()
	e.log.Debug().Str("load_id", id.String()).Any("key", k).Msg("load start")

	v, meta, errPayload, ok := e.load(context.Background(), k)
	dur := e.clock().Sub(start)
	e.metrics.Load(ok, dur)

	if ok {
		a.DeliverValue(v)
		e.log.Debug().Str("load_id", id.String()).Dur("dur", dur).Msg("load success")
		out := e.sendInternal(Action[K, V, E]{Kind: actSetAndUnblock, Key: k, Value: v, Meta: meta})
		if out.Kind == KindError {
			e.log.Warn().Str("load_id", id.String()).Err(out.BackingErr).Msg("set-and-unblock backing error")
		}
		return
	}

	a.DeliverError(errPayload)
	e.log.Warn().Str("load_id", id.String()).Dur("dur", dur).Any("err", errPayload).Msg("load failure")
	out := e.sendInternal(Action[K, V, E]{Kind: actUnblock, Key: k, LoaderErr: errPayload, LoaderOK: false})
	if out.Kind == KindError {
		e.log.Warn().Str("load_id", id.String()).Err(out.BackingErr).Msg("unblock backing error")
	}
}

// -------------------- Set / SetAndUnblock / Unblock --------------------

// set implements both the client-initiated Set (loadingResult=false,
// unconditional) and a loader's SetAndUnblock (loadingResult=true,
// subject to the race-resolution rule in spec.md §4.3).
func (e *Engine[K, V, E]) set(k K, v V, meta any, loadingResult bool) Outcome[V, E] {
	if loadingResult {
		entry, found, err := e.data.Get(k)
		if err != nil {
			return errOutcome[V, E](err)
		}
		if !found {
			e.log.Debug().Any("key", k).Msg("set-and-unblock aborted: key removed during load")
			return Outcome[V, E]{Kind: KindNone}
		}
		if entry.IsLoaded() {
			e.log.Debug().Any("key", k).Msg("set-and-unblock aborted: client input won the race")
			return Outcome[V, E]{Kind: KindNone}
		}
	}

	prev, hadPrev, err := e.data.Set(k, backing.Loaded[V, E](v), meta)
	if err != nil {
		return errOutcome[V, E](err)
	}
	if hadPrev {
		if pv, ok := prev.Value(); ok {
			return Outcome[V, E]{Kind: KindFound, Value: pv}
		}
	}
	return Outcome[V, E]{Kind: KindNone}
}

func (e *Engine[K, V, E]) unblock(k K) {
	entry, found, err := e.data.Get(k)
	if err != nil {
		e.log.Warn().Err(err).Any("key", k).Msg("unblock: backing error")
		return
	}
	if found && !entry.IsLoaded() {
		if _, _, err := e.data.Remove(k); err != nil {
			e.log.Warn().Err(err).Any("key", k).Msg("unblock: remove failed")
		}
	}
}

// -------------------- Remove / RemoveIf / Clear --------------------

func (e *Engine[K, V, E]) getIfPresent(k K) Outcome[V, E] {
	entry, found, err := e.data.Get(k)
	if err != nil {
		return errOutcome[V, E](err)
	}
	if !found {
		e.metrics.Miss()
		return Outcome[V, E]{Kind: KindNone}
	}
	if v, ok := entry.Value(); ok {
		e.metrics.Hit()
		return Outcome[V, E]{Kind: KindFound, Value: v}
	}
	// Loading entries are not "present" for GetIfPresent purposes.
	return Outcome[V, E]{Kind: KindNone}
}

func (e *Engine[K, V, E]) remove(k K) Outcome[V, E] {
	prev, had, err := e.data.Remove(k)
	if err != nil {
		return errOutcome[V, E](err)
	}
	if had {
		if v, ok := prev.Value(); ok {
			return Outcome[V, E]{Kind: KindFound, Value: v}
		}
	}
	return Outcome[V, E]{Kind: KindNone}
}

func (e *Engine[K, V, E]) removeIf(pred func(K, *V) bool) Outcome[V, E] {
	_, err := e.data.RemoveIf(pred)
	if err != nil {
		return errOutcome[V, E](err)
	}
	return Outcome[V, E]{Kind: KindNone}
}

func (e *Engine[K, V, E]) clear() Outcome[V, E] {
	if err := e.data.Clear(); err != nil {
		return errOutcome[V, E](err)
	}
	return Outcome[V, E]{Kind: KindNone}
}
