package engine

import "github.com/outpace-io/loadcache/backing"

// update implements spec.md §4.3's Update: read (via Get or
// GetIfPresent depending on loadIfAbsent), apply f to a Loaded value,
// or ride out an in-flight load and re-post once it resolves.
//
// Grounded on _examples/original_source/src/internal_cache.rs's
// update(), translated from "spawn a task that awaits the join handle
// then re-sends Update" into "spawn a goroutine that awaits the
// Loading channel then re-sends Update through sendInternal".
func (e *Engine[K, V, E]) update(k K, fn func(V) V, loadIfAbsent bool, meta any) Outcome[V, E] {
	var base Outcome[V, E]
	if loadIfAbsent {
		base = e.get(k)
	} else {
		base = e.getIfPresent(k)
	}

	switch base.Kind {
	case KindFound:
		v := fn(base.Value)
		if _, _, err := e.data.Set(k, backing.Loaded[V, E](v), meta); err != nil {
			return errOutcome[V, E](err)
		}
		return Outcome[V, E]{Kind: KindFound, Value: v}

	case KindLoading:
		resultCh := make(chan Result[V, E], 1)
		go e.repostUpdate(k, fn, loadIfAbsent, meta, base.Loading, resultCh)
		return Outcome[V, E]{Kind: KindLoading, Loading: resultCh}

	default:
		return Outcome[V, E]{Kind: KindNone}
	}
}

func (e *Engine[K, V, E]) repostUpdate(k K, fn func(V) V, loadIfAbsent bool, meta any, loadCh <-chan Result[V, E], resultCh chan<- Result[V, E]) {
	<-loadCh // the load's own outcome is irrelevant here; only that it settled matters.

	out := e.sendInternal(Action[K, V, E]{
		Kind:         ActUpdate,
		Key:          k,
		UpdateFn:     fn,
		LoadIfAbsent: loadIfAbsent,
		Meta:         meta,
	})

	switch out.Kind {
	case KindFound:
		resultCh <- Result[V, E]{Value: out.Value}
	case KindLoading:
		// The re-posted Update should never itself observe Loading —
		// by the time we re-post, the key is either Loaded or gone.
		// Seeing Loading again indicates a scheduling pathology.
		resultCh <- Result[V, E]{Comm: CommLookupLoop}
	case KindError:
		resultCh <- Result[V, E]{Comm: CommBacking, BackingErr: out.BackingErr}
	default: // KindNone: the key vanished between the await and the repost.
		resultCh <- Result[V, E]{Comm: CommNoData}
	}
	close(resultCh)
}

// updateMut is Update's in-place-mutation sibling: no Meta, and the
// mutator receives a pointer instead of returning a replacement value.
func (e *Engine[K, V, E]) updateMut(k K, mutate func(*V), loadIfAbsent bool) Outcome[V, E] {
	var base Outcome[V, E]
	if loadIfAbsent {
		base = e.get(k)
	} else {
		base = e.getIfPresent(k)
	}

	switch base.Kind {
	case KindFound:
		var v V
		hadLoaded, err := e.data.GetMut(k, func(p *V) { mutate(p); v = *p })
		if err != nil {
			return errOutcome[V, E](err)
		}
		if !hadLoaded {
			return Outcome[V, E]{Kind: KindNone}
		}
		return Outcome[V, E]{Kind: KindFound, Value: v}

	case KindLoading:
		resultCh := make(chan Result[V, E], 1)
		go e.repostUpdateMut(k, mutate, loadIfAbsent, base.Loading, resultCh)
		return Outcome[V, E]{Kind: KindLoading, Loading: resultCh}

	default:
		return Outcome[V, E]{Kind: KindNone}
	}
}

func (e *Engine[K, V, E]) repostUpdateMut(k K, mutate func(*V), loadIfAbsent bool, loadCh <-chan Result[V, E], resultCh chan<- Result[V, E]) {
	<-loadCh

	out := e.sendInternal(Action[K, V, E]{
		Kind:         ActUpdateMut,
		Key:          k,
		MutateFn:     mutate,
		LoadIfAbsent: loadIfAbsent,
	})

	switch out.Kind {
	case KindFound:
		resultCh <- Result[V, E]{Value: out.Value}
	case KindLoading:
		resultCh <- Result[V, E]{Comm: CommLookupLoop}
	case KindError:
		resultCh <- Result[V, E]{Comm: CommBacking, BackingErr: out.BackingErr}
	default:
		resultCh <- Result[V, E]{Comm: CommNoData}
	}
	close(resultCh)
}
