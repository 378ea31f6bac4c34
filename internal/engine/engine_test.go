package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/outpace-io/loadcache/backing/hashmap"
)

func newTestEngine(t *testing.T, load MetaLoader[string, string, error]) *Engine[string, string, error] {
	t.Helper()
	e := New[string, string, error](hashmap.New[string, string, error](), load, Config[string, string, error]{})
	done := make(chan struct{})
	go func() { e.Run(); close(done) }()
	t.Cleanup(func() {
		e.Shutdown()
		<-done
	})
	return e
}

func await(t *testing.T, ch <-chan Result[string, error]) Result[string, error] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Loading outcome")
		return Result[string, error]{}
	}
}

// Concurrent Get calls for the same missing key must coalesce into a
// single loader invocation (the single-flight guarantee).
func TestEngine_SingleFlightDedup(t *testing.T) {
	t.Parallel()

	var calls int64
	e := newTestEngine(t, func(ctx context.Context, k string) (string, any, error, bool) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "v:" + k, nil, nil, true
	})

	const n = 32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActGet, Key: "k"})
			require.Equal(t, CommNone, commErr)
			require.Equal(t, KindLoading, out.Kind)
			r := await(t, out.Loading)
			require.False(t, r.HasErr)
			require.Equal(t, "v:k", r.Value)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, atomic.LoadInt64(&calls))

	out, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActGet, Key: "k"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindFound, out.Kind)
	require.Equal(t, "v:k", out.Value)
}

// A client Set concurrent with an in-flight load for the same key must
// win: the backing ends up holding the client's value, even though
// every waiter on the original Get still observes the loader's own
// outcome via the announcer.
func TestEngine_SetWinsRaceAgainstInFlightLoad(t *testing.T) {
	t.Parallel()

	proceed := make(chan struct{})
	e := newTestEngine(t, func(ctx context.Context, k string) (string, any, error, bool) {
		<-proceed
		return "from-loader", nil, nil, true
	})

	out, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActGet, Key: "x"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindLoading, out.Kind)

	// This Send only returns once the engine has dispatched the Set,
	// which — since the loader is still blocked on proceed — is
	// guaranteed to land before the loader's eventual SetAndUnblock.
	setOut, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActSet, Key: "x", Value: "from-client"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindNone, setOut.Kind) // no prior Loaded value to report

	close(proceed)

	r := await(t, out.Loading)
	require.False(t, r.HasErr)
	require.Equal(t, "from-loader", r.Value, "every waiter still observes the loader's own outcome")

	final, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActGetIfPresent, Key: "x"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindFound, final.Kind)
	require.Equal(t, "from-client", final.Value, "the client Set must win the backing's final state")
}

// A client Remove concurrent with an in-flight load must leave the key
// absent once the load completes: the loader's SetAndUnblock finds no
// entry and aborts rather than resurrecting it.
func TestEngine_RemoveDuringLoadLeavesKeyAbsent(t *testing.T) {
	t.Parallel()

	proceed := make(chan struct{})
	e := newTestEngine(t, func(ctx context.Context, k string) (string, any, error, bool) {
		<-proceed
		return "late-value", nil, nil, true
	})

	out, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActGet, Key: "y"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindLoading, out.Kind)

	_, commErr = e.Send(context.Background(), Action[string, string, error]{Kind: ActRemove, Key: "y"})
	require.Equal(t, CommNone, commErr)

	close(proceed)
	r := await(t, out.Loading)
	require.False(t, r.HasErr)
	require.Equal(t, "late-value", r.Value)

	final, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActGetIfPresent, Key: "y"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindNone, final.Kind, "the key must stay absent; SetAndUnblock must have aborted")
}

// A failing loader's payload reaches every waiter verbatim, and the
// key is left absent afterward (so the next Get retries the load).
// Uses a bare non-error struct for the failure payload, exercising the
// module's explicit hasErr signaling instead of nil comparison.
func TestEngine_LoaderFailureUnblocksAndRemoves(t *testing.T) {
	t.Parallel()

	type failure struct{ Code int }
	e := New[string, string, failure](hashmap.New[string, string, failure](),
		func(ctx context.Context, k string) (string, any, failure, bool) {
			return "", nil, failure{Code: 5}, false
		}, Config[string, string, failure]{})
	done := make(chan struct{})
	go func() { e.Run(); close(done) }()
	defer func() { e.Shutdown(); <-done }()

	out, commErr := e.Send(context.Background(), Action[string, string, failure]{Kind: ActGet, Key: "z"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindLoading, out.Kind)

	select {
	case r := <-out.Loading:
		require.True(t, r.HasErr)
		require.Equal(t, failure{Code: 5}, r.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure outcome")
	}

	final, commErr := e.Send(context.Background(), Action[string, string, failure]{Kind: ActGetIfPresent, Key: "z"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindNone, final.Kind, "a failed load must leave the key absent")
}

// Update applies fn to a resident value and persists the result.
func TestEngine_UpdateAppliesToLoadedValue(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(ctx context.Context, k string) (string, any, error, bool) {
		return "seed", nil, nil, true
	})

	seedOut, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActGet, Key: "u"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindLoading, seedOut.Kind)
	await(t, seedOut.Loading) // wait for the seed load to commit before updating

	upd, commErr := e.Send(context.Background(), Action[string, string, error]{
		Kind: ActUpdate, Key: "u", LoadIfAbsent: true,
		UpdateFn: func(v string) string { return v + "!" },
	})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindFound, upd.Kind)
	require.Equal(t, "seed!", upd.Value)
}

// UpdateMut mutates the resident value in place.
func TestEngine_UpdateMutAppliesToLoadedValue(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(ctx context.Context, k string) (string, any, error, bool) {
		return "base", nil, nil, true
	})

	out, _ := e.Send(context.Background(), Action[string, string, error]{Kind: ActGetIfPresent, Key: "m"})
	require.Equal(t, KindNone, out.Kind)

	seed, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActSet, Key: "m", Value: "base"})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindNone, seed.Kind)

	upd, commErr := e.Send(context.Background(), Action[string, string, error]{
		Kind: ActUpdateMut, Key: "m", LoadIfAbsent: true,
		MutateFn: func(v *string) { *v += "-mut" },
	})
	require.Equal(t, CommNone, commErr)
	require.Equal(t, KindFound, upd.Kind)
	require.Equal(t, "base-mut", upd.Value)
}

// Clear empties the backing unconditionally.
func TestEngine_ClearEmptiesBacking(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(ctx context.Context, k string) (string, any, error, bool) {
		return "v", nil, nil, true
	})

	for _, k := range []string{"a", "b", "c"} {
		out, _ := e.Send(context.Background(), Action[string, string, error]{Kind: ActSet, Key: k, Value: "v"})
		require.Equal(t, KindNone, out.Kind)
	}

	_, commErr := e.Send(context.Background(), Action[string, string, error]{Kind: ActClear})
	require.Equal(t, CommNone, commErr)

	for _, k := range []string{"a", "b", "c"} {
		out, _ := e.Send(context.Background(), Action[string, string, error]{Kind: ActGetIfPresent, Key: k})
		require.Equal(t, KindNone, out.Kind)
	}
}
