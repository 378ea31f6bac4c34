package ttl

import (
	"testing"
	"time"

	"github.com/outpace-io/loadcache/backing"
)

// fakeClock avoids timing flakiness, mirroring the teacher's
// cache/cache_test.go fakeClock used for TestCache_TTL_FakeClock.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time    { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t = f.t.Add(d) }

func TestTTL_SweepsOnAccessAfterDeadline(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	b := New[string, int, error](100*time.Millisecond, WithClock[string, int, error](clk.now))

	b.Set("x", backing.Loaded[int, error](1), nil)
	if _, found, _ := b.Get("x"); !found {
		t.Fatal("x must be present before its deadline")
	}

	clk.add(200 * time.Millisecond)
	if _, found, _ := b.Get("x"); found {
		t.Fatal("x must have been swept after its deadline passed")
	}
	if b.Len() != 0 {
		t.Fatalf("want 0 resident after sweep, got %d", b.Len())
	}
}

func TestTTL_PerKeyOverrideViaMeta(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	b := New[string, int, error](time.Hour, WithClock[string, int, error](clk.now))

	b.Set("short", backing.Loaded[int, error](1), Meta{TTL: 10 * time.Millisecond})
	b.Set("long", backing.Loaded[int, error](2), nil) // falls back to the 1h default

	clk.add(20 * time.Millisecond)
	if _, found, _ := b.Get("short"); found {
		t.Fatal("short must have expired under its 10ms override")
	}
	if _, found, _ := b.Get("long"); !found {
		t.Fatal("long must still be resident under the 1h default")
	}
}

// Contains must never mutate state (it must not sweep), even once a
// deadline has passed: the next mutating op is what actually excises
// the expired entry.
func TestTTL_ContainsDoesNotSweep(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	b := New[string, int, error](10*time.Millisecond, WithClock[string, int, error](clk.now))
	b.Set("x", backing.Loaded[int, error](1), nil)

	clk.add(20 * time.Millisecond)
	if ok, err := b.Contains("x"); err != nil || ok {
		t.Fatalf("Contains must report expired as absent, got ok=%v err=%v", ok, err)
	}
	// Had Contains swept, Len would already be 0; it must still be 1.
	if b.Len() != 1 {
		t.Fatalf("Contains must not have swept the entry, want Len=1 got %d", b.Len())
	}
}

// A Loading entry is never subject to expiry (invariant I5): it
// reports present via Contains regardless of elapsed time, and a
// sweep never removes it.
func TestTTL_LoadingEntryNeverExpires(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	b := New[string, int, error](time.Millisecond, WithClock[string, int, error](clk.now))

	a := backing.NewAnnouncer[int, error]()
	b.Set("loading", backing.Loading[int, error](a), nil)

	clk.add(time.Hour)
	if ok, err := b.Contains("loading"); err != nil || !ok {
		t.Fatalf("a Loading entry must never expire, got ok=%v err=%v", ok, err)
	}
	if _, found, _ := b.Get("loading"); !found {
		t.Fatal("a Loading entry must survive a sweep")
	}
}

// Replacing a key (Set over an existing Loaded entry) must excise the
// old expiry record, not leave a stale duplicate in the sequence that
// could cause a premature sweep under a different key's deadline.
func TestTTL_ReplaceExcisesOldDeadline(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	b := New[string, int, error](50*time.Millisecond, WithClock[string, int, error](clk.now))

	b.Set("x", backing.Loaded[int, error](1), nil)
	clk.add(10 * time.Millisecond)
	b.Set("x", backing.Loaded[int, error](2), nil) // deadline pushed out another 50ms from t=10ms

	if len(b.seq) != 1 {
		t.Fatalf("want exactly 1 expiry record after replace, got %d", len(b.seq))
	}

	clk.add(45 * time.Millisecond) // t=55ms: past the original 50ms deadline, before the new 60ms one
	if _, found, _ := b.Get("x"); !found {
		t.Fatal("x must still be resident under its refreshed deadline")
	}
}

// Two keys sharing an identical deadline land as adjacent records in
// b.seq; excising the non-first one must locate it by key rather than
// assuming sort.Search's leftmost match is the one being replaced.
func TestTTL_ExciseAmongCoExpiringKeys(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	b := New[string, int, error](50*time.Millisecond, WithClock[string, int, error](clk.now))

	b.Set("a", backing.Loaded[int, error](1), nil) // deadline 50ms
	b.Set("b", backing.Loaded[int, error](2), nil) // deadline 50ms too, inserted after a

	clk.add(10 * time.Millisecond)
	b.Set("b", backing.Loaded[int, error](3), nil) // replace b: excises its old 50ms record, not a's

	if len(b.seq) != 2 {
		t.Fatalf("want 2 expiry records (a's original, b's refreshed), got %d", len(b.seq))
	}

	clk.add(45 * time.Millisecond) // t=55ms: past a's 50ms deadline, before b's refreshed 60ms one
	if _, found, _ := b.Get("a"); found {
		t.Fatal("a must have expired on schedule; excising b must not have removed a's record")
	}
	entry, found, _ := b.Get("b")
	if v, _ := entry.Value(); !found || v != 3 {
		t.Fatalf("b must still be resident under its refreshed deadline, got found=%v v=%d", found, v)
	}
}

func TestTTL_OnTTLEvictFires(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	b := New[string, int, error](10*time.Millisecond, WithClock[string, int, error](clk.now))

	var evictedKey string
	calls := 0
	var notifier backing.TTLEvictNotifier[string, int, error] = b
	notifier.OnTTLEvict(func(k string, _ backing.Entry[int, error]) {
		calls++
		evictedKey = k
	})

	b.Set("x", backing.Loaded[int, error](1), nil)
	clk.add(20 * time.Millisecond)
	b.Get("x") // triggers the sweep

	if calls != 1 || evictedKey != "x" {
		t.Fatalf("want exactly 1 TTL eviction of x, got calls=%d key=%s", calls, evictedKey)
	}
}
