// Command bench runs a synthetic workload against the cache and
// exposes optional pprof/Prometheus endpoints, following the shape of
// the teacher's cmd/bench but driving Get (load-or-hit) instead of a
// pure Get/Set split, since this cache's whole point is the loader.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/outpace-io/loadcache"
	"github.com/outpace-io/loadcache/backing/lru"
	"github.com/outpace-io/loadcache/backing/lru/twoq"
	pmet "github.com/outpace-io/loadcache/metrics/prom"
)

func main() {
	var (
		capacity = flag.Int("cap", 100_000, "LRU backing capacity (entries)")
		policy   = flag.String("policy", "lru", "eviction policy: lru | 2q")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		loadLat = flag.Duration("load_latency", time.Millisecond, "simulated loader latency")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	metrics := pmet.New(nil, "loadcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	var loads uint64
	loader := func(ctx context.Context, k string) (string, error, bool) {
		atomic.AddUint64(&loads, 1)
		time.Sleep(*loadLat)
		return "v:" + k, nil, true
	}

	opts := []loadcache.Option[string, string, error]{
		loadcache.WithMetrics[string, string, error](metrics),
	}

	var b *lru.Backing[string, string, error]
	switch *policy {
	case "lru":
		b = lru.New[string, string, error](*capacity)
	case "2q":
		b = lru.New[string, string, error](*capacity, lru.WithPolicy[string, string, error](
			twoq.New[string, string, error](*capacity/4, *capacity/2)))
	default:
		log.Fatalf("unknown policy: %q (use lru or 2q)", *policy)
	}

	c, done := loadcache.WithBacking[string, string, error](b, loader, opts...)
	defer func() { c.Shutdown(); <-done }()

	keysMax := uint64(*keys - 1)
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	var reads, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			localR := rand.New(rand.NewSource(*seed + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				atomic.AddUint64(&reads, 1)
				k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
				_, cached, err := c.GetWithMeta(ctx, k)
				if err != nil {
					continue
				}
				if cached {
					atomic.AddUint64(&hits, 1)
				} else {
					atomic.AddUint64(&misses, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)
	loadsN := atomic.LoadUint64(&loads)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("policy=%s cap=%d workers=%d keys=%d dur=%v seed=%d\n",
		*policy, *capacity, workersN, *keys, elapsed, *seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  loader_invocations=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, loadsN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
}
