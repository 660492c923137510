// http-loadgen is a tiny, dependency-free HTTP load generator tailored for the
// flash-sale demo. It reuses HTTP connections (keep-alive) and supports
// concurrency so demo scripts run fast on Windows (Git Bash), Ubuntu (WSL),
// and macOS without relying on external tools.
//
// Modes:
//   - single: every request carries the same client identity, so the run
//     slams one token bucket and shows the 429 throttling curve
//   - spread: round-robin synthetic client IPs via X-Forwarded-For, so each
//     client stays under its own bucket and the queue takes the load
//
// Usage examples:
//
//	http-loadgen -base=http://127.0.0.1:3000 -mode=single -n=50 -c=4
//	http-loadgen -base=http://127.0.0.1:3000 -mode=spread -clients=100 -n=5000 -c=16
//
// Prints a one-line summary with the admitted/throttled/error split,
// duration and approximate throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeSingle modeType = "single"
	modeSpread modeType = "spread"
)

func main() {
	var (
		base    = flag.String("base", "http://127.0.0.1:3000", "Base URL including scheme and host, e.g. http://127.0.0.1:3000")
		path    = flag.String("path", "/buy", "Request path")
		modeS   = flag.String("mode", string(modeSingle), "Mode: single|spread")
		clients = flag.Int("clients", 100, "Number of synthetic client IPs in spread mode")
		N       = flag.Int("n", 50, "Total requests to send")
		conc    = flag.Int("c", 4, "Number of concurrent workers")
		// Timeouts & transport tuning
		timeout    = flag.Duration("timeout", 60*time.Second, "Overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeSingle && m != modeSpread {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want single|spread)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if m == modeSpread && *clients <= 0 {
		fmt.Fprintln(os.Stderr, "-clients must be > 0 in spread mode")
		os.Exit(2)
	}

	baseURL := strings.TrimRight(*base, "/")
	p := *path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	fullURL := baseURL + p

	// Configure HTTP client with connection reuse
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var admitted, throttled, failed int64

	worker := func(id, count int) {
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, nil)
			if m == modeSpread {
				// Synthetic client IP so each identity gets its own bucket.
				idx := (i*(*conc) + id) % *clients
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.99.%d.%d", idx/256, idx%256))
			}
			resp, err := client.Do(req)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				// Brief backoff on errors to avoid hot spinning
				time.Sleep(200 * time.Microsecond)
				continue
			}
			// Drain and close body to enable connection reuse
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				atomic.AddInt64(&admitted, 1)
			case http.StatusTooManyRequests:
				atomic.AddInt64(&throttled, 1)
			default:
				atomic.AddInt64(&failed, 1)
			}
		}
	}

	// Split N across conc workers
	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("LoadGen: mode=%s N=%d c=%d go=%d 200=%d 429=%d err=%d Duration=%s Throughput=%.0f req/s\n",
		m, *N, *conc, runtime.GOMAXPROCS(0), admitted, throttled, failed, elapsed.Truncate(time.Millisecond), ops)
}
