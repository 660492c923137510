// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"flashsale/internal/clock"
)

// managedBucket is one client's bucket plus the metadata the eviction loop
// needs. The mutex makes the whole check-and-consume step indivisible for
// this key; lastAccessed is updated on every hot-path access and read by the
// eviction loop, so it is kept atomic.
type managedBucket struct {
	mu           sync.Mutex
	tokens       float64
	last         int64 // unix seconds of the last refill
	lastAccessed int64 // UnixNano, atomic
}

// LocalLimiter is an in-process counter store. It exists for tests and for
// demo runs without Redis; the admission semantics are identical to
// RedisLimiter. An idle bucket is dropped by the eviction loop, which is
// harmless: a missing key reads as a fresh full bucket, the same decay a
// Redis TTL provides.
type LocalLimiter struct {
	buckets  sync.Map
	policy   Policy
	clk      clock.Clock
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

// NewLocalLimiter creates a limiter for the given policy.
func NewLocalLimiter(policy Policy) *LocalLimiter {
	return &LocalLimiter{
		policy:   policy,
		clk:      clock.NewSystem(),
		stopChan: make(chan struct{}),
	}
}

// WithClock replaces the wall clock. Intended for tests.
func (l *LocalLimiter) WithClock(clk clock.Clock) *LocalLimiter {
	l.clk = clk
	return l
}

// Allow runs one admission check for clientID. The context is only consulted
// before the in-memory step; the step itself never blocks on I/O.
func (l *LocalLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	now := l.clk.Now()
	b := l.getOrCreate(clientID, now)

	b.mu.Lock()
	allowed, tokens := take(b.tokens, b.last, l.policy, now.Unix())
	b.tokens = tokens
	b.last = now.Unix()
	b.mu.Unlock()
	return allowed, nil
}

// getOrCreate returns the bucket for a key, creating a full one on first use.
//
// Fast path: key already present, no allocations. Only on a miss do we
// allocate and attempt a LoadOrStore; if another goroutine wins the race the
// extra allocation is discarded.
func (l *LocalLimiter) getOrCreate(key string, now time.Time) *managedBucket {
	if actual, ok := l.buckets.Load(key); ok {
		b := actual.(*managedBucket)
		atomic.StoreInt64(&b.lastAccessed, now.UnixNano())
		return b
	}

	fresh := &managedBucket{
		tokens:       l.policy.Capacity,
		last:         now.Unix(),
		lastAccessed: now.UnixNano(),
	}
	if actual, loaded := l.buckets.LoadOrStore(key, fresh); loaded {
		b := actual.(*managedBucket)
		atomic.StoreInt64(&b.lastAccessed, now.UnixNano())
		return b
	}
	return fresh
}

// StartEviction launches the background loop that drops idle buckets.
func (l *LocalLimiter) StartEviction(idleAge, interval time.Duration) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.runEvictionCycle(idleAge)
			case <-l.stopChan:
				return
			}
		}
	}()
}

// Stop halts the eviction loop. Safe to call more than once.
func (l *LocalLimiter) Stop() {
	if !atomic.CompareAndSwapUint32(&l.stopped, 0, 1) {
		return
	}
	close(l.stopChan)
	l.wg.Wait()
}

// runEvictionCycle removes buckets idle for longer than idleAge. Dropping a
// bucket forgets at most a partial balance; the next request starts full,
// which only ever errs in the client's favor.
func (l *LocalLimiter) runEvictionCycle(idleAge time.Duration) {
	now := l.clk.Now()
	var stale []string
	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*managedBucket)
		last := atomic.LoadInt64(&b.lastAccessed)
		if now.Sub(time.Unix(0, last)) > idleAge {
			stale = append(stale, key.(string))
		}
		return true
	})
	for _, key := range stale {
		// Re-check under load in case the key was touched since the scan.
		if v, ok := l.buckets.Load(key); ok {
			b := v.(*managedBucket)
			if now.Sub(time.Unix(0, atomic.LoadInt64(&b.lastAccessed))) > idleAge {
				l.buckets.Delete(key)
			}
		}
	}
}

// size reports the number of tracked buckets. Used by tests.
func (l *LocalLimiter) size() int {
	n := 0
	l.buckets.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
