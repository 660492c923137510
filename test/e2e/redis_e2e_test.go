//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"

	"flashsale/internal/admission"
	"flashsale/internal/queue"
)

// redisOrSkip returns a live client or skips the test when no Redis is
// reachable on 127.0.0.1:6379.
func redisOrSkip(t *testing.T) *redis.Client {
	t.Helper()
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: Redis not reachable on 127.0.0.1:6379: %v", err)
	}
	return rc
}

// TestRedisLimiterE2E runs the real Lua script against a real Redis: a fresh
// client admits exactly capacity requests, then throttles, and the bucket
// hash carries a TTL so idle clients expire.
func TestRedisLimiterE2E(t *testing.T) {
	rc := redisOrSkip(t)
	ctx := context.Background()

	clientID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	bucketKey := admission.BucketKey(clientID)
	t.Cleanup(func() { _ = rc.Del(context.Background(), bucketKey).Err() })

	limiter := admission.NewRedisLimiter(
		admission.WrapRedisClient(rc),
		admission.Policy{Capacity: 3, RefillPerSec: 0.001},
		time.Hour,
	)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, clientID)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	allowed, err := limiter.Allow(ctx, clientID)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("4th request should be throttled")
	}

	ttl, err := rc.TTL(ctx, bucketKey).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 {
		t.Fatalf("bucket key has no TTL: %v", ttl)
	}
}

// TestRedisQueueE2E round-trips a job through a real Redis list queue:
// enqueue, receive (pending moves to processing), fail (redelivered with a
// bumped attempt count), then ack.
func TestRedisQueueE2E(t *testing.T) {
	rc := redisOrSkip(t)
	ctx := context.Background()

	name := fmt.Sprintf("e2e-queue-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = rc.Del(context.Background(),
			queue.PendingKey(name), queue.ProcessingKey(name), queue.DeadKey(name)).Err()
	})

	q := queue.NewRedisQueue(queue.NewGoRedisLists("127.0.0.1:6379"), name, 3)

	id, err := q.Enqueue(ctx, queue.OrderIntent{UserID: "e2e-user", ProductID: 1, Quantity: 1})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	d, err := q.Receive(recvCtx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if d.Job().ID != id {
		t.Fatalf("job id=%s, want %s", d.Job().ID, id)
	}
	if n, err := rc.LLen(ctx, queue.ProcessingKey(name)).Result(); err != nil || n != 1 {
		t.Fatalf("processing len=%d err=%v, want 1", n, err)
	}

	if err := d.Fail(ctx); err != nil {
		t.Fatalf("fail: %v", err)
	}
	d2, err := q.Receive(recvCtx)
	if err != nil {
		t.Fatalf("receive redelivery: %v", err)
	}
	if d2.Job().ID != id || d2.Job().Attempts != 1 {
		t.Fatalf("redelivery = %+v, want same id with attempts 1", d2.Job())
	}
	if err := d2.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}

	for _, key := range []string{queue.PendingKey(name), queue.ProcessingKey(name), queue.DeadKey(name)} {
		if n, _ := rc.LLen(ctx, key).Result(); n != 0 {
			t.Fatalf("%s len=%d, want 0 after ack", key, n)
		}
	}
}
