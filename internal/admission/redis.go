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
	"fmt"
	"time"

	"flashsale/internal/clock"
)

// Scripter abstracts the minimal surface we need from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 (Cmdable.Eval) or any equivalent.
type Scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisLimiter runs the token-bucket check-and-consume as a single Lua
// script per request:
// 1) HMGET the bucket hash (tokens, ts); absent key = full bucket
// 2) refill from elapsed seconds, capped at capacity
// 3) consume one token if the balance allows
// 4) HSET the new state in both branches, EXPIRE for idle decay
// The script returns 1 when admitted, 0 when throttled. Redis executes
// scripts serially per server, which gives us the required atomicity.
type RedisLimiter struct {
	client    Scripter
	policy    Policy
	bucketTTL time.Duration
	clk       clock.Clock
}

// NewRedisLimiter returns a limiter with the given client and policy.
// bucketTTL guards against unbounded growth of idle bucket hashes; an
// expired key simply reads as a fresh full bucket. Choose a duration
// comfortably larger than the time to refill an empty bucket.
func NewRedisLimiter(client Scripter, policy Policy, bucketTTL time.Duration) *RedisLimiter {
	if bucketTTL <= 0 {
		bucketTTL = time.Hour
	}
	return &RedisLimiter{client: client, policy: policy, bucketTTL: bucketTTL, clk: clock.NewSystem()}
}

// WithClock replaces the wall clock. Intended for tests.
func (l *RedisLimiter) WithClock(clk clock.Clock) *RedisLimiter {
	l.clk = clk
	return l
}

// tokenBucketScript performs the atomic check-and-consume. It returns 1 if
// the request is admitted, 0 otherwise. State is persisted on both branches
// so refill progress survives rejections.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  -- missing key: fresh, full bucket
  tokens = capacity
  ts = now
end
local elapsed = now - ts
if elapsed < 0 then
  elapsed = 0
end
tokens = tokens + elapsed * rate
if tokens > capacity then
  tokens = capacity
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', key, 'tokens', tokens, 'ts', now)
if ttl and ttl > 0 then
  redis.call('EXPIRE', key, ttl)
end
return allowed
`

// BucketKey is the hash key holding one client's bucket state.
func BucketKey(clientID string) string { return fmt.Sprintf("rate_limit:%s", clientID) }

// Allow runs one atomic admission check for clientID.
func (l *RedisLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	now := l.clk.Now().Unix()
	keys := []string{BucketKey(clientID)}
	args := []interface{}{l.policy.Capacity, l.policy.RefillPerSec, now, int(l.bucketTTL.Seconds())}
	res, err := l.client.Eval(ctx, tokenBucketScript, keys, args...)
	if err != nil {
		return false, fmt.Errorf("redis eval key=%s: %w", clientID, err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("redis eval key=%s: unexpected reply %T", clientID, res)
	}
	return n == 1, nil
}
