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

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// errNoJob is returned by a ListClient when the blocking pop times out with
// nothing to deliver. Receive treats it as "poll again".
var errNoJob = errors.New("queue: no job available")

// ListClient abstracts the minimal Redis list surface the queue needs.
// Implementations may wrap github.com/redis/go-redis/v9 or any equivalent.
// BRPopLPush must return errNoJob on an empty-source timeout.
type ListClient interface {
	LPush(ctx context.Context, key string, value string) error
	BRPopLPush(ctx context.Context, source, destination string, timeout time.Duration) (string, error)
	LRem(ctx context.Context, key string, count int64, value string) error
}

// RedisQueue is a reliable Redis list queue. Producers LPUSH the pending
// list; the consumer moves a job to the processing list with BRPOPLPUSH so a
// crash between pop and ack leaves the raw job recoverable in processing.
// Ack removes it from processing; Fail pushes it back to pending with the
// attempt count bumped until MaxDeliveries, after which (and on Discard) it
// lands on the dead letter list.
type RedisQueue struct {
	client        ListClient
	name          string
	maxDeliveries int
	blockTimeout  time.Duration
}

// NewRedisQueue returns a queue named name. maxDeliveries bounds how many
// times one job may be delivered before dead-lettering; values below 1 are
// coerced to 1.
func NewRedisQueue(client ListClient, name string, maxDeliveries int) *RedisQueue {
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}
	return &RedisQueue{
		client:        client,
		name:          name,
		maxDeliveries: maxDeliveries,
		blockTimeout:  time.Second,
	}
}

// Key layout helpers (public for interoperability with tooling and tests).
func PendingKey(name string) string    { return fmt.Sprintf("queue:%s:pending", name) }
func ProcessingKey(name string) string { return fmt.Sprintf("queue:%s:processing", name) }
func DeadKey(name string) string       { return fmt.Sprintf("queue:%s:dead", name) }

// Enqueue appends an order intent as a new job and returns its ID. It does
// not return before Redis acknowledges the push.
func (q *RedisQueue) Enqueue(ctx context.Context, intent OrderIntent) (string, error) {
	job := Job{ID: uuid.NewString(), Type: TypeProcessOrder, Payload: intent}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, PendingKey(q.name), string(raw)); err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

// Receive blocks until a job is delivered or ctx is done. A job whose
// envelope cannot be decoded is dead-lettered and skipped.
func (q *RedisQueue) Receive(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := q.client.BRPopLPush(ctx, PendingKey(q.name), ProcessingKey(q.name), q.blockTimeout)
		if errors.Is(err, errNoJob) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("receive from %s: %w", q.name, err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Poison envelope. Move it to the dead list as-is.
			_ = q.client.LRem(ctx, ProcessingKey(q.name), 1, raw)
			_ = q.client.LPush(ctx, DeadKey(q.name), raw)
			continue
		}
		return &redisDelivery{q: q, job: job, raw: raw}, nil
	}
}

// Recover moves every job parked on the processing list back to pending.
// Run it at worker startup, before consuming, to reclaim jobs a previous
// process crashed on. With multiple live workers it can also reclaim a peer's
// in-flight job; at-least-once delivery already requires tolerating the
// resulting duplicate.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		_, err := q.client.BRPopLPush(ctx, ProcessingKey(q.name), PendingKey(q.name), time.Millisecond)
		if errors.Is(err, errNoJob) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover %s: %w", q.name, err)
		}
		moved++
	}
}

type redisDelivery struct {
	q   *RedisQueue
	job Job
	raw string
}

func (d *redisDelivery) Job() Job { return d.job }

func (d *redisDelivery) Ack(ctx context.Context) error {
	if err := d.q.client.LRem(ctx, ProcessingKey(d.q.name), 1, d.raw); err != nil {
		return fmt.Errorf("ack job %s: %w", d.job.ID, err)
	}
	return nil
}

func (d *redisDelivery) Fail(ctx context.Context) error {
	if err := d.q.client.LRem(ctx, ProcessingKey(d.q.name), 1, d.raw); err != nil {
		return fmt.Errorf("fail job %s: %w", d.job.ID, err)
	}
	retry := d.job
	retry.Attempts++
	raw, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", d.job.ID, err)
	}
	dest := PendingKey(d.q.name)
	if retry.Attempts >= d.q.maxDeliveries {
		dest = DeadKey(d.q.name)
	}
	if err := d.q.client.LPush(ctx, dest, string(raw)); err != nil {
		return fmt.Errorf("requeue job %s: %w", d.job.ID, err)
	}
	return nil
}

func (d *redisDelivery) Discard(ctx context.Context) error {
	if err := d.q.client.LRem(ctx, ProcessingKey(d.q.name), 1, d.raw); err != nil {
		return fmt.Errorf("discard job %s: %w", d.job.ID, err)
	}
	if err := d.q.client.LPush(ctx, DeadKey(d.q.name), d.raw); err != nil {
		return fmt.Errorf("dead-letter job %s: %w", d.job.ID, err)
	}
	return nil
}
