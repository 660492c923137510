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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process queue with the same delivery contract as
// RedisQueue. It backs tests and single-binary demo runs; unlike the Redis
// queue it does not survive a process crash, so jobs in flight at exit are
// lost rather than redelivered.
type MemoryQueue struct {
	mu            sync.Mutex
	pending       []Job
	dead          []Job
	notify        chan struct{}
	maxDeliveries int

	enqueued atomic.Uint64
	acked    atomic.Uint64
}

// NewMemoryQueue creates a queue with the given delivery budget per job.
func NewMemoryQueue(maxDeliveries int) *MemoryQueue {
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}
	return &MemoryQueue{
		notify:        make(chan struct{}, 1),
		maxDeliveries: maxDeliveries,
	}
}

// Enqueue appends an order intent as a new job and returns its ID.
func (q *MemoryQueue) Enqueue(ctx context.Context, intent OrderIntent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	job := Job{ID: uuid.NewString(), Type: TypeProcessOrder, Payload: intent}
	q.push(job)
	q.enqueued.Add(1)
	return job.ID, nil
}

func (q *MemoryQueue) push(job Job) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Receive blocks until a job is available or ctx is done.
func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			job := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return &memoryDelivery{q: q, job: job}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// PendingSize returns the number of jobs awaiting delivery.
func (q *MemoryQueue) PendingSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DeadLetters returns a copy of the dead letter list.
func (q *MemoryQueue) DeadLetters() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.dead))
	copy(out, q.dead)
	return out
}

// Stats reports enqueue and ack counters for drain checks.
func (q *MemoryQueue) Stats() (enqueued, acked uint64) {
	return q.enqueued.Load(), q.acked.Load()
}

type memoryDelivery struct {
	q   *MemoryQueue
	job Job
}

func (d *memoryDelivery) Job() Job { return d.job }

func (d *memoryDelivery) Ack(ctx context.Context) error {
	d.q.acked.Add(1)
	return nil
}

func (d *memoryDelivery) Fail(ctx context.Context) error {
	retry := d.job
	retry.Attempts++
	if retry.Attempts >= d.q.maxDeliveries {
		d.q.mu.Lock()
		d.q.dead = append(d.q.dead, retry)
		d.q.mu.Unlock()
		return nil
	}
	d.q.push(retry)
	return nil
}

func (d *memoryDelivery) Discard(ctx context.Context) error {
	d.q.mu.Lock()
	d.q.dead = append(d.q.dead, d.job)
	d.q.mu.Unlock()
	return nil
}
