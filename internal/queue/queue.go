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

// Package queue decouples order admission from fulfillment with a durable,
// at-least-once job queue. The admission path enqueues an order intent and
// only reports "accepted" once the enqueue is acknowledged; the worker
// receives each job one delivery at a time and terminates it with Ack, Fail
// (eligible for redelivery, bounded, then dead-lettered) or Discard
// (straight to the dead letter list).
//
// Consumers must tolerate duplicate delivery: a job whose handler dies after
// the side effect but before the Ack will be delivered again.
package queue

import "context"

// TypeProcessOrder is the only job type the purchase service produces.
const TypeProcessOrder = "process-order"

// OrderIntent is the queue payload: who buys what. Field names are the wire
// contract shared with the dashboard and load tooling.
type OrderIntent struct {
	UserID    string `json:"userId"`
	ProductID int64  `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// Job is the queue envelope around an intent. Attempts counts deliveries
// already failed; it belongs to the queue's redelivery policy, not to the
// consumer.
type Job struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Payload  OrderIntent `json:"payload"`
	Attempts int         `json:"attempts"`
}

// Enqueuer is the producer half consumed by the admission path.
// The returned jobID is assigned by the queue. The call must not return nil
// error before the queue has acknowledged the job.
type Enqueuer interface {
	Enqueue(ctx context.Context, intent OrderIntent) (jobID string, err error)
}

// Delivery is one attempt to process one job. Exactly one of the three
// terminal verbs must be called.
type Delivery interface {
	Job() Job
	// Ack marks the job done. Covers both fulfillment and graceful
	// rejection; "done" means no redelivery is wanted.
	Ack(ctx context.Context) error
	// Fail hands the job back for redelivery. After the queue's delivery
	// budget is exhausted the job moves to the dead letter list instead.
	Fail(ctx context.Context) error
	// Discard dead-letters the job immediately. For errors no retry can
	// fix, such as a reference to a missing product.
	Discard(ctx context.Context) error
}

// Source is the consumer half. Receive blocks until a job is available or
// ctx is done.
type Source interface {
	Receive(ctx context.Context) (Delivery, error)
}
