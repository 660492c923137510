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

// Package fulfill drains the order queue and applies admitted orders to the
// inventory under optimistic concurrency control.
//
// Each delivered job runs a bounded number of in-process transaction
// attempts: a version conflict re-reads fresh state immediately instead of
// spending the queue's finite redelivery budget on routine contention. Only
// after the in-process budget is exhausted is the job failed back to the
// queue. Referential errors are dead-lettered at once; no redelivery can fix
// a missing product.
//
// Processing is safe under redelivery: every attempt re-reads the product
// row, and the store commits a ledger row only together with a successful
// stock decrement, so a job produces at most one CONFIRMED row no matter how
// often it is delivered.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flashsale/internal/inventory"
	"flashsale/internal/obs"
	"flashsale/internal/queue"
	"flashsale/internal/telemetry"
)

// Store is the slice of the inventory the worker needs.
type Store interface {
	Fulfill(ctx context.Context, userID string, productID, quantity int64) (inventory.Outcome, error)
}

// Worker consumes order jobs and terminates each delivery as fulfilled,
// gracefully rejected, failed (redeliverable) or discarded.
type Worker struct {
	source        queue.Source
	store         Store
	concurrency   int
	maxTxAttempts int
	wg            sync.WaitGroup
}

// NewWorker configures a worker.
//
// concurrency is the number of consumer goroutines; the default 1 serializes
// all fulfillment, a deliberate choice to bound contention on a single hot
// product row. Correctness does not depend on it: the version guard holds at
// any concurrency. maxTxAttempts bounds in-process retries per delivery.
func NewWorker(source queue.Source, store Store, concurrency, maxTxAttempts int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxTxAttempts < 1 {
		maxTxAttempts = 1
	}
	return &Worker{
		source:        source,
		store:         store,
		concurrency:   concurrency,
		maxTxAttempts: maxTxAttempts,
	}
}

// Start launches the consumer goroutines. They exit when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	obs.Logger.Info("fulfillment worker starting",
		"concurrency", w.concurrency, "max_tx_attempts", w.maxTxAttempts)
	w.wg.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go func() {
			defer w.wg.Done()
			w.consumeLoop(ctx)
		}()
	}
}

// Wait blocks until all consumer goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consumeLoop(ctx context.Context) {
	for {
		d, err := w.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			obs.Logger.Error("receive failed", "error", err)
			// Back off so a down queue does not hot-spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		w.handle(ctx, d)
	}
}

// handle runs one delivery to a terminal verb.
func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	start := time.Now()
	defer func() { telemetry.ObserveJobDuration(time.Since(start)) }()

	job := d.Job()
	if job.Type != queue.TypeProcessOrder {
		obs.Logger.Error("unknown job type", "job_id", job.ID, "type", job.Type)
		w.terminate(ctx, d.Discard, job.ID)
		telemetry.ObserveJobDiscarded()
		return
	}

	outcome, err := w.processOrder(ctx, job)
	switch {
	case err == nil && outcome == inventory.Fulfilled:
		telemetry.ObserveFulfilled()
		obs.Logger.Info("order fulfilled",
			"job_id", job.ID, "user_id", job.Payload.UserID,
			"product_id", job.Payload.ProductID, "quantity", job.Payload.Quantity)
		w.terminate(ctx, d.Ack, job.ID)

	case err == nil && outcome == inventory.OutOfStock:
		telemetry.ObserveOutOfStock()
		obs.Logger.Info("order rejected, out of stock",
			"job_id", job.ID, "product_id", job.Payload.ProductID)
		w.terminate(ctx, d.Ack, job.ID)

	case errors.Is(err, inventory.ErrProductNotFound), errors.Is(err, inventory.ErrInvalidQuantity):
		telemetry.ObserveJobDiscarded()
		obs.Logger.Error("order unprocessable, dead-lettering",
			"job_id", job.ID, "error", err)
		w.terminate(ctx, d.Discard, job.ID)

	default:
		// Conflict budget exhausted or infrastructure failure: hand the
		// job back for redelivery.
		telemetry.ObserveJobFailed()
		obs.Logger.Warn("order attempt failed, requeueing",
			"job_id", job.ID, "attempts", job.Attempts, "error", err)
		w.terminate(ctx, d.Fail, job.ID)
	}
}

// processOrder runs the transactional attempt with bounded in-process
// retries on version conflicts. Every retry starts from a fresh read.
func (w *Worker) processOrder(ctx context.Context, job queue.Job) (inventory.Outcome, error) {
	p := job.Payload
	var lastErr error
	for attempt := 1; attempt <= w.maxTxAttempts; attempt++ {
		outcome, err := w.store.Fulfill(ctx, p.UserID, p.ProductID, p.Quantity)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, inventory.ErrVersionConflict) {
			return 0, err
		}
		telemetry.ObserveConflict()
		lastErr = err
	}
	return 0, fmt.Errorf("job %s: %d attempts exhausted: %w", job.ID, w.maxTxAttempts, lastErr)
}

// terminate applies a delivery verb, logging instead of propagating queue
// errors; the job will simply be redelivered if the verb did not stick.
func (w *Worker) terminate(ctx context.Context, verb func(context.Context) error, jobID string) {
	if err := verb(ctx); err != nil {
		obs.Logger.Error("queue terminal verb failed", "job_id", jobID, "error", err)
	}
}
