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

// Package main is the order fulfillment worker. It drains the Redis order
// queue and applies each admitted order to the Postgres inventory under a
// version guard, so oversubscribed sales converge to stock zero and never
// below. Run it alongside one or more shop-api replicas; job-level
// redelivery makes a worker crash a delay, not a loss.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flashsale/internal/config"
	"flashsale/internal/fulfill"
	"flashsale/internal/inventory"
	"flashsale/internal/obs"
	"flashsale/internal/queue"
	"flashsale/internal/telemetry"
	"flashsale/migrations"
)

func main() {
	cfg := config.Load()

	redisAddr := flag.String("redis_addr", cfg.RedisAddr, "Redis address of the order queue (required)")
	databaseURL := flag.String("database_url", cfg.DatabaseURL, "Postgres URL of the inventory (required)")
	metricsAddr := flag.String("metrics_addr", cfg.MetricsAddr, "If non-empty, expose Prometheus /metrics on this address (e.g., :9091)")
	queueName := flag.String("queue_name", cfg.QueueName, "Order queue name")
	maxDeliveries := flag.Int("queue_max_deliveries", cfg.MaxDeliveries, "Delivery budget per job before dead-lettering")
	workerCount := flag.Int("workers", cfg.WorkerCount, "Concurrent consumers; 1 serializes all fulfillment")
	maxTxAttempts := flag.Int("max_tx_attempts", cfg.MaxTxAttempts, "In-process transaction attempts per delivery before requeueing")
	seed := flag.Bool("seed", true, "Seed the demo product if the products table is empty")
	logLevel := flag.String("log_level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	obs.SetLevel(obs.ParseLevel(*logLevel))

	if *redisAddr == "" {
		log.Fatal("redis_addr is required (or set REDIS_ADDR)")
	}
	if *databaseURL == "" {
		log.Fatal("database_url is required (or set DATABASE_URL)")
	}

	if *metricsAddr != "" {
		telemetry.StartMetricsEndpoint(*metricsAddr)
	}

	// 1. Database: connect, migrate, optionally seed the demo product.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, *databaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	defer migrateCancel()
	if err := migrations.Apply(migrateCtx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	store := inventory.NewPostgresStore(pool)
	if *seed {
		if err := store.SeedDemo(migrateCtx); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}

	// 2. Queue source and worker. Reclaim jobs a previous run crashed on
	// before consuming.
	src := queue.NewRedisQueue(queue.NewGoRedisLists(*redisAddr), *queueName, *maxDeliveries)
	if moved, err := src.Recover(migrateCtx); err != nil {
		log.Fatalf("queue recovery: %v", err)
	} else if moved > 0 {
		obs.Logger.Info("recovered in-flight jobs", "count", moved)
	}
	worker := fulfill.NewWorker(src, store, *workerCount, *maxTxAttempts)
	worker.Start(ctx)

	obs.Logger.Info("order worker running",
		"queue", *queueName, "workers", *workerCount, "redis", *redisAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	obs.Logger.Info("shutting down, finishing in-flight jobs")

	// Cancel receive loops and wait for in-flight deliveries to reach a
	// terminal verb. Anything interrupted mid-flight stays on the
	// processing list and is redelivered on the next run.
	cancel()
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		obs.Logger.Info("worker stopped")
	case <-time.After(cfg.ShutdownTimeout):
		obs.Logger.Warn("shutdown timeout elapsed, exiting with jobs in flight")
	}
}
