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

// Package main is the public entry point of the flash-sale purchase service.
//
// The API does two things per request and nothing more: an atomic
// check-and-consume against the client's token bucket, and an enqueue of the
// order intent. All inventory work happens in the order-worker binary, so
// the API stays fast no matter how contended the sale is.
//
// With -redis_addr set, admission state and the queue live in Redis and any
// number of API replicas share them. Without it the process runs a
// self-contained demo: in-process limiter, in-process queue, and an embedded
// fulfillment worker over an in-memory inventory.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flashsale/internal/admission"
	"flashsale/internal/api"
	"flashsale/internal/config"
	"flashsale/internal/fulfill"
	"flashsale/internal/inventory"
	"flashsale/internal/obs"
	"flashsale/internal/queue"
	"flashsale/internal/telemetry"
)

func main() {
	cfg := config.Load()

	// Flags override environment; environment overrides defaults.
	httpAddr := flag.String("http_addr", cfg.HTTPAddr, "HTTP listen address (e.g., :3000)")
	metricsAddr := flag.String("metrics_addr", cfg.MetricsAddr, "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	redisAddr := flag.String("redis_addr", cfg.RedisAddr, "Redis address for shared admission state and the order queue; empty runs the in-process demo mode")
	databaseURL := flag.String("database_url", cfg.DatabaseURL, "Postgres URL for the read-only status routes; empty disables them")
	capacity := flag.Float64("bucket_capacity", cfg.BucketCapacity, "Token bucket capacity per client (burst size)")
	refillRate := flag.Float64("refill_per_sec", cfg.RefillPerSec, "Token refill rate per second per client")
	queueName := flag.String("queue_name", cfg.QueueName, "Order queue name")
	maxDeliveries := flag.Int("queue_max_deliveries", cfg.MaxDeliveries, "Delivery budget per job before dead-lettering")
	bucketTTL := flag.Duration("bucket_ttl", time.Hour, "Idle time before a client's bucket state expires")
	evictionInterval := flag.Duration("eviction_interval", 10*time.Minute, "How often the in-process limiter scans for idle buckets (demo mode)")
	logLevel := flag.String("log_level", "info", "Log level: debug|info|warn|error")
	flag.Parse()

	obs.SetLevel(obs.ParseLevel(*logLevel))
	policy := admission.Policy{Capacity: *capacity, RefillPerSec: *refillRate}

	if *metricsAddr != "" {
		telemetry.StartMetricsEndpoint(*metricsAddr)
	}

	// 1. Pick the admission limiter and the queue. Redis when shared state
	// is configured, in-process otherwise.
	var (
		limiter  admission.Limiter
		enqueuer queue.Enqueuer
		memQueue *queue.MemoryQueue
	)
	if *redisAddr != "" {
		limiter = admission.NewRedisLimiter(admission.NewGoRedisScripter(*redisAddr), policy, *bucketTTL)
		enqueuer = queue.NewRedisQueue(queue.NewGoRedisLists(*redisAddr), *queueName, *maxDeliveries)
		obs.Logger.Info("using redis", "addr", *redisAddr, "queue", *queueName)
	} else {
		local := admission.NewLocalLimiter(policy)
		local.StartEviction(*bucketTTL, *evictionInterval)
		defer local.Stop()
		limiter = local
		memQueue = queue.NewMemoryQueue(*maxDeliveries)
		enqueuer = memQueue
		obs.Logger.Warn("no redis configured, running in-process demo mode")
	}

	// 2. Inventory access: Postgres when configured, in-memory otherwise.
	var (
		orders api.OrderReader
		store  fulfill.Store
		worker *fulfill.Worker
	)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if *databaseURL != "" {
		pool, err := pgxpool.New(context.Background(), *databaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
		pg := inventory.NewPostgresStore(pool)
		orders, store = pg, pg
	} else if memQueue != nil {
		mem := inventory.NewMemoryStore()
		if err := mem.SeedDemo(context.Background()); err != nil {
			log.Fatalf("seed: %v", err)
		}
		orders, store = mem, mem
	}

	// The in-process queue has no external worker attached, so this
	// process must drain it itself.
	if memQueue != nil && store != nil {
		worker = fulfill.NewWorker(memQueue, store, cfg.WorkerCount, cfg.MaxTxAttempts)
		worker.Start(workerCtx)
	}

	// 3. HTTP server with graceful shutdown handled here in main.
	mux := http.NewServeMux()
	api.NewServer(limiter, enqueuer, orders, policy).RegisterRoutes(mux)
	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		obs.Logger.Info("purchase API listening", "addr", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v", *httpAddr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	obs.Logger.Info("shutting down")

	// Stop taking requests first, then drain the embedded worker if one is
	// running.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	stopWorker()
	if worker != nil {
		worker.Wait()
	}

	obs.Logger.Info("server stopped")
}
