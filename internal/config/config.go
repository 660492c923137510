// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the knobs shared by the API and worker binaries.
//
// BucketCapacity and RefillPerSec define the per-client token bucket; the
// defaults (5 tokens, 1 token/s) match the demo policy. DatabaseURL empty
// selects the in-memory inventory store; RedisAddr empty selects the
// in-process counter store and queue.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	RedisAddr       string
	DatabaseURL     string
	BucketCapacity  float64
	RefillPerSec    float64
	QueueName       string
	MaxDeliveries   int
	WorkerCount     int
	MaxTxAttempts   int
	ShutdownTimeout time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":3000"),
		MetricsAddr:     getenv("METRICS_ADDR", ""),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		BucketCapacity:  floatenv("BUCKET_CAPACITY", 5),
		RefillPerSec:    floatenv("REFILL_PER_SEC", 1),
		QueueName:       getenv("QUEUE_NAME", "order-queue"),
		MaxDeliveries:   atoienv("QUEUE_MAX_DELIVERIES", 5),
		WorkerCount:     atoienv("WORKER_COUNT", 1),
		MaxTxAttempts:   atoienv("MAX_TX_ATTEMPTS", 3),
		ShutdownTimeout: time.Duration(atoienv("SHUTDOWN_TIMEOUT", 15)) * time.Second,
	}
}
