// Package telemetry holds the process-wide Prometheus instruments for the
// purchase service. Counters are registered eagerly; if no /metrics endpoint
// is exposed the registration is harmless. All helpers are cheap enough to
// call from hot paths.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	admittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_requests_admitted_total",
		Help: "Requests admitted by the token-bucket rate limiter",
	})
	throttledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_requests_throttled_total",
		Help: "Requests rejected with 429 by the rate limiter",
	})
	admissionErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_admission_errors_total",
		Help: "Admission checks that failed because the counter store was unreachable",
	})
	fulfilledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_fulfilled_total",
		Help: "Orders fulfilled with a committed stock decrement and a CONFIRMED ledger row",
	})
	outOfStockTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_orders_out_of_stock_total",
		Help: "Orders gracefully rejected because stock was insufficient",
	})
	conflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_stock_conflicts_total",
		Help: "Optimistic-lock misses (conditional update touched zero rows)",
	})
	jobsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_jobs_failed_total",
		Help: "Jobs handed back to the queue for redelivery after a failed attempt",
	})
	jobsDiscardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shop_jobs_discarded_total",
		Help: "Jobs dead-lettered without redelivery (referential errors)",
	})
	fulfillSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shop_fulfillment_seconds",
		Help:    "Wall time spent processing one delivered job, all outcomes",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

func init() {
	prometheus.MustRegister(admittedTotal, throttledTotal, admissionErrorsTotal,
		fulfilledTotal, outOfStockTotal, conflictsTotal, jobsFailedTotal,
		jobsDiscardedTotal, fulfillSeconds)
}

// ObserveAdmission records the outcome of one admission check.
// err is the infrastructure error, if any; it takes precedence over allowed.
func ObserveAdmission(allowed bool, err error) {
	switch {
	case err != nil:
		admissionErrorsTotal.Inc()
	case allowed:
		admittedTotal.Inc()
	default:
		throttledTotal.Inc()
	}
}

// ObserveFulfilled records a committed order.
func ObserveFulfilled() { fulfilledTotal.Inc() }

// ObserveOutOfStock records a graceful rejection.
func ObserveOutOfStock() { outOfStockTotal.Inc() }

// ObserveConflict records one optimistic-lock miss (per attempt, not per job).
func ObserveConflict() { conflictsTotal.Inc() }

// ObserveJobFailed records a job handed back for redelivery.
func ObserveJobFailed() { jobsFailedTotal.Inc() }

// ObserveJobDiscarded records a dead-lettered job.
func ObserveJobDiscarded() { jobsDiscardedTotal.Inc() }

// ObserveJobDuration records the wall time of one delivered job.
func ObserveJobDuration(d time.Duration) { fulfillSeconds.Observe(d.Seconds()) }

// StartMetricsEndpoint exposes /metrics on the given addr in a background
// goroutine. Leave addr empty to disable.
func StartMetricsEndpoint(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
