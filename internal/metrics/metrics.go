// Package metrics provides Prometheus instrumentation for the antifraud service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antifraud",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "antifraud",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransactionsEvaluatedTotal counts classified transactions by verdict.
	TransactionsEvaluatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antifraud",
			Name:      "transactions_evaluated_total",
			Help:      "Total transactions evaluated by verdict.",
		},
		[]string{"result"},
	)

	// FeedbackAppliedTotal counts accepted feedback submissions.
	FeedbackAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "antifraud",
		Name:      "feedback_applied_total",
		Help:      "Total feedback submissions that adjusted the limits.",
	})

	// MaxAllowedLimit tracks the current automatic-allow threshold.
	MaxAllowedLimit = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud",
		Name:      "max_allowed_limit",
		Help:      "Current upper bound for automatically allowed amounts.",
	})

	// MaxManualLimit tracks the current manual-processing threshold.
	MaxManualLimit = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud",
		Name:      "max_manual_limit",
		Help:      "Current upper bound for manual-processing amounts.",
	})

	// StolenCardCount tracks the size of the stolen card blocklist.
	StolenCardCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud",
		Name:      "stolen_cards",
		Help:      "Number of card numbers on the blocklist.",
	})

	// SuspiciousIPCount tracks the size of the suspicious IP blocklist.
	SuspiciousIPCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud",
		Name:      "suspicious_ips",
		Help:      "Number of IP addresses on the blocklist.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "antifraud", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransactionsEvaluatedTotal,
		FeedbackAppliedTotal,
		MaxAllowedLimit,
		MaxManualLimit,
		StolenCardCount,
		SuspiciousIPCount,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// SetLimitGauges records the current classification thresholds.
func SetLimitGauges(maxAllowed, maxManual int64) {
	MaxAllowedLimit.Set(float64(maxAllowed))
	MaxManualLimit.Set(float64(maxManual))
}

// SetStolenCardCount records the blocklisted card count.
func SetStolenCardCount(n int) {
	StolenCardCount.Set(float64(n))
}

// SetSuspiciousIPCount records the blocklisted IP count.
func SetSuspiciousIPCount(n int) {
	SuspiciousIPCount.Set(float64(n))
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
