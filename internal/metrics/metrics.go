package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketcontext/internal/model"
)

// Snapshot outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient"
	OutcomeMalformed    = "malformed"
	OutcomeError        = "error"
)

// Metrics holds all Prometheus metrics for the market context engine.
type Metrics struct {
	// Snapshot computation
	ComputeDur      prometheus.Histogram
	SnapshotsTotal  *prometheus.CounterVec // labels: outcome
	UndefinedFields *prometheus.CounterVec // labels: field

	// Broker history fetch
	FetchDur       prometheus.Histogram
	CandlesFetched prometheus.Counter
	FetchErrors    prometheus.Counter

	// Scheduled refresh
	RefreshDur         prometheus.Histogram
	RefreshLastSuccess prometheus.Gauge // unix seconds

	// Circuit breaker metrics
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Live push
	WSClients prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics on reg. A nil reg uses a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctxengine_compute_duration_seconds",
			Help:    "Time to compute one enriched snapshot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxengine_snapshots_total",
			Help: "Snapshot computations by outcome",
		}, []string{"outcome"}),
		UndefinedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxengine_undefined_fields_total",
			Help: "Snapshot fields left undefined for lack of history",
		}, []string{"field"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctxengine_fetch_duration_seconds",
			Help:    "Broker candle fetch latency per instrument",
			Buckets: prometheus.DefBuckets,
		}),
		CandlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxengine_candles_fetched_total",
			Help: "Daily candles fetched from the broker",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxengine_fetch_errors_total",
			Help: "Failed broker fetches",
		}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctxengine_refresh_duration_seconds",
			Help:    "Watchlist refresh duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RefreshLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxengine_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last refresh without errors",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxengine_redis_buffered_writes_total",
			Help: "Snapshots buffered while Redis was unavailable",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxengine_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ComputeDur,
		m.SnapshotsTotal,
		m.UndefinedFields,
		m.FetchDur,
		m.CandlesFetched,
		m.FetchErrors,
		m.RefreshDur,
		m.RefreshLastSuccess,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveSnapshot records one computation outcome.
func (m *Metrics) ObserveSnapshot(snap *model.EnrichedMarketData, err error, took time.Duration) {
	m.ComputeDur.Observe(took.Seconds())
	switch {
	case err == nil:
		m.SnapshotsTotal.WithLabelValues(OutcomeOK).Inc()
		for _, f := range snap.Undefined {
			m.UndefinedFields.WithLabelValues(f).Inc()
		}
	case errors.Is(err, model.ErrInsufficientData):
		m.SnapshotsTotal.WithLabelValues(OutcomeInsufficient).Inc()
	case errors.Is(err, model.ErrMalformedCandle):
		m.SnapshotsTotal.WithLabelValues(OutcomeMalformed).Inc()
	default:
		m.SnapshotsTotal.WithLabelValues(OutcomeError).Inc()
	}
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastRefresh    time.Time `json:"last_refresh"`
	LastRefreshErr string    `json:"last_refresh_error,omitempty"`
	Watchlist      int       `json:"watchlist"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWatchlist(n int) {
	h.mu.Lock()
	h.Watchlist = n
	h.mu.Unlock()
}

// SetRefreshResult records the end of a watchlist refresh.
func (h *HealthStatus) SetRefreshResult(at time.Time, err error) {
	h.mu.Lock()
	h.LastRefresh = at
	h.LastRefreshErr = ""
	if err != nil {
		h.LastRefreshErr = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. SQLite is required; Redis only
// degrades the service.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case !h.SQLiteOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case !h.RedisConnected || h.LastRefreshErr != "":
		overallStatus = "degraded"
	}

	lastRefresh := ""
	if !h.LastRefresh.IsZero() {
		lastRefresh = h.LastRefresh.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Watchlist       int     `json:"watchlist"`
		LastRefresh     string  `json:"last_refresh"`
		LastRefreshErr  string  `json:"last_refresh_error,omitempty"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Watchlist:       h.Watchlist,
		LastRefresh:     lastRefresh,
		LastRefreshErr:  h.LastRefreshErr,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
