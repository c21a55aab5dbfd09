package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volsignal/internal/model"
)

// Metrics holds all Prometheus metrics for the volatility signal service.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec // labels: outcome=ok|partial|all_failed
	CycleDuration    prometheus.Histogram
	InstrumentErrors *prometheus.CounterVec // labels: instrument
	AlertsTotal      *prometheus.CounterVec // labels: instrument, kind=first|repeat
	AlertsSuppressed prometheus.Counter
	OpenEpisodes     prometheus.Gauge

	// Latest computed values per instrument
	ATRPercent *prometheus.GaugeVec // labels: instrument
	ADX        *prometheus.GaugeVec // labels: instrument

	// Delivery
	NotifyFailures *prometheus.CounterVec // labels: channel

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Market session state
	MarketState prometheus.Gauge // 0=closed, 1=open

	gatherer prometheus.Gatherer
}

// NewMetrics registers and returns all metrics on reg. A nil reg uses a fresh
// registry so that tests and multiple services never collide on the global one.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volsignal_cycles_total",
			Help: "Refresh cycles run, by outcome",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "volsignal_cycle_duration_seconds",
			Help:    "Wall time of one refresh cycle including series fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		InstrumentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volsignal_instrument_errors_total",
			Help: "Instruments whose snapshot carried an error",
		}, []string{"instrument"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volsignal_alerts_total",
			Help: "Alert events emitted (first notification or cooldown repeat)",
		}, []string{"instrument", "kind"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volsignal_alerts_suppressed_total",
			Help: "In-alert observations suppressed by the cooldown",
		}),
		OpenEpisodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volsignal_open_episodes",
			Help: "Currently open alert episodes",
		}),
		ATRPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "volsignal_atr_percent",
			Help: "Latest ATR as a percentage of price",
		}, []string{"instrument"}),
		ADX: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "volsignal_adx",
			Help: "Latest ADX value",
		}, []string{"instrument"}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volsignal_notify_failures_total",
			Help: "Failed notification deliveries by channel",
		}, []string{"channel"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volsignal_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volsignal_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volsignal_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.InstrumentErrors,
		m.AlertsTotal,
		m.AlertsSuppressed,
		m.OpenEpisodes,
		m.ATRPercent,
		m.ADX,
		m.NotifyFailures,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.MarketState,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveCycle records one cycle's outcome.
func (m *Metrics) ObserveCycle(d time.Duration, snaps []model.IndicatorSnapshot, alerts []model.AlertEvent, suppressed, openEpisodes int) {
	failed := 0
	for i := range snaps {
		s := &snaps[i]
		if s.Failed() {
			failed++
			m.InstrumentErrors.WithLabelValues(s.InstrumentID).Inc()
			continue
		}
		m.ATRPercent.WithLabelValues(s.InstrumentID).Set(s.ATRPercent)
		if s.ADX != nil {
			m.ADX.WithLabelValues(s.InstrumentID).Set(*s.ADX)
		}
	}

	outcome := "ok"
	switch {
	case len(snaps) > 0 && failed == len(snaps):
		outcome = "all_failed"
	case failed > 0:
		outcome = "partial"
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())

	for _, a := range alerts {
		kind := "first"
		if a.Repeat {
			kind = "repeat"
		}
		m.AlertsTotal.WithLabelValues(a.InstrumentID, kind).Inc()
	}
	m.AlertsSuppressed.Add(float64(suppressed))
	m.OpenEpisodes.Set(float64(openEpisodes))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool `json:"redis_enabled"`
	RedisConnected bool `json:"redis_connected"`
	SQLiteEnabled  bool `json:"sqlite_enabled"`
	SQLiteOK       bool `json:"sqlite_ok"`
	MarketOpen     bool `json:"market_open"`

	LastCycleAt     time.Time `json:"last_cycle_at"`
	LastCycleFailed int       `json:"last_cycle_failed"`
	Instruments     int       `json:"instruments"`

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

func (h *HealthStatus) SetRedis(enabled, connected bool) {
	h.mu.Lock()
	h.RedisEnabled, h.RedisConnected = enabled, connected
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLite(enabled, ok bool) {
	h.mu.Lock()
	h.SQLiteEnabled, h.SQLiteOK = enabled, ok
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

// SetCycle records the latest cycle time and how many of its instruments failed.
func (h *HealthStatus) SetCycle(at time.Time, instruments, failed int) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.Instruments = instruments
	h.LastCycleFailed = failed
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
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
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
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

// Status returns "healthy", "degraded" or "unhealthy" with the HTTP code to serve.
func (h *HealthStatus) Status() (string, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.statusLocked()
}

func (h *HealthStatus) statusLocked() (string, int) {
	if h.Instruments > 0 && h.LastCycleFailed == h.Instruments {
		return "unhealthy", http.StatusServiceUnavailable
	}
	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) || h.LastCycleFailed > 0 {
		return "degraded", http.StatusOK
	}
	return "healthy", http.StatusOK
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus, httpCode := h.statusLocked()

	cycleAge := ""
	if !h.LastCycleAt.IsZero() {
		cycleAge = time.Since(h.LastCycleAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		MarketOpen      bool    `json:"market_open"`
		LastCycleAt     string  `json:"last_cycle_at"`
		CycleAge        string  `json:"cycle_age"`
		Instruments     int     `json:"instruments"`
		Failed          int     `json:"failed"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		MarketOpen:      h.MarketOpen,
		LastCycleAt:     h.LastCycleAt.Format(time.RFC3339),
		CycleAge:        cycleAge,
		Instruments:     h.Instruments,
		Failed:          h.LastCycleFailed,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
