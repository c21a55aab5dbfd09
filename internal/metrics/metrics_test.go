package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"volsignal/internal/model"
)

func TestObserveCycle(t *testing.T) {
	m := NewMetrics(nil)
	adx := 31.5
	snaps := []model.IndicatorSnapshot{
		{InstrumentID: "BTC/USD", ATRPercent: 1.7, ADX: &adx},
		{InstrumentID: "EUR/USD", Error: "source unavailable"},
	}
	alerts := []model.AlertEvent{
		{InstrumentID: "BTC/USD"},
		{InstrumentID: "BTC/USD", Repeat: true},
	}
	m.ObserveCycle(2*time.Second, snaps, alerts, 3, 1)

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("partial")); got != 1 {
		t.Errorf("partial cycles = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InstrumentErrors.WithLabelValues("EUR/USD")); got != 1 {
		t.Errorf("instrument errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ATRPercent.WithLabelValues("BTC/USD")); got != 1.7 {
		t.Errorf("atr percent gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.ADX.WithLabelValues("BTC/USD")); got != 31.5 {
		t.Errorf("adx gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.AlertsTotal.WithLabelValues("BTC/USD", "repeat")); got != 1 {
		t.Errorf("repeat alerts = %v", got)
	}
	if got := testutil.ToFloat64(m.AlertsSuppressed); got != 3 {
		t.Errorf("suppressed = %v", got)
	}
	if got := testutil.ToFloat64(m.OpenEpisodes); got != 1 {
		t.Errorf("open episodes = %v", got)
	}

	m.ObserveCycle(time.Second, snaps[1:], nil, 0, 0)
	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("all_failed")); got != 1 {
		t.Errorf("all_failed cycles = %v, want 1", got)
	}
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// two instances must not panic on duplicate registration
	NewMetrics(nil)
	NewMetrics(nil)
}

func TestHandler_Exposition(t *testing.T) {
	m := NewMetrics(nil)
	m.MarketState.Set(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "volsignal_market_state 1") {
		t.Errorf("exposition missing market state:\n%s", rec.Body.String())
	}
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus()
	h.SetCycle(time.Now(), 4, 0)

	if s, code := h.Status(); s != "healthy" || code != http.StatusOK {
		t.Errorf("status = %s/%d", s, code)
	}

	h.SetRedis(true, false)
	if s, _ := h.Status(); s != "degraded" {
		t.Errorf("redis down: status = %s", s)
	}

	h.SetCycle(time.Now(), 4, 4)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("all failed: code = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "unhealthy" || body["failed"] != float64(4) {
		t.Errorf("body = %v", body)
	}
}
