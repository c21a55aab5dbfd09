package model

import (
	"encoding/json"
	"time"
)

// Trend is the direction implied by the directional indicators.
type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
)

// IndicatorSnapshot is the computed output for one instrument in one cycle.
// Created fresh each cycle and never mutated once the cycle is published.
type IndicatorSnapshot struct {
	InstrumentID string    `json:"instrument_id"`
	DisplayName  string    `json:"display_name"`
	Category     Category  `json:"category"`
	Time         time.Time `json:"time"` // timestamp of the latest bar
	BarCount     int       `json:"bars"`

	Price      float64  `json:"price"`
	ATR        float64  `json:"atr"`
	ATRPercent float64  `json:"atr_percent"`
	ADX        *float64 `json:"adx,omitempty"`
	PlusDI     *float64 `json:"plus_di,omitempty"`
	MinusDI    *float64 `json:"minus_di,omitempty"`
	Trend      Trend    `json:"trend,omitempty"`

	Metric    Metric  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	InAlert   bool    `json:"in_alert"`
	// Level is the 1..10 display level of Value against Threshold, filled in
	// by the service. Alerting never reads it.
	Level int `json:"level,omitempty"`

	// Error is set when the series could not be obtained or the indicators
	// could not be computed; all numeric fields are then zero.
	Error string `json:"error,omitempty"`
}

// Failed reports whether this snapshot carries a per-instrument error.
func (s *IndicatorSnapshot) Failed() bool { return s.Error != "" }

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *IndicatorSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// CycleReport is the published summary of one refresh cycle.
type CycleReport struct {
	CycleID   string              `json:"cycle_id"`
	StartedAt time.Time           `json:"started_at"`
	Snapshots []IndicatorSnapshot `json:"snapshots"`
	Alerts    []AlertEvent        `json:"alerts,omitempty"`
	Failed    int                 `json:"failed"`
}

// JSON returns the JSON-encoded report.
func (r *CycleReport) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
