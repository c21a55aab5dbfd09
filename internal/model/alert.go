package model

import (
	"encoding/json"
	"time"
)

// AlertEvent is emitted when an instrument enters an alert episode, or when
// an open episode outlives the notification cooldown.
type AlertEvent struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id"`
	DisplayName  string    `json:"display_name"`
	MetricName   Metric    `json:"metric"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Timestamp    time.Time `json:"ts"`

	// Repeat is true for a re-notification of an already-open episode.
	Repeat bool `json:"repeat"`
	// Held is true when the event was recorded but not delivered, e.g.
	// outside market hours.
	Held bool `json:"held,omitempty"`
	// EpisodeSince is when the current episode opened.
	EpisodeSince time.Time `json:"episode_since"`

	// Context for message formatting.
	Price      float64 `json:"price"`
	ATR        float64 `json:"atr"`
	ATRPercent float64 `json:"atr_percent"`
	Trend      Trend   `json:"trend,omitempty"`
}

// JSON returns the JSON-encoded event.
func (a *AlertEvent) JSON() []byte {
	b, _ := json.Marshal(a)
	return b
}
