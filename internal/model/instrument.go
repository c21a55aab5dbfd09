package model

import (
	"fmt"
	"strings"
)

// Category groups instruments by asset class.
type Category string

const (
	CategoryCrypto Category = "crypto"
	CategoryMetal  Category = "metal"
	CategoryForex  Category = "forex"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCrypto, CategoryMetal, CategoryForex:
		return true
	}
	return false
}

// Metric names the indicator value compared against an instrument's threshold.
type Metric string

const (
	MetricATRPercent Metric = "atr_percent"
	MetricATR        Metric = "atr"
	MetricADX        Metric = "adx"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricATRPercent, MetricATR, MetricADX:
		return true
	}
	return false
}

// DefaultPeriod is the smoothing period used when an instrument leaves it unset.
const DefaultPeriod = 14

// InstrumentConfig is the per-instrument user configuration. Read-only to the engine.
type InstrumentConfig struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Category    Category `json:"category" yaml:"category"`
	Threshold   float64  `json:"threshold" yaml:"threshold"`
	Period      int      `json:"period" yaml:"period"`
	Metric      Metric   `json:"metric,omitempty" yaml:"metric,omitempty"`

	// AlwaysOpen exempts the instrument from market-hours gating (24/7 crypto).
	AlwaysOpen bool `json:"always_open,omitempty" yaml:"always_open,omitempty"`
}

// WithDefaults fills in the period, metric, and display name when unset.
func (c InstrumentConfig) WithDefaults() InstrumentConfig {
	if c.Period == 0 {
		c.Period = DefaultPeriod
	}
	if c.Metric == "" {
		c.Metric = MetricATRPercent
	}
	if c.DisplayName == "" {
		c.DisplayName = c.ID
	}
	return c
}

// Validate checks a config after defaults are applied.
func (c InstrumentConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("instrument: empty id")
	}
	if !c.Category.Valid() {
		return fmt.Errorf("instrument %s: unknown category %q", c.ID, c.Category)
	}
	if c.Period < 1 {
		return fmt.Errorf("instrument %s: %w: %d", c.ID, ErrInvalidPeriod, c.Period)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("instrument %s: threshold must be positive, got %v", c.ID, c.Threshold)
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("instrument %s: unknown metric %q", c.ID, c.Metric)
	}
	return nil
}
