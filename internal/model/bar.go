package model

import (
	"fmt"
	"math"
	"time"
)

// Bar is a single OHLC price bar. Produced by a market-data source and
// never mutated by the engine.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Validate checks the OHLC invariant: high ≥ max(open, close),
// low ≤ min(open, close), high ≥ low, and all prices finite.
func (b Bar) Validate() error {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite price at %s", ErrInvalidSeries, b.Time.Format(time.RFC3339))
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %.6f below low %.6f at %s", ErrInvalidSeries, b.High, b.Low, b.Time.Format(time.RFC3339))
	}
	if b.High < math.Max(b.Open, b.Close) {
		return fmt.Errorf("%w: high %.6f below body at %s", ErrInvalidSeries, b.High, b.Time.Format(time.RFC3339))
	}
	if b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("%w: low %.6f above body at %s", ErrInvalidSeries, b.Low, b.Time.Format(time.RFC3339))
	}
	return nil
}

// Series is an immutable, validated sequence of bars for one instrument.
//
// Ordering is newest-first: At(0) is the most recent bar and At(Len()-1)
// the oldest. Timestamps strictly decrease with the index.
type Series struct {
	instrumentID string
	bars         []Bar
}

// NewSeries validates newest-first bars and returns a Series holding its own copy.
func NewSeries(instrumentID string, bars []Bar) (Series, error) {
	if len(bars) == 0 {
		return Series{}, fmt.Errorf("%w: %s: no bars", ErrInvalidSeries, instrumentID)
	}
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return Series{}, fmt.Errorf("%s: bar %d: %w", instrumentID, i, err)
		}
		if i > 0 && !bars[i-1].Time.After(b.Time) {
			return Series{}, fmt.Errorf("%w: %s: bar %d (%s) not older than bar %d (%s)",
				ErrInvalidSeries, instrumentID,
				i, b.Time.Format(time.RFC3339), i-1, bars[i-1].Time.Format(time.RFC3339))
		}
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return Series{instrumentID: instrumentID, bars: cp}, nil
}

// NewSeriesOldestFirst accepts chronological bars (oldest at index 0),
// reverses them, and validates as NewSeries does.
func NewSeriesOldestFirst(instrumentID string, bars []Bar) (Series, error) {
	rev := make([]Bar, len(bars))
	for i, b := range bars {
		rev[len(bars)-1-i] = b
	}
	return NewSeries(instrumentID, rev)
}

// InstrumentID returns the instrument this series belongs to.
func (s Series) InstrumentID() string { return s.instrumentID }

// Len returns the number of bars.
func (s Series) Len() int { return len(s.bars) }

// At returns the i-th bar, newest-first.
func (s Series) At(i int) Bar { return s.bars[i] }

// Latest returns the most recent bar. Panics on an empty Series.
func (s Series) Latest() Bar { return s.bars[0] }

// Oldest returns the oldest bar. Panics on an empty Series.
func (s Series) Oldest() Bar { return s.bars[len(s.bars)-1] }

// Bars returns a copy of the bars, newest-first.
func (s Series) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}
