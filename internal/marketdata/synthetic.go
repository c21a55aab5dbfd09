package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"volsignal/internal/model"
)

// DefaultBasePrices are starting levels for the default instruments.
var DefaultBasePrices = map[string]float64{
	"BTC/USD": 67000,
	"XAU/USD": 2350,
	"EUR/USD": 1.08,
	"GBP/JPY": 190,
}

// SyntheticConfig holds configuration for the synthetic feed.
type SyntheticConfig struct {
	Seed     int64
	Interval time.Duration // bar spacing; defaults to 15m

	// Volatility is the per-bar standard deviation of returns, as a fraction.
	// Defaults to 0.004.
	Volatility float64

	BasePrices map[string]float64 // unknown ids start at 100
	Clock      func() time.Time
}

// Synthetic is a deterministic random-walk SeriesProvider for demos and tests.
// Every call rebuilds the walk from (Seed, instrument, latest bar slot), so the
// same slot always yields the same series. Volatility drifts through a slow
// regime cycle so thresholds are crossed now and then.
type Synthetic struct {
	cfg SyntheticConfig
}

// NewSynthetic creates a synthetic feed.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.004
	}
	if cfg.BasePrices == nil {
		cfg.BasePrices = DefaultBasePrices
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Synthetic{cfg: cfg}
}

// Series implements model.SeriesProvider.
func (s *Synthetic) Series(ctx context.Context, instrumentID string, lookback int) (model.Series, error) {
	if err := ctx.Err(); err != nil {
		return model.Series{}, err
	}
	if lookback < 1 {
		lookback = 1
	}

	latest := s.cfg.Clock().UTC().Truncate(s.cfg.Interval)
	slot := latest.Unix() / int64(s.cfg.Interval/time.Second)

	h := fnv.New64a()
	h.Write([]byte(instrumentID))
	rng := rand.New(rand.NewSource(s.cfg.Seed ^ int64(h.Sum64()) ^ slot))

	price, ok := s.cfg.BasePrices[instrumentID]
	if !ok {
		price = 100
	}

	// oldest first, then reversed by NewSeriesOldestFirst
	bars := make([]model.Bar, lookback)
	for i := range bars {
		k := slot - int64(lookback-1-i)
		regime := 1 + 0.8*math.Sin(float64(k)/24)
		sigma := s.cfg.Volatility * regime

		open := price
		closeP := open * math.Exp(rng.NormFloat64()*sigma)
		hi := math.Max(open, closeP) * (1 + math.Abs(rng.NormFloat64())*sigma/2)
		lo := math.Min(open, closeP) * (1 - math.Abs(rng.NormFloat64())*sigma/2)

		bars[i] = model.Bar{
			Time:  latest.Add(-time.Duration(lookback-1-i) * s.cfg.Interval),
			Open:  open,
			High:  hi,
			Low:   lo,
			Close: closeP,
		}
		price = closeP
	}
	return model.NewSeriesOldestFirst(instrumentID, bars)
}
