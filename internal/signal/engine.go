// Package signal runs refresh cycles: it fetches a bar series for every
// configured instrument, computes ATR and ADX, evaluates thresholds and
// feeds the result through the alert deduplicator.
//
// The engine performs no I/O of its own. Series come from a
// model.SeriesProvider, and results are returned to the caller for
// display, dispatch and persistence.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"volsignal/internal/alert"
	"volsignal/internal/indicator"
	"volsignal/internal/logger"
	"volsignal/internal/model"
	"volsignal/internal/threshold"
)

const (
	DefaultWorkers      = 4
	DefaultFetchTimeout = 10 * time.Second
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	ATRMethod    indicator.ATRMethod
	ADXMethod    indicator.ADXMethod
	Cooldown     time.Duration
	ExitRatio    float64       // hysteresis; 0 disables
	Workers      int           // concurrent series fetches
	FetchTimeout time.Duration // per-instrument bound on the provider call
	Lookback     int           // bars requested; raised to what the period needs

	// Deliverable reports whether an alert for cfg at the given time would be
	// sent. Alerts that would not are emitted as held and do not count as
	// notified. Nil delivers everything.
	Deliverable func(cfg model.InstrumentConfig, at time.Time) bool

	Clock  func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// Engine is the per-process orchestrator. It owns the Deduplicator; all other
// state lives for a single cycle only. RunCycle may be called concurrently,
// though callers normally serialize cycles.
type Engine struct {
	opts  Options
	eval  threshold.Evaluator
	dedup *alert.Deduplicator
	log   *slog.Logger
}

// New validates opts and creates an Engine.
func New(opts Options) (*Engine, error) {
	atr, err := indicator.ParseATRMethod(string(opts.ATRMethod))
	if err != nil {
		return nil, err
	}
	adx, err := indicator.ParseADXMethod(string(opts.ADXMethod))
	if err != nil {
		return nil, err
	}
	eval, err := threshold.NewEvaluator(opts.ExitRatio)
	if err != nil {
		return nil, err
	}
	opts.ATRMethod, opts.ADXMethod = atr, adx

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Deliverable == nil {
		opts.Deliverable = func(model.InstrumentConfig, time.Time) bool { return true }
	}

	return &Engine{
		opts:  opts,
		eval:  eval,
		dedup: alert.NewDeduplicator(opts.Cooldown),
		log:   opts.Logger.With(slog.String("component", "signal")),
	}, nil
}

// Dedup exposes the episode state for persistence collaborators.
func (e *Engine) Dedup() *alert.Deduplicator { return e.dedup }

// Options returns the effective options after defaults were applied.
func (e *Engine) Options() Options { return e.opts }

// CycleResult is everything one cycle produced. Snapshots are in config order,
// one per configured instrument, including failed ones.
type CycleResult struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Snapshots  []model.IndicatorSnapshot
	Alerts     []model.AlertEvent
	Suppressed int // open episodes that stayed quiet because of the cooldown or a hold
}

// Failed counts instruments whose snapshot carries an error.
func (r *CycleResult) Failed() int {
	n := 0
	for i := range r.Snapshots {
		if r.Snapshots[i].Failed() {
			n++
		}
	}
	return n
}

// AllFailed reports whether at least one instrument was configured and
// every one of them failed.
func (r *CycleResult) AllFailed() bool {
	return len(r.Snapshots) > 0 && r.Failed() == len(r.Snapshots)
}

// Err returns a cycle-wide error wrapping model.ErrAllSourcesFailed when every
// instrument failed, and nil otherwise.
func (r *CycleResult) Err() error {
	if !r.AllFailed() {
		return nil
	}
	return fmt.Errorf("%w: %d instruments, first: %s",
		model.ErrAllSourcesFailed, len(r.Snapshots), r.Snapshots[0].Error)
}

// fetched is the outcome of the parallel stage for one instrument.
type fetched struct {
	snap model.IndicatorSnapshot
	err  error
}

// RunCycle computes one refresh cycle. It never fails as a whole: per-instrument
// errors are recorded on that instrument's snapshot and contribute no alert or
// dedup change. Cancelling ctx abandons in-flight fetches; their instruments are
// reported as unavailable.
func (e *Engine) RunCycle(ctx context.Context, configs []model.InstrumentConfig, provider model.SeriesProvider) CycleResult {
	now := e.opts.Clock()
	id := logger.CycleID(ctx)
	if id == "" {
		id = logger.GenerateCycleID(now)
		ctx = logger.WithCycleID(ctx, id)
	}

	cfgs := make([]model.InstrumentConfig, len(configs))
	results := make([]fetched, len(configs))
	seen := make(map[string]struct{}, len(configs))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, raw := range configs {
		cfg := raw.WithDefaults()
		cfgs[i] = cfg
		if err := cfg.Validate(); err != nil {
			results[i].err = err
			continue
		}
		if _, dup := seen[cfg.ID]; dup {
			results[i].err = fmt.Errorf("duplicate instrument %q", cfg.ID)
			continue
		}
		seen[cfg.ID] = struct{}{}

		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].err = fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, cfg.ID, err)
				return nil
			}
			series, err := e.fetch(ctx, provider, cfg)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].snap, results[i].err = e.compute(cfg, series)
			return nil
		})
	}
	_ = g.Wait()

	res := CycleResult{
		ID:        id,
		StartedAt: now,
		Snapshots: make([]model.IndicatorSnapshot, len(cfgs)),
	}
	for i, cfg := range cfgs {
		if err := results[i].err; err != nil {
			res.Snapshots[i] = failedSnapshot(cfg, err)
			e.log.Warn("instrument failed",
				append(logger.LogWithCycle(ctx),
					slog.String("instrument", cfg.ID),
					slog.String("error", err.Error()))...)
			continue
		}

		snap := results[i].snap
		decision := e.eval.Evaluate(snap.Value, snap.Threshold, e.dedup.InEpisode(cfg.ID))
		snap.InAlert = decision.InAlert
		res.Snapshots[i] = snap

		out := e.dedup.Observe(cfg.ID, decision.InAlert, e.opts.Deliverable(cfg, now), now)
		switch {
		case out.Notify:
			res.Alerts = append(res.Alerts, e.event(snap, out, now))
		case decision.InAlert:
			res.Suppressed++
		}
	}
	res.Duration = e.opts.Clock().Sub(now)

	e.log.Info("cycle complete",
		append(logger.LogWithCycle(ctx),
			slog.Int("instruments", len(cfgs)),
			slog.Int("failed", res.Failed()),
			slog.Int("alerts", len(res.Alerts)),
			slog.Int("suppressed", res.Suppressed),
			slog.Duration("duration", res.Duration))...)
	return res
}

// lookback is the number of bars requested for cfg.
func (e *Engine) lookback(cfg model.InstrumentConfig) int {
	need := indicator.MinBars(cfg.Period, e.opts.ADXMethod)
	if need < cfg.Period+1 {
		need = cfg.Period + 1
	}
	if e.opts.Lookback > need {
		return e.opts.Lookback
	}
	return need
}

type seriesResult struct {
	series model.Series
	err    error
}

// fetch calls the provider bounded by FetchTimeout. A provider that does not
// return once its context is done is abandoned; its goroutine finishes into a
// buffered channel nobody reads.
func (e *Engine) fetch(ctx context.Context, provider model.SeriesProvider, cfg model.InstrumentConfig) (model.Series, error) {
	fctx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()

	ch := make(chan seriesResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- seriesResult{err: fmt.Errorf("%w: %s: provider panic: %v", model.ErrSourceUnavailable, cfg.ID, r)}
			}
		}()
		s, err := provider.Series(fctx, cfg.ID, e.lookback(cfg))
		ch <- seriesResult{series: s, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, model.ErrSourceUnavailable) || errors.Is(r.err, model.ErrInvalidSeries) {
				return model.Series{}, r.err
			}
			return model.Series{}, fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, cfg.ID, r.err)
		}
		if r.series.Len() == 0 {
			return model.Series{}, fmt.Errorf("%w: %s: empty series", model.ErrInvalidSeries, cfg.ID)
		}
		return r.series, nil
	case <-fctx.Done():
		return model.Series{}, fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, cfg.ID, fctx.Err())
	}
}

// compute builds the snapshot for one healthy series. Alert state is filled in
// later by the sequential stage.
func (e *Engine) compute(cfg model.InstrumentConfig, s model.Series) (model.IndicatorSnapshot, error) {
	latest := s.Latest()
	snap := model.IndicatorSnapshot{
		InstrumentID: cfg.ID,
		DisplayName:  cfg.DisplayName,
		Category:     cfg.Category,
		Time:         latest.Time,
		BarCount:     s.Len(),
		Price:        latest.Close,
		Metric:       cfg.Metric,
		Threshold:    cfg.Threshold,
	}

	atr, err := indicator.AverageTrueRange(s, cfg.Period, e.opts.ATRMethod)
	if err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("%s: atr: %w", cfg.ID, err)
	}
	pct, err := indicator.ATRPercent(atr, latest.Close)
	if err != nil {
		return model.IndicatorSnapshot{}, fmt.Errorf("%s: atr percent: %w", cfg.ID, err)
	}
	snap.ATR, snap.ATRPercent = atr, pct

	dir, adxErr := indicator.AverageDirectionalIndex(s, cfg.Period, e.opts.ADXMethod)
	if adxErr == nil {
		snap.ADX, snap.PlusDI, snap.MinusDI = &dir.ADX, &dir.PlusDI, &dir.MinusDI
		snap.Trend = dir.Trend()
	}

	switch cfg.Metric {
	case model.MetricATR:
		snap.Value = atr
	case model.MetricADX:
		if adxErr != nil {
			return model.IndicatorSnapshot{}, fmt.Errorf("%s: adx: %w", cfg.ID, adxErr)
		}
		snap.Value = dir.ADX
	default:
		snap.Value = pct
	}
	return snap, nil
}

func (e *Engine) event(snap model.IndicatorSnapshot, out alert.Outcome, now time.Time) model.AlertEvent {
	return model.AlertEvent{
		ID:           e.opts.NewID(),
		InstrumentID: snap.InstrumentID,
		DisplayName:  snap.DisplayName,
		MetricName:   snap.Metric,
		Value:        snap.Value,
		Threshold:    snap.Threshold,
		Timestamp:    now,
		Repeat:       out.Repeat,
		Held:         out.Held,
		EpisodeSince: out.Since,
		Price:        snap.Price,
		ATR:          snap.ATR,
		ATRPercent:   snap.ATRPercent,
		Trend:        snap.Trend,
	}
}

func failedSnapshot(cfg model.InstrumentConfig, err error) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		InstrumentID: cfg.ID,
		DisplayName:  cfg.DisplayName,
		Category:     cfg.Category,
		Metric:       cfg.Metric,
		Threshold:    cfg.Threshold,
		Error:        err.Error(),
	}
}
