package service

import (
	"context"
	"log/slog"

	"volsignal/config"
	"volsignal/internal/logger"
	"volsignal/internal/model"
	"volsignal/internal/notification"
	"volsignal/internal/signal"
)

// RunCycle runs one refresh cycle and fans its result out to notifiers,
// stores, the WebSocket hub and metrics. Calls are serialized.
func (svc *Service) RunCycle(ctx context.Context) signal.CycleResult {
	svc.cycleMu.Lock()
	defer svc.cycleMu.Unlock()

	instruments := svc.Instruments()
	cycleCtx := logger.WithCycleID(ctx, logger.GenerateCycleID(svc.now()))
	if svc.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(cycleCtx, svc.cfg.CycleTimeout)
		defer cancel()
	}

	res := svc.engine.RunCycle(cycleCtx, instruments, svc.provider)
	if err := res.Err(); err != nil {
		svc.log.Error("cycle failed for every instrument",
			append(logger.LogWithCycle(cycleCtx), slog.String("error", err.Error()))...)
	}

	dedup := svc.engine.Dedup()
	svc.prom.ObserveCycle(res.Duration, res.Snapshots, res.Alerts, res.Suppressed, dedup.OpenCount())
	svc.health.SetCycle(res.StartedAt, len(res.Snapshots), res.Failed())
	open := svc.session.IsOpen(res.StartedAt)
	svc.health.SetMarketOpen(open)
	if open {
		svc.prom.MarketState.Set(1)
	} else {
		svc.prom.MarketState.Set(0)
	}

	for i := range res.Snapshots {
		if snap := &res.Snapshots[i]; !snap.Failed() {
			snap.Level = svc.scale.Level(snap.Value, snap.Threshold)
		}
	}

	report := model.CycleReport{
		CycleID:   res.ID,
		StartedAt: res.StartedAt,
		Snapshots: res.Snapshots,
		Alerts:    res.Alerts,
		Failed:    res.Failed(),
	}
	svc.mu.Lock()
	svc.last = &report
	svc.mu.Unlock()

	// Fan-out uses the parent context: a cycle that used its whole budget
	// still gets delivered and persisted.
	svc.dispatch(ctx, res)
	svc.persist(ctx, report)
	return res
}

// dispatch sends notifications for the cycle's alerts. Held alerts, raised
// while the market was closed for their instrument, are only recorded.
func (svc *Service) dispatch(ctx context.Context, res signal.CycleResult) {
	if len(res.Alerts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	for _, ev := range res.Alerts {
		if ev.Held {
			svc.log.Info("market closed, notification held back",
				slog.String("cycle_id", res.ID),
				slog.String("instrument", ev.InstrumentID),
				slog.String("market", svc.session.StatusString(res.StartedAt)))
			continue
		}
		// per-channel failures are counted and logged by OnError
		_ = svc.notifier.Send(ctx, notification.FromEvent(ev, svc.scale))
	}
}

// persist saves episode state, journals the cycle and publishes it. A store
// failure never fails the cycle.
func (svc *Service) persist(ctx context.Context, report model.CycleReport) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if svc.journal != nil {
		if err := svc.journal.RecordAlerts(ctx, report.Alerts); err != nil {
			svc.log.Warn("journal alerts", slog.String("error", err.Error()))
		}
		if err := svc.journal.RecordSnapshots(ctx, report.CycleID, report.Snapshots); err != nil {
			svc.log.Warn("journal snapshots", slog.String("error", err.Error()))
		}
	}

	svc.saveEpisodes(ctx)

	// While the hub follows the published channel every process following it
	// sees the same stream. Otherwise, or when publishing fails, the hub is
	// fed directly.
	published := false
	if svc.publisher != nil {
		err := svc.publisher.PublishCycle(ctx, report)
		if err != nil {
			svc.log.Warn("publish cycle", slog.String("error", err.Error()))
		}
		published = err == nil
	}
	if !published || !svc.following.Load() {
		svc.hub.PublishCycle(report)
	}
}

func (svc *Service) saveEpisodes(ctx context.Context) {
	if svc.state == nil {
		return
	}
	if err := svc.state.Save(ctx, svc.engine.Dedup().Episodes()); err != nil {
		svc.log.Warn("save episodes", slog.String("error", err.Error()))
	}
}

// restoreEpisodes loads persisted dedup state so a restart inside an open
// episode does not re-alert. Episodes of instruments no longer configured are dropped.
func (svc *Service) restoreEpisodes(ctx context.Context) {
	if svc.state == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	eps, err := svc.state.Load(ctx)
	if err != nil {
		svc.log.Warn("load episodes", slog.String("error", err.Error()))
		return
	}
	dedup := svc.engine.Dedup()
	dedup.Restore(eps)
	dedup.Prune(instrumentSet(svc.Instruments()))
	svc.log.Info("episodes restored", slog.Int("open", dedup.OpenCount()))
}

// Reload re-reads the instrument file. Open episodes of removed instruments
// are forgotten; the rest keep their state. It waits for a running cycle.
func (svc *Service) Reload() ([]model.InstrumentConfig, error) {
	instruments, err := config.LoadInstruments(svc.cfg.InstrumentsFile, svc.cfg.DefaultThreshold)
	if err != nil {
		return nil, err
	}
	svc.cycleMu.Lock()
	defer svc.cycleMu.Unlock()

	svc.mu.Lock()
	svc.instruments = instruments
	svc.mu.Unlock()

	svc.engine.Dedup().Prune(instrumentSet(instruments))
	svc.log.Info("instruments reloaded", slog.Int("instruments", len(instruments)))
	return instruments, nil
}

func instrumentSet(instruments []model.InstrumentConfig) map[string]struct{} {
	keep := make(map[string]struct{}, len(instruments))
	for _, c := range instruments {
		keep[c.ID] = struct{}{}
	}
	return keep
}
