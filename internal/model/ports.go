package model

import "context"

// ── Collaborator Port Interfaces ──
// These decouple the engine from concrete market-data and persistence
// implementations (Twelve Data, synthetic feed, Redis, SQLite).

// SeriesProvider supplies a validated bar series for one instrument.
// Implementations must honour ctx cancellation; the engine bounds every call
// with a timeout and abandons calls that overrun it.
type SeriesProvider interface {
	Series(ctx context.Context, instrumentID string, lookback int) (Series, error)
}

// SeriesProviderFunc adapts a function to SeriesProvider.
type SeriesProviderFunc func(ctx context.Context, instrumentID string, lookback int) (Series, error)

// Series calls f.
func (f SeriesProviderFunc) Series(ctx context.Context, instrumentID string, lookback int) (Series, error) {
	return f(ctx, instrumentID, lookback)
}

// AlertRecorder persists emitted alerts for history and auditing.
type AlertRecorder interface {
	RecordAlerts(ctx context.Context, alerts []AlertEvent) error
}

// SnapshotRecorder persists per-cycle snapshots.
type SnapshotRecorder interface {
	RecordSnapshots(ctx context.Context, cycleID string, snapshots []IndicatorSnapshot) error
}
