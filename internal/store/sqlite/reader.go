package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"volsignal/internal/model"
)

// AlertFilter narrows RecentAlerts.
type AlertFilter struct {
	InstrumentID string // empty for all
	Limit        int    // defaults to 50
}

// RecentAlerts returns alerts newest first.
func (j *Journal) RecentAlerts(ctx context.Context, f AlertFilter) ([]model.AlertEvent, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	q := `SELECT id, instrument, display_name, metric, value, threshold, ts, repeat, episode_since,
			price, atr, atr_percent, trend
		FROM alerts`
	args := []any{}
	if f.InstrumentID != "" {
		q += ` WHERE instrument = ?`
		args = append(args, f.InstrumentID)
	}
	q += ` ORDER BY ts DESC, rowid DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.AlertEvent
	for rows.Next() {
		var (
			a             model.AlertEvent
			metric, trend string
			ts, since     int64
			repeat        int
			price, atr    sql.NullFloat64
			atrPct        sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.InstrumentID, &a.DisplayName, &metric, &a.Value, &a.Threshold,
			&ts, &repeat, &since, &price, &atr, &atrPct, &trend); err != nil {
			return nil, fmt.Errorf("sqlite scan alert: %w", err)
		}
		a.MetricName = model.Metric(metric)
		a.Trend = model.Trend(trend)
		a.Timestamp = time.UnixMilli(ts).UTC()
		a.EpisodeSince = time.UnixMilli(since).UTC()
		a.Repeat = repeat != 0
		a.Price, a.ATR, a.ATRPercent = price.Float64, atr.Float64, atrPct.Float64
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestSnapshots returns the snapshots of the most recent recorded cycle in
// their original order, with that cycle's id. It returns an empty id when no
// cycle was recorded yet.
func (j *Journal) LatestSnapshots(ctx context.Context) (string, []model.IndicatorSnapshot, error) {
	var (
		seq     int64
		cycleID string
	)
	err := j.db.QueryRowContext(ctx, `SELECT seq, cycle_id FROM cycles ORDER BY seq DESC LIMIT 1`).Scan(&seq, &cycleID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("sqlite latest cycle: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, `SELECT data FROM snapshots WHERE cycle_seq = ? ORDER BY position`, seq)
	if err != nil {
		return "", nil, fmt.Errorf("sqlite query snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.IndicatorSnapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return "", nil, fmt.Errorf("sqlite scan snapshot: %w", err)
		}
		var s model.IndicatorSnapshot
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return "", nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, s)
	}
	return cycleID, out, rows.Err()
}

// CycleCount returns the number of retained cycles.
func (j *Journal) CycleCount(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycles`).Scan(&n)
	return n, err
}
