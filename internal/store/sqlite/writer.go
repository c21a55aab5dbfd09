// Package sqlite keeps a local journal of emitted alerts and per-cycle
// snapshots for history endpoints and auditing.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"volsignal/internal/model"
)

const defaultKeepCycles = 500

// Config configures the journal.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/volsignal.db"

	// KeepCycles bounds how many cycles of snapshots are retained.
	// Alerts are never pruned. Defaults to 500.
	KeepCycles int
}

// Journal is a WAL-mode SQLite store. It implements model.AlertRecorder and
// model.SnapshotRecorder. Writes go through a single connection.
type Journal struct {
	db         *sql.DB
	keepCycles int
	log        *slog.Logger
}

var (
	_ model.AlertRecorder    = (*Journal)(nil)
	_ model.SnapshotRecorder = (*Journal)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Open opens (creating if needed) the database, enables WAL and applies the schema.
func Open(cfg Config) (*Journal, error) {
	if cfg.KeepCycles <= 0 {
		cfg.KeepCycles = defaultKeepCycles
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	l := slog.Default().With(slog.String("component", "sqlite"))
	l.Info("journal opened", slog.String("path", cfg.DBPath))
	return &Journal{db: db, keepCycles: cfg.KeepCycles, log: l}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id            TEXT    PRIMARY KEY,
			instrument    TEXT    NOT NULL,
			display_name  TEXT    NOT NULL,
			metric        TEXT    NOT NULL,
			value         REAL    NOT NULL,
			threshold     REAL    NOT NULL,
			ts            INTEGER NOT NULL,
			repeat        INTEGER NOT NULL,
			episode_since INTEGER NOT NULL,
			price         REAL,
			atr           REAL,
			atr_percent   REAL,
			trend         TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts (ts DESC);
		CREATE INDEX IF NOT EXISTS idx_alerts_instrument ON alerts (instrument, ts DESC);

		CREATE TABLE IF NOT EXISTS cycles (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id   TEXT    NOT NULL,
			started_at INTEGER NOT NULL,
			failed     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			cycle_seq  INTEGER NOT NULL REFERENCES cycles(seq) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			instrument TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			PRIMARY KEY (cycle_seq, position)
		);
	`)
	return err
}

// RecordAlerts inserts alerts in one transaction. Re-recording an alert id is a no-op.
func (j *Journal) RecordAlerts(ctx context.Context, alerts []model.AlertEvent) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO alerts
			(id, instrument, display_name, metric, value, threshold, ts, repeat, episode_since, price, atr, atr_percent, trend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare alerts: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		_, err := stmt.ExecContext(ctx, a.ID, a.InstrumentID, a.DisplayName, string(a.MetricName),
			a.Value, a.Threshold, a.Timestamp.UnixMilli(), boolInt(a.Repeat), a.EpisodeSince.UnixMilli(),
			a.Price, a.ATR, a.ATRPercent, string(a.Trend))
		if err != nil {
			return fmt.Errorf("sqlite insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// RecordSnapshots stores one cycle's snapshots in one transaction and prunes
// cycles beyond the retention limit.
func (j *Journal) RecordSnapshots(ctx context.Context, cycleID string, snaps []model.IndicatorSnapshot) error {
	start := time.Now()
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	failed := 0
	for i := range snaps {
		if snaps[i].Failed() {
			failed++
		}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO cycles (cycle_id, started_at, failed) VALUES (?, ?, ?)`,
		cycleID, time.Now().UnixMilli(), failed)
	if err != nil {
		return fmt.Errorf("sqlite insert cycle %s: %w", cycleID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshots (cycle_seq, position, instrument, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite prepare snapshots: %w", err)
	}
	defer stmt.Close()

	for i := range snaps {
		data, err := json.Marshal(&snaps[i])
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, seq, i, snaps[i].InstrumentID, string(data)); err != nil {
			return fmt.Errorf("sqlite insert snapshot: %w", err)
		}
	}

	// keep the newest keepCycles cycles
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE cycle_seq <= ?`, seq-int64(j.keepCycles)); err != nil {
		return fmt.Errorf("sqlite prune snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cycles WHERE seq <= ?`, seq-int64(j.keepCycles)); err != nil {
		return fmt.Errorf("sqlite prune cycles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	j.log.Debug("cycle committed",
		slog.String("cycle_id", cycleID),
		slog.Int("snapshots", len(snaps)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
