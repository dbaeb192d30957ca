// Package store persists decoded logs in SQLite so they can be queried
// without decoding the BLF again.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/canlog/internal/dbc"
	"github.com/banshee-data/canlog/internal/frames"
	"github.com/banshee-data/canlog/internal/monitoring"
	"github.com/banshee-data/canlog/internal/progress"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// it to the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection; a single connection keeps them applied
	// and keeps ":memory:" databases shared.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Import describes one stored log.
type Import struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
	FrameCount     int       `json:"frame_count"`
	SignalCount    int       `json:"signal_count"`
	FirstTimestamp float64   `json:"first_timestamp"`
	LastTimestamp  float64   `json:"last_timestamp"`
}

// Point is one stored signal value.
type Point struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// ImportLog decodes every CAN data frame in data and stores the frames and
// their signal values under a new import id, all in one transaction. The
// sink receives the cumulative frame count every interval frames.
func (db *DB) ImportLog(ctx context.Context, source string, data []byte, tables dbc.ChannelTables, sink progress.Sink, interval int) (Import, error) {
	imp := Import{
		ID:        uuid.New().String(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Import{}, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO imports (import_id, source, created_unix_ns) VALUES (?, ?, ?)`,
		imp.ID, imp.Source, imp.CreatedAt.UnixNano()); err != nil {
		return Import{}, fmt.Errorf("insert import: %w", err)
	}

	frameStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO frames (import_id, seq, timestamp, channel, can_id, name, dlc, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Import{}, fmt.Errorf("prepare frame insert: %w", err)
	}
	defer frameStmt.Close()

	valueStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO signal_values (import_id, seq, signal, value, unit) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return Import{}, fmt.Errorf("prepare value insert: %w", err)
	}
	defer valueStmt.Close()

	var reg frames.Registry
	err = frames.Walk(data, tables, func(rec frames.Record, names []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seq := imp.FrameCount
		if _, err := frameStmt.ExecContext(ctx, imp.ID, seq, rec.Timestamp, rec.Channel,
			int64(rec.ID), rec.Name, int(rec.DLC), []byte(rec.Data)); err != nil {
			return fmt.Errorf("insert frame %d: %w", seq, err)
		}
		for _, s := range rec.Signals {
			if _, err := valueStmt.ExecContext(ctx, imp.ID, seq, s.Signal, s.Value, s.Unit); err != nil {
				return fmt.Errorf("insert %s at frame %d: %w", s.Signal, seq, err)
			}
		}

		if imp.FrameCount == 0 {
			imp.FirstTimestamp = rec.Timestamp
		}
		imp.LastTimestamp = rec.Timestamp
		imp.FrameCount++
		reg.Add(names...)
		if progress.Every(imp.FrameCount, interval) {
			progress.Notify(sink, imp.FrameCount)
		}
		return nil
	})
	if err != nil {
		return Import{}, err
	}
	imp.SignalCount = reg.Len()

	if _, err := tx.ExecContext(ctx,
		`UPDATE imports SET frame_count = ?, signal_count = ?, first_timestamp = ?, last_timestamp = ? WHERE import_id = ?`,
		imp.FrameCount, imp.SignalCount, imp.FirstTimestamp, imp.LastTimestamp, imp.ID); err != nil {
		return Import{}, fmt.Errorf("update import totals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Import{}, fmt.Errorf("commit import: %w", err)
	}

	monitoring.Logf("store: imported %s as %s (%d frames, %d signals)", source, imp.ID, imp.FrameCount, imp.SignalCount)
	return imp, nil
}

// Imports lists stored logs, newest first.
func (db *DB) Imports() ([]Import, error) {
	rows, err := db.Query(`SELECT import_id, source, created_unix_ns, frame_count, signal_count,
			first_timestamp, last_timestamp FROM imports ORDER BY created_unix_ns DESC, import_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Import
	for rows.Next() {
		var (
			imp       Import
			createdNS int64
		)
		if err := rows.Scan(&imp.ID, &imp.Source, &createdNS, &imp.FrameCount, &imp.SignalCount,
			&imp.FirstTimestamp, &imp.LastTimestamp); err != nil {
			return nil, err
		}
		imp.CreatedAt = time.Unix(0, createdNS).UTC()
		out = append(out, imp)
	}
	return out, rows.Err()
}

// Signals returns the distinct signal names stored for an import, sorted.
func (db *DB) Signals(importID string) ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT signal FROM signal_values WHERE import_id = ? ORDER BY signal`, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// SignalSeries returns every stored value of signal for an import in log
// order.
func (db *DB) SignalSeries(importID, signal string) ([]Point, error) {
	rows, err := db.Query(`SELECT f.timestamp, v.value
		FROM signal_values v
		JOIN frames f ON f.import_id = v.import_id AND f.seq = v.seq
		WHERE v.import_id = ? AND v.signal = ?
		ORDER BY v.seq`, importID, signal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteImport removes an import with its frames and values.
func (db *DB) DeleteImport(importID string) error {
	res, err := db.Exec(`DELETE FROM imports WHERE import_id = ?`, importID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("import %s not found: %w", importID, sql.ErrNoRows)
	}
	return nil
}
