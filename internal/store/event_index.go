package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// EventIndex is a rebuildable SQLite view over the append-only event log.
// The NDJSON log stays the durable source of truth; the index only exists so
// reporting can aggregate by type and time range without scanning the log.
type EventIndex struct {
	db *sql.DB
}

const eventIndexSchema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	message    TEXT NOT NULL,
	gene_id    TEXT,
	cycle_id   TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
`

// OpenEventIndex opens (creating if needed) the index database.
func OpenEventIndex(path string) (*EventIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open event index: %w", err)
	}
	if _, err := db.Exec(eventIndexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init event index schema: %w", err)
	}
	return &EventIndex{db: db}, nil
}

// Close releases the underlying database handle.
func (ix *EventIndex) Close() error {
	return ix.db.Close()
}

// Rebuild replaces the index contents with the given events.
func (ix *EventIndex) Rebuild(ctx context.Context, events []Event) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin index rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("store: clear event index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, type, message, gene_id, cycle_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare index insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.ID, string(e.Type), e.Message, e.GeneID, e.CycleID, e.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("store: index event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// CountsByType returns how many events of each type the index holds.
func (ix *EventIndex) CountsByType(ctx context.Context) (map[EventType]int, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("store: count events by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[EventType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("store: scan event count: %w", err)
		}
		counts[EventType(typ)] = n
	}
	return counts, rows.Err()
}

// CountSince returns how many events of the given type were created at or
// after the cutoff.
func (ix *EventIndex) CountSince(ctx context.Context, typ EventType, cutoff time.Time) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE type = ? AND created_at >= ?`,
		string(typ), cutoff.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count %s events: %w", typ, err)
	}
	return n, nil
}
