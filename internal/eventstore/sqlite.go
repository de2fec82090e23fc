package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is the append-only run event log backed by SQLite.
type Journal struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens a journal at dbPath. Use ":memory:" for tests.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_run_id ON run_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_event_type ON run_events(event_type);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append records one event. payload is marshalled to JSON; a nil payload is
// stored as NULL.
func (j *Journal) Append(ctx context.Context, runID, stage, eventType string, payload any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO run_events (run_id, stage, event_type, timestamp, payload) VALUES (?, ?, ?, ?, ?)",
		runID, stage, eventType, time.Now().Unix(), data,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ByRun retrieves all events for one run in append order.
func (j *Journal) ByRun(ctx context.Context, runID string) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, run_id, stage, event_type, timestamp, payload FROM run_events WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LastRunID returns the run_id of the most recently appended event, or empty
// when the journal has no entries.
func (j *Journal) LastRunID(ctx context.Context) (string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var runID string
	err := j.db.QueryRowContext(ctx,
		"SELECT run_id FROM run_events ORDER BY id DESC LIMIT 1",
	).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last run: %w", err)
	}
	return runID, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Type, &ts, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
