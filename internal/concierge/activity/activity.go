// Package activity persists one observability record per routed turn: what
// the guest was classified as asking, which tier answered, and whether the
// turn escalated. The dashboard and weekly reports read from this table; the
// router writes to it best-effort.
package activity

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Event is one routed turn's observability record. Sender is stored already
// redacted; the full number never reaches the database.
type Event struct {
	ID         string
	TraceID    string
	Timestamp  time.Time
	Sender     string
	Intent     string
	Confidence float64
	Source     string
	// Escalation is the escalation reason, empty when the turn did not
	// escalate.
	Escalation string
	// Outcome is the terminal result of the turn: "reply", "escalated" or
	// "rate_limited".
	Outcome   string
	LatencyMS int64
}

// Log wraps the SQLite connection holding the activity table.
type Log struct {
	db *sql.DB
}

// Open creates a Log backed by the database at dbPath and runs migrations.
func Open(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("activity: open database: %w", err)
	}

	// SQLite is single-writer by design. Keep a single shared connection so
	// concurrent callers are serialized by database/sql instead of fighting
	// for write locks across multiple underlying connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("activity: set pragma: %w", err)
		}
	}

	l := &Log{db: db}
	if err := l.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("activity: run migrations: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record inserts evt. A zero ID or Timestamp is filled in.
func (l *Log) Record(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, ts, trace_id, sender, intent, confidence, source, escalation, outcome, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.ID, evt.Timestamp, evt.TraceID, evt.Sender, evt.Intent, evt.Confidence,
		evt.Source, evt.Escalation, evt.Outcome, evt.LatencyMS)
	if err != nil {
		return fmt.Errorf("activity: insert event: %w", err)
	}
	return nil
}

// Recent returns the most recent events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, sender, intent, confidence, source, escalation, outcome, latency_ms
		FROM activity_log
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.Timestamp, &evt.TraceID, &evt.Sender,
			&evt.Intent, &evt.Confidence, &evt.Source, &evt.Escalation, &evt.Outcome, &evt.LatencyMS); err != nil {
			return nil, fmt.Errorf("activity: scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity: iterate events: %w", err)
	}
	return events, nil
}

// EscalationsSince returns events with a non-empty escalation reason recorded
// at or after since, oldest first. Staff use this for the morning handover.
func (l *Log) EscalationsSince(ctx context.Context, since time.Time) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, sender, intent, confidence, source, escalation, outcome, latency_ms
		FROM activity_log
		WHERE escalation != '' AND ts >= ?
		ORDER BY ts ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("activity: query escalations: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.Timestamp, &evt.TraceID, &evt.Sender,
			&evt.Intent, &evt.Confidence, &evt.Source, &evt.Escalation, &evt.Outcome, &evt.LatencyMS); err != nil {
			return nil, fmt.Errorf("activity: scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity: iterate escalations: %w", err)
	}
	return events, nil
}

// runMigrations applies every pending migrations/*.sql file in filename order.
func (l *Log) runMigrations() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	if err := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("get current schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := l.db.Exec(string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := l.db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version, entry.Name(),
		); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}
