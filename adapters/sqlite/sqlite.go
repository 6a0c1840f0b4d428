// Package sqlite provides an embedded SQLite implementation of the event log adapter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Sentinel errors for the sqlite adapter.
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
)

// Ensure SQLiteAdapter implements the adapter interfaces.
var (
	_ adapters.EventLogAdapter = (*SQLiteAdapter)(nil)
	_ adapters.HealthChecker   = (*SQLiteAdapter)(nil)
)

// dsnParams keeps writers from failing on a busy database and takes the
// write lock when a transaction begins, not at its first write.
const dsnParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

const schema = `
CREATE TABLE IF NOT EXISTS streams (
	stream_id   TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	global_position INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id        TEXT NOT NULL UNIQUE,
	stream_id       TEXT NOT NULL,
	version         INTEGER NOT NULL,
	event_type      TEXT NOT NULL,
	data            BLOB NOT NULL,
	metadata        TEXT,
	timestamp       INTEGER NOT NULL,
	UNIQUE(stream_id, version)
);
CREATE INDEX IF NOT EXISTS idx_streams_category ON streams(category);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
`

// SQLiteAdapter stores the event log in a single SQLite database file.
type SQLiteAdapter struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// Option configures a SQLiteAdapter.
type Option func(*SQLiteAdapter)

// WithClock overrides the clock used to timestamp events.
func WithClock(now func() time.Time) Option {
	return func(a *SQLiteAdapter) {
		a.now = now
	}
}

// NewAdapter opens the database at path. ":memory:" opens a private
// in-memory database.
func NewAdapter(path string, opts ...Option) (*SQLiteAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ferret/sqlite: database path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + dsnParams
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ferret/sqlite: failed to open database: %w", err)
	}
	// One connection serializes writers inside the process and keeps a
	// ":memory:" database alive for the adapter's lifetime.
	db.SetMaxOpenConns(1)

	return NewAdapterWithDB(db, opts...), nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *SQLiteAdapter {
	a := &SQLiteAdapter{
		db:  db,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func (a *SQLiteAdapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// Initialize creates the tables and indexes if they do not exist.
func (a *SQLiteAdapter) Initialize(ctx context.Context) error {
	if a.isClosed() {
		return ErrAdapterClosed
	}
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ferret/sqlite: failed to initialize schema: %w", err)
	}
	return nil
}

// Append stores events at the end of the stream if its length matches expectedVersion.
func (a *SQLiteAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.isClosed() {
		return nil, ErrAdapterClosed
	}

	if err := adapters.ValidateAppend(streamID, events); err != nil {
		return nil, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ferret/sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int64
	streamExists := true

	err = tx.QueryRowContext(ctx, `SELECT version FROM streams WHERE stream_id = ?`, streamID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		streamExists = false
		currentVersion = 0
	} else if err != nil {
		return nil, fmt.Errorf("ferret/sqlite: failed to get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, streamExists); err != nil {
		return nil, err
	}

	now := a.now()
	if !streamExists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO streams (stream_id, category, version, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
			streamID, adapters.ExtractCategory(streamID), toMillis(now), toMillis(now))
		if err != nil {
			return nil, mapWriteError(err, streamID, expectedVersion, "failed to create stream")
		}
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ferret/sqlite: failed to marshal metadata: %w", err)
		}

		eventID := uuid.NewString()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, stream_id, version, event_type, data, metadata, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			eventID, streamID, currentVersion, event.Type, event.Data, string(metadataJSON), toMillis(now))
		if err != nil {
			return nil, mapWriteError(err, streamID, expectedVersion, "failed to insert event")
		}

		position, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("ferret/sqlite: failed to read global position: %w", err)
		}

		stored[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           append([]byte(nil), event.Data...),
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: uint64(position),
			Timestamp:      fromMillis(toMillis(now)),
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE streams SET version = ?, updated_at = ? WHERE stream_id = ?`,
		currentVersion, toMillis(now), streamID)
	if err != nil {
		return nil, fmt.Errorf("ferret/sqlite: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err, streamID, expectedVersion, "failed to commit transaction")
	}

	return stored, nil
}

// mapWriteError turns a uniqueness violation into a ConcurrencyError: another
// writer created the stream or took the version first.
func mapWriteError(err error, streamID string, expected int64, what string) error {
	if isUniqueViolation(err) {
		return adapters.NewConcurrencyError(streamID, expected, -1)
	}
	return fmt.Errorf("ferret/sqlite: %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Load returns the events of a stream with a version greater than fromVersion.
func (a *SQLiteAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.isClosed() {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
		FROM events
		WHERE stream_id = ? AND version > ?
		ORDER BY version`, streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("ferret/sqlite: failed to load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var event adapters.StoredEvent
		var position, timestamp int64
		var metadataJSON sql.NullString

		if err := rows.Scan(
			&position,
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadataJSON,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("ferret/sqlite: failed to scan event: %w", err)
		}
		event.GlobalPosition = uint64(position)
		event.Timestamp = fromMillis(timestamp)

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("ferret/sqlite: failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ferret/sqlite: error iterating events: %w", err)
	}

	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *SQLiteAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.isClosed() {
		return nil, ErrAdapterClosed
	}

	var info adapters.StreamInfo
	var createdAt, updatedAt int64
	err := a.db.QueryRowContext(ctx, `
		SELECT stream_id, category, version, created_at, updated_at
		FROM streams
		WHERE stream_id = ?`, streamID).Scan(
		&info.StreamID,
		&info.Category,
		&info.Version,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("ferret/sqlite: failed to get stream info: %w", err)
	}
	info.EventCount = info.Version
	info.CreatedAt = fromMillis(createdAt)
	info.UpdatedAt = fromMillis(updatedAt)

	return &info, nil
}

// Close releases the database handle.
func (a *SQLiteAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

// Ping checks database connectivity.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	if a.isClosed() {
		return ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (a *SQLiteAdapter) DB() *sql.DB {
	return a.db
}
