// Package postgres provides a PostgreSQL implementation of the event log adapter.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Sentinel errors for the postgres adapter.
// These are aliases to the adapters package errors for compatibility with errors.Is().
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
)

// Ensure PostgresAdapter implements the adapter interfaces.
var (
	_ adapters.EventLogAdapter = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker   = (*PostgresAdapter)(nil)
)

// PostgresAdapter is a PostgreSQL implementation of EventLogAdapter.
type PostgresAdapter struct {
	db     *sql.DB
	schema string
	mu     sync.RWMutex
	closed bool
}

// Option configures a PostgresAdapter.
type Option func(*PostgresAdapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		a.schema = schema
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxOpenConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *PostgresAdapter) {
		a.db.SetConnMaxLifetime(d)
	}
}

// NewAdapter opens a PostgreSQL event log adapter for connStr.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("ferret/postgres: failed to open database: %w", err)
	}

	return NewAdapterWithDB(db, opts...), nil
}

// NewAdapterWithDB creates a new adapter with an existing database connection.
func NewAdapterWithDB(db *sql.DB, opts ...Option) *PostgresAdapter {
	adapter := &PostgresAdapter{
		db:     db,
		schema: "ferret",
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// table returns the sanitized, schema-qualified name of a table.
func (a *PostgresAdapter) table(name string) string {
	return pgx.Identifier{a.schema, name}.Sanitize()
}

func (a *PostgresAdapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// Initialize creates the schema, tables and indexes if they do not exist.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{a.schema}.Sanitize()),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			stream_id       VARCHAR(500) PRIMARY KEY,
			category        VARCHAR(250) NOT NULL,
			version         BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, a.table("streams")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			global_position BIGSERIAL PRIMARY KEY,
			stream_id       VARCHAR(500) NOT NULL,
			version         BIGINT NOT NULL,
			event_id        UUID NOT NULL DEFAULT gen_random_uuid(),
			event_type      VARCHAR(500) NOT NULL,
			data            BYTEA NOT NULL,
			metadata        JSONB,
			timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(stream_id, version)
		)`, a.table("events")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_streams_category ON %s(category)`, a.table("streams")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_type ON %s(event_type)`, a.table("events")),
	}

	for _, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ferret/postgres: failed to initialize schema: %w", err)
		}
	}

	return nil
}

// Append stores events at the end of the stream if its length matches expectedVersion.
// The stream row is locked for the duration of the transaction; a concurrent
// creator of the same stream is caught by the primary key and reported as a
// concurrency conflict.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.isClosed() {
		return nil, ErrAdapterClosed
	}

	if err := adapters.ValidateAppend(streamID, events); err != nil {
		return nil, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ferret/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentVersion int64
	streamExists := true

	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT version FROM %s
		WHERE stream_id = $1
		FOR UPDATE`, a.table("streams")), streamID).Scan(&currentVersion)
	if errors.Is(err, sql.ErrNoRows) {
		streamExists = false
		currentVersion = 0
	} else if err != nil {
		return nil, fmt.Errorf("ferret/postgres: failed to get stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, streamExists); err != nil {
		return nil, err
	}

	if !streamExists {
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (stream_id, category, version)
			VALUES ($1, $2, 0)`, a.table("streams")), streamID, adapters.ExtractCategory(streamID))
		if err != nil {
			return nil, a.mapWriteError(err, streamID, expectedVersion, "failed to create stream")
		}
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		currentVersion++

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ferret/postgres: failed to marshal metadata: %w", err)
		}

		var globalPosition int64
		var eventID string
		var timestamp time.Time

		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (stream_id, version, event_type, data, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING global_position, event_id, timestamp`, a.table("events")),
			streamID, currentVersion, event.Type, event.Data, metadataJSON,
		).Scan(&globalPosition, &eventID, &timestamp)
		if err != nil {
			return nil, a.mapWriteError(err, streamID, expectedVersion, "failed to insert event")
		}

		stored[i] = adapters.StoredEvent{
			ID:             eventID,
			StreamID:       streamID,
			Type:           event.Type,
			Data:           event.Data,
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: uint64(globalPosition),
			Timestamp:      timestamp,
		}
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET version = $1, updated_at = NOW()
		WHERE stream_id = $2`, a.table("streams")), currentVersion, streamID)
	if err != nil {
		return nil, fmt.Errorf("ferret/postgres: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, a.mapWriteError(err, streamID, expectedVersion, "failed to commit transaction")
	}

	return stored, nil
}

// mapWriteError turns a unique violation into a ConcurrencyError.
func (a *PostgresAdapter) mapWriteError(err error, streamID string, expected int64, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return adapters.NewConcurrencyError(streamID, expected, -1)
	}
	return fmt.Errorf("ferret/postgres: %s: %w", what, err)
}

// Load returns the events of a stream with a version greater than fromVersion.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.isClosed() {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
		FROM %s
		WHERE stream_id = $1 AND version > $2
		ORDER BY version`, a.table("events")), streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("ferret/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var event adapters.StoredEvent
		var globalPosition int64
		var metadataJSON []byte

		err := rows.Scan(
			&globalPosition,
			&event.ID,
			&event.StreamID,
			&event.Version,
			&event.Type,
			&event.Data,
			&metadataJSON,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("ferret/postgres: failed to scan event: %w", err)
		}
		event.GlobalPosition = uint64(globalPosition)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("ferret/postgres: failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ferret/postgres: error iterating events: %w", err)
	}

	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.isClosed() {
		return nil, ErrAdapterClosed
	}

	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT stream_id, category, version, created_at, updated_at
		FROM %s
		WHERE stream_id = $1`, a.table("streams")), streamID).Scan(
		&info.StreamID,
		&info.Category,
		&info.Version,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("ferret/postgres: failed to get stream info: %w", err)
	}
	info.EventCount = info.Version

	return &info, nil
}

// Close releases the database connection.
func (a *PostgresAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.isClosed() {
		return ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// DB returns the underlying database connection.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *PostgresAdapter) Schema() string {
	return a.schema
}
