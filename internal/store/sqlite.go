package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

//go:embed sqlite_schema.sql
var sqliteSchemaSQL string

// SQLiteStore keeps events in a local SQLite file. It serves single-node and
// development deployments with the same contract as PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database file and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// A single writer connection keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply sqlite schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Ping validates the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// InsertEvent persists an event and returns inserted=false when (tenant_id, event_id) already exists.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev Event) (bool, error) {
	if err := ev.validate(); err != nil {
		return false, err
	}

	props := ev.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return false, errors.Wrap(err, "marshal properties")
	}

	var sessionID sql.NullString
	if ev.SessionID != "" {
		sessionID = sql.NullString{String: ev.SessionID, Valid: true}
	}

	ts := ev.Timestamp.UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events(tenant_id, event_id, session_id, event_name, ts_unix_ms, ts_iso, properties)
		VALUES (?,?,?,?,?,?,json(?))
	`, ev.TenantID, ev.EventID, sessionID, ev.Name, ts.UnixMilli(), reporter.FormatTimestamp(ts), string(propsJSON))
	if err != nil {
		return false, errors.Wrap(err, "insert event")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

// CountEvents counts events for (tenantID, eventName) in the window [from,to).
func (s *SQLiteStore) CountEvents(ctx context.Context, tenantID, eventName string, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE tenant_id=?
		  AND event_name=?
		  AND ts_unix_ms >= ?
		  AND ts_unix_ms <  ?
	`, tenantID, eventName, from.UnixMilli(), to.UnixMilli()).Scan(&count)

	return count, errors.Wrap(err, "count events")
}
