package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for events.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return errors.Wrap(err, "apply schema")
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InsertEvent persists an event and returns inserted=false when it is a duplicate.
//
// Duplicate detection is enforced by the database constraint on (tenant_id, event_id),
// which is compatible with retries and at-least-once delivery.
func (p *PostgresStore) InsertEvent(ctx context.Context, ev Event) (bool, error) {
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

	var sessionID *string
	if ev.SessionID != "" {
		sessionID = &ev.SessionID
	}

	// RETURNING 1 only when inserted; duplicates return no rows.
	var one int
	err = p.pool.QueryRow(ctx, `
		INSERT INTO events(tenant_id, event_id, session_id, event_name, ts, properties)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, event_id) DO NOTHING
		RETURNING 1
	`, ev.TenantID, ev.EventID, sessionID, ev.Name, ev.Timestamp.UTC(), propsJSON).Scan(&one)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, errors.Wrap(err, "insert event")
}

// CountEvents returns the number of events for (tenantID, eventName) in the time window [from,to).
// Using a half-open interval avoids double counting at window boundaries.
func (p *PostgresStore) CountEvents(
	ctx context.Context,
	tenantID string,
	eventName string,
	from time.Time,
	to time.Time,
) (int64, error) {

	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE tenant_id=$1
		  AND event_name=$2
		  AND ts >= $3
		  AND ts <  $4
	`, tenantID, eventName, from, to).Scan(&count)

	return count, errors.Wrap(err, "count events")
}
