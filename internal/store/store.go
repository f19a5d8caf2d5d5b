package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

// ErrMissingFields is returned when an event lacks its identifying fields.
var ErrMissingFields = errors.New("tenantID/eventID/eventName required")

// Event is a persisted analytics event.
type Event struct {
	TenantID   string
	EventID    string
	SessionID  string
	Name       string
	Timestamp  time.Time
	Properties map[string]interface{}
}

func (e Event) validate() error {
	if e.TenantID == "" || e.EventID == "" || e.Name == "" {
		return ErrMissingFields
	}
	return nil
}

// EventStore is the durable persistence contract shared by the Postgres and SQLite backends.
type EventStore interface {
	// InsertEvent persists an event and returns inserted=false when it is a duplicate.
	InsertEvent(ctx context.Context, ev Event) (bool, error)
	// CountEvents counts events for (tenantID, eventName) in the window [from,to).
	CountEvents(ctx context.Context, tenantID, eventName string, from, to time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// NewSink adapts a store into a reporter sink. Every emission gets a fresh
// event id, so nothing reported by a session is ever deduplicated away.
func NewSink(st EventStore) reporter.Sink {
	return reporter.SinkFunc(func(ctx context.Context, ev reporter.Event) error {
		_, err := st.InsertEvent(ctx, Event{
			TenantID:   ev.TenantID,
			EventID:    uuid.New().String(),
			SessionID:  ev.SessionID,
			Name:       ev.Name,
			Timestamp:  ev.Timestamp,
			Properties: ev.Attributes,
		})
		return errors.Wrapf(err, "store %q", ev.Name)
	})
}
