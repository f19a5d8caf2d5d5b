package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/interaction-analytics-service/internal/auth"
	"github.com/PratikDhanave/interaction-analytics-service/internal/models"
	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
	"github.com/PratikDhanave/interaction-analytics-service/internal/store"
)

// errBadRequest carries a client-facing message for a 400 response.
type errBadRequest string

func (e errBadRequest) Error() string { return string(e) }

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
func parseRFC3339(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// bindIngest validates the payload and resolves the event id.
//
// Idempotency precedence:
// 1) Idempotency-Key header (recommended for retries)
// 2) event_id in payload
// 3) generated UUID (fallback; cannot dedupe client retries)
func bindIngest(c *gin.Context, tenantID string) (store.Event, error) {
	var req models.EventIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return store.Event{}, errBadRequest("invalid JSON payload")
	}
	if req.EventName == "" {
		return store.Event{}, errBadRequest("event_name required")
	}
	if req.Timestamp == "" {
		return store.Event{}, errBadRequest("timestamp required")
	}
	ts, err := parseRFC3339(req.Timestamp)
	if err != nil {
		return store.Event{}, errBadRequest("timestamp must be RFC3339")
	}

	eventID := c.GetHeader("Idempotency-Key")
	if eventID == "" {
		eventID = req.EventID
	}
	if eventID == "" {
		eventID = uuid.New().String()
	}

	return store.Event{
		TenantID:   tenantID,
		EventID:    eventID,
		SessionID:  req.SessionID,
		Name:       req.EventName,
		Timestamp:  ts,
		Properties: req.Properties,
	}, nil
}

// RegisterEventRoutes registers the direct ingestion endpoint.
//
// POST /events
// - Requires X-API-Key (tenant context)
// - Durable: returns success only after the store write completes
// - Idempotent: duplicates detected via (tenant_id, event_id) uniqueness
// - Newly stored events are forwarded to stream (best-effort, may be nil)
func RegisterEventRoutes(r gin.IRoutes, st store.EventStore, stream reporter.Sink, log logrus.FieldLogger) {
	r.POST("/events", func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ev, err := bindIngest(c, tenantID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		inserted, err := st.InsertEvent(c.Request.Context(), ev)
		if err != nil {
			log.WithError(err).WithField("tenant_id", tenantID).Error("store insert failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db insert failed"})
			return
		}

		if inserted && stream != nil {
			err := stream.Report(c.Request.Context(), reporter.Event{
				Kind:       reporter.KindTrack,
				Name:       ev.Name,
				Attributes: ev.Properties,
				Timestamp:  ev.Timestamp,
				TenantID:   ev.TenantID,
				SessionID:  ev.SessionID,
			})
			if err != nil {
				log.WithError(err).WithField("event", ev.Name).Warn("stream forward failed")
			}
		}

		// 201 for new events, 200 for duplicates (idempotent success).
		status := http.StatusCreated
		if !inserted {
			status = http.StatusOK
		}
		c.JSON(status, models.EventIngestResponse{
			EventID:   ev.EventID,
			Duplicate: !inserted,
		})
	})
}
