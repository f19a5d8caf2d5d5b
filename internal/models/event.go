package models

// EventIngestRequest is the POST /events payload for events tracked directly
// by a backend rather than derived from page signals.
// event_id is optional; pass the Idempotency-Key header for retries.
type EventIngestRequest struct {
	EventID    string                 `json:"event_id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	EventName  string                 `json:"event_name"`
	Timestamp  string                 `json:"timestamp"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// EventIngestResponse is returned by POST /events.
// Duplicate indicates idempotent success (the event already existed).
type EventIngestResponse struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// MetricResponse is returned by GET /metrics.
type MetricResponse struct {
	EventName string `json:"event_name"`
	Count     int64  `json:"count"`
}
