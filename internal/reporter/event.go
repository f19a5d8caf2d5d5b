package reporter

import (
	"context"
	"time"
	"unicode/utf8"
)

// Kind distinguishes the two shapes of sink call: a bare page view and a named track call.
type Kind string

const (
	KindPageview Kind = "pageview"
	KindTrack    Kind = "track"
)

// Event names emitted by a Session.
const (
	EventPageview        = "pageview"
	EventDemoLoaded      = "Demo Loaded"
	EventRegionClicked   = "Region Clicked"
	EventThemeChanged    = "Theme Changed"
	EventLanguageChanged = "Language Changed"
	EventSessionEnd      = "Session End"
	EventScrollDepth     = "Scroll Depth"
	EventViewportInfo    = "Viewport Info"
	EventJavaScriptError = "JavaScript Error"
)

// isoLayout matches the browser's Date.prototype.toISOString output.
const isoLayout = "2006-01-02T15:04:05.000Z"

// maxTextLen caps user agent strings and error messages.
const maxTextLen = 100

// Event is a single analytics emission. It is handed to the sink and then discarded.
type Event struct {
	Kind       Kind           `json:"kind"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	TenantID   string         `json:"tenant_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

// Sink receives emitted events. Delivery is best-effort: a returned error is
// logged by the caller and the event is dropped.
type Sink interface {
	Report(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function literal to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Report calls the underlying function.
func (f SinkFunc) Report(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// NopSink discards every event. It stands in for an absent sink.
type NopSink struct{}

// Report implements Sink.
func (NopSink) Report(context.Context, Event) error { return nil }

// FormatTimestamp renders t the way the attribute bags carry timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// Truncate returns at most n characters of s without splitting a multi-byte rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
