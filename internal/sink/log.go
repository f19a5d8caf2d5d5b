package sink

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

// LogSink writes one log line per event.
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink returns a sink that logs events at info level.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	return &LogSink{log: log}
}

// Report implements reporter.Sink.
func (l *LogSink) Report(_ context.Context, ev reporter.Event) error {
	fields := logrus.Fields{
		"kind":       ev.Kind,
		"event":      ev.Name,
		"tenant_id":  ev.TenantID,
		"session_id": ev.SessionID,
	}
	if len(ev.Attributes) > 0 {
		fields["attributes"] = ev.Attributes
	}
	l.log.WithFields(fields).Info("analytics event")
	return nil
}
