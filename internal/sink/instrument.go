package sink

import (
	"context"

	"github.com/PratikDhanave/interaction-analytics-service/internal/metrics"
	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

type instrumented struct {
	next reporter.Sink
	m    *metrics.Metrics
}

// Instrument counts delivered and failed events per name around next.
func Instrument(next reporter.Sink, m *metrics.Metrics) reporter.Sink {
	return &instrumented{next: next, m: m}
}

func (i *instrumented) Report(ctx context.Context, ev reporter.Event) error {
	err := i.next.Report(ctx, ev)
	if err != nil {
		i.m.SinkFailures.WithLabelValues(ev.Name).Inc()
		return err
	}
	i.m.EventsReported.WithLabelValues(ev.Name).Inc()
	return nil
}
