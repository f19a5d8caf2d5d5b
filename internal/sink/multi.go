package sink

import (
	"context"
	"errors"

	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

// Multi delivers each event to every sink in order. A failing sink does not
// stop delivery to the rest; the failures are joined.
type Multi []reporter.Sink

// Report implements reporter.Sink.
func (m Multi) Report(ctx context.Context, ev reporter.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Report(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
