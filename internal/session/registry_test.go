package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/PratikDhanave/interaction-analytics-service/internal/metrics"
	"github.com/PratikDhanave/interaction-analytics-service/internal/models"
	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

type recorder struct {
	mu     sync.Mutex
	events []reporter.Event
}

func (r *recorder) Report(_ context.Context, ev reporter.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func newTestRegistry(t *testing.T, mutate func(*Options)) (*Registry, *recorder, *clockwork.FakeClock, *metrics.Metrics) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC))
	m := metrics.New(prometheus.NewRegistry())
	opts := Options{
		Sink:    rec,
		Clock:   clock,
		Logger:  logger,
		Metrics: m,
		TTL:     time.Hour,
		Rate:    rate.Inf,
		Burst:   1,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r := New(opts)
	t.Cleanup(r.Close)
	return r, rec, clock, m
}

func loadAndReady() []models.Signal {
	return []models.Signal{
		{Type: models.SignalLoad},
		{Type: models.SignalReady, UserAgent: "Mozilla/5.0", Viewport: &reporter.Viewport{Width: 1440, Height: 900}},
	}
}

func TestDispatchFullPageLifecycle(t *testing.T) {
	r, rec, clock, m := newTestRegistry(t, nil)
	ctx := context.Background()

	id, _, err := r.Dispatch(ctx, "tenant1", models.SignalBatch{Signals: loadAndReady()})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, r.Len())

	clock.Advance(10 * time.Second)
	_, _, err = r.Dispatch(ctx, "tenant1", models.SignalBatch{
		SessionID: id,
		Signals: []models.Signal{
			{Type: models.SignalClick, Path: []reporter.Element{{Tag: "path", ID: "riga"}, {Tag: "svg"}, {Tag: "div", ID: "root"}}},
			{Type: models.SignalScroll, Scroll: &reporter.ScrollMetrics{ScrollTop: 300, ScrollHeight: 1100, ViewportHeight: 100}},
			{Type: models.SignalResize, Viewport: &reporter.Viewport{Width: 700, Height: 900}},
			{Type: models.SignalKeyPress},
			{Type: models.SignalUnload},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		reporter.EventPageview,
		reporter.EventDemoLoaded,
		reporter.EventViewportInfo,
		reporter.EventRegionClicked,
		reporter.EventScrollDepth,
		reporter.EventViewportInfo,
		reporter.EventSessionEnd,
	}, rec.names())

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues(models.SignalUnload)))

	for _, ev := range rec.events {
		assert.Equal(t, "tenant1", ev.TenantID)
		assert.Equal(t, id, ev.SessionID)
	}
}

func TestDispatchKeepsSessionsPerTenant(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, _, err := r.Dispatch(ctx, "tenant1", models.SignalBatch{SessionID: "same", Signals: loadAndReady()})
	require.NoError(t, err)
	_, _, err = r.Dispatch(ctx, "tenant2", models.SignalBatch{SessionID: "same", Signals: loadAndReady()})
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	_, ok := r.Lookup("tenant1", "same")
	assert.True(t, ok)
	_, ok = r.Lookup("tenant3", "same")
	assert.False(t, ok)
}

func TestDispatchRejectsInvalidBatchAtomically(t *testing.T) {
	r, rec, _, _ := newTestRegistry(t, nil)

	tests := []struct {
		name string
		sig  models.Signal
		want error
	}{
		{"unknown type", models.Signal{Type: "hover"}, ErrUnknownSignal},
		{"ready without viewport", models.Signal{Type: models.SignalReady}, ErrInvalidSignal},
		{"click without path", models.Signal{Type: models.SignalClick}, ErrInvalidSignal},
		{"scroll without geometry", models.Signal{Type: models.SignalScroll}, ErrInvalidSignal},
		{"resize without viewport", models.Signal{Type: models.SignalResize}, ErrInvalidSignal},
		{"error without report", models.Signal{Type: models.SignalError}, ErrInvalidSignal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := models.SignalBatch{Signals: []models.Signal{{Type: models.SignalLoad}, tt.sig}}
			_, _, err := r.Dispatch(context.Background(), "tenant1", batch)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Empty(t, rec.names())
	assert.Equal(t, 0, r.Len())
}

func TestDispatchEmptyBatch(t *testing.T) {
	r, _, _, _ := newTestRegistry(t, nil)

	id, _, err := r.Dispatch(context.Background(), "tenant1", models.SignalBatch{SessionID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, 0, r.Len())
}

func TestDispatchRateLimited(t *testing.T) {
	r, _, clock, m := newTestRegistry(t, func(o *Options) {
		o.Rate = 1
		o.Burst = 2
	})
	ctx := context.Background()
	batch := models.SignalBatch{SessionID: "s1", Signals: []models.Signal{{Type: models.SignalMouseMove}}}

	_, _, err := r.Dispatch(ctx, "tenant1", batch)
	require.NoError(t, err)
	_, _, err = r.Dispatch(ctx, "tenant1", batch)
	require.NoError(t, err)
	_, _, err = r.Dispatch(ctx, "tenant1", batch)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedBatches))

	clock.Advance(time.Second)
	_, _, err = r.Dispatch(ctx, "tenant1", batch)
	assert.NoError(t, err)
}

func TestInactiveSessionSkipsSessionEnd(t *testing.T) {
	r, rec, clock, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	id, _, err := r.Dispatch(ctx, "tenant1", models.SignalBatch{Signals: loadAndReady()})
	require.NoError(t, err)
	s, ok := r.Lookup("tenant1", id)
	require.True(t, ok)

	clock.Advance(31 * time.Second)
	require.Eventually(t, func() bool { return !s.Active() }, time.Second, 5*time.Millisecond)

	_, _, err = r.Dispatch(ctx, "tenant1", models.SignalBatch{SessionID: id, Signals: []models.Signal{{Type: models.SignalUnload}}})
	require.NoError(t, err)

	assert.NotContains(t, rec.names(), reporter.EventSessionEnd)
}

func TestExpiredSessionIsClosedSilently(t *testing.T) {
	r, rec, _, m := newTestRegistry(t, func(o *Options) { o.TTL = 50 * time.Millisecond })

	id, _, err := r.Dispatch(context.Background(), "tenant1", models.SignalBatch{Signals: loadAndReady()})
	require.NoError(t, err)
	s, ok := r.Lookup("tenant1", id)
	require.True(t, ok)

	require.Eventually(t, func() bool { return r.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Ended())
	assert.NotContains(t, rec.names(), reporter.EventSessionEnd)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
}

func sessionEnds(rec *recorder) []reporter.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []reporter.Event
	for _, ev := range rec.events {
		if ev.Name == reporter.EventSessionEnd {
			out = append(out, ev)
		}
	}
	return out
}

// Batches as the beacon flushes them: one mousemove per window, in order, unload last.
func TestDispatchPointerActivityKeepsSessionAliveUntilUnload(t *testing.T) {
	r, rec, clock, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	id, _, err := r.Dispatch(ctx, "tenant1", models.SignalBatch{Signals: loadAndReady()})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		clock.Advance(20 * time.Second)
		_, _, err = r.Dispatch(ctx, "tenant1", models.SignalBatch{SessionID: id, Signals: []models.Signal{{Type: models.SignalMouseMove}}})
		require.NoError(t, err)
	}

	clock.Advance(20 * time.Second)
	_, applied, err := r.Dispatch(ctx, "tenant1", models.SignalBatch{
		SessionID: id,
		Signals:   []models.Signal{{Type: models.SignalMouseMove}, {Type: models.SignalUnload}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	ends := sessionEnds(rec)
	require.Len(t, ends, 1)
	assert.Equal(t, 60, ends[0].Attributes["timeSpentSeconds"])
	assert.Equal(t, 1, ends[0].Attributes["timeSpentMinutes"])
}

func TestDispatchIdleBeforeUnloadSkipsSessionEnd(t *testing.T) {
	r, rec, clock, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	id, _, err := r.Dispatch(ctx, "tenant1", models.SignalBatch{Signals: loadAndReady()})
	require.NoError(t, err)
	s, ok := r.Lookup("tenant1", id)
	require.True(t, ok)

	clock.Advance(20 * time.Second)
	_, _, err = r.Dispatch(ctx, "tenant1", models.SignalBatch{SessionID: id, Signals: []models.Signal{{Type: models.SignalMouseMove}}})
	require.NoError(t, err)

	clock.Advance(40 * time.Second)
	require.Eventually(t, func() bool { return !s.Active() }, time.Second, 5*time.Millisecond)

	_, _, err = r.Dispatch(ctx, "tenant1", models.SignalBatch{SessionID: id, Signals: []models.Signal{{Type: models.SignalUnload}}})
	require.NoError(t, err)
	assert.Empty(t, sessionEnds(rec))
}

func TestDispatchDropsSignalsAfterUnload(t *testing.T) {
	r, rec, _, m := newTestRegistry(t, nil)

	batch := models.SignalBatch{Signals: append(loadAndReady(),
		models.Signal{Type: models.SignalUnload},
		models.Signal{Type: models.SignalKeyPress},
		models.Signal{Type: models.SignalMouseMove},
	)}
	_, applied, err := r.Dispatch(context.Background(), "tenant1", batch)
	require.NoError(t, err)

	assert.Equal(t, 3, applied)
	assert.Len(t, sessionEnds(rec), 1)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues(models.SignalKeyPress)))
}
