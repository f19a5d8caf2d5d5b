package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/PratikDhanave/interaction-analytics-service/internal/metrics"
	"github.com/PratikDhanave/interaction-analytics-service/internal/models"
	"github.com/PratikDhanave/interaction-analytics-service/internal/reporter"
)

var (
	ErrUnknownSignal = errors.New("unknown signal type")
	ErrInvalidSignal = errors.New("signal is missing its payload")
	ErrRateLimited   = errors.New("signal rate exceeded for session")
)

// Options configures a Registry.
type Options struct {
	Sink    reporter.Sink
	Clock   clockwork.Clock
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	// TTL is how long a session may go without signals before it is dropped.
	TTL   time.Duration
	Rate  rate.Limit
	Burst int

	RootID           string
	InactivityWindow time.Duration
}

type entry struct {
	mu      sync.Mutex
	session *reporter.Session
	limiter *rate.Limiter
}

// Registry holds one reporter session per page load.
type Registry struct {
	opts  Options
	log   logrus.FieldLogger
	clock clockwork.Clock

	mu    sync.Mutex
	cache *ttlcache.Cache[string, *entry]
}

// New creates a registry and starts its expiry loop.
func New(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Rate <= 0 {
		opts.Rate = rate.Inf
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	r := &Registry{
		opts:  opts,
		log:   opts.Logger.WithField("component", "sessions"),
		clock: opts.Clock,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *entry](opts.TTL),
		),
	}

	// Callbacks run under the cache lock: they must not call back into the cache.
	r.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *entry]) {
		item.Value().session.Close()
		if opts.Metrics != nil {
			opts.Metrics.ActiveSessions.Dec()
		}
		if reason == ttlcache.EvictionReasonExpired {
			r.log.WithField("session_id", item.Value().session.ID()).Debug("session expired without unload")
		}
	})

	go r.cache.Start()
	return r
}

func key(tenantID, sessionID string) string {
	return tenantID + "\x00" + sessionID
}

// Validate checks every signal of a batch before any of them is applied.
func Validate(batch models.SignalBatch) error {
	for i, sig := range batch.Signals {
		if !models.KnownSignal(sig.Type) {
			return errors.Wrapf(ErrUnknownSignal, "signal %d: %q", i, sig.Type)
		}
		missing := false
		switch sig.Type {
		case models.SignalReady, models.SignalResize:
			missing = sig.Viewport == nil
		case models.SignalClick:
			missing = len(sig.Path) == 0
		case models.SignalScroll:
			missing = sig.Scroll == nil
		case models.SignalError:
			missing = sig.Error == nil
		}
		if missing {
			return errors.Wrapf(ErrInvalidSignal, "signal %d: %q", i, sig.Type)
		}
	}
	return nil
}

// Dispatch applies a batch of signals, in order, to the tenant's session and
// returns the session id (generated when the batch carries none) with the
// number of signals applied. Signals after an unload are dropped.
func (r *Registry) Dispatch(ctx context.Context, tenantID string, batch models.SignalBatch) (string, int, error) {
	if err := Validate(batch); err != nil {
		return "", 0, err
	}

	sessionID := batch.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if len(batch.Signals) == 0 {
		return sessionID, 0, nil
	}

	k := key(tenantID, sessionID)
	e := r.getOrCreate(k, tenantID, sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.limiter.AllowN(r.clock.Now(), 1) {
		if r.opts.Metrics != nil {
			r.opts.Metrics.RateLimitedBatches.Inc()
		}
		return sessionID, 0, ErrRateLimited
	}

	applied := 0
	unloaded := false
	for _, sig := range batch.Signals {
		r.apply(ctx, e.session, sig)
		applied++
		if r.opts.Metrics != nil {
			r.opts.Metrics.SignalsTotal.WithLabelValues(sig.Type).Inc()
		}
		if sig.Type == models.SignalUnload {
			unloaded = true
			break
		}
	}

	if unloaded {
		r.cache.Delete(k)
	}
	return sessionID, applied, nil
}

func (r *Registry) getOrCreate(k, tenantID, sessionID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item := r.cache.Get(k); item != nil {
		return item.Value()
	}

	e := &entry{
		session: reporter.New(reporter.Options{
			Sink:             r.opts.Sink,
			Clock:            r.clock,
			Logger:           r.opts.Logger,
			RootID:           r.opts.RootID,
			InactivityWindow: r.opts.InactivityWindow,
			TenantID:         tenantID,
			SessionID:        sessionID,
		}),
		limiter: rate.NewLimiter(r.opts.Rate, r.opts.Burst),
	}
	r.cache.Set(k, e, ttlcache.DefaultTTL)
	if r.opts.Metrics != nil {
		r.opts.Metrics.ActiveSessions.Inc()
	}
	return e
}

func (r *Registry) apply(ctx context.Context, s *reporter.Session, sig models.Signal) {
	switch sig.Type {
	case models.SignalLoad:
		s.PageView(ctx)
	case models.SignalReady:
		s.Ready(ctx, sig.UserAgent, *sig.Viewport)
	case models.SignalClick:
		s.Click(ctx, sig.Path)
	case models.SignalMouseMove, models.SignalKeyPress:
		s.Activity(ctx, sig.Type)
	case models.SignalScroll:
		s.Scroll(ctx, *sig.Scroll)
	case models.SignalResize:
		s.Resize(ctx, *sig.Viewport)
	case models.SignalUnload:
		s.Unload(ctx)
	case models.SignalError:
		s.Error(ctx, *sig.Error)
	}
}

// Lookup returns the live session, if any.
func (r *Registry) Lookup(tenantID, sessionID string) (*reporter.Session, bool) {
	item := r.cache.Get(key(tenantID, sessionID), ttlcache.WithDisableTouchOnHit[string, *entry]())
	if item == nil {
		return nil, false
	}
	return item.Value().session, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close drops every session without reporting and stops the expiry loop.
func (r *Registry) Close() {
	r.cache.DeleteAll()
	r.cache.Stop()
}
