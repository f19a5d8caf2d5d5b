package reporter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// DefaultInactivityWindow is the idle period after which a session stops counting as active.
const DefaultInactivityWindow = 30 * time.Second

// DefaultRootID is the id of the container that delegates region clicks.
const DefaultRootID = "root"

// scrollMilestones are checked in order against the current scroll percent.
var scrollMilestones = []int{25, 50, 75, 100}

// Options configures a Session. The zero value is usable.
type Options struct {
	// Sink receives emitted events. Nil means events are dropped.
	Sink             Sink
	Clock            clockwork.Clock
	Logger           logrus.FieldLogger
	RootID           string
	InactivityWindow time.Duration

	// TenantID and SessionID are stamped on every event.
	TenantID  string
	SessionID string
}

// Session holds the state of one page load and turns raw page signals into
// analytics events.
type Session struct {
	sink     Sink
	clock    clockwork.Clock
	log      logrus.FieldLogger
	rootID   string
	window   time.Duration
	tenantID string
	id       string

	mu       sync.Mutex
	viewed   bool
	ready    bool
	closed   bool
	start    time.Time
	active   bool
	timer    clockwork.Timer
	timerGen uint64
	maxDepth int
	fired    map[int]bool
}

// New constructs a Session. Nothing is emitted until the first signal.
func New(opts Options) *Session {
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	rootID := opts.RootID
	if rootID == "" {
		rootID = DefaultRootID
	}
	window := opts.InactivityWindow
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	return &Session{
		sink:     sink,
		clock:    clock,
		log:      log.WithField("session_id", opts.SessionID),
		rootID:   rootID,
		window:   window,
		tenantID: opts.TenantID,
		id:       opts.SessionID,
		active:   true,
		fired:    make(map[int]bool, len(scrollMilestones)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Active reports whether the inactivity window has not yet elapsed.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// MaxScrollDepth returns the deepest scroll percent seen so far.
func (s *Session) MaxScrollDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxDepth
}

// Ended reports whether the session was unloaded or closed.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PageView emits the page view. It is accepted before the document is ready.
func (s *Session) PageView(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.viewed {
		return
	}
	s.viewed = true
	s.emit(ctx, KindPageview, EventPageview, nil)
}

// Ready binds the session to a loaded document: it starts the session clock,
// arms the inactivity timer and reports the demo load and the initial viewport.
func (s *Session) Ready(ctx context.Context, userAgent string, vp Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ready {
		return
	}
	s.ready = true
	s.start = s.clock.Now()
	s.resetInactivityLocked()

	s.emit(ctx, KindTrack, EventDemoLoaded, map[string]any{
		"timestamp": FormatTimestamp(s.start),
		"userAgent": Truncate(userAgent, maxTextLen),
	})
	s.log.Debug("analytics initialized")
	s.reportViewportLocked(ctx, vp)
}

// Click handles a click whose target is path[0], followed by its ancestors.
// Listeners fire in bubbling order: selector controls on the way up, the
// root container's region delegation, then the document activity listener.
func (s *Session) Click(ctx context.Context, path []Element) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening() || len(path) == 0 {
		return
	}

	target := path[0]
	for i, el := range path {
		if IsThemeControl(path, i) {
			theme := ResolveTheme(el)
			s.emit(ctx, KindTrack, EventThemeChanged, map[string]any{
				"theme":     theme,
				"timestamp": s.now(),
			})
			s.log.WithField("theme", theme).Debug("theme changed")
		}
		if IsLanguageControl(path, i) {
			language := ResolveLanguage(el)
			s.emit(ctx, KindTrack, EventLanguageChanged, map[string]any{
				"language":  language,
				"timestamp": s.now(),
			})
			s.log.WithField("language", language).Debug("language changed")
		}
		if el.ID == s.rootID && IsRegion(target) {
			region := ResolveRegion(target)
			s.emit(ctx, KindTrack, EventRegionClicked, map[string]any{
				"region":    region,
				"timestamp": s.now(),
			})
			s.log.WithField("region", region).Debug("region clicked")
		}
	}

	s.resetInactivityLocked()
}

// Activity records a qualifying user input (mouse move, key press, click, scroll).
func (s *Session) Activity(_ context.Context, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening() {
		return
	}
	s.log.WithField("kind", kind).Trace("activity")
	s.resetInactivityLocked()
}

// Scroll records a scroll as activity and reports scroll depth milestones.
//
// The milestone band is chosen from the current percent, not the running
// maximum, so a single jump past several thresholds reports only the band it
// lands in. Skipped milestones are never back-filled.
func (s *Session) Scroll(ctx context.Context, m ScrollMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening() {
		return
	}
	s.resetInactivityLocked()

	docHeight := m.ScrollHeight - m.ViewportHeight
	if docHeight <= 0 {
		return
	}
	percent := int(jsRound(clampPercent(m.ScrollTop / docHeight * 100)))
	if percent <= s.maxDepth {
		return
	}
	s.maxDepth = percent

	milestone := bandOf(percent)
	if milestone == 0 || s.fired[milestone] {
		return
	}
	s.fired[milestone] = true
	s.emit(ctx, KindTrack, EventScrollDepth, map[string]any{
		"depth": fmt.Sprintf("%d%%", milestone),
	})
}

// bandOf returns the milestone whose band contains percent, or 0 below the first.
func bandOf(percent int) int {
	band := 0
	for _, m := range scrollMilestones {
		if percent >= m {
			band = m
		}
	}
	return band
}

// Resize reports the new viewport.
func (s *Session) Resize(ctx context.Context, vp Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening() {
		return
	}
	s.reportViewportLocked(ctx, vp)
}

func (s *Session) reportViewportLocked(ctx context.Context, vp Viewport) {
	device := ClassifyDevice(vp.Width)
	s.emit(ctx, KindTrack, EventViewportInfo, map[string]any{
		"width":      vp.Width,
		"height":     vp.Height,
		"deviceType": device,
	})
	s.log.WithFields(logrus.Fields{
		"width":  vp.Width,
		"height": vp.Height,
		"device": device,
	}).Debug("viewport")
}

// Unload ends the session. Session End is reported only if the session is
// still active, and at most once.
func (s *Session) Unload(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening() {
		return
	}
	s.stopLocked()

	if !s.active {
		s.log.Debug("session ended while inactive")
		return
	}
	seconds := int(jsRound(s.clock.Since(s.start).Seconds()))
	s.emit(ctx, KindTrack, EventSessionEnd, map[string]any{
		"timeSpentSeconds": seconds,
		"timeSpentMinutes": int(jsRound(float64(seconds) / 60)),
		"timestamp":        s.now(),
	})
	s.log.WithField("seconds", seconds).Debug("session ended")
}

// Error reports an uncaught page error. It is accepted before the document is ready.
func (s *Session) Error(ctx context.Context, r ErrorReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.emit(ctx, KindTrack, EventJavaScriptError, map[string]any{
		"message":   Truncate(r.Message, maxTextLen),
		"filename":  r.Filename,
		"lineno":    r.Lineno,
		"timestamp": s.now(),
	})
}

// Close stops the inactivity timer without reporting anything.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) listening() bool {
	return s.ready && !s.closed
}

func (s *Session) stopLocked() {
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// resetInactivityLocked marks the session active and reschedules expiry.
// Each timer carries a generation so one that already fired after being
// stopped cannot clear a newer reset.
func (s *Session) resetInactivityLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.active = true
	s.timerGen++
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(s.window, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.timerGen == gen {
			s.active = false
		}
	})
}

func (s *Session) now() string {
	return FormatTimestamp(s.clock.Now())
}

func (s *Session) emit(ctx context.Context, kind Kind, name string, attrs map[string]any) {
	ev := Event{
		Kind:       kind,
		Name:       name,
		Attributes: attrs,
		Timestamp:  s.clock.Now().UTC(),
		TenantID:   s.tenantID,
		SessionID:  s.id,
	}
	if err := s.sink.Report(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event", name).Warn("analytics event dropped")
	}
}

// maxScrollPercent bounds client-supplied geometry so the int conversion stays defined.
const maxScrollPercent = 1e6

func clampPercent(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(-maxScrollPercent, math.Min(p, maxScrollPercent))
}

// jsRound rounds half up, as Math.round does.
func jsRound(x float64) float64 {
	return math.Floor(x + 0.5)
}
