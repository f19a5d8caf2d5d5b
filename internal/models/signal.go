package models

import "github.com/PratikDhanave/interaction-analytics-service/internal/reporter"

// Signal types sent by the beacon. Each maps onto one page listener.
const (
	SignalLoad      = "load"
	SignalReady     = "ready"
	SignalClick     = "click"
	SignalMouseMove = "mousemove"
	SignalKeyPress  = "keypress"
	SignalScroll    = "scroll"
	SignalResize    = "resize"
	SignalUnload    = "unload"
	SignalError     = "error"
)

// KnownSignal reports whether t is a signal type the service understands.
func KnownSignal(t string) bool {
	switch t {
	case SignalLoad, SignalReady, SignalClick, SignalMouseMove, SignalKeyPress,
		SignalScroll, SignalResize, SignalUnload, SignalError:
		return true
	}
	return false
}

// Signal is one raw page observation. Only the fields relevant to Type are set.
type Signal struct {
	Type      string                  `json:"type"`
	UserAgent string                  `json:"user_agent,omitempty"`
	Viewport  *reporter.Viewport      `json:"viewport,omitempty"`
	Scroll    *reporter.ScrollMetrics `json:"scroll,omitempty"`
	Path      []reporter.Element      `json:"path,omitempty"` // click target first, then ancestors
	Error     *reporter.ErrorReport   `json:"error,omitempty"`
}

// SignalBatch is the POST /signals payload.
// session_id is optional on the first batch of a page load; the response carries the assigned id.
type SignalBatch struct {
	SessionID string   `json:"session_id,omitempty"`
	Signals   []Signal `json:"signals"`
}

// SignalBatchResponse is returned by POST /signals.
type SignalBatchResponse struct {
	SessionID string `json:"session_id"`
	Accepted  int    `json:"accepted"`
}
