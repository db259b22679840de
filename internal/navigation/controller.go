package navigation

import (
	"strings"

	"github.com/tinytelemetry/mailnav/internal/location"
)

type pushOptions struct {
	force    bool
	suppress bool
}

// PushOption modifies a Push.
type PushOption func(*pushOptions)

// WithForce makes the next tick fetch even if the text did not change,
// e.g. after a mutating action.
func WithForce() PushOption {
	return func(o *pushOptions) { o.force = true }
}

// WithSuppress marks the pushed location as already applied locally: the
// next tick that sees it records it without fetching.
func WithSuppress() PushOption {
	return func(o *pushOptions) { o.suppress = true }
}

// Push makes state the current location and writes it to the address bar.
// The bar is only written when its text differs, so repeated pushes of the
// same state leave a single entry. Push never fetches; the flags it arms are
// honored by the next Tick.
func (e *Engine) Push(state *location.State, opts ...PushOption) {
	var o pushOptions
	for _, opt := range opts {
		opt(&o)
	}

	text := location.Serialize(state)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = state.Clone()
	e.forceRefetch = e.forceRefetch || o.force
	// Suppressing a location the detector has already recorded would
	// swallow the next unrelated change instead.
	if o.suppress && text != e.lastWritten {
		e.suppressNextFetch = true
	}
	if strings.TrimPrefix(e.bar.Fragment(), location.FragmentMarker) != text {
		e.bar.SetFragment(text)
	}
}

// PushLocation parses raw fragment text and pushes it.
func (e *Engine) PushLocation(text string, opts ...PushOption) {
	e.Push(location.Parse(text, e.cfg.DefaultLocation), opts...)
}

// Update applies fn to a copy of the current state and pushes the result.
func (e *Engine) Update(fn func(s *location.State), opts ...PushOption) {
	s := e.State()
	fn(s)
	e.Push(s, opts...)
}

// Refresh forces the current location to be fetched again.
func (e *Engine) Refresh() {
	e.Push(e.State(), WithForce())
}
