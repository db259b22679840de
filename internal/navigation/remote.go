package navigation

import "github.com/tinytelemetry/mailnav/internal/model"

// Remote exposes an engine as a model.Navigator for the control socket.
type Remote struct {
	engine  *Engine
	history func() []string
}

var _ model.Navigator = (*Remote)(nil)

// NewRemote wraps e. history lists visited locations and may be nil.
func NewRemote(e *Engine, history func() []string) *Remote {
	return &Remote{engine: e, history: history}
}

// Location returns the raw address bar text.
func (r *Remote) Location() string {
	return r.engine.bar.Fragment()
}

// SetLocation writes the bar without touching the engine's flags, so the
// next tick treats it like a user edit.
func (r *Remote) SetLocation(text string) {
	r.engine.bar.SetFragment(text)
}

func (r *Remote) Push(text string, force, suppress bool) {
	var opts []PushOption
	if force {
		opts = append(opts, WithForce())
	}
	if suppress {
		opts = append(opts, WithSuppress())
	}
	r.engine.PushLocation(text, opts...)
}

func (r *Remote) History() []string {
	if r.history == nil {
		return []string{}
	}
	return r.history()
}

func (r *Remote) Stats() model.NavStats {
	s := r.engine.Stats()
	return model.NavStats{
		Ticks:        s.Ticks,
		SkippedTicks: s.SkippedTicks,
		Fetches:      s.Fetches,
		StaleDropped: s.StaleDropped,
		Generation:   s.Generation,
		LastWritten:  s.LastWritten,
	}
}
