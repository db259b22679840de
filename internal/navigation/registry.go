package navigation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

// DefaultCallback is the handler used when a response names none.
const DefaultCallback = "default"

// ErrNoHandler matches every *MissingHandlerError.
var ErrNoHandler = errors.New("navigation: no handler registered")

// MissingHandlerError is a configuration bug: the response named a callback
// that is not registered and no default exists either.
type MissingHandlerError struct {
	Callback string
}

func (e *MissingHandlerError) Error() string {
	if e.Callback == "" {
		return fmt.Sprintf("navigation: no %q handler registered", DefaultCallback)
	}
	return fmt.Sprintf("navigation: no handler for callback %q and no %q fallback", e.Callback, DefaultCallback)
}

func (e *MissingHandlerError) Unwrap() error { return ErrNoHandler }

// Handler consumes an "ok" response. Handlers run one at a time.
type Handler func(ctx context.Context, resp *remotesync.Response) error

// Registry maps callback names to handlers. Page modules register at
// startup; entries are never removed.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry seeded with initial, which may be nil.
func NewRegistry(initial map[string]Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(initial))}
	for name, h := range initial {
		r.handlers[name] = h
	}
	return r
}

// Register sets the handler for name, replacing any previous one.
func (r *Registry) Register(name string, h Handler) *Registry {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return r
}

// Resolve picks the handler named by resp.Callback, falling back to the
// default handler.
func (r *Registry) Resolve(resp *remotesync.Response) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if resp.Callback != "" {
		if h, ok := r.handlers[resp.Callback]; ok {
			return h, nil
		}
	}
	if h, ok := r.handlers[DefaultCallback]; ok {
		return h, nil
	}
	return nil, &MissingHandlerError{Callback: resp.Callback}
}

// MustResolve is Resolve that panics on a missing handler.
func (r *Registry) MustResolve(resp *remotesync.Response) Handler {
	h, err := r.Resolve(resp)
	if err != nil {
		panic(err)
	}
	return h
}

// Names returns the registered callback names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
