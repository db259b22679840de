// Package navigation keeps a client's address fragment, its in-memory
// navigation state and the server's content consistent.
//
// Page modules never fetch on their own. They call Push, which writes the
// address bar and arms the force/suppress flags; the next Tick notices the
// drift, fetches the location and hands the response to the handler the
// response names. Address-bar writes and fetches therefore share one path.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/mailnav/internal/location"
	"github.com/tinytelemetry/mailnav/internal/remotesync"

	"go.uber.org/atomic"
)

// DefaultPollInterval is how often Run compares the address bar.
const DefaultPollInterval = 300 * time.Millisecond

// Fetcher retrieves the response for a serialized location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (*remotesync.Response, error)
}

// Config holds engine settings.
type Config struct {
	// DefaultLocation is written to an empty address bar.
	DefaultLocation string `mapstructure:"default-location"`
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration `mapstructure:"poll-interval"`
	// ApplyStale applies every response in arrival order, even when a newer
	// location has been dispatched since. By default such responses are
	// dropped and superseded fetches are cancelled.
	ApplyStale bool `mapstructure:"apply-stale"`
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Ticks        int64
	SkippedTicks int64
	Fetches      int64
	StaleDropped int64
	Generation   uint64
	LastWritten  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the callback registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithNotifier sets where recoverable failures are reported.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithFatal replaces the hook invoked for configuration errors such as a
// missing handler. The default panics.
func WithFatal(fn func(error)) Option {
	return func(e *Engine) { e.fatal = fn }
}

// OnCommit registers fn to run after an "ok" response makes a location
// current, before its handler runs.
func OnCommit(fn func(loc string)) Option {
	return func(e *Engine) { e.onCommit = append(e.onCommit, fn) }
}

// Engine is the navigation engine: change detector and update controller
// for one address bar. Construct one per client and pass it to every page
// module.
type Engine struct {
	cfg      Config
	bar      AddressBar
	fetcher  Fetcher
	registry *Registry
	notifier Notifier
	fatal    func(error)
	onCommit []func(string)

	// mu guards the fields below and every address-bar read or write done
	// by the engine.
	mu                sync.Mutex
	lastWritten       string
	forceRefetch      bool
	suppressNextFetch bool
	current           *location.State
	cancelPrev        context.CancelFunc

	// handlerMu serializes response handling.
	handlerMu sync.Mutex
	inflight  sync.WaitGroup

	ticking      atomic.Bool
	generation   atomic.Uint64
	ticks        atomic.Int64
	skippedTicks atomic.Int64
	fetches      atomic.Int64
	staleDropped atomic.Int64
}

// New creates an engine bound to bar, fetching through fetcher.
func New(cfg Config, bar AddressBar, fetcher Fetcher, opts ...Option) (*Engine, error) {
	if bar == nil {
		return nil, errors.New("navigation: address bar is nil")
	}
	if fetcher == nil {
		return nil, errors.New("navigation: fetcher is nil")
	}
	if strings.TrimPrefix(cfg.DefaultLocation, location.FragmentMarker) == "" {
		return nil, errors.New("navigation: default location is empty")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	e := &Engine{
		cfg:      cfg,
		bar:      bar,
		fetcher:  fetcher,
		notifier: logNotifier{},
		fatal:    func(err error) { log.Panicf("navigation: %v", err) },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry(nil)
	}
	e.current = location.Parse(bar.Fragment(), cfg.DefaultLocation)
	return e, nil
}

// Registry returns the engine's callback registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// DefaultLocation returns the canonical text of the configured default.
func (e *Engine) DefaultLocation() string {
	return location.Normalize("", e.cfg.DefaultLocation)
}

// State returns a copy of the current navigation state: the last state
// pushed locally or confirmed by the server.
func (e *Engine) State() *location.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	last := e.lastWritten
	e.mu.Unlock()
	return Stats{
		Ticks:        e.ticks.Load(),
		SkippedTicks: e.skippedTicks.Load(),
		Fetches:      e.fetches.Load(),
		StaleDropped: e.staleDropped.Load(),
		Generation:   e.generation.Load(),
		LastWritten:  last,
	}
}

// Run polls the address bar until ctx is done, then waits for in-flight
// fetches. Change notifications from the bar trigger an immediate tick.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var changes <-chan struct{}
	if n, ok := e.bar.(ChangeNotifier); ok {
		changes = n.Changes()
	}

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.Wait()
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		case <-changes:
			e.Tick(ctx)
		}
	}
}

// Wait blocks until every dispatched fetch has been handled.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) String() string {
	return fmt.Sprintf("navigation.Engine{default=%q, interval=%s}", e.cfg.DefaultLocation, e.cfg.PollInterval)
}
