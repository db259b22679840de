package navigation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tinytelemetry/mailnav/internal/location"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

// Tick runs one detection cycle. It compares the address bar with the last
// text the engine acted on and, on drift, dispatches a fetch for the new
// location. The fetch runs in the background, bounded by ctx; Tick itself
// never blocks on I/O.
//
// Overlapping calls are not started: a Tick that finds another in progress
// returns immediately.
func (e *Engine) Tick(ctx context.Context) {
	if !e.ticking.CompareAndSwap(false, true) {
		e.skippedTicks.Inc()
		return
	}
	defer e.ticking.Store(false)
	e.ticks.Inc()

	e.mu.Lock()
	observed := e.bar.Fragment()

	if strings.TrimPrefix(observed, location.FragmentMarker) == "" {
		// Cleared or never set: write the default and let the next tick
		// pick it up as ordinary drift.
		e.bar.SetFragment(e.DefaultLocation())
		e.mu.Unlock()
		return
	}

	if observed == e.lastWritten && !e.forceRefetch {
		// Nothing to reconcile. A pending suppression can no longer match
		// a change, so it must not leak into a later one.
		e.suppressNextFetch = false
		e.mu.Unlock()
		return
	}

	e.forceRefetch = false
	e.lastWritten = observed
	if e.suppressNextFetch {
		e.suppressNextFetch = false
		if !e.cfg.ApplyStale {
			// The bar moved on without a fetch; whatever is in flight now
			// answers for a location nobody is looking at.
			e.generation.Inc()
			if e.cancelPrev != nil {
				e.cancelPrev()
				e.cancelPrev = nil
			}
		}
		e.mu.Unlock()
		return
	}

	state := location.Parse(observed, e.cfg.DefaultLocation)
	gen := e.generation.Inc()
	fetchCtx, cancel := context.WithCancel(ctx)
	if !e.cfg.ApplyStale && e.cancelPrev != nil {
		e.cancelPrev()
	}
	e.cancelPrev = cancel
	e.mu.Unlock()

	e.dispatch(fetchCtx, cancel, gen, state)
}

func (e *Engine) dispatch(ctx context.Context, cancel context.CancelFunc, gen uint64, state *location.State) {
	loc := location.Serialize(state)
	e.fetches.Inc()
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer cancel()
		resp, err := e.fetcher.Fetch(ctx, loc)
		e.resolve(ctx, gen, state, resp, err)
	}()
}

// resolve applies one fetch outcome. The handler is chosen from the
// response, not from the request.
func (e *Engine) resolve(ctx context.Context, gen uint64, state *location.State, resp *remotesync.Response, err error) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()

	loc := location.Serialize(state)
	if !e.cfg.ApplyStale {
		if reason := e.superseded(gen, loc); reason != "" {
			e.staleDropped.Inc()
			log.Printf("navigation: dropping response for %s (%s)", loc, reason)
			return
		}
	}

	switch {
	case errors.Is(err, remotesync.ErrSessionExpired):
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		log.Printf("navigation: fetch %s: %v", loc, err)
		e.notifier.Failure(err)
		return
	case !resp.OK():
		e.notifier.Message(resp.RespMsg)
		return
	}

	handler, herr := e.registry.Resolve(resp)
	if herr != nil {
		e.fatal(herr)
		return
	}

	e.commit(state)
	if err := handler(ctx, resp); err != nil {
		log.Printf("navigation: handler for %s: %v", loc, err)
		e.notifier.Failure(err)
	}
}

// superseded reports why a response for loc no longer describes what the
// bar shows, or "" when it still does.
func (e *Engine) superseded(gen uint64, loc string) string {
	if latest := e.generation.Load(); gen != latest {
		return fmt.Sprintf("generation %d, latest %d", gen, latest)
	}
	e.mu.Lock()
	shown := location.Normalize(e.bar.Fragment(), e.cfg.DefaultLocation)
	e.mu.Unlock()
	if shown != loc {
		return "bar now shows " + shown
	}
	return ""
}

func (e *Engine) commit(state *location.State) {
	e.mu.Lock()
	e.current = state.Clone()
	e.mu.Unlock()

	loc := location.Serialize(state)
	for _, fn := range e.onCommit {
		fn(loc)
	}
}
