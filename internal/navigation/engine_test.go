package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/mailnav/internal/location"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	respond func(ctx context.Context, loc string) (*remotesync.Response, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, loc string) (*remotesync.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, loc)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return okResponse(""), nil
	}
	return respond(ctx, loc)
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	failures []error
}

func (n *recordingNotifier) Message(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *recordingNotifier) Failure(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages), len(n.failures)
}

func okResponse(callback string) *remotesync.Response {
	return &remotesync.Response{Status: remotesync.StatusOK, Callback: callback}
}

type harness struct {
	engine   *Engine
	bar      *MemoryBar
	fetcher  *fakeFetcher
	notifier *recordingNotifier
	handled  chan string
	fatal    []error
	fatalMu  sync.Mutex
}

func newHarness(t *testing.T, initial string, cfg Config) *harness {
	t.Helper()
	h := &harness{
		bar:      NewMemoryBar(initial),
		fetcher:  &fakeFetcher{},
		notifier: &recordingNotifier{},
		handled:  make(chan string, 64),
	}
	if cfg.DefaultLocation == "" {
		cfg.DefaultLocation = "listing"
	}

	reg := NewRegistry(map[string]Handler{
		DefaultCallback: func(_ context.Context, _ *remotesync.Response) error {
			h.handled <- DefaultCallback
			return nil
		},
	})

	e, err := New(cfg, h.bar, h.fetcher,
		WithRegistry(reg),
		WithNotifier(h.notifier),
		WithFatal(func(err error) {
			h.fatalMu.Lock()
			h.fatal = append(h.fatal, err)
			h.fatalMu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.engine = e
	return h
}

// tick runs one detection cycle and waits for its fetch to be handled.
func (h *harness) tick() {
	h.engine.Tick(context.Background())
	h.engine.Wait()
}

// settle brings the engine to a state where the bar text has been fetched.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	h.tick()
	h.tick()
	for len(h.handled) > 0 {
		<-h.handled
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	bar := NewMemoryBar("")
	f := &fakeFetcher{}
	if _, err := New(Config{}, bar, f); err == nil {
		t.Error("expected error for empty default location")
	}
	if _, err := New(Config{DefaultLocation: "#"}, bar, f); err == nil {
		t.Error("expected error for marker-only default location")
	}
	if _, err := New(Config{DefaultLocation: "listing"}, nil, f); err == nil {
		t.Error("expected error for nil bar")
	}
	if _, err := New(Config{DefaultLocation: "listing"}, bar, nil); err == nil {
		t.Error("expected error for nil fetcher")
	}
}

func TestTick_EmptyBarWritesDefault(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "", Config{})

	h.tick()
	if got := h.bar.Fragment(); got != "listing/" {
		t.Fatalf("bar = %q, want default", got)
	}
	if calls := h.fetcher.Calls(); len(calls) != 0 {
		t.Fatalf("default write must not fetch, got %v", calls)
	}

	h.tick()
	if calls := h.fetcher.Calls(); len(calls) != 1 || calls[0] != "listing/" {
		t.Fatalf("calls = %v, want [listing/]", calls)
	}
	if got := <-h.handled; got != DefaultCallback {
		t.Fatalf("handled by %q", got)
	}
}

func TestTick_MarkerOnlyBarIsEmpty(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "#", Config{DefaultLocation: "webmail"})

	h.tick()
	if got := h.bar.Fragment(); got != "webmail/" {
		t.Fatalf("bar = %q, want webmail/", got)
	}
}

func TestTick_NoDriftNoFetch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "listing/?page=2", Config{})

	h.settle(t)
	before := len(h.fetcher.Calls())
	for i := 0; i < 5; i++ {
		h.tick()
	}
	if got := len(h.fetcher.Calls()); got != before {
		t.Fatalf("fetches = %d, want %d", got, before)
	}
	if st := h.engine.Stats(); st.LastWritten != "listing/?page=2" {
		t.Fatalf("LastWritten = %q", st.LastWritten)
	}
}

func TestTick_ExternalEditFetchesNormalized(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "listing/", Config{})
	h.settle(t)

	// A user typing into the address bar.
	h.bar.SetFragment("#webmail?mbox=INBOX&page=2")
	h.tick()

	calls := h.fetcher.Calls()
	if last := calls[len(calls)-1]; last != "webmail/?mbox=INBOX&page=2" {
		t.Fatalf("fetched %q", last)
	}
	if got := h.engine.State(); got.GetBase() != "webmail" || got.GetOr("mbox", "") != "INBOX" {
		t.Fatalf("state = %v", got)
	}
}

func TestPush_Idempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "listing/", Config{})
	h.settle(t)

	writes := h.bar.Writes()
	fetches := len(h.fetcher.Calls())

	s := location.New("listing").Set("page", "3")
	h.engine.Push(s)
	h.engine.Push(s)

	if got := h.bar.Writes() - writes; got != 1 {
		t.Fatalf("address bar writes = %d, want 1", got)
	}

	h.tick()
	h.tick()
	if got := len(h.fetcher.Calls()) - fetches; got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}

	// Pushing the already-current location again is a no-op.
	h.engine.Push(s)
	h.tick()
	if got := len(h.fetcher.Calls()) - fetches; got != 1 {
		t.Fatalf("fetches after re-push = %d, want 1", got)
	}
	if got := h.bar.Writes() - writes; got != 1 {
		t.Fatalf("writes after re-push = %d, want 1", got)
	}
}

func TestPush_Suppress(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "listing/", Config{})
	h.settle(t)
	fetches := len(h.fetcher.Calls())

	h.engine.Push(location.New("listing").Set("pattern", "foo"), WithSuppress())
	h.tick()
	if got := len(h.fetcher.Calls()) - fetches; got != 0 {
		t.Fatalf("suppressed change fetched %d times", got)
	}
	if st := h.engine.Stats(); st.LastWritten != "listing/?pattern=foo" {
		t.Fatalf("LastWritten = %q", st.LastWritten)
	}

	// The next unrelated drift fetches normally.
	h.bar.SetFragment("stats/?period=week")
	h.tick()
	calls := h.fetcher.Calls()
	if got := len(calls) - fetches; got != 1 || calls[len(calls)-1] != "stats/?period=week" {
		t.Fatalf("calls after unrelated drift = %v", calls[fetches:])
	}
}

func TestPush_SuppressDoesNotLeak(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "listing/", Config{})
	h.settle(t)
	fetches := len(h.fetcher.Calls())

	// Suppressing the location already recorded arms nothing.
	h.engine.Push(location.New("listing"), WithSuppress())
	h.tick()

	h.bar.SetFragment("webmail/")
	h.tick()
	if got := len(h.fetcher.Calls()) - fetches; got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestPush_ForceRefetchesUnchangedText(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "quarantine/?page=2", Config{})
	h.settle(t)
	fetches := len(h.fetcher.Calls())
	writes := h.bar.Writes()

	h.engine.Push(location.New("quarantine").Set("page", "2"), WithForce())
	if h.bar.Writes() != writes {
		t.Fatal("unchanged text must not be rewritten")
	}

	h.tick()
	if got := len(h.fetcher.Calls()) - fetches; got != 1 {
		t.Fatalf("forced fetches = %d, want 1", got)
	}

	h.tick()
	if got := len(h.fetcher.Calls()) - fetches; got != 1 {
		t.Fatalf("force must be consumed once, fetches = %d", got)
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "stats/", Config{})
	h.settle(t)
	fetches := len(h.fetcher.Calls())

	h.engine.Refresh()
	h.tick()
	if got := len(h.fetcher.Calls()) - fetches; got != 1 {
		t.Fatalf("Refresh fetches = %d, want 1", got)
	}
}

func TestUpdate_StartsFromCurrentState(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "listing/?sort_order=-date", Config{})
	h.settle(t)

	h.engine.Update(func(s *location.State) { s.Set("page", "2") })
	if got := h.bar.Fragment(); got != "listing/?page=2&sort_order=-date" {
		t.Fatalf("bar = %q", got)
	}

	h.engine.Update(func(s *location.State) { s.Delete("sort_order") })
	if got := h.bar.Fragment(); got != "listing/?page=2" {
		t.Fatalf("bar = %q", got)
	}
}

func mustDecode(t *testing.T, body string) *remotesync.Response {
	t.Helper()
	var resp remotesync.Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return &resp
}

func TestDispatch_CallbackResolution(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "webmail/", Config{})
	h.engine.Registry().Register("viewmail", func(_ context.Context, resp *remotesync.Response) error {
		h.handled <- "viewmail:" + resp.String("subject")
		return nil
	})

	viewmail := mustDecode(t, `{"status":"ok","callback":"viewmail","subject":"Hello"}`)
	unknown := mustDecode(t, `{"status":"ok","callback":"nosuchpage"}`)
	h.fetcher.respond = func(_ context.Context, loc string) (*remotesync.Response, error) {
		switch loc {
		case "webmail/?mailid=7":
			return viewmail, nil
		case "webmail/?mailid=8":
			return unknown, nil
		}
		return okResponse(""), nil
	}

	h.tick()
	if got := <-h.handled; got != DefaultCallback {
		t.Fatalf("response without callback handled by %q", got)
	}

	h.engine.PushLocation("webmail/?mailid=7")
	h.tick()
	if got := <-h.handled; got != "viewmail:Hello" {
		t.Fatalf("handled by %q", got)
	}

	h.engine.PushLocation("webmail/?mailid=8")
	h.tick()
	if got := <-h.handled; got != DefaultCallback {
		t.Fatalf("unknown callback handled by %q", got)
	}
}

func TestDispatch_MissingHandlerIsFatal(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		fatals []error
	)
	bar := NewMemoryBar("listing/")
	f := &fakeFetcher{respond: func(context.Context, string) (*remotesync.Response, error) {
		return okResponse("listing"), nil
	}}
	e, err := New(Config{DefaultLocation: "listing"}, bar, f,
		WithNotifier(&recordingNotifier{}),
		WithFatal(func(err error) {
			mu.Lock()
			fatals = append(fatals, err)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.Tick(context.Background())
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(fatals) != 1 {
		t.Fatalf("fatal calls = %d, want 1", len(fatals))
	}
	if !errors.Is(fatals[0], ErrNoHandler) {
		t.Fatalf("fatal error = %v, want ErrNoHandler", fatals[0])
	}
	var mhe *MissingHandlerError
	if !errors.As(fatals[0], &mhe) || mhe.Callback != "listing" {
		t.Fatalf("fatal error = %#v", fatals[0])
	}
}

func TestDispatch_FailuresLeaveStateUntouched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		respond      func(context.Context, string) (*remotesync.Response, error)
		wantMessages int
		wantFailures int
		wantMessage  string
	}{
		{
			name: "ko",
			respond: func(context.Context, string) (*remotesync.Response, error) {
				return &remotesync.Response{Status: remotesync.StatusKO, RespMsg: "Mailbox not found"}, nil
			},
			wantMessages: 1,
			wantMessage:  "Mailbox not found",
		},
		{
			name: "transport",
			respond: func(_ context.Context, loc string) (*remotesync.Response, error) {
				return nil, &remotesync.TransportError{Location: loc, StatusCode: http.StatusInternalServerError, Err: errors.New("boom")}
			},
			wantFailures: 1,
		},
		{
			name: "session expired",
			respond: func(context.Context, string) (*remotesync.Response, error) {
				return nil, remotesync.ErrSessionExpired
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, "listing/", Config{})
			h.settle(t)
			before := h.engine.State()
			writes := h.bar.Writes()

			h.fetcher.mu.Lock()
			h.fetcher.respond = tc.respond
			h.fetcher.mu.Unlock()

			h.bar.SetFragment("webmail/?mbox=Drafts")
			writes++
			h.tick()

			if got := h.engine.State(); !got.Equal(before) {
				t.Errorf("state = %v, want %v", got, before)
			}
			if got := h.bar.Writes(); got != writes {
				t.Errorf("address bar writes = %d, want %d", got, writes)
			}
			if got := h.bar.Fragment(); got != "webmail/?mbox=Drafts" {
				t.Errorf("bar = %q", got)
			}
			if len(h.handled) != 0 {
				t.Error("handler must not run")
			}

			messages, failures := h.notifier.counts()
			if messages != tc.wantMessages || failures != tc.wantFailures {
				t.Fatalf("notifications = (%d, %d), want (%d, %d)", messages, failures, tc.wantMessages, tc.wantFailures)
			}
			if tc.wantMessage != "" && h.notifier.messages[0] != tc.wantMessage {
				t.Errorf("message = %q", h.notifier.messages[0])
			}
		})
	}
}

func TestDispatch_SessionExpiryRedirectsWithoutNotification(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(remotesync.DefaultSessionExpiredStatus)
	}))
	defer srv.Close()

	redirects := make(chan string, 1)
	client, err := remotesync.NewClient(remotesync.Config{BaseURL: srv.URL}, remotesync.RedirectFunc(func(target string) {
		redirects <- target
	}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	notifier := &recordingNotifier{}
	e, err := New(Config{DefaultLocation: "listing"}, NewMemoryBar("quarantine/?page=3"), client,
		WithNotifier(notifier),
		WithRegistry(NewRegistry(map[string]Handler{
			DefaultCallback: func(context.Context, *remotesync.Response) error {
				t.Error("handler must not run")
				return nil
			},
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.Tick(context.Background())
	e.Wait()

	select {
	case target := <-redirects:
		u, err := url.Parse(target)
		if err != nil {
			t.Fatalf("redirect target %q: %v", target, err)
		}
		if u.Path != "/login" || u.Query().Get("next") != "/quarantine/" {
			t.Fatalf("redirect target = %q", target)
		}
	default:
		t.Fatal("expected a login redirect")
	}
	if m, f := notifier.counts(); m != 0 || f != 0 {
		t.Fatalf("notifications = (%d, %d), want none", m, f)
	}
}

func TestDispatch_HandlerErrorNotifies(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "settings/", Config{})
	h.engine.Registry().Register("settings", func(context.Context, *remotesync.Response) error {
		return errors.New("bad payload")
	})
	h.fetcher.respond = func(context.Context, string) (*remotesync.Response, error) {
		return okResponse("settings"), nil
	}

	h.tick()
	if _, f := h.notifier.counts(); f != 1 {
		t.Fatalf("failures = %d, want 1", f)
	}
	// The location was confirmed before the handler ran.
	if got := h.engine.State().GetBase(); got != "settings" {
		t.Fatalf("state base = %q", got)
	}
}

func TestDispatch_CommitBeforeHandler(t *testing.T) {
	t.Parallel()

	commits := make(chan string, 4)
	bar := NewMemoryBar("listing/?page=4")
	f := &fakeFetcher{}

	var e *Engine
	seen := make(chan string, 1)
	reg := NewRegistry(map[string]Handler{
		DefaultCallback: func(context.Context, *remotesync.Response) error {
			seen <- location.Serialize(e.State())
			return nil
		},
	})
	e, err := New(Config{DefaultLocation: "listing"}, bar, f, WithRegistry(reg), OnCommit(func(loc string) {
		commits <- loc
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.Tick(context.Background())
	e.Wait()

	if got := <-commits; got != "listing/?page=4" {
		t.Fatalf("commit = %q", got)
	}
	if got := <-seen; got != "listing/?page=4" {
		t.Fatalf("handler saw state %q", got)
	}
}

func TestDispatch_HandlerCanPush(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "listing/", Config{})
	h.engine.Registry().Register("listing", func(_ context.Context, resp *remotesync.Response) error {
		// A handler correcting the page number without a refetch.
		h.engine.Update(func(s *location.State) { s.Set("page", "1") }, WithSuppress())
		return nil
	})
	h.fetcher.respond = func(context.Context, string) (*remotesync.Response, error) {
		return okResponse("listing"), nil
	}

	h.tick()
	if got := h.bar.Fragment(); got != "listing/?page=1" {
		t.Fatalf("bar = %q", got)
	}
	h.tick()
	if got := len(h.fetcher.Calls()); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

// blockingFetcher holds every fetch for a location until released.
type blockingFetcher struct {
	fakeFetcher
	gates        map[string]chan struct{}
	ignoreCancel bool
}

func (b *blockingFetcher) Fetch(ctx context.Context, loc string) (*remotesync.Response, error) {
	resp, err := b.fakeFetcher.Fetch(ctx, loc)
	if gate, ok := b.gates[loc]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			if !b.ignoreCancel {
				return nil, ctx.Err()
			}
			<-gate
		}
	}
	return resp, err
}

func TestDispatch_StaleResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		applyStale  bool
		wantHandled []string
		wantDropped int64
	}{
		{name: "dropped", wantHandled: []string{"webmail"}, wantDropped: 1},
		{name: "applied", applyStale: true, wantHandled: []string{"webmail", "listing"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gate := make(chan struct{})
			f := &blockingFetcher{gates: map[string]chan struct{}{"listing/": gate}, ignoreCancel: true}
			f.respond = func(_ context.Context, loc string) (*remotesync.Response, error) {
				return okResponse(location.Parse(loc, "listing").GetBase()), nil
			}

			var mu sync.Mutex
			var handled []string
			record := func(_ context.Context, resp *remotesync.Response) error {
				mu.Lock()
				handled = append(handled, resp.Callback)
				mu.Unlock()
				return nil
			}
			reg := NewRegistry(map[string]Handler{"listing": record, "webmail": record})

			bar := NewMemoryBar("listing/")
			e, err := New(Config{DefaultLocation: "listing", ApplyStale: tc.applyStale}, bar, f,
				WithRegistry(reg), WithNotifier(&recordingNotifier{}))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			e.Tick(context.Background())
			bar.SetFragment("webmail/")
			e.Tick(context.Background())

			// Let the newer fetch finish first, then release the older one.
			deadline := time.After(5 * time.Second)
			for {
				mu.Lock()
				n := len(handled)
				mu.Unlock()
				if n >= 1 {
					break
				}
				select {
				case <-deadline:
					t.Fatal("timed out waiting for webmail response")
				case <-time.After(5 * time.Millisecond):
				}
			}
			close(gate)
			e.Wait()

			mu.Lock()
			defer mu.Unlock()
			if fmt.Sprint(handled) != fmt.Sprint(tc.wantHandled) {
				t.Fatalf("handled = %v, want %v", handled, tc.wantHandled)
			}
			if got := e.Stats().StaleDropped; got != tc.wantDropped {
				t.Fatalf("StaleDropped = %d, want %d", got, tc.wantDropped)
			}
			want := "webmail"
			if tc.applyStale {
				want = "listing"
			}
			if got := e.State().GetBase(); got != want {
				t.Fatalf("state base = %q, want %q", got, want)
			}
		})
	}
}

func TestDispatch_ResponseAfterBarMovedIsDropped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		move func(e *Engine)
	}{
		{"suppressed push then tick", func(e *Engine) {
			e.PushLocation("webmail/?mbox=INBOX", WithSuppress())
			e.Tick(context.Background())
		}},
		{"push before next tick", func(e *Engine) {
			e.PushLocation("webmail/?mbox=INBOX")
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gate := make(chan struct{})
			f := &blockingFetcher{gates: map[string]chan struct{}{"listing/": gate}, ignoreCancel: true}
			f.respond = func(context.Context, string) (*remotesync.Response, error) {
				return okResponse(""), nil
			}
			var committed []string
			var mu sync.Mutex
			bar := NewMemoryBar("listing/")
			e, err := New(Config{DefaultLocation: "listing"}, bar, f,
				WithNotifier(&recordingNotifier{}),
				OnCommit(func(loc string) {
					mu.Lock()
					committed = append(committed, loc)
					mu.Unlock()
				}))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			e.Tick(context.Background())
			tc.move(e)
			close(gate)
			e.Wait()

			if got := location.Serialize(e.State()); got != bar.Fragment() {
				t.Fatalf("state %q diverges from bar %q", got, bar.Fragment())
			}
			if got := e.Stats().StaleDropped; got != 1 {
				t.Fatalf("StaleDropped = %d, want 1", got)
			}
			mu.Lock()
			defer mu.Unlock()
			if len(committed) != 0 {
				t.Fatalf("committed %v for a location the bar left", committed)
			}
		})
	}
}

func TestDispatch_SupersededFetchCancelled(t *testing.T) {
	t.Parallel()

	cancelled := make(chan struct{})
	f := &fakeFetcher{respond: func(ctx context.Context, loc string) (*remotesync.Response, error) {
		if loc == "listing/" {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return okResponse(""), nil
	}}

	notifier := &recordingNotifier{}
	bar := NewMemoryBar("listing/")
	e, err := New(Config{DefaultLocation: "listing"}, bar, f, WithNotifier(notifier))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.Tick(context.Background())
	bar.SetFragment("stats/")
	e.Tick(context.Background())

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	e.Wait()

	if _, failures := notifier.counts(); failures != 0 {
		t.Fatalf("cancellation reported %d failures", failures)
	}
}

func TestTick_SkipsWhileTicking(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	bar := &hookBar{MemoryBar: NewMemoryBar("listing/")}
	bar.onRead = func() {
		select {
		case entered <- struct{}{}:
			<-release
		default:
		}
	}
	e, err := New(Config{DefaultLocation: "listing"}, bar, &fakeFetcher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Tick(context.Background())
	}()
	<-entered
	e.Tick(context.Background())
	close(release)
	<-done
	e.Wait()

	st := e.Stats()
	if st.Ticks != 1 || st.SkippedTicks != 1 {
		t.Fatalf("stats = %+v, want 1 tick and 1 skipped", st)
	}
}

// hookBar runs onRead before each read once armed.
type hookBar struct {
	*MemoryBar
	onRead func()
}

func (b *hookBar) Fragment() string {
	if b.onRead != nil {
		b.onRead()
	}
	return b.MemoryBar.Fragment()
}

func TestRun_ReactsToChanges(t *testing.T) {
	t.Parallel()

	bar := NewMemoryBar("listing/")
	handled := make(chan string, 8)
	reg := NewRegistry(map[string]Handler{
		DefaultCallback: func(_ context.Context, resp *remotesync.Response) error {
			handled <- resp.String("page")
			return nil
		},
	})
	f := &fakeFetcher{respond: func(_ context.Context, loc string) (*remotesync.Response, error) {
		page := location.Parse(loc, "listing").GetOr("page", "1")
		return &remotesync.Response{
			Status: remotesync.StatusOK,
			Fields: map[string]json.RawMessage{"page": json.RawMessage(`"` + page + `"`)},
		}, nil
	}}

	// A long interval leaves the change channel as the only trigger.
	e, err := New(Config{DefaultLocation: "listing", PollInterval: time.Hour}, bar, f, WithRegistry(reg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	expect := func(want string) {
		t.Helper()
		select {
		case got := <-handled:
			if got != want {
				t.Fatalf("page = %q, want %q", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for page %s", want)
		}
	}

	expect("1")
	e.Update(func(s *location.State) { s.Set("page", "2") })
	expect("2")

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestNew_InitialStateFromBar(t *testing.T) {
	t.Parallel()

	e, err := New(Config{DefaultLocation: "listing"}, NewMemoryBar("#quarantine?page=2"), &fakeFetcher{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := location.Serialize(e.State()); got != "quarantine/?page=2" {
		t.Fatalf("State = %q", got)
	}
	if got := e.DefaultLocation(); got != "listing/" {
		t.Fatalf("DefaultLocation = %q", got)
	}
}
