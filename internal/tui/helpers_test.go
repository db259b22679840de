package tui

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/mailnav/internal/navigation"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func response(t *testing.T, body string) *remotesync.Response {
	t.Helper()
	var resp remotesync.Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	return &resp
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	body  map[string]string
	t     *testing.T
}

func (f *fakeFetcher) Fetch(_ context.Context, loc string) (*remotesync.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, loc)
	body, ok := f.body[loc]
	f.mu.Unlock()
	if !ok {
		body = `{"status":"ok"}`
	}
	return response(f.t, body), nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeBackend struct {
	mu       sync.Mutex
	submits  []string
	resp     *remotesync.Response
	err      error
	logins   []string
	loginErr error
}

func (b *fakeBackend) Submit(_ context.Context, method, loc string, _ url.Values) (*remotesync.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits = append(b.submits, method+" "+loc)
	return b.resp, b.err
}

func (b *fakeBackend) Login(_ context.Context, username, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logins = append(b.logins, username)
	return b.loginErr
}

type browserHarness struct {
	page    *BrowserPage
	engine  *navigation.Engine
	bar     *Bar
	relay   *Relay
	fetcher *fakeFetcher
	backend *fakeBackend
}

func newBrowserHarness(t *testing.T, initial string, history History) *browserHarness {
	t.Helper()
	h := &browserHarness{
		bar:     NewBar(initial),
		relay:   NewRelay(64),
		fetcher: &fakeFetcher{body: map[string]string{}, t: t},
		backend: &fakeBackend{},
	}
	t.Cleanup(h.relay.Close)

	reg := RegisterCallbacks(navigation.NewRegistry(nil), h.relay.Send)
	e, err := navigation.New(navigation.Config{DefaultLocation: "listing/"}, h.bar, h.fetcher,
		navigation.WithRegistry(reg),
		navigation.WithNotifier(navigation.NotifyFuncs{
			OnMessage: func(text string) { h.relay.Send(NoticeMsg{Text: text, Err: true}) },
			OnFailure: func(err error) { h.relay.Send(NoticeMsg{Text: err.Error(), Err: true}) },
		}),
	)
	if err != nil {
		t.Fatalf("navigation.New: %v", err)
	}
	h.engine = e
	h.page = NewBrowserPage(BrowserConfig{
		Engine:  e,
		Bar:     h.bar,
		Relay:   h.relay,
		Backend: h.backend,
		History: history,
	})
	h.page.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return h
}

// sync runs one engine cycle and feeds every relayed message to the page.
func (h *browserHarness) sync() {
	h.engine.Tick(context.Background())
	h.engine.Wait()
	for len(h.relay.ch) > 0 {
		h.page.Update(<-h.relay.ch)
	}
}

func (h *browserHarness) press(keys ...string) tea.Cmd {
	var last tea.Cmd
	for _, k := range keys {
		last, _ = h.page.Update(keyMsg(k))
	}
	return last
}
