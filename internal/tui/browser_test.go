package tui

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/mailnav/internal/journal"
	"github.com/tinytelemetry/mailnav/internal/model"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

const listingBody = `{"status":"ok","callback":"listing","rows":[
	{"username":"admin@example.org","full_name":"Site Admin","role":"SuperAdmin","domain":"example.org","enabled":true},
	{"username":"alice@example.org","full_name":"Alice Martin","role":"SimpleUser","domain":"example.org","enabled":true}
],"pagination":{"page":1,"pages":3,"total":45}}`

const quarantineBody = `{"status":"ok","callback":"quarantine","rows":[
	{"id":7,"recipient":"bob@example.net","sender":"x@phish.example","subject":"Invoice","reason":"virus","score":99}
],"pagination":{"page":1,"pages":1,"total":1}}`

type stubHistory struct {
	entries []journal.Entry
	err     error
}

func (s *stubHistory) Back() (journal.Entry, bool, error) {
	if s.err != nil {
		return journal.Entry{}, false, s.err
	}
	if len(s.entries) < 2 {
		return journal.Entry{}, false, nil
	}
	s.entries = s.entries[:len(s.entries)-1]
	return s.entries[len(s.entries)-1], true, nil
}

func TestBrowser_FetchesAndRendersListing(t *testing.T) {
	h := newBrowserHarness(t, "", nil)
	h.fetcher.body["listing/"] = listingBody

	// First tick writes the default, the second fetches it.
	h.sync()
	h.sync()

	if got := h.bar.Fragment(); got != "listing/" {
		t.Fatalf("bar = %q", got)
	}
	if h.page.content.Callback != CallbackListing {
		t.Fatalf("content callback = %q", h.page.content.Callback)
	}
	view := h.page.View(120, 30)
	for _, want := range []string{"#listing/", "Accounts", "alice@example.org", "page 1/3"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestBrowser_ModuleKeys(t *testing.T) {
	t.Parallel()

	for i, loc := range model.ModuleLocations {
		h := newBrowserHarness(t, "listing/", nil)
		h.press(string(rune('1' + i)))
		if got := h.bar.Fragment(); got != loc {
			t.Errorf("key %d: bar = %q, want %q", i+1, got, loc)
		}
	}
}

func TestBrowser_Paging(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "listing/", nil)
	h.fetcher.body["listing/"] = listingBody
	h.sync()

	h.press("p")
	if got := h.bar.Fragment(); got != "listing/" {
		t.Fatalf("previous on first page moved to %q", got)
	}
	h.press("n")
	if got := h.bar.Fragment(); got != "listing/?page=2" {
		t.Fatalf("bar after next = %q", got)
	}
	h.sync()
	if calls := h.fetcher.Calls(); calls[len(calls)-1] != "listing/?page=2" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestBrowser_OpenRowAndClose(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "listing/", nil)
	h.fetcher.body["listing/"] = listingBody
	h.sync()

	h.press("j", "enter")
	want := "webmail/?account=alice%40example.org&mbox=INBOX"
	if got := h.bar.Fragment(); got != want {
		t.Fatalf("bar = %q, want %q", got, want)
	}

	h.engine.PushLocation("webmail/?mbox=INBOX&mailid=4")
	h.press("esc")
	if got := h.bar.Fragment(); got != "webmail/?mbox=INBOX" {
		t.Fatalf("esc left bar at %q", got)
	}
}

func TestBrowser_EditBarIsAUserEdit(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "listing/", nil)
	h.sync()

	h.press("/")
	if !h.page.editing {
		t.Fatal("expected edit mode")
	}
	h.page.input.SetValue("stats/?period=day ")
	h.press("enter")
	if h.page.editing {
		t.Fatal("enter must leave edit mode")
	}
	if got := h.bar.Fragment(); got != "stats/?period=day" {
		t.Fatalf("bar = %q", got)
	}

	h.sync()
	if calls := h.fetcher.Calls(); calls[len(calls)-1] != "stats/?period=day" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestBrowser_RefreshRefetches(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "listing/", nil)
	h.sync()
	before := len(h.fetcher.Calls())

	h.press("r")
	h.sync()
	if got := len(h.fetcher.Calls()); got != before+1 {
		t.Fatalf("refresh fetched %d times", got-before)
	}
}

func TestBrowser_ReleaseQuarantined(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "quarantine/", nil)
	h.fetcher.body["quarantine/"] = quarantineBody
	h.sync()
	before := len(h.fetcher.Calls())

	h.backend.resp = &remotesync.Response{Status: remotesync.StatusOK, RespMsg: "message 7 released"}
	cmd := h.press("x")
	if cmd == nil {
		t.Fatal("release returned no command")
	}
	h.page.Update(cmd())

	if len(h.backend.submits) != 1 || h.backend.submits[0] != http.MethodPost+" quarantine/release/?mailid=7" {
		t.Fatalf("submits = %v", h.backend.submits)
	}
	if h.page.notice != "message 7 released" || h.page.noticeErr {
		t.Fatalf("notice = %q err=%v", h.page.notice, h.page.noticeErr)
	}

	h.sync()
	if got := len(h.fetcher.Calls()); got != before+1 {
		t.Fatalf("listing refetched %d times after release, want 1", got-before)
	}
}

func TestBrowser_ActionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		resp       *remotesync.Response
		err        error
		wantNotice string
	}{
		{name: "ko", resp: &remotesync.Response{Status: remotesync.StatusKO, RespMsg: "no such item"}, wantNotice: "no such item"},
		{name: "transport", err: errors.New("connection refused"), wantNotice: "release failed: connection refused"},
		{name: "session expired", err: remotesync.ErrSessionExpired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newBrowserHarness(t, "quarantine/?mailid=7", nil)
			h.page.show(Content{Callback: CallbackViewQuarantine, Body: "x", MailID: 7})
			h.sync()
			before := len(h.fetcher.Calls())

			h.backend.resp, h.backend.err = tc.resp, tc.err
			h.page.Update(h.press("x")())

			if h.page.notice != tc.wantNotice {
				t.Fatalf("notice = %q, want %q", h.page.notice, tc.wantNotice)
			}
			h.sync()
			if got := len(h.fetcher.Calls()); got != before {
				t.Fatalf("failed action triggered %d fetches", got-before)
			}
			if got := h.bar.Fragment(); got != "quarantine/?mailid=7" {
				t.Fatalf("bar = %q", got)
			}
		})
	}
}

func TestBrowser_ReleaseNeedsSelection(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "listing/", nil)
	if cmd := h.press("x"); cmd != nil {
		t.Fatal("release without a quarantined message must not submit")
	}
	if !h.page.noticeErr {
		t.Fatal("expected an error notice")
	}
}

func TestBrowser_Back(t *testing.T) {
	t.Parallel()

	hist := &stubHistory{entries: []journal.Entry{{Location: "listing/"}, {Location: "stats/"}}}
	h := newBrowserHarness(t, "stats/", hist)

	h.press("b")
	if got := h.bar.Fragment(); got != "listing/" {
		t.Fatalf("bar after back = %q", got)
	}
	h.press("b")
	if h.page.notice != "no earlier location" {
		t.Fatalf("notice = %q", h.page.notice)
	}

	hist.err = errors.New("journal: closed")
	h.press("b")
	if !h.page.noticeErr {
		t.Fatal("journal error must be shown")
	}
}

func TestBrowser_StatsPeriodCycle(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "stats/?from=2025-03-01&period=week", nil)
	h.page.show(Content{Callback: CallbackStats, Period: "week"})

	h.press("t")
	if got := h.bar.Fragment(); got != "stats/?period=month" {
		t.Fatalf("bar = %q", got)
	}
}

func TestBrowser_LoginRequired(t *testing.T) {
	t.Parallel()

	h := newBrowserHarness(t, "quarantine/", nil)
	cmd, nav := h.page.Update(LoginRequiredMsg{Target: "http://mail.example/login?next=%2Fquarantine%2F"})
	if cmd == nil {
		t.Fatal("relay listener must be re-armed")
	}
	if nav == nil || nav.PageID != PageLogin || nav.Params != "/quarantine/" {
		t.Fatalf("nav = %+v", nav)
	}
}

func TestBrowser_FailureNotice(t *testing.T) {
	h := newBrowserHarness(t, "listing/", nil)
	h.fetcher.body["listing/"] = `{"status":"ko","respmsg":"permission denied"}`
	h.sync()

	if h.page.notice != "permission denied" || !h.page.noticeErr {
		t.Fatalf("notice = %q err=%v", h.page.notice, h.page.noticeErr)
	}
	if !strings.Contains(h.page.View(120, 30), "permission denied") {
		t.Fatal("notice not rendered")
	}
}

func TestRenderWaiting(t *testing.T) {
	at := time.UnixMilli(0)
	if got := renderWaiting("#stats/?period=week", at, 60, 5); !strings.Contains(got, "fetching stats/?period=week") {
		t.Fatalf("waiting view = %q", got)
	}
	if got := renderWaiting("", at, 60, 5); !strings.Contains(got, "fetching default page") {
		t.Fatalf("waiting view for empty bar = %q", got)
	}
	if a, b := renderWaiting("x", at, 40, 3), renderWaiting("x", at.Add(120*time.Millisecond), 40, 3); a == b {
		t.Fatal("frame did not advance with the clock")
	}
}
