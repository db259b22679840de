package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/mailnav/internal/journal"
	"github.com/tinytelemetry/mailnav/internal/location"
	"github.com/tinytelemetry/mailnav/internal/model"
	"github.com/tinytelemetry/mailnav/internal/navigation"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

const noticeTTL = 6 * time.Second

var statsPeriods = []string{"day", "week", "month"}

// Backend is the part of the remote client the UI calls directly, outside
// the navigation engine.
type Backend interface {
	Submit(ctx context.Context, method, location string, form url.Values) (*remotesync.Response, error)
	Login(ctx context.Context, username, password string) error
}

// History steps back through committed locations.
type History interface {
	Back() (journal.Entry, bool, error)
}

// BrowserConfig wires a BrowserPage.
type BrowserConfig struct {
	Engine         *navigation.Engine
	Bar            *Bar
	Relay          *Relay
	Backend        Backend
	History        History
	RequestTimeout time.Duration
}

// BrowserPage shows the content of the current location. It never fetches
// on its own: keys change the navigation state and the engine does the rest.
type BrowserPage struct {
	cfg  BrowserConfig
	keys KeyMap

	input   textinput.Model
	editing bool
	vp      viewport.Model

	content Content
	cursor  int

	notice    string
	noticeErr bool
	noticeAt  time.Time
	showHelp  bool

	width, height int
	started       bool
	now           func() time.Time
}

// NewBrowserPage creates the browser page.
func NewBrowserPage(cfg BrowserConfig) *BrowserPage {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = model.DefaultRequestTimeout
	}
	if cfg.Relay == nil {
		cfg.Relay = NewRelay(0)
	}
	in := textinput.New()
	in.Prompt = "#"
	in.Placeholder = "listing/?page=1"

	return &BrowserPage{
		cfg:   cfg,
		keys:  DefaultKeyMap(),
		input: in,
		vp:    viewport.New(80, 20),
		now:   time.Now,
	}
}

func (b *BrowserPage) ID() string { return PageBrowser }

func (b *BrowserPage) Init() tea.Cmd {
	if b.started {
		return nil
	}
	b.started = true
	return tea.Batch(b.cfg.Relay.Wait(), refreshTick())
}

// Enter resumes after a login. params is the path the session expired on.
func (b *BrowserPage) Enter(params interface{}) tea.Cmd {
	next, _ := params.(string)
	loc := strings.TrimPrefix(next, "/")
	cur := b.cfg.Engine.State()
	if loc == "" || location.New(loc).Base() == cur.Base() {
		b.cfg.Engine.Refresh()
	} else {
		b.cfg.Engine.PushLocation(loc, navigation.WithForce())
	}
	return nil
}

func (b *BrowserPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.resize(msg.Width, msg.Height)
		return nil, nil

	case refreshTickMsg:
		return refreshTick(), nil

	case ContentMsg:
		b.show(msg.Content)
		return b.cfg.Relay.Wait(), nil

	case NoticeMsg:
		b.setNotice(msg.Text, msg.Err)
		return b.cfg.Relay.Wait(), nil

	case LoginRequiredMsg:
		return b.cfg.Relay.Wait(), &PageNav{PageID: PageLogin, Params: nextFromLoginURL(msg.Target)}

	case actionDoneMsg:
		b.actionDone(msg)
		return nil, nil

	case tea.KeyMsg:
		return b.handleKey(msg)
	}
	return nil, nil
}

func (b *BrowserPage) resize(width, height int) {
	b.width, b.height = width, height
	b.vp.Width = max(10, width-2)
	b.vp.Height = max(3, b.bodyHeight())
	b.input.Width = max(10, width-12)
	if b.content.Body != "" {
		b.vp.SetContent(wrapText(b.content.Body, b.vp.Width))
	}
}

func (b *BrowserPage) show(c Content) {
	if c.Callback != b.content.Callback || c.Title != b.content.Title {
		b.cursor = 0
	}
	b.content = c
	if b.cursor >= len(c.Rows) {
		b.cursor = max(0, len(c.Rows)-1)
	}
	b.vp.SetContent(wrapText(c.Body, b.vp.Width))
	b.vp.GotoTop()
}

func (b *BrowserPage) setNotice(text string, isErr bool) {
	b.notice = text
	b.noticeErr = isErr
	b.noticeAt = b.now()
}

func (b *BrowserPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	if b.editing {
		return b.handleEditKey(msg), nil
	}

	km := b.keys
	switch {
	case key.Matches(msg, km.ForceQuit), key.Matches(msg, km.Quit):
		return tea.Quit, nil

	case key.Matches(msg, km.Help):
		b.showHelp = !b.showHelp

	case key.Matches(msg, km.Escape):
		if b.showHelp {
			b.showHelp = false
			break
		}
		if b.cfg.Engine.State().Has("mailid") {
			b.cfg.Engine.Update(func(s *location.State) { s.Delete("mailid") })
		}

	case key.Matches(msg, km.EditBar):
		b.editing = true
		b.input.SetValue(strings.TrimPrefix(b.cfg.Bar.Fragment(), location.FragmentMarker))
		b.input.CursorEnd()
		return b.input.Focus(), nil

	case key.Matches(msg, km.Up):
		if b.cursor > 0 {
			b.cursor--
		}
	case key.Matches(msg, km.Down):
		if b.cursor < len(b.content.Rows)-1 {
			b.cursor++
		}
	case key.Matches(msg, km.Enter):
		b.open()

	case key.Matches(msg, km.NextPage):
		b.turnPage(1)
	case key.Matches(msg, km.PrevPage):
		b.turnPage(-1)
	case key.Matches(msg, km.Refresh):
		b.cfg.Engine.Refresh()
	case key.Matches(msg, km.Back):
		b.back()

	case key.Matches(msg, km.Release):
		return b.quarantineAction("release"), nil
	case key.Matches(msg, km.Delete):
		return b.quarantineAction("delete"), nil
	case key.Matches(msg, km.Period):
		b.cyclePeriod()

	case key.Matches(msg, km.PageUp):
		b.vp.HalfPageUp()
	case key.Matches(msg, km.PageDown):
		b.vp.HalfPageDown()

	default:
		for i, kb := range km.Modules {
			if key.Matches(msg, kb) {
				b.cfg.Engine.PushLocation(model.ModuleLocations[i])
				break
			}
		}
	}
	return nil, nil
}

// handleEditKey edits the address bar text. Enter writes it to the bar
// exactly as a user typing a URL would; the engine notices the change.
func (b *BrowserPage) handleEditKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		b.editing = false
		b.input.Blur()
		b.cfg.Bar.SetFragment(strings.TrimSpace(b.input.Value()))
		return nil
	case tea.KeyEsc:
		b.editing = false
		b.input.Blur()
		return nil
	}
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	return cmd
}

func (b *BrowserPage) open() {
	if b.cursor >= len(b.content.Rows) {
		return
	}
	row := b.content.Rows[b.cursor]
	if row.Open == nil {
		return
	}
	b.cfg.Engine.Update(func(s *location.State) {
		if row.Base != "" {
			s.SetBase(row.Base, false)
		}
		s.SetAll(row.Open)
	})
}

func (b *BrowserPage) turnPage(delta int) {
	pg := b.content.Pagination
	if pg == nil {
		return
	}
	next := pg.Page + delta
	if next < 1 || next > pg.Pages {
		return
	}
	b.cfg.Engine.Update(func(s *location.State) {
		s.Set("page", strconv.Itoa(next))
	})
}

func (b *BrowserPage) back() {
	if b.cfg.History == nil {
		b.setNotice("history is disabled", true)
		return
	}
	entry, ok, err := b.cfg.History.Back()
	if err != nil {
		b.setNotice(err.Error(), true)
		return
	}
	if !ok {
		b.setNotice("no earlier location", false)
		return
	}
	b.cfg.Engine.PushLocation(entry.Location)
}

func (b *BrowserPage) cyclePeriod() {
	if b.content.Callback != CallbackStats {
		return
	}
	next := statsPeriods[0]
	for i, p := range statsPeriods {
		if p == b.content.Period {
			next = statsPeriods[(i+1)%len(statsPeriods)]
		}
	}
	b.cfg.Engine.Update(func(s *location.State) {
		s.Delete("from")
		s.Set("period", next)
	})
}

// selectedMailID returns the quarantined message an action applies to: the
// one shown in detail, else the selected row.
func (b *BrowserPage) selectedMailID() int64 {
	if b.content.MailID != 0 {
		return b.content.MailID
	}
	if b.content.Callback == CallbackQuarantine && b.cursor < len(b.content.Rows) {
		return b.content.Rows[b.cursor].MailID
	}
	return 0
}

// quarantineAction submits a release or delete. Mutations bypass the
// engine; the follow-up forced push reloads the listing.
func (b *BrowserPage) quarantineAction(what string) tea.Cmd {
	id := b.selectedMailID()
	if id == 0 {
		b.setNotice("select a quarantined message first", true)
		return nil
	}
	if b.cfg.Backend == nil {
		b.setNotice("actions are unavailable", true)
		return nil
	}

	backend, timeout := b.cfg.Backend, b.cfg.RequestTimeout
	target := fmt.Sprintf("quarantine/%s/?mailid=%d", what, id)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := backend.Submit(ctx, http.MethodPost, target, nil)
		return actionDoneMsg{what: what, resp: resp, err: err}
	}
}

func (b *BrowserPage) actionDone(msg actionDoneMsg) {
	switch {
	case errors.Is(msg.err, remotesync.ErrSessionExpired):
		// The redirect arrives through the relay.
	case msg.err != nil:
		b.setNotice(fmt.Sprintf("%s failed: %v", msg.what, msg.err), true)
	case !msg.resp.OK():
		b.setNotice(msg.resp.RespMsg, true)
	default:
		b.setNotice(msg.resp.RespMsg, false)
		b.cfg.Engine.Update(func(s *location.State) {
			s.Delete("mailid")
		}, navigation.WithForce())
	}
}

func nextFromLoginURL(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Query().Get("next")
}
