package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/mailnav/internal/model"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

// ContentMsg carries a page rendered from a server response.
type ContentMsg struct {
	Content Content
}

// NoticeMsg is a transient message for the notification line.
type NoticeMsg struct {
	Text string
	Err  bool
}

// LoginRequiredMsg is sent when the server ended the session. Target is
// the login URL the client was redirected to.
type LoginRequiredMsg struct {
	Target string
}

type actionDoneMsg struct {
	what string
	resp *remotesync.Response
	err  error
}

type loginResultMsg struct {
	err error
}

type refreshTickMsg struct{}

// Content is what the browser shows for one response.
type Content struct {
	Callback   string
	Title      string
	Summary    string
	Header     []string
	Rows       []Row
	Body       string
	Pagination *model.Page
	Series     []model.TrafficPoint
	Period     string
	// MailID is the quarantined message shown in detail, if any.
	MailID int64
}

// Row is one line of a listing. Open, when set, turns the current location
// into the row's detail location.
type Row struct {
	Cells  []string
	MailID int64
	Open   map[string]string
	Base   string
}

// Relay carries messages from engine goroutines into the Bubble Tea loop.
type Relay struct {
	ch        chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
}

// NewRelay returns a relay buffering up to size messages.
func NewRelay(size int) *Relay {
	if size <= 0 {
		size = 64
	}
	return &Relay{ch: make(chan tea.Msg, size), done: make(chan struct{})}
}

// Send queues msg. It blocks while the buffer is full and returns
// immediately once the relay is closed.
func (r *Relay) Send(msg tea.Msg) {
	select {
	case r.ch <- msg:
	case <-r.done:
	}
}

// Wait returns a command that delivers the next queued message.
func (r *Relay) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-r.ch:
			return msg
		case <-r.done:
			return nil
		}
	}
}

// Close releases blocked senders.
func (r *Relay) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

const refreshInterval = 250 * time.Millisecond

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshTickMsg{} })
}
