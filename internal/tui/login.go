package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// LoginPage asks for credentials when the server ends the session and
// returns to the browser once logged in.
type LoginPage struct {
	backend Backend
	timeout time.Duration

	user  textinput.Model
	pass  textinput.Model
	focus int

	next string
	err  string
	busy bool
}

// NewLoginPage creates the login page. username pre-fills the form.
func NewLoginPage(backend Backend, username string, timeout time.Duration) *LoginPage {
	if timeout <= 0 {
		timeout = model.DefaultRequestTimeout
	}
	user := textinput.New()
	user.Prompt = "Username: "
	user.SetValue(username)

	pass := textinput.New()
	pass.Prompt = "Password: "
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	return &LoginPage{backend: backend, timeout: timeout, user: user, pass: pass}
}

func (p *LoginPage) ID() string { return PageLogin }

func (p *LoginPage) Init() tea.Cmd { return nil }

// Enter shows the form. params is the path to return to.
func (p *LoginPage) Enter(params interface{}) tea.Cmd {
	p.next, _ = params.(string)
	p.err = "session expired, please log in"
	p.busy = false
	p.pass.Reset()
	if p.user.Value() == "" {
		return p.setFocus(0)
	}
	return p.setFocus(1)
}

func (p *LoginPage) setFocus(i int) tea.Cmd {
	p.focus = i
	if i == 0 {
		p.pass.Blur()
		return p.user.Focus()
	}
	p.user.Blur()
	return p.pass.Focus()
}

func (p *LoginPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case loginResultMsg:
		p.busy = false
		if msg.err != nil {
			p.err = msg.err.Error()
			p.pass.Reset()
			return p.setFocus(1), nil
		}
		p.err = ""
		p.user.Blur()
		p.pass.Blur()
		return nil, &PageNav{PageID: PageBrowser, Params: p.next}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return tea.Quit, nil
		case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
			return p.setFocus(1 - p.focus), nil
		case tea.KeyEnter:
			if p.focus == 0 {
				return p.setFocus(1), nil
			}
			return p.submit(), nil
		}
		var cmd tea.Cmd
		if p.focus == 0 {
			p.user, cmd = p.user.Update(msg)
		} else {
			p.pass, cmd = p.pass.Update(msg)
		}
		return cmd, nil
	}
	return nil, nil
}

func (p *LoginPage) submit() tea.Cmd {
	if p.busy {
		return nil
	}
	username := strings.TrimSpace(p.user.Value())
	password := p.pass.Value()
	if username == "" || password == "" {
		p.err = "username and password are required"
		return nil
	}
	p.busy = true
	p.err = ""

	backend, timeout := p.backend, p.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return loginResultMsg{err: backend.Login(ctx, username, password)}
	}
}

func (p *LoginPage) View(width, height int) string {
	lines := []string{
		renderBranding() + titleStyle.Render("  Sign in"),
		"",
		p.user.View(),
		p.pass.View(),
		"",
	}
	switch {
	case p.busy:
		lines = append(lines, dimStyle.Render("Signing in..."))
	case p.err != "":
		lines = append(lines, errorStyle.Render(p.err))
	default:
		lines = append(lines, dimStyle.Render("Tab: Switch field • Enter: Sign in • Ctrl+C: Quit"))
	}
	box := sectionStyle.Width(min(60, max(30, width-4))).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
