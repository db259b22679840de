package tui

import tea "github.com/charmbracelet/bubbletea"

const (
	PageBrowser = "browser"
	PageLogin   = "login"
)

// Page is one full screen of the client. Update may ask the App to switch
// screens by returning a PageNav.
type Page interface {
	ID() string
	Init() tea.Cmd
	Update(msg tea.Msg) (tea.Cmd, *PageNav)
	View(width, height int) string
}

// PageNav switches to PageID, handing Params to its Enter method.
type PageNav struct {
	PageID string
	Params any
}

// Enterer is a Page that takes arguments when it becomes active.
type Enterer interface {
	Enter(params any) tea.Cmd
}
