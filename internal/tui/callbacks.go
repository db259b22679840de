package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/mailnav/internal/model"
	"github.com/tinytelemetry/mailnav/internal/navigation"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
)

// Callback names the backend puts in its responses.
const (
	CallbackListing        = "listing"
	CallbackListMailbox    = "listmailbox"
	CallbackViewMail       = "viewmail"
	CallbackQuarantine     = "quarantine"
	CallbackViewQuarantine = "viewquarantine"
	CallbackStats          = "stats"
	CallbackSettings       = "settings"
)

const dateLayout = "2006-01-02 15:04"

type builder func(resp *remotesync.Response) (Content, error)

var builders = map[string]builder{
	CallbackListing:        buildListing,
	CallbackListMailbox:    buildMailbox,
	CallbackViewMail:       buildMail,
	CallbackQuarantine:     buildQuarantine,
	CallbackViewQuarantine: buildQuarantined,
	CallbackStats:          buildStats,
	CallbackSettings:       buildSettings,
}

// RegisterCallbacks registers a handler for every page the backend serves
// plus the default one. Handlers run on engine goroutines and only talk to
// the UI through send.
func RegisterCallbacks(reg *navigation.Registry, send func(tea.Msg)) *navigation.Registry {
	reg.Register(navigation.DefaultCallback, func(_ context.Context, resp *remotesync.Response) error {
		if resp.RespMsg != "" {
			send(NoticeMsg{Text: resp.RespMsg})
		}
		return nil
	})
	for name, build := range builders {
		reg.Register(name, show(name, build, send))
	}
	return reg
}

func show(name string, build builder, send func(tea.Msg)) navigation.Handler {
	return func(_ context.Context, resp *remotesync.Response) error {
		c, err := build(resp)
		if err != nil {
			return fmt.Errorf("tui: %s: %w", name, err)
		}
		c.Callback = name
		send(ContentMsg{Content: c})
		if resp.RespMsg != "" {
			send(NoticeMsg{Text: resp.RespMsg})
		}
		return nil
	}
}

func pagination(resp *remotesync.Response) (*model.Page, error) {
	if !resp.Has("pagination") {
		return nil, nil
	}
	var pg model.Page
	if err := resp.Decode("pagination", &pg); err != nil {
		return nil, err
	}
	return &pg, nil
}

func buildListing(resp *remotesync.Response) (Content, error) {
	var (
		accounts []model.Account
		domains  []model.Domain
	)
	if err := resp.Decode("rows", &accounts); err != nil {
		return Content{}, err
	}
	if resp.Has("domains") {
		if err := resp.Decode("domains", &domains); err != nil {
			return Content{}, err
		}
	}
	pg, err := pagination(resp)
	if err != nil {
		return Content{}, err
	}

	parts := make([]string, 0, len(domains))
	for _, d := range domains {
		parts = append(parts, fmt.Sprintf("%s (%d)", d.Name, d.Mailboxes))
	}

	c := Content{
		Title:      "Accounts",
		Header:     []string{"Username", "Name", "Role", "Domain", "Enabled"},
		Pagination: pg,
	}
	if len(parts) > 0 {
		c.Summary = "Domains: " + strings.Join(parts, ", ")
	}
	for _, a := range accounts {
		c.Rows = append(c.Rows, Row{
			Cells: []string{a.Username, a.FullName, a.Role, a.Domain, yesNo(a.Enabled)},
			Base:  "webmail/",
			Open:  map[string]string{"account": a.Username, "mbox": "INBOX"},
		})
	}
	return c, nil
}

func buildMailbox(resp *remotesync.Response) (Content, error) {
	var msgs []model.Message
	if err := resp.Decode("rows", &msgs); err != nil {
		return Content{}, err
	}
	pg, err := pagination(resp)
	if err != nil {
		return Content{}, err
	}

	title := resp.String("mbox")
	if account := resp.String("account"); account != "" {
		title = account + " / " + title
	}
	c := Content{
		Title:      title,
		Header:     []string{"", "From", "Subject", "Date"},
		Pagination: pg,
	}
	for _, m := range msgs {
		flag := ""
		if m.Unread {
			flag = "●"
		}
		c.Rows = append(c.Rows, Row{
			Cells: []string{flag, m.From, m.Subject, m.Date.Format(dateLayout)},
			Open:  map[string]string{"mailid": strconv.FormatInt(m.ID, 10)},
		})
	}
	return c, nil
}

func buildMail(resp *remotesync.Response) (Content, error) {
	var m model.Message
	if err := resp.Decode("mail", &m); err != nil {
		return Content{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From:    %s\n", m.From)
	fmt.Fprintf(&b, "To:      %s\n", m.To)
	fmt.Fprintf(&b, "Date:    %s\n", m.Date.Format(dateLayout))
	fmt.Fprintf(&b, "Subject: %s\n\n", m.Subject)
	b.WriteString(m.Body)
	return Content{Title: m.Subject, Body: b.String()}, nil
}

func buildQuarantine(resp *remotesync.Response) (Content, error) {
	var items []model.QuarantineItem
	if err := resp.Decode("rows", &items); err != nil {
		return Content{}, err
	}
	pg, err := pagination(resp)
	if err != nil {
		return Content{}, err
	}

	c := Content{
		Title:      "Quarantine",
		Header:     []string{"ID", "Recipient", "Sender", "Subject", "Reason", "Score"},
		Pagination: pg,
	}
	for _, it := range items {
		id := strconv.FormatInt(it.ID, 10)
		c.Rows = append(c.Rows, Row{
			Cells:  []string{id, it.Recipient, it.Sender, it.Subject, it.Reason, strconv.FormatFloat(it.Score, 'f', 1, 64)},
			MailID: it.ID,
			Open:   map[string]string{"mailid": id},
		})
	}
	return c, nil
}

func buildQuarantined(resp *remotesync.Response) (Content, error) {
	var it model.QuarantineItem
	if err := resp.Decode("mail", &it); err != nil {
		return Content{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From:    %s\n", it.Sender)
	fmt.Fprintf(&b, "To:      %s\n", it.Recipient)
	fmt.Fprintf(&b, "Date:    %s\n", it.Date.Format(dateLayout))
	fmt.Fprintf(&b, "Reason:  %s (score %.1f)\n", it.Reason, it.Score)
	fmt.Fprintf(&b, "Subject: %s\n\n", it.Subject)
	b.WriteString(it.Body)
	return Content{Title: "Quarantined: " + it.Subject, Body: b.String(), MailID: it.ID}, nil
}

func buildStats(resp *remotesync.Response) (Content, error) {
	var series []model.TrafficPoint
	if err := resp.Decode("series", &series); err != nil {
		return Content{}, err
	}
	period := resp.String("period")
	title := fmt.Sprintf("Traffic, %s since %s", period, resp.String("from"))
	if domain := resp.String("domain"); domain != "" {
		title += " for " + domain
	}

	c := Content{
		Title:  title,
		Header: []string{"Day", "Sent", "Received", "Spam"},
		Series: series,
		Period: period,
	}
	for _, p := range series {
		c.Rows = append(c.Rows, Row{Cells: []string{
			p.Day.Format("2006-01-02"),
			strconv.FormatInt(p.Sent, 10),
			strconv.FormatInt(p.Received, 10),
			strconv.FormatInt(p.Spam, 10),
		}})
	}
	return c, nil
}

func buildSettings(resp *remotesync.Response) (Content, error) {
	var settings []model.Setting
	if err := resp.Decode("settings", &settings); err != nil {
		return Content{}, err
	}
	c := Content{Title: "Settings", Header: []string{"Name", "Value"}}
	for _, s := range settings {
		c.Rows = append(c.Rows, Row{Cells: []string{s.Name, s.Value}})
	}
	return c, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
