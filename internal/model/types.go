package model

import (
	"errors"
	"time"
)

// Account roles.
const (
	RoleSuperAdmin  = "SuperAdmin"
	RoleDomainAdmin = "DomainAdmin"
	RoleSimpleUser  = "SimpleUser"
)

// Errors shared by every AdminAPI implementation.
var (
	ErrNotFound        = errors.New("not found")
	ErrBadCredentials  = errors.New("bad credentials")
	ErrAlreadyReleased = errors.New("message already released")
)

// Domain is a mail domain hosted by the server.
type Domain struct {
	Name      string `json:"name" yaml:"name"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	QuotaMB   int64  `json:"quota_mb" yaml:"quota_mb"`
	Mailboxes int    `json:"mailboxes" yaml:"-"`
}

// Account is a mailbox owner. Role is one of the Role constants.
type Account struct {
	Username string `json:"username" yaml:"username"`
	Domain   string `json:"domain" yaml:"domain"`
	FullName string `json:"full_name" yaml:"full_name"`
	Role     string `json:"role" yaml:"role"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Password string `json:"-" yaml:"password"`
}

// Message is one stored mail in an account's mailbox. Body is only filled
// when a single message is read.
type Message struct {
	ID      int64     `json:"id" yaml:"-"`
	Account string    `json:"account" yaml:"account"`
	Mailbox string    `json:"mailbox" yaml:"mailbox"`
	From    string    `json:"from" yaml:"from"`
	To      string    `json:"to" yaml:"to"`
	Subject string    `json:"subject" yaml:"subject"`
	Body    string    `json:"body,omitempty" yaml:"body"`
	Date    time.Time `json:"date" yaml:"date"`
	Size    int64     `json:"size" yaml:"-"`
	Unread  bool      `json:"unread" yaml:"unread"`
}

// QuarantineItem is a message held back by the content filter.
type QuarantineItem struct {
	ID        int64     `json:"id" yaml:"-"`
	Recipient string    `json:"recipient" yaml:"recipient"`
	Sender    string    `json:"sender" yaml:"sender"`
	Subject   string    `json:"subject" yaml:"subject"`
	Reason    string    `json:"reason" yaml:"reason"`
	Score     float64   `json:"score" yaml:"score"`
	Body      string    `json:"body,omitempty" yaml:"body"`
	Date      time.Time `json:"date" yaml:"date"`
	Released  bool      `json:"released" yaml:"released"`
}

// TrafficPoint holds one day of mail traffic for a domain.
type TrafficPoint struct {
	Day      time.Time `json:"day" yaml:"day"`
	Domain   string    `json:"domain" yaml:"domain"`
	Sent     int64     `json:"sent" yaml:"sent"`
	Received int64     `json:"received" yaml:"received"`
	Spam     int64     `json:"spam" yaml:"spam"`
}

// Setting is one user preference.
type Setting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Page describes the slice of a listing returned to the client.
type Page struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
}

// NewPage clamps page into range for total rows split by size.
func NewPage(page, size, total int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	return Page{Page: page, Pages: pages, Total: total}
}

// Offset returns the first row index of p for the given page size.
func (p Page) Offset(size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return (p.Page - 1) * size
}

// Snapshot describes one point-in-time copy of the admin database.
type Snapshot struct {
	Path   string    `json:"path"`
	Size   int64     `json:"size"`
	SHA256 []byte    `json:"sha256"`
	At     time.Time `json:"at"`
	// Remote is where the copy was uploaded, empty when it stayed local.
	Remote string `json:"remote,omitempty"`
}
