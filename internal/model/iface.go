package model

import "time"

// ListOpts holds the filters shared by every paginated listing.
type ListOpts struct {
	Page      int
	PageSize  int
	Pattern   string // substring match, empty = all
	SortOrder string // column name, "-" prefix for descending
	Domain    string // empty = all domains
}

// AdminQuerier provides the read side of the admin console.
type AdminQuerier interface {
	ListDomains() ([]Domain, error)
	ListAccounts(opts ListOpts) ([]Account, Page, error)
	ListMessages(account, mailbox string, opts ListOpts) ([]Message, Page, error)
	GetMessage(account string, id int64) (Message, error)
	ListQuarantine(opts ListOpts) ([]QuarantineItem, Page, error)
	GetQuarantined(id int64) (QuarantineItem, error)
	TrafficStats(since time.Time, domain string) ([]TrafficPoint, error)
	Settings(username string) ([]Setting, error)
}

// AdminWriter provides the mutating operations.
type AdminWriter interface {
	ReleaseQuarantined(id int64) error
	DeleteQuarantined(id int64) error
	SaveSettings(username string, settings []Setting) error
}

// Authenticator checks console credentials.
type Authenticator interface {
	Authenticate(username, password string) (Account, error)
}

// AdminAPI is the unified contract served by the HTTP backend.
type AdminAPI interface {
	AdminQuerier
	AdminWriter
	Authenticator
}

// NavStats mirrors the navigation engine counters for remote inspection.
type NavStats struct {
	Ticks        int64  `json:"ticks"`
	SkippedTicks int64  `json:"skipped_ticks"`
	Fetches      int64  `json:"fetches"`
	StaleDropped int64  `json:"stale_dropped"`
	Generation   uint64 `json:"generation"`
	LastWritten  string `json:"last_written"`
}

// Navigator is the control surface a running client exposes on its socket.
type Navigator interface {
	// Location returns the raw address bar text.
	Location() string
	// SetLocation writes the address bar as a user edit would.
	SetLocation(text string)
	// Push routes text through the update controller.
	Push(text string, force, suppress bool)
	// History returns the visited locations, oldest first.
	History() []string
	Stats() NavStats
}
