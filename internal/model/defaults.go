package model

import "time"

// Shared defaults used by both the server and client binaries.
const (
	DefaultPageSize        = 20
	DefaultDefaultLocation = "listing/"
	DefaultRequestTimeout  = 15 * time.Second
	DefaultSessionTTL      = 30 * time.Minute
	DefaultHistoryKeep     = 500
	DefaultStatsPeriod     = "week"
)

// Module default locations, in the order the client binds them to keys 1..5.
var ModuleLocations = []string{
	"listing/",
	"webmail/?mbox=INBOX",
	"quarantine/",
	"stats/?period=" + DefaultStatsPeriod,
	"settings/",
}
