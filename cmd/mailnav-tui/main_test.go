package main

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/mailnav/internal/journal"
	"github.com/tinytelemetry/mailnav/internal/model"
	"github.com/tinytelemetry/mailnav/internal/navigation"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
	"github.com/tinytelemetry/mailnav/internal/socketrpc"
)

func TestLoadCLIConfig_Defaults(t *testing.T) {
	cfg, err := loadCLIConfig(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.Remote.BaseURL != defaultServerURL {
		t.Errorf("server-url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Navigation.DefaultLocation != model.DefaultDefaultLocation {
		t.Errorf("default-location = %q", cfg.Navigation.DefaultLocation)
	}
	if cfg.Navigation.PollInterval != navigation.DefaultPollInterval || cfg.Navigation.ApplyStale {
		t.Errorf("navigation = %+v", cfg.Navigation)
	}
	if cfg.Remote.SessionExpiredStatus != remotesync.DefaultSessionExpiredStatus {
		t.Errorf("session-expired-status = %d", cfg.Remote.SessionExpiredStatus)
	}
	if cfg.HistoryKeep != model.DefaultHistoryKeep {
		t.Errorf("history-keep = %d", cfg.HistoryKeep)
	}
}

func TestLoadCLIConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := "server-url: http://mail.example.test/admin/\ndefault-location: quarantine/\napply-stale: true\npoll-interval: 1s\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAILNAV_USERNAME", "alice@example.com")
	t.Setenv("MAILNAV_REQUEST_TIMEOUT", "3s")

	cfg, err := loadCLIConfig(path)
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.Remote.BaseURL != "http://mail.example.test/admin/" {
		t.Errorf("server-url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Navigation.DefaultLocation != "quarantine/" || !cfg.Navigation.ApplyStale || cfg.Navigation.PollInterval != time.Second {
		t.Errorf("navigation = %+v", cfg.Navigation)
	}
	if cfg.Username != "alice@example.com" {
		t.Errorf("username = %q", cfg.Username)
	}
	if cfg.requestTimeout() != 3*time.Second {
		t.Errorf("request-timeout = %s", cfg.requestTimeout())
	}
	if cfg.ConfigPath != path {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
}

func TestStartLocation(t *testing.T) {
	hist, err := journal.Open(filepath.Join(t.TempDir(), "history.jsonl"), 10)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer hist.Close()

	if got := startLocation("", hist, "listing/"); got != "listing/" {
		t.Errorf("empty history = %q", got)
	}
	if _, err := hist.Append("quarantine/?page=2"); err != nil {
		t.Fatal(err)
	}
	if got := startLocation("", hist, "listing/"); got != "quarantine/?page=2" {
		t.Errorf("resume = %q", got)
	}
	if got := startLocation("#stats/?period=day", hist, "listing/"); got != "stats/?period=day" {
		t.Errorf("open = %q", got)
	}
	if got := startLocation("", nil, "listing/"); got != "listing/" {
		t.Errorf("no journal = %q", got)
	}
}

type recordingNavigator struct {
	mu  sync.Mutex
	set []string
}

func (n *recordingNavigator) Location() string { return "" }

func (n *recordingNavigator) SetLocation(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.set = append(n.set, text)
}

func (n *recordingNavigator) Push(string, bool, bool) {}

func (n *recordingNavigator) History() []string { return []string{} }

func (n *recordingNavigator) Stats() model.NavStats { return model.NavStats{} }

func TestForwardOpen(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "mailnav.sock")

	forwarded, err := forwardOpen(sock, "stats/")
	if err != nil || forwarded {
		t.Fatalf("no listener: forwarded=%v err=%v", forwarded, err)
	}

	nav := &recordingNavigator{}
	srv := socketrpc.NewServer(sock, nav)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	forwarded, err = forwardOpen(sock, "")
	if err != nil || forwarded {
		t.Fatalf("empty location: forwarded=%v err=%v", forwarded, err)
	}

	forwarded, err = forwardOpen(sock, "stats/?period=month")
	if err != nil || !forwarded {
		t.Fatalf("forwarded=%v err=%v", forwarded, err)
	}
	nav.mu.Lock()
	defer nav.mu.Unlock()
	if len(nav.set) != 1 || nav.set[0] != "stats/?period=month" {
		t.Fatalf("SetLocation calls = %v", nav.set)
	}
}
