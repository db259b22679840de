package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/mailnav/internal/backup"
	"github.com/tinytelemetry/mailnav/internal/duckdb"
	"github.com/tinytelemetry/mailnav/internal/httpserver"
)

// runServer starts the HTTP backend and its maintenance loops.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	if cfg.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
		log.Printf("server: no session-secret configured, sessions will not survive a restart")
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()
	store.PageSize = cfg.PageSize

	seeded, err := seedIfEmpty(store, cfg.SeedFile)
	if err != nil {
		return err
	}

	if sweeper := duckdb.StartQuarantineSweeper(store, cfg.QuarantineRetention, 0); sweeper != nil {
		defer sweeper.Stop()
	}

	backupManager, err := backup.NewManager(store, cfg.Backup)
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	apiServer, err := httpserver.NewServer(cfg.httpConfig(), store)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printStartupBanner(cfg, seeded)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			stop()
			fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
			go forceExitOnSignal(shutdownTimeout)
		}
		return nil
	})
	return g.Wait()
}

const shutdownTimeout = 10 * time.Second

// forceExitOnSignal exits the process on a second interrupt or when a
// graceful shutdown takes longer than limit.
func forceExitOnSignal(limit time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	t := time.NewTimer(limit)
	defer t.Stop()

	select {
	case <-sigCh:
		fmt.Println("\nForce shutdown.")
	case <-t.C:
		fmt.Println("Shutdown timed out, forcing exit.")
	}
	os.Exit(1)
}

// seedIfEmpty loads the seed file into a store that has no domains yet.
func seedIfEmpty(store *duckdb.Store, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	domains, err := store.ListDomains()
	if err != nil {
		return false, fmt.Errorf("failed to inspect store: %w", err)
	}
	if len(domains) > 0 {
		return false, nil
	}
	n, err := seedStore(store, path)
	if err != nil {
		return false, err
	}
	log.Printf("server: seeded %d domains and %d accounts from %s", n.Domains, n.Accounts, path)
	return true, nil
}

func randomSecret() (string, error) {
	b := make([]byte, defaultSessionSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// configureRuntimeLogger sends the std logger to $XDG_STATE_HOME/mailnav/mailnav.log.
func configureRuntimeLogger() func() {
	return configureLogFile("mailnav/mailnav.log")
}

func configureLogFile(rel string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	logPath, err := xdg.StateFile(rel)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

type bannerRow struct {
	on    bool
	label string
	value string
}

func startupSections(cfg appConfig, seeded bool) []struct {
	title string
	rows  []bannerRow
} {
	storage := []bannerRow{{true, "Database", shortenPath(cfg.DBPath)}}
	if seeded {
		storage = append(storage, bannerRow{true, "Seed", shortenPath(cfg.SeedFile)})
	}
	if cfg.QuarantineRetention > 0 {
		storage = append(storage, bannerRow{true, "Quarantine", fmt.Sprintf("%d days", cfg.QuarantineRetention)})
	} else {
		storage = append(storage, bannerRow{false, "Quarantine", "kept forever"})
	}
	snapshots := bannerRow{false, "Snapshots", "disabled"}
	if cfg.Backup.Enabled {
		snapshots = bannerRow{true, "Snapshots", shortenPath(cfg.Backup.LocalDir)}
		if cfg.Backup.BucketURL != "" {
			snapshots.value += " → " + cfg.Backup.BucketURL
		}
	}
	storage = append(storage, snapshots)

	configRow := bannerRow{false, "Config File", "default (no file)"}
	if cfg.ConfigPath != "" {
		configRow = bannerRow{true, "Config File", shortenPath(cfg.ConfigPath)}
	}

	return []struct {
		title string
		rows  []bannerRow
	}{
		{"Gateway", []bannerRow{
			{true, "HTTP API", cfg.ListenAddr},
			{true, "Login", cfg.LoginPath},
			{true, "Session TTL", cfg.SessionTTL.String()},
		}},
		{"Storage", storage},
		{"Config", []bannerRow{configRow}},
	}
}

func printStartupBanner(cfg appConfig, seeded bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)
	label := lipgloss.NewStyle().Width(15)

	logo := cyan.Bold(true).Render(`
    ╔╦╗╔═╗╦╦  ╔╗╔╔═╗╦  ╦
    ║║║╠═╣║║  ║║║╠═╣╚╗╔╝
    ╩ ╩╩ ╩╩╩═╝╝╚╝╩ ╩ ╚╝ `)
	separator := dim.Render("    " + strings.Repeat("─", 33))

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n    %s\n\n%s\n\n", logo, dim.Render("v"+version), separator)
	for _, sec := range startupSections(cfg, seeded) {
		fmt.Fprintf(&b, "%s\n\n", bold.Render("    "+sec.title))
		for _, r := range sec.rows {
			mark := dim.Render("●")
			if r.on {
				mark = green.Render("●")
			}
			fmt.Fprintf(&b, "    %s  %s%s\n", mark, label.Render(r.label), dim.Render(r.value))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\n\n    %s\n", separator, dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	fmt.Println(b.String())
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
