// Command mailnav-tui is the terminal client of the mail administration
// console. Its address bar is kept in sync with the backend by the
// navigation engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/adrg/xdg"
	"go.uber.org/atomic"

	"github.com/tinytelemetry/mailnav/internal/journal"
	"github.com/tinytelemetry/mailnav/internal/location"
	"github.com/tinytelemetry/mailnav/internal/navigation"
	"github.com/tinytelemetry/mailnav/internal/remotesync"
	"github.com/tinytelemetry/mailnav/internal/socketrpc"
	"github.com/tinytelemetry/mailnav/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var serverURL string
	var open string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/mailnav/config.yml)")
	flag.StringVar(&serverURL, "server", "", "override the backend base URL")
	flag.StringVar(&open, "open", "", "location to open, forwarded to a running client when one is live")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("mailnav-tui - Mail Administration Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if serverURL != "" {
		cfg.Remote.BaseURL = serverURL
	}

	forwarded, err := forwardOpen(cfg.SocketPath, open)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if forwarded {
		return
	}

	if err := runTUI(cfg, open); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

const forwardTimeout = 3 * time.Second

// forwardOpen hands loc to an already running client. It reports false when
// no client is listening.
func forwardOpen(socketPath, loc string) (bool, error) {
	if loc == "" || !socketrpc.Live(socketPath) {
		return false, nil
	}
	client, err := socketrpc.Dial(socketPath)
	if err != nil {
		return false, nil
	}
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()
	if err := client.SetLocation(ctx, loc); err != nil {
		return false, fmt.Errorf("forwarding %q to the running client: %w", loc, err)
	}
	return true, nil
}

// startLocation picks what the address bar shows first: an explicit -open,
// else the last committed location, else the default.
func startLocation(open string, hist *journal.Journal, def string) string {
	if open != "" {
		return location.Normalize(open, def)
	}
	if hist != nil {
		if last, ok := hist.Last(); ok {
			return location.Normalize(last.Location, def)
		}
	}
	return location.Normalize(def, def)
}

func runTUI(cfg cliConfig, open string) error {
	cleanupLogger := configureLogFile("mailnav/mailnav-tui.log")
	defer cleanupLogger()

	hist, err := journal.Open(cfg.HistoryPath, cfg.HistoryKeep)
	if err != nil {
		log.Printf("client: history disabled: %v", err)
	} else {
		defer hist.Close()
	}

	relay := tui.NewRelay(0)
	defer relay.Close()

	fatal := atomic.NewError(nil)

	client, err := remotesync.NewClient(cfg.Remote, remotesync.RedirectFunc(func(target string) {
		relay.Send(tui.LoginRequiredMsg{Target: target})
	}))
	if err != nil {
		return err
	}

	bar := tui.NewBar(startLocation(open, hist, cfg.Navigation.DefaultLocation))
	reg := tui.RegisterCallbacks(navigation.NewRegistry(nil), relay.Send)

	opts := []navigation.Option{
		navigation.WithRegistry(reg),
		navigation.WithNotifier(navigation.NotifyFuncs{
			OnMessage: func(text string) { relay.Send(tui.NoticeMsg{Text: text, Err: true}) },
			OnFailure: func(err error) { relay.Send(tui.NoticeMsg{Text: err.Error(), Err: true}) },
		}),
		// A missing handler is a programming error: leave the alt screen
		// and report it instead of panicking inside the engine.
		navigation.WithFatal(func(err error) {
			log.Printf("client: fatal: %v", err)
			fatal.Store(err)
			relay.Send(tea.QuitMsg{})
		}),
	}
	var history tui.History
	var historyOf func() []string
	if hist != nil {
		history = hist
		historyOf = func() []string {
			entries := hist.Entries()
			out := make([]string, len(entries))
			for i, e := range entries {
				out[i] = e.Location
			}
			return out
		}
		opts = append(opts, navigation.OnCommit(func(loc string) {
			if _, err := hist.Append(loc); err != nil {
				log.Printf("client: record history: %v", err)
			}
		}))
	}

	engine, err := navigation.New(cfg.Navigation, bar, client, opts...)
	if err != nil {
		return err
	}

	sock := socketrpc.NewServer(cfg.SocketPath, navigation.NewRemote(engine, historyOf))
	if err := sock.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sock.Stop()
	}

	browser := tui.NewBrowserPage(tui.BrowserConfig{
		Engine:         engine,
		Bar:            bar,
		Relay:          relay,
		Backend:        client,
		History:        history,
		RequestTimeout: cfg.requestTimeout(),
	})
	login := tui.NewLoginPage(client, cfg.Username, cfg.requestTimeout())
	app := tui.NewApp(browser, login)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Username != "" && cfg.Password != "" {
		lctx, lcancel := context.WithTimeout(ctx, cfg.requestTimeout())
		if err := client.Login(lctx, cfg.Username, cfg.Password); err != nil {
			log.Printf("client: automatic login failed: %v", err)
		}
		lcancel()
	}

	p := tea.NewProgram(app, tea.WithAltScreen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		defer relay.Close()
		if _, err := p.Run(); err != nil {
			if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
				return fmt.Errorf("TUI requires a real terminal")
			}
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return fatal.Load()
}

// configureLogFile sends the std logger to a file under $XDG_STATE_HOME;
// the terminal belongs to the TUI.
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
