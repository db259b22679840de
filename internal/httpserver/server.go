// Package httpserver serves the JSON fragments the navigation client fetches.
// Every fragment route answers with the {status, callback, respmsg, ...}
// envelope and requires a session cookie obtained from POST /login.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// Defaults for Config fields left zero.
const (
	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultLoginPath            = "/login"
	DefaultSessionExpiredStatus = 278
)

// Config holds the backend settings.
type Config struct {
	ListenAddr           string        `mapstructure:"listen-addr"`
	SessionSecret        string        `mapstructure:"session-secret"`
	SessionTTL           time.Duration `mapstructure:"session-ttl"`
	LoginPath            string        `mapstructure:"login-path"`
	SessionExpiredStatus int           `mapstructure:"session-expired-status"`
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = model.DefaultSessionTTL
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		c.LoginPath = "/" + c.LoginPath
	}
	if c.SessionExpiredStatus == 0 {
		c.SessionExpiredStatus = DefaultSessionExpiredStatus
	}
	return c
}

// Server is the mail-admin HTTP backend.
type Server struct {
	cfg       Config
	store     model.AdminAPI
	sessions  *Sessions
	handler   *gin.Engine
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	now       func() time.Time
}

// NewServer creates a backend over store. It fails when no session secret
// is configured.
func NewServer(cfg Config, store model.AdminAPI) (*Server, error) {
	if store == nil {
		return nil, errors.New("httpserver: store is nil")
	}
	cfg = cfg.withDefaults()
	sessions, err := NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		store:     store,
		sessions:  sessions,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		now:       time.Now,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.RedirectTrailingSlash = false

	r.GET("/api/health", s.handleHealth)
	r.POST(s.cfg.LoginPath, s.handleLogin)
	r.GET(s.cfg.LoginPath, s.handleLoginRequired)
	r.POST("/logout", s.handleLogout)

	app := r.Group("/", s.requireSession)
	fragment(app, http.MethodGet, "/listing/", s.handleListing)
	fragment(app, http.MethodGet, "/webmail/", s.handleWebmail)
	fragment(app, http.MethodGet, "/quarantine/", s.handleQuarantine)
	fragment(app, http.MethodPost, "/quarantine/release/", s.handleRelease)
	fragment(app, http.MethodPost, "/quarantine/delete/", s.handleDelete)
	fragment(app, http.MethodGet, "/stats/", s.handleStats)
	fragment(app, http.MethodGet, "/settings/", s.handleSettings)
	fragment(app, http.MethodPost, "/settings/", s.handleSaveSettings)

	r.NoRoute(s.requireSession, func(c *gin.Context) {
		respondKO(c, "unknown location")
	})
	return r
}

// fragment registers h for path with and without its trailing slash.
func fragment(g *gin.RouterGroup, method, path string, h gin.HandlerFunc) {
	g.Handle(method, path, h)
	g.Handle(method, strings.TrimSuffix(path, "/"), h)
}

const shutdownGrace = 5 * time.Second

// ListenAndServe listens on the configured address and serves until ctx is
// done or the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve answers requests on ln until ctx is done, then drains in-flight
// requests for a few seconds. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	s.startTime = s.now()
	log.Printf("httpserver: listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		s.cancel()
		return fmt.Errorf("httpserver: serve: %w", err)
	case <-ctx.Done():
	}

	s.cancel()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpserver: serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	domains, err := s.store.ListDomains()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"domains": len(domains),
	})
}
