// Package remotesync fetches serialized locations from the mail-admin
// server and decodes the JSON envelope every page resource answers with.
package remotesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultSessionExpiredStatus is the reserved status the server answers
	// with when the session is gone.
	DefaultSessionExpiredStatus = 278
	// DefaultLoginPath is where the user is sent to authenticate again.
	DefaultLoginPath = "/login"

	maxBodySize = 10 * 1024 * 1024
)

var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("remotesync: transport failure")
	// ErrSessionExpired is returned after the client redirected to login.
	ErrSessionExpired = errors.New("remotesync: session expired")
)

// TransportError reports a failed exchange: network error, or a body that
// could not be decoded.
type TransportError struct {
	Location   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remotesync: %s: status %d: %v", e.Location, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remotesync: %s: %v", e.Location, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Redirector sends the user somewhere else, e.g. the login view.
type Redirector interface {
	Redirect(target string)
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func(target string)

func (f RedirectFunc) Redirect(target string) { f(target) }

// Config holds client settings.
type Config struct {
	BaseURL              string        `mapstructure:"server-url"`
	LoginPath            string        `mapstructure:"login-path"`
	SessionExpiredStatus int           `mapstructure:"session-expired-status"`
	Timeout              time.Duration `mapstructure:"request-timeout"`

	// CurrentPath returns the page path handed to the login view as "next".
	// When nil, the path of the location being fetched is used.
	CurrentPath func(location string) string `mapstructure:"-"`
}

// Client fetches locations over HTTP. Session cookies are kept in a jar.
type Client struct {
	base       *url.URL
	cfg        Config
	http       *http.Client
	redirector Redirector
}

// NewClient creates a client for the server at cfg.BaseURL.
func NewClient(cfg Config, redirector Redirector) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("remotesync: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remotesync: base url %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.SessionExpiredStatus == 0 {
		cfg.SessionExpiredStatus = DefaultSessionExpiredStatus
	}
	if redirector == nil {
		redirector = RedirectFunc(func(target string) {
			log.Printf("remotesync: session expired, login required at %s", target)
		})
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("remotesync: cookie jar: %w", err)
	}

	return &Client{
		base:       base,
		cfg:        cfg,
		http:       &http.Client{Jar: jar, Timeout: cfg.Timeout},
		redirector: redirector,
	}, nil
}

// Fetch GETs the resource named by a serialized location.
func (c *Client) Fetch(ctx context.Context, location string) (*Response, error) {
	return c.do(ctx, http.MethodGet, location, nil)
}

// Submit sends form with a module-specified method, for mutating actions.
func (c *Client) Submit(ctx context.Context, method, location string, form url.Values) (*Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	return c.do(ctx, method, location, body)
}

// Login authenticates against the server; the session cookie is stored in
// the client's jar. A "ko" answer is returned as an error carrying respmsg.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.Submit(ctx, http.MethodPost, strings.TrimPrefix(c.cfg.LoginPath, "/"), url.Values{
		"username": {username},
		"password": {password},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("remotesync: login: %s", resp.RespMsg)
	}
	return nil
}

// URL returns the absolute URL for a serialized location.
func (c *Client) URL(location string) string {
	ref := &url.URL{Path: location}
	if path, query, ok := strings.Cut(location, "?"); ok {
		ref = &url.URL{Path: path, RawQuery: query}
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return c.base.ResolveReference(ref).String()
}

// LoginURL returns the login target with next set to page.
func (c *Client) LoginURL(page string) string {
	login := c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(c.cfg.LoginPath, "/")})
	login.RawQuery = url.Values{"next": {page}}.Encode()
	return login.String()
}

func (c *Client) do(ctx context.Context, method, location string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(location), body)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Location: location, Err: err}
	}
	defer httpResp.Body.Close()

	// Session expiry is checked before any other status handling.
	if httpResp.StatusCode == c.cfg.SessionExpiredStatus {
		c.redirector.Redirect(c.LoginURL(c.currentPath(location)))
		return nil, ErrSessionExpired
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Location: location, StatusCode: httpResp.StatusCode, Err: err}
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &TransportError{Location: location, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	if resp.Status == "" {
		return nil, &TransportError{Location: location, StatusCode: httpResp.StatusCode, Err: errors.New("response has no status")}
	}
	return &resp, nil
}

func (c *Client) currentPath(location string) string {
	if c.cfg.CurrentPath != nil {
		return c.cfg.CurrentPath(location)
	}
	path, _, _ := strings.Cut(location, "?")
	return "/" + strings.TrimPrefix(path, "/")
}
