package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

const (
	dialTimeout = 5 * time.Second
	// callTimeout bounds a call whose context carries no deadline.
	callTimeout = 10 * time.Second
)

// Client drives a running client's navigator over a Unix domain socket.
// Calls are serialized; one request is in flight at a time.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	in   *bufio.Scanner
	out  *json.Encoder
	seq  int
}

// Dial connects to the control socket at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	in := bufio.NewScanner(conn)
	in.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{conn: conn, in: in, out: json.NewEncoder(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request and decodes its result into dest, which may be
// nil. The connection deadline follows ctx.
func (c *Client) Call(ctx context.Context, method string, params, dest any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: %s: marshal params: %w", method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("socketrpc: %s: %w", method, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(callTimeout)
	}
	_ = c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	// Unblock the read when ctx is canceled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	c.seq++
	if err := c.out.Encode(Request{JSONRPC: "2.0", ID: c.seq, Method: method, Params: raw}); err != nil {
		return c.transportErr(ctx, method, err)
	}
	if !c.in.Scan() {
		err := c.in.Err()
		if err == nil {
			err = errors.New("connection closed")
		}
		return c.transportErr(ctx, method, err)
	}

	var resp Response
	if err := json.Unmarshal(c.in.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: %s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, dest); err != nil {
		return fmt.Errorf("socketrpc: %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) transportErr(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return fmt.Errorf("socketrpc: %s: %w", method, err)
}

func callFor[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var out T
	err := c.Call(ctx, method, params, &out)
	return out, err
}

// GetLocation returns the remote address bar text.
func (c *Client) GetLocation(ctx context.Context) (string, error) {
	return callFor[string](ctx, c, "GetLocation", struct{}{})
}

// SetLocation writes the remote address bar as a user would.
func (c *Client) SetLocation(ctx context.Context, loc string) error {
	return c.Call(ctx, "SetLocation", PushParams{Location: loc}, nil)
}

// Push routes loc through the remote update controller.
func (c *Client) Push(ctx context.Context, loc string, force, suppress bool) error {
	return c.Call(ctx, "Push", PushParams{Location: loc, Force: force, Suppress: suppress}, nil)
}

// History returns the remote journal, oldest first.
func (c *Client) History(ctx context.Context) ([]string, error) {
	return callFor[[]string](ctx, c, "History", struct{}{})
}

func (c *Client) Stats(ctx context.Context) (model.NavStats, error) {
	return callFor[model.NavStats](ctx, c, "Stats", struct{}{})
}
