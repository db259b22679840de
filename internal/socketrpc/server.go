package socketrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

const (
	scannerInitBufSize  = 64 * 1024
	scannerMaxTokenSize = 1024 * 1024

	liveProbeTimeout = 500 * time.Millisecond
)

var errEmptyLocation = errors.New("location is empty")

// paramsError marks a request whose params could not be used.
type paramsError struct{ err error }

func (e paramsError) Error() string { return "invalid params: " + e.err.Error() }

type handler func(nav model.Navigator, params json.RawMessage) (any, error)

var methods = map[string]handler{
	"GetLocation": func(nav model.Navigator, _ json.RawMessage) (any, error) {
		return nav.Location(), nil
	},
	"SetLocation": func(nav model.Navigator, raw json.RawMessage) (any, error) {
		p, err := decodePush(raw)
		if err != nil {
			return nil, err
		}
		nav.SetLocation(p.Location)
		return true, nil
	},
	"Push": func(nav model.Navigator, raw json.RawMessage) (any, error) {
		p, err := decodePush(raw)
		if err != nil {
			return nil, err
		}
		nav.Push(p.Location, p.Force, p.Suppress)
		return true, nil
	},
	"History": func(nav model.Navigator, _ json.RawMessage) (any, error) {
		return nav.History(), nil
	},
	"Stats": func(nav model.Navigator, _ json.RawMessage) (any, error) {
		return nav.Stats(), nil
	},
}

func decodePush(raw json.RawMessage) (PushParams, error) {
	var p PushParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, paramsError{err}
	}
	if strings.TrimSpace(p.Location) == "" {
		return p, paramsError{errEmptyLocation}
	}
	return p, nil
}

// Server exposes a model.Navigator on a Unix domain socket, one JSON-RPC
// request per line.
type Server struct {
	path string
	nav  model.Navigator

	ln   net.Listener
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer returns a server for nav; nothing listens until Start.
func NewServer(socketPath string, nav model.Navigator) *Server {
	return &Server{
		path:  socketPath,
		nav:   nav,
		quit:  make(chan struct{}),
		conns: make(map[net.Conn]struct{}),
	}
}

// Start listens on the socket path. A leftover socket file with nobody
// behind it is replaced; a live one is an error.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}
	if Live(s.path) {
		return fmt.Errorf("socketrpc: another client is already listening on %s", s.path)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("socketrpc: remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.serve()

	log.Printf("socketrpc: listening on %s", s.path)
	return nil
}

// Stop closes the listener and every open connection, waits for their
// goroutines and removes the socket file. Safe to call more than once.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.quit)
		if s.ln != nil {
			s.ln.Close()
		}
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		os.Remove(s.path)
	})
}

// Live reports whether something accepts connections on socketPath.
func Live(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, liveProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Server) stopping() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.stopping() {
				return
			}
			// Transient, e.g. out of file descriptors.
			log.Printf("socketrpc: accept: %v", err)
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.track(conn, false)

	in := bufio.NewScanner(conn)
	in.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	out := json.NewEncoder(conn)

	for in.Scan() && !s.stopping() {
		var resp Response
		var req Request
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			resp = Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: "parse error"}}
		} else {
			resp = s.dispatch(req)
		}
		if err := out.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	h, ok := methods[req.Method]
	if !ok {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	result, err := h(s.nav, req.Params)
	var pe paramsError
	switch {
	case errors.As(err, &pe):
		resp.Error = &RPCError{Code: CodeInvalidParams, Message: pe.Error()}
		return resp
	case err != nil:
		resp.Error = &RPCError{Code: CodeAppError, Message: err.Error()}
		return resp
	}

	data, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		return resp
	}
	resp.Result = data
	return resp
}
