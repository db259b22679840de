package socketrpc

import (
	"encoding/json"
	"path/filepath"

	"github.com/adrg/xdg"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes a running client's model.Navigator over a
// Unix domain socket, one request per line.
//
//   Method        Params                                       Result
//   ───────────   ──────────────────────────────────────────   ──────────────
//   GetLocation   (none)                                       string
//   SetLocation   {Location: string}                           true
//   Push          {Location: string, Force: bool, Suppress: bool}  true
//   History       (none)                                       []string
//   Stats         (none)                                       NavStats
//
// SetLocation writes the address bar the way a user edit would; the change
// detector picks it up on its next tick. Push goes through the update
// controller and honors Force and Suppress.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeAppError       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// PushParams are the parameters of SetLocation and Push.
type PushParams struct {
	Location string
	Force    bool `json:",omitempty"`
	Suppress bool `json:",omitempty"`
}

// DefaultSocketPath returns the default Unix socket path,
// $XDG_RUNTIME_DIR/mailnav/mailnav.sock or its XDG fallback.
func DefaultSocketPath() string {
	return filepath.Join(xdg.RuntimeDir, "mailnav", "mailnav.sock")
}
