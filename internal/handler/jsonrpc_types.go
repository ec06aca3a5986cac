// internal/handler/jsonrpc_types.go
package handler

import (
	"encoding/json"
	"errors"

	"printer-service/internal/engine"
	"printer-service/internal/protocol"
	"printer-service/internal/service"
)

const jsonRPCVersion = "2.0"

// JSON-RPC 2.0 error codes. Codes above -32000 are application errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeServerError       = -32000
	CodeNotConnected      = -32001
	CodeInvalidTransition = -32002
	CodePortUnavailable   = -32003
	CodeWriteFailed       = -32004
	CodeReceiveTimeout    = -32010
	CodeTooManyRetries    = -32011
	CodeFatalDevice       = -32012
	CodeLockTimeout       = -32013
)

// RPCRequest is one JSON-RPC 2.0 call
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the caller expects no response
func (r *RPCRequest) IsNotification() bool {
	return len(r.ID) == 0
}

// RPCResponse is one JSON-RPC 2.0 reply
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is the error member of a response
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

func newRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// rpcErrorFrom maps service errors to error objects
func rpcErrorFrom(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	code := CodeServerError
	switch {
	case errors.Is(err, service.ErrNotConnected):
		code = CodeNotConnected
	case errors.Is(err, service.ErrInvalidTransition):
		code = CodeInvalidTransition
	case errors.Is(err, protocol.ErrPortUnavailable):
		code = CodePortUnavailable
	case errors.Is(err, protocol.ErrWriteTimeout), errors.Is(err, protocol.ErrIOFailure):
		code = CodeWriteFailed
	case errors.Is(err, engine.ErrReceiveTimeout):
		code = CodeReceiveTimeout
	case errors.Is(err, engine.ErrTooManyRetries):
		code = CodeTooManyRetries
	case errors.Is(err, engine.ErrFatalDevice):
		code = CodeFatalDevice
	case errors.Is(err, engine.ErrLockTimeout):
		code = CodeLockTimeout
	case errors.Is(err, engine.ErrEmptyCommand):
		code = CodeInvalidParams
	}

	rpcErr = &RPCError{Code: code, Message: err.Error()}

	var cmdErr *engine.CommandError
	if errors.As(err, &cmdErr) {
		rpcErr.Data = map[string]interface{}{
			"gcode":    cmdErr.Text,
			"sequence": cmdErr.Sequence,
		}
	}
	return rpcErr
}

// ConnectResult is the result entry of set-serial-port
type ConnectResult struct {
	Time     int64         `json:"time"`
	Port     []interface{} `json:"port"`
	Messages []string      `json:"messages"`
	Reused   bool          `json:"reused,omitempty"`
}

// PortsResult is the result entry of get-serial-ports
type PortsResult struct {
	Ports   []string    `json:"ports"`
	Details interface{} `json:"details"`
	Time    int64       `json:"time"`
}

// PrinterStateResult is the result entry of get-printer-state
type PrinterStateResult struct {
	Time         int64  `json:"time"`
	Port         string `json:"port"`
	Baud         string `json:"baud"`
	State        string `json:"state"`
	NextLine     int    `json:"next_line"`
	CommandsSent int64  `json:"commands_sent"`
}

// GcodeResult is the result entry of send-gcode
type GcodeResult struct {
	Time       int64       `json:"time"`
	Gcode      string      `json:"gcode"`
	Sequence   int         `json:"sequence"`
	Retries    int         `json:"retries"`
	DurationMS int64       `json:"duration_ms"`
	Events     interface{} `json:"events"`
}
