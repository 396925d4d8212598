// Package rpc implements the JSON-RPC 2.0 envelope used on gateway
// connections: decoding inbound frames into requests and encoding
// responses.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// Protocol-specific error codes.
const (
	CodeVersionMismatch = -32010
	CodeRateLimited     = -32005
	CodePairingInvalid  = -32003
)

// Version is the only accepted value of the "jsonrpc" field.
const Version = "2.0"

// Request is one inbound client call. An absent or null ID marks a
// notification; no response is sent for it.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

// Response is the reply to a request. Exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the failure payload embedded in a response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Errorf builds an *Error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewResult builds a success response echoing the request id.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewError builds a failure response echoing the request id.
func NewError(id json.RawMessage, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}

// Decode parses one inbound frame into a Request. Validation order:
// syntactically valid JSON, then jsonrpc equal to "2.0", then a
// non-empty method. Only a JSON syntax failure maps to CodeParseError;
// valid JSON that is not a request object (a string, an array, wrong
// field types) is an invalid request, as are the latter two checks.
func Decode(frame []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, Errorf(CodeParseError, "Parse error")
		}
		return nil, Errorf(CodeInvalidRequest, "Invalid request: not a request object")
	}
	if req.JSONRPC != Version {
		return nil, Errorf(CodeInvalidRequest, "Invalid request: jsonrpc must be %q", Version)
	}
	if req.Method == "" {
		return nil, Errorf(CodeInvalidRequest, "Invalid request: missing method")
	}
	return &req, nil
}

// Encode serializes a response for the wire, omitting whichever of
// result/error is unset.
func Encode(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}
