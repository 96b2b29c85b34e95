package protocol

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Error codes used on the wire. The standard ones come from the JSON-RPC
// 2.0 reserved range.
const (
	CodeParseError     = mcp.PARSE_ERROR
	CodeInvalidRequest = mcp.INVALID_REQUEST
	CodeMethodNotFound = mcp.METHOD_NOT_FOUND
	CodeInvalidParams  = mcp.INVALID_PARAMS
	CodeInternalError  = mcp.INTERNAL_ERROR

	// CodeServerShuttingDown is retryable: the server is stopping
	CodeServerShuttingDown = -32000
	// CodeUnauthorized means the bearer token was missing or wrong
	CodeUnauthorized = -32001
	// CodeRateLimited means the client exceeded its request budget
	CodeRateLimited = -32029
)

// ErrMethodNotFound is wrapped by dispatch failures for unknown methods
var ErrMethodNotFound = errors.New("method not found")

// Error is a structured JSON-RPC error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds an error with the given code
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// InvalidParamsf builds a -32602 error
func InvalidParamsf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// MethodNotFound builds a -32601 error for method
func MethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", method)}
}

// ParseError builds a -32700 error
func ParseError(detail string) *Error {
	return &Error{Code: CodeParseError, Message: "Parse error: " + detail}
}

// InvalidRequest builds a -32600 error
func InvalidRequest(message string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: message}
}

// InternalError builds a -32603 error
func InternalError(message string) *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error: " + message}
}

// ToError converts any handler error to a structured error. Errors that
// already carry a code keep it; everything else becomes an internal error.
func ToError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, ErrMethodNotFound) {
		return &Error{Code: CodeMethodNotFound, Message: err.Error()}
	}
	return InternalError(err.Error())
}
