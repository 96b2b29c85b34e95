// Package protocol implements JSON-RPC 2.0 framing and the method dispatch
// table. Requests get exactly one response; notifications never do.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
)

// HandlerFunc handles one method. params is the raw params value, possibly
// empty.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher routes methods to handlers. Register everything before serving;
// the table is read-only afterwards.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register adds or replaces the handler for method
func (d *Dispatcher) Register(method string, h HandlerFunc) {
	d.handlers[method] = h
}

// Methods returns the registered method names, sorted
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch invokes the handler for method. Unknown methods fail with an
// error wrapping ErrMethodNotFound. Handler panics become internal errors.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) (result any, err error) {
	h, ok := d.handlers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked", "method", method, "panic", r, "stack", string(debug.Stack()))
			err = InternalError(fmt.Sprintf("handler for %s panicked", method))
		}
	}()
	return h(ctx, params)
}

// Handle processes a decoded request. It returns nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	if req.Method == "" {
		if req.IsNotification() {
			d.logger.Warn("Dropping notification without method")
			return nil
		}
		return NewErrorResponse(req.ID, InvalidRequest("Invalid Request: method is required"))
	}

	result, err := d.Dispatch(ctx, req.Method, req.Params)

	if req.IsNotification() {
		if err != nil {
			d.logger.Warn("Notification handler failed", "method", req.Method, "error", err)
		}
		return nil
	}
	if err != nil {
		rpcErr := ToError(err)
		d.logger.Debug("Request failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResult(req.ID, result)
}

// HandleMessage decodes raw and processes it. It returns nil when no body
// should be sent back.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) *Response {
	req, rpcErr := Decode(raw)
	if rpcErr != nil {
		return NewErrorResponse(nil, rpcErr)
	}
	return d.Handle(ctx, req)
}

// Decode parses one JSON-RPC message. Batches and trailing data are
// rejected.
func Decode(raw []byte) (*Request, *Error) {
	if IsBatch(raw) {
		return nil, InvalidRequest("Invalid Request: batch requests are not supported")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, ParseError(err.Error())
	}
	if dec.More() {
		return nil, ParseError("unexpected data after JSON object")
	}
	if req.JSONRPC != "" && req.JSONRPC != Version {
		return nil, InvalidRequest(fmt.Sprintf("Invalid Request: unsupported jsonrpc version %q", req.JSONRPC))
	}
	return &req, nil
}
