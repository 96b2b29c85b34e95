// Package mcpserver registers the MCP method set on a protocol.Dispatcher.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/executor"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
	"github.com/AltairaLabs/scenebridge-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultProtocolVersion is used when the client asks for a version we do not speak
const DefaultProtocolVersion = "2024-11-05"

// SupportedProtocolVersions lists the versions negotiated in initialize
var SupportedProtocolVersions = []string{"2024-11-05", "2025-03-26", "2025-06-18"}

// MCP method names
const (
	MethodInitialize            = "initialize"
	MethodPing                  = "ping"
	MethodToolsList             = "tools/list"
	MethodToolsCall             = "tools/call"
	MethodResourcesList         = "resources/list"
	MethodResourceTemplatesList = "resources/templates/list"
	MethodResourcesRead         = "resources/read"
	MethodPromptsList           = "prompts/list"
	MethodPromptsGet            = "prompts/get"
	MethodNotifyInitialized     = "notifications/initialized"
	MethodNotifyCancelled       = "notifications/cancelled"
)

const (
	resourceMIMEType     = "text/markdown"
	truncationNoteFormat = "\n\n[OUTPUT TRUNCATED: %d bytes omitted]"
)

// Observer receives tool call outcomes
type Observer interface {
	ToolCalled(tool string, failed bool, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ToolCalled(string, bool, time.Duration) {}

// Server implements the MCP methods on top of a tools.Registry
type Server struct {
	info        mcp.Implementation
	registry    *tools.Registry
	outputLimit int
	logger      *slog.Logger
	observer    Observer
}

// New creates a server. outputLimit <= 0 disables truncation.
func New(info mcp.Implementation, registry *tools.Registry, outputLimit int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		info:        info,
		registry:    registry,
		outputLimit: outputLimit,
		logger:      logger,
		observer:    nopObserver{},
	}
}

// SetObserver installs o. Call before Register.
func (s *Server) SetObserver(o Observer) {
	if o != nil {
		s.observer = o
	}
}

// Register installs every MCP method on d
func (s *Server) Register(d *protocol.Dispatcher) {
	d.Register(MethodInitialize, s.handleInitialize)
	d.Register(MethodPing, s.handlePing)
	d.Register(MethodToolsList, s.handleToolsList)
	d.Register(MethodToolsCall, s.handleToolsCall)
	d.Register(MethodResourcesList, s.handleResourcesList)
	d.Register(MethodResourceTemplatesList, s.handleResourceTemplatesList)
	d.Register(MethodResourcesRead, s.handleResourcesRead)
	d.Register(MethodPromptsList, s.handlePromptsList)
	d.Register(MethodPromptsGet, s.handlePromptsGet)
	d.Register(MethodNotifyInitialized, s.handleInitialized)
	d.Register(MethodNotifyCancelled, s.handleCancelled)
}

// InitializeResult is the initialize response body
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Capabilities    map[string]any     `json:"capabilities"`
}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

// NegotiateVersion returns requested if supported, else the default
func NegotiateVersion(requested string) string {
	if slices.Contains(SupportedProtocolVersions, requested) {
		return requested
	}
	return DefaultProtocolVersion
}

func (s *Server) handleInitialize(_ context.Context, raw json.RawMessage) (any, error) {
	var p initializeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	version := NegotiateVersion(p.ProtocolVersion)
	s.logger.Info("Client initialized",
		"client", p.ClientInfo.Name,
		"requested_version", p.ProtocolVersion,
		"protocol_version", version)

	return &InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      s.info,
		Capabilities: map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
			"prompts":   map[string]any{"listChanged": false},
		},
	}, nil
}

func (s *Server) handlePing(context.Context, json.RawMessage) (any, error) {
	return map[string]any{}, nil
}

func (s *Server) handleToolsList(context.Context, json.RawMessage) (any, error) {
	return mcp.ListToolsResult{Tools: s.registry.Tools()}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, raw json.RawMessage) (any, error) {
	var p mcp.CallToolParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, protocol.InvalidParamsf("Invalid params: tool name is required")
	}
	handler, err := s.registry.GetHandler(p.Name)
	if err != nil {
		return nil, protocol.InvalidParamsf("Invalid params: unknown tool %q", p.Name)
	}

	start := time.Now()
	var req mcp.CallToolRequest
	req.Params = p
	result, err := handler(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		var shutdown *executor.ShutdownError
		if errors.As(err, &shutdown) {
			s.observer.ToolCalled(p.Name, true, elapsed)
			return nil, shuttingDown(shutdown)
		}
		s.logger.Error("Tool failed",
			"tool", p.Name,
			"category", string(executor.CategoryOf(err)),
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
		s.observer.ToolCalled(p.Name, true, elapsed)
		return toolFailure(err), nil
	}
	if result == nil {
		result = mcp.NewToolResultText("")
	}
	if omitted := truncateResult(result, s.outputLimit); omitted > 0 {
		s.logger.Warn("Tool output truncated", "tool", p.Name, "limit", s.outputLimit, "omitted", omitted)
	}
	s.observer.ToolCalled(p.Name, result.IsError, elapsed)
	s.logger.Debug("Tool completed", "tool", p.Name, "duration_ms", elapsed.Milliseconds())
	return result, nil
}

func (s *Server) handleResourcesList(context.Context, json.RawMessage) (any, error) {
	return mcp.ListResourcesResult{Resources: s.registry.Resources()}, nil
}

func (s *Server) handleResourceTemplatesList(context.Context, json.RawMessage) (any, error) {
	return mcp.ListResourceTemplatesResult{ResourceTemplates: []mcp.ResourceTemplate{}}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, raw json.RawMessage) (any, error) {
	var p mcp.ReadResourceParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, protocol.InvalidParamsf("Invalid params: resource uri is required")
	}
	res, handler, err := s.registry.Resource(p.URI)
	if err != nil {
		return nil, protocol.InvalidParamsf("Invalid params: unknown resource %q", p.URI)
	}

	text, err := handler(ctx, p.URI)
	if err != nil {
		s.logger.Error("Resource read failed", "uri", p.URI, "category", string(executor.CategoryOf(err)), "error", err)
		return nil, hostFailure("Resource read failed", err)
	}

	mime := res.MIMEType
	if mime == "" {
		mime = resourceMIMEType
	}
	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{URI: p.URI, MIMEType: mime, Text: text},
		},
	}, nil
}

func (s *Server) handlePromptsList(context.Context, json.RawMessage) (any, error) {
	return mcp.ListPromptsResult{Prompts: s.registry.Prompts()}, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, raw json.RawMessage) (any, error) {
	var p mcp.GetPromptParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, protocol.InvalidParamsf("Invalid params: prompt name is required")
	}
	prompt, handler, err := s.registry.Prompt(p.Name)
	if err != nil {
		return nil, protocol.InvalidParamsf("Invalid params: unknown prompt %q", p.Name)
	}
	for _, arg := range prompt.Arguments {
		if arg.Required && p.Arguments[arg.Name] == "" {
			return nil, protocol.InvalidParamsf("Invalid params: prompt %q requires argument %q", p.Name, arg.Name)
		}
	}

	text, err := handler(ctx, p.Arguments)
	if err != nil {
		return nil, hostFailure("Prompt get failed", err)
	}
	return mcp.GetPromptResult{
		Description: prompt.Description,
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.NewTextContent(text)},
		},
	}, nil
}

func (s *Server) handleInitialized(context.Context, json.RawMessage) (any, error) {
	s.logger.Debug("Client initialization complete")
	return nil, nil
}

func (s *Server) handleCancelled(_ context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		RequestID json.RawMessage `json:"requestId"`
		Reason    string          `json:"reason"`
	}
	_ = decodeParams(raw, &p)
	// Work already scheduled on the host still runs; the caller's own
	// timeout releases its bookkeeping.
	s.logger.Debug("Client cancelled request", "request_id", string(p.RequestID), "reason", p.Reason)
	return nil, nil
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.InvalidParamsf("Invalid params: %v", err)
	}
	return nil
}

func toolFailure(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf(config.ErrToolExecution, err.Error()))
}

func shuttingDown(err *executor.ShutdownError) *protocol.Error {
	return &protocol.Error{
		Code:    protocol.CodeServerShuttingDown,
		Message: config.MsgShuttingDown,
		Data:    map[string]any{"retryAfterSeconds": int(err.RetryAfter.Seconds())},
	}
}

// hostFailure maps executor errors for methods that report failures in the
// error envelope rather than as tool results
func hostFailure(prefix string, err error) *protocol.Error {
	var shutdown *executor.ShutdownError
	if errors.As(err, &shutdown) {
		return shuttingDown(shutdown)
	}
	rpcErr := protocol.InternalError(fmt.Sprintf("%s: %v", prefix, err))
	if cat := executor.CategoryOf(err); cat != executor.CategoryNone {
		rpcErr.Data = map[string]any{"category": string(cat)}
	}
	return rpcErr
}
