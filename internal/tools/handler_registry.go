package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrToolNotFound is returned for unknown tool names
	ErrToolNotFound = errors.New("no handler registered for tool")
	// ErrResourceNotFound is returned for unknown resource URIs
	ErrResourceNotFound = errors.New("resource not found")
	// ErrPromptNotFound is returned for unknown prompt names
	ErrPromptNotFound = errors.New("prompt not found")
)

// ToolHandlerFunc is a function that handles a tool call
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ResourceHandlerFunc renders a resource as text
type ResourceHandlerFunc func(ctx context.Context, uri string) (string, error)

// PromptHandlerFunc renders a prompt from its arguments
type PromptHandlerFunc func(ctx context.Context, args map[string]string) (string, error)

// Provider contributes tools, resources or prompts to a registry
type Provider interface {
	Register(r *Registry)
}

type toolEntry struct {
	def     mcp.Tool
	handler ToolHandlerFunc
}

type resourceEntry struct {
	def     mcp.Resource
	handler ResourceHandlerFunc
}

type promptEntry struct {
	def     mcp.Prompt
	handler PromptHandlerFunc
}

// Registry is the static table of callable tools, readable resources and
// prompts. It is built once at startup and read-only afterwards.
type Registry struct {
	tools     map[string]toolEntry
	toolOrder []string

	resources     map[string]resourceEntry
	resourceOrder []string

	prompts     map[string]promptEntry
	promptOrder []string
}

// NewRegistry creates a registry populated by the given providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		tools:     make(map[string]toolEntry),
		resources: make(map[string]resourceEntry),
		prompts:   make(map[string]promptEntry),
	}
	for _, p := range providers {
		p.Register(r)
	}
	return r
}

// RegisterTool adds or replaces a tool
func (r *Registry) RegisterTool(tool mcp.Tool, handler ToolHandlerFunc) {
	if _, exists := r.tools[tool.Name]; !exists {
		r.toolOrder = append(r.toolOrder, tool.Name)
	}
	r.tools[tool.Name] = toolEntry{def: tool, handler: handler}
}

// GetHandler returns the handler function for a given tool name
func (r *Registry) GetHandler(toolName string) (ToolHandlerFunc, error) {
	e, ok := r.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}
	return e.handler, nil
}

// Tools returns tool descriptors in registration order
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name].def)
	}
	return out
}

// RegisterResource adds or replaces a resource keyed by URI
func (r *Registry) RegisterResource(res mcp.Resource, handler ResourceHandlerFunc) {
	if _, exists := r.resources[res.URI]; !exists {
		r.resourceOrder = append(r.resourceOrder, res.URI)
	}
	r.resources[res.URI] = resourceEntry{def: res, handler: handler}
}

// Resource returns the descriptor and handler for uri
func (r *Registry) Resource(uri string) (mcp.Resource, ResourceHandlerFunc, error) {
	e, ok := r.resources[uri]
	if !ok {
		return mcp.Resource{}, nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	return e.def, e.handler, nil
}

// Resources returns resource descriptors in registration order
func (r *Registry) Resources() []mcp.Resource {
	out := make([]mcp.Resource, 0, len(r.resourceOrder))
	for _, uri := range r.resourceOrder {
		out = append(out, r.resources[uri].def)
	}
	return out
}

// RegisterPrompt adds or replaces a prompt
func (r *Registry) RegisterPrompt(p mcp.Prompt, handler PromptHandlerFunc) {
	if _, exists := r.prompts[p.Name]; !exists {
		r.promptOrder = append(r.promptOrder, p.Name)
	}
	r.prompts[p.Name] = promptEntry{def: p, handler: handler}
}

// Prompt returns the descriptor and handler for name
func (r *Registry) Prompt(name string) (mcp.Prompt, PromptHandlerFunc, error) {
	e, ok := r.prompts[name]
	if !ok {
		return mcp.Prompt{}, nil, fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	return e.def, e.handler, nil
}

// Prompts returns prompt descriptors in registration order
func (r *Registry) Prompts() []mcp.Prompt {
	out := make([]mcp.Prompt, 0, len(r.promptOrder))
	for _, name := range r.promptOrder {
		out = append(out, r.prompts[name].def)
	}
	return out
}

// Counts returns the number of tools, resources and prompts
func (r *Registry) Counts() (tools, resources, prompts int) {
	return len(r.tools), len(r.resources), len(r.prompts)
}
