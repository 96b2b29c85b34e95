// Package scene provides the scene tools, resources and prompts. Every read
// or write of the scene runs on the host loop through the executor.
package scene

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/executor"
	"github.com/AltairaLabs/scenebridge-mcp/internal/host"
	"github.com/AltairaLabs/scenebridge-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// Runner executes work on the host with a bound
type Runner interface {
	ExecuteWithTimeout(ctx context.Context, operation string, timeout time.Duration, fn executor.WorkFunc) (any, error)
}

// Handler implements the scene tools
type Handler struct {
	runner          Runner
	scene           *host.Scene
	toolTimeout     time.Duration
	resourceTimeout time.Duration
}

// NewHandler creates a scene handler. The scene must only be touched by the
// host loop behind runner.
func NewHandler(runner Runner, scene *host.Scene, toolTimeout, resourceTimeout time.Duration) *Handler {
	return &Handler{
		runner:          runner,
		scene:           scene,
		toolTimeout:     toolTimeout,
		resourceTimeout: resourceTimeout,
	}
}

// Register adds the scene tools, resources and prompts to r
func (h *Handler) Register(r *tools.Registry) {
	r.RegisterTool(mcp.NewTool(config.ToolGetSceneInfo,
		mcp.WithDescription("Summarize the active scene: frame range, object counts and the active object"),
	), h.handleSceneInfo)

	r.RegisterTool(mcp.NewTool(config.ToolGetObjectInfo,
		mcp.WithDescription("Describe a single object by name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Object name")),
	), h.handleObjectInfo)

	r.RegisterTool(mcp.NewTool(config.ToolCreateObject,
		mcp.WithDescription("Add an object to the scene and make it active"),
		mcp.WithString("type", mcp.Required(), mcp.Description("One of "+strings.Join(host.ObjectTypes, ", "))),
		mcp.WithString("name", mcp.Description("Optional object name; made unique if taken")),
		mcp.WithNumber("x", mcp.Description("X location")),
		mcp.WithNumber("y", mcp.Description("Y location")),
		mcp.WithNumber("z", mcp.Description("Z location")),
	), h.handleCreateObject)

	r.RegisterTool(mcp.NewTool(config.ToolDeleteObject,
		mcp.WithDescription("Remove an object from the scene"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Object name")),
	), h.handleDeleteObject)

	r.RegisterTool(mcp.NewTool(config.ToolSelectObjects,
		mcp.WithDescription("Replace the selection; the first name becomes active"),
		mcp.WithString("names", mcp.Required(), mcp.Description("Comma-separated object names")),
	), h.handleSelectObjects)

	r.RegisterTool(mcp.NewTool(config.ToolSetFrame,
		mcp.WithDescription("Move the playhead to a frame within the scene range"),
		mcp.WithNumber("frame", mcp.Required(), mcp.Description("Frame number")),
	), h.handleSetFrame)

	r.RegisterResource(mcp.NewResource(config.ResourceActiveScene, "Active scene",
		mcp.WithResourceDescription("Summary of the active scene"),
		mcp.WithMIMEType("text/markdown"),
	), h.readActiveScene)

	r.RegisterResource(mcp.NewResource(config.ResourceSelectedObjects, "Selected objects",
		mcp.WithResourceDescription("Objects in the current selection"),
		mcp.WithMIMEType("text/markdown"),
	), h.readSelection)

	r.RegisterResource(mcp.NewResource(config.ResourceObjectList, "All objects",
		mcp.WithResourceDescription("Every object in the scene"),
		mcp.WithMIMEType("text/markdown"),
	), h.readObjects)

	r.RegisterPrompt(mcp.NewPrompt(config.PromptDescribeScene,
		mcp.WithPromptDescription("Describe the scene"),
		mcp.WithArgument("focus", mcp.ArgumentDescription("What to focus on, e.g. lighting or layout")),
	), renderDescribeScene)

	r.RegisterPrompt(mcp.NewPrompt(config.PromptTidyScene,
		mcp.WithPromptDescription("Plan a cleanup of the scene"),
		mcp.WithArgument("keep", mcp.ArgumentDescription("Comma-separated objects to leave alone")),
	), renderTidyScene)
}

func (h *Handler) run(ctx context.Context, op string, timeout time.Duration, fn func() (string, error)) (string, error) {
	out, err := h.runner.ExecuteWithTimeout(ctx, op, timeout, func() (any, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	text, _ := out.(string)
	return text, nil
}

func (h *Handler) tool(ctx context.Context, op string, fn func() (string, error)) (*mcp.CallToolResult, error) {
	text, err := h.run(ctx, op, h.toolTimeout, fn)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}

func (h *Handler) handleSceneInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.tool(ctx, config.ToolGetSceneInfo, func() (string, error) {
		return formatSceneInfo(h.scene), nil
	})
}

func (h *Handler) handleObjectInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.tool(ctx, config.ToolGetObjectInfo, func() (string, error) {
		obj, err := h.scene.Object(name)
		if err != nil {
			return "", err
		}
		return formatObject(obj), nil
	})
}

func (h *Handler) handleCreateObject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := request.GetString("name", "")
	loc := [3]float64{
		request.GetFloat("x", 0),
		request.GetFloat("y", 0),
		request.GetFloat("z", 0),
	}
	return h.tool(ctx, config.ToolCreateObject, func() (string, error) {
		obj, err := h.scene.AddObject(objType, name, loc)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created %s %q", obj.Type, obj.Name), nil
	})
}

func (h *Handler) handleDeleteObject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.tool(ctx, config.ToolDeleteObject, func() (string, error) {
		if err := h.scene.RemoveObject(name); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %q", name), nil
	})
}

func (h *Handler) handleSelectObjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("names")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := splitNames(raw)
	if len(names) == 0 {
		return mcp.NewToolResultError("names must list at least one object"), nil
	}
	return h.tool(ctx, config.ToolSelectObjects, func() (string, error) {
		if err := h.scene.Select(names); err != nil {
			return "", err
		}
		return fmt.Sprintf("Selected %d object(s); active: %s", len(names), names[0]), nil
	})
}

func (h *Handler) handleSetFrame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frame, err := request.RequireFloat("frame")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.tool(ctx, config.ToolSetFrame, func() (string, error) {
		if err := h.scene.SetFrame(int(frame)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Frame set to %d", int(frame)), nil
	})
}

func (h *Handler) readActiveScene(ctx context.Context, uri string) (string, error) {
	return h.run(ctx, uri, h.resourceTimeout, func() (string, error) {
		return formatSceneInfo(h.scene), nil
	})
}

func (h *Handler) readSelection(ctx context.Context, uri string) (string, error) {
	return h.run(ctx, uri, h.resourceTimeout, func() (string, error) {
		return formatObjectList("Selected objects", h.scene.Selected()), nil
	})
}

func (h *Handler) readObjects(ctx context.Context, uri string) (string, error) {
	return h.run(ctx, uri, h.resourceTimeout, func() (string, error) {
		return formatObjectList("Objects", h.scene.Objects()), nil
	})
}

func renderDescribeScene(_ context.Context, args map[string]string) (string, error) {
	return describeScenePrompt(args["focus"]), nil
}

func renderTidyScene(_ context.Context, args map[string]string) (string, error) {
	return tidyScenePrompt(args["keep"]), nil
}

func splitNames(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}
