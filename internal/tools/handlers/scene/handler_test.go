package scene

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/executor"
	"github.com/AltairaLabs/scenebridge-mcp/internal/host"
	"github.com/AltairaLabs/scenebridge-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// inlineRunner runs work on the calling goroutine
type inlineRunner struct {
	ops      []string
	timeouts []time.Duration
	err      error
}

func (r *inlineRunner) ExecuteWithTimeout(_ context.Context, op string, timeout time.Duration, fn executor.WorkFunc) (any, error) {
	r.ops = append(r.ops, op)
	r.timeouts = append(r.timeouts, timeout)
	if r.err != nil {
		return nil, r.err
	}
	return fn()
}

func newTestRegistry(t *testing.T) (*tools.Registry, *host.Scene, *inlineRunner) {
	t.Helper()
	runner := &inlineRunner{}
	scene := host.NewDefaultScene()
	h := NewHandler(runner, scene, time.Minute, time.Second)
	return tools.NewRegistry(h), scene, runner
}

func callTool(t *testing.T, r *tools.Registry, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	handler, err := r.GetHandler(name)
	if err != nil {
		t.Fatalf("Expected handler for %s: %v", name, err)
	}
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("Tool %s returned error: %v", name, err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("Expected content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestRegisterExposesEverything(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	toolsCount, resources, prompts := r.Counts()
	if toolsCount != len(config.AllTools()) {
		t.Errorf("Expected %d tools, got %d", len(config.AllTools()), toolsCount)
	}
	if resources != 3 {
		t.Errorf("Expected 3 resources, got %d", resources)
	}
	if prompts != 2 {
		t.Errorf("Expected 2 prompts, got %d", prompts)
	}
}

func TestSceneInfo(t *testing.T) {
	r, _, runner := newTestRegistry(t)
	text := resultText(t, callTool(t, r, config.ToolGetSceneInfo, nil))

	if !strings.Contains(text, "Objects: 3") {
		t.Errorf("Expected object count in %q", text)
	}
	if !strings.Contains(text, "Active object: Cube") {
		t.Errorf("Expected active object in %q", text)
	}
	if runner.ops[0] != config.ToolGetSceneInfo || runner.timeouts[0] != time.Minute {
		t.Errorf("Expected tool timeout for tool call, got %v %v", runner.ops, runner.timeouts)
	}
}

func TestCreateAndDeleteObject(t *testing.T) {
	r, scene, _ := newTestRegistry(t)

	res := callTool(t, r, config.ToolCreateObject, map[string]any{"type": "mesh", "x": 1.5})
	if res.IsError {
		t.Fatalf("Unexpected error result: %s", resultText(t, res))
	}
	obj, err := scene.Object("Cube.001")
	if err != nil {
		t.Fatalf("Expected Cube.001 to exist: %v", err)
	}
	if obj.Location[0] != 1.5 {
		t.Errorf("Expected x=1.5, got %v", obj.Location[0])
	}

	callTool(t, r, config.ToolDeleteObject, map[string]any{"name": "Cube.001"})
	if _, err := scene.Object("Cube.001"); !errors.Is(err, host.ErrObjectNotFound) {
		t.Errorf("Expected object to be deleted, got %v", err)
	}
}

func TestMissingArgumentsReturnErrorResult(t *testing.T) {
	r, _, runner := newTestRegistry(t)
	for _, name := range []string{config.ToolGetObjectInfo, config.ToolCreateObject, config.ToolDeleteObject, config.ToolSelectObjects, config.ToolSetFrame} {
		res := callTool(t, r, name, map[string]any{})
		if !res.IsError {
			t.Errorf("Expected error result for %s without arguments", name)
		}
	}
	if len(runner.ops) != 0 {
		t.Errorf("Expected no host work for invalid arguments, got %v", runner.ops)
	}
}

func TestHostErrorsPropagate(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	handler, _ := r.GetHandler(config.ToolGetObjectInfo)
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]any{"name": "Nope"}
	if _, err := handler(context.Background(), req); !errors.Is(err, host.ErrObjectNotFound) {
		t.Fatalf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestRunnerErrorsPropagate(t *testing.T) {
	r, _, runner := newTestRegistry(t)
	runner.err = &executor.TimeoutError{Operation: config.ToolGetSceneInfo, Timeout: time.Second}
	handler, _ := r.GetHandler(config.ToolGetSceneInfo)
	_, err := handler(context.Background(), mcp.CallToolRequest{})
	var te *executor.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
}

func TestSelectObjects(t *testing.T) {
	r, scene, _ := newTestRegistry(t)
	callTool(t, r, config.ToolSelectObjects, map[string]any{"names": "Light, Camera,"})

	selected := scene.Selected()
	if len(selected) != 2 {
		t.Fatalf("Expected 2 selected, got %d", len(selected))
	}
	if scene.Active().Name != "Light" {
		t.Errorf("Expected Light active, got %s", scene.Active().Name)
	}
}

func TestSetFrame(t *testing.T) {
	r, scene, _ := newTestRegistry(t)
	callTool(t, r, config.ToolSetFrame, map[string]any{"frame": 42.0})
	if scene.Frame != 42 {
		t.Errorf("Expected frame 42, got %d", scene.Frame)
	}

	handler, _ := r.GetHandler(config.ToolSetFrame)
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]any{"frame": 999.0}
	if _, err := handler(context.Background(), req); !errors.Is(err, host.ErrFrameOutOfRange) {
		t.Errorf("Expected ErrFrameOutOfRange, got %v", err)
	}
}

func TestResourcesUseResourceTimeout(t *testing.T) {
	r, _, runner := newTestRegistry(t)
	for _, uri := range []string{config.ResourceActiveScene, config.ResourceSelectedObjects, config.ResourceObjectList} {
		_, handler, err := r.Resource(uri)
		if err != nil {
			t.Fatalf("Expected resource %s: %v", uri, err)
		}
		text, err := handler(context.Background(), uri)
		if err != nil {
			t.Fatalf("Resource %s failed: %v", uri, err)
		}
		if !strings.HasPrefix(text, "# ") {
			t.Errorf("Expected markdown heading for %s, got %q", uri, text)
		}
	}
	for _, d := range runner.timeouts {
		if d != time.Second {
			t.Errorf("Expected resource timeout, got %v", d)
		}
	}
}

func TestObjectListTable(t *testing.T) {
	s := host.NewDefaultScene()
	text := formatObjectList("Objects", s.Objects())
	if !strings.Contains(text, "| Cube | MESH |") {
		t.Errorf("Expected Cube row in %q", text)
	}
	if got := formatObjectList("Empty", nil); !strings.Contains(got, "_none_") {
		t.Errorf("Expected placeholder for empty list, got %q", got)
	}
}

func TestPrompts(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	_, handler, err := r.Prompt(config.PromptDescribeScene)
	if err != nil {
		t.Fatalf("Expected prompt: %v", err)
	}
	text, _ := handler(context.Background(), map[string]string{"focus": "lighting"})
	if !strings.Contains(text, "lighting") {
		t.Errorf("Expected focus in prompt, got %q", text)
	}

	_, handler, _ = r.Prompt(config.PromptTidyScene)
	text, _ = handler(context.Background(), map[string]string{"keep": "Camera"})
	if !strings.Contains(text, "Camera") {
		t.Errorf("Expected keep list in prompt, got %q", text)
	}
}
