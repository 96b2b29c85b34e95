package scene

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AltairaLabs/scenebridge-mcp/internal/host"
)

// The formatters below read host state and must run on the host loop.

func formatSceneInfo(s *host.Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scene: %s\n\n", s.Name)
	fmt.Fprintf(&b, "- Frame: %d (range %d-%d)\n", s.Frame, s.FrameStart, s.FrameEnd)
	objs := s.Objects()
	fmt.Fprintf(&b, "- Objects: %d\n", len(objs))
	if active := s.Active(); active != nil {
		fmt.Fprintf(&b, "- Active object: %s\n", active.Name)
	} else {
		b.WriteString("- Active object: none\n")
	}

	counts := s.CountByType()
	if len(counts) > 0 {
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		b.WriteString("\n## Objects by type\n\n")
		for _, t := range types {
			fmt.Fprintf(&b, "- %s: %d\n", t, counts[t])
		}
	}
	return b.String()
}

func formatObject(obj *host.Object) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Object: %s\n\n", obj.Name)
	fmt.Fprintf(&b, "- Type: %s\n", obj.Type)
	fmt.Fprintf(&b, "- Location: (%.3f, %.3f, %.3f)\n", obj.Location[0], obj.Location[1], obj.Location[2])
	fmt.Fprintf(&b, "- Visible: %t\n", obj.Visible)
	return b.String()
}

func formatObjectList(title string, objs []*host.Object) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(objs) == 0 {
		b.WriteString("_none_\n")
		return b.String()
	}
	b.WriteString("| Name | Type | Location |\n|---|---|---|\n")
	for _, obj := range objs {
		fmt.Fprintf(&b, "| %s | %s | (%.2f, %.2f, %.2f) |\n",
			obj.Name, obj.Type, obj.Location[0], obj.Location[1], obj.Location[2])
	}
	return b.String()
}

func describeScenePrompt(focus string) string {
	if focus == "" {
		focus = "overall composition"
	}
	return fmt.Sprintf(
		"Read the scene://active and scene://objects resources, then describe the current scene "+
			"with a focus on %s. Mention the active object and anything that looks misplaced.", focus)
}

func tidyScenePrompt(keep string) string {
	var b strings.Builder
	b.WriteString("Inspect scene://objects and propose a cleanup plan: remove unused objects, ")
	b.WriteString("rename duplicates such as \"Cube.001\", and group objects by type.")
	if keep != "" {
		fmt.Fprintf(&b, " Do not touch these objects: %s.", keep)
	}
	b.WriteString(" Use the delete_object and select_objects tools to apply the plan.")
	return b.String()
}
