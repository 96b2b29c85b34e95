package config

// Tool defines the tools exposed by the server
const (
	// ToolGetSceneInfo summarizes the active scene
	ToolGetSceneInfo = "get_scene_info"
	// ToolGetObjectInfo describes a single object
	ToolGetObjectInfo = "get_object_info"
	// ToolCreateObject adds an object to the scene
	ToolCreateObject = "create_object"
	// ToolDeleteObject removes an object from the scene
	ToolDeleteObject = "delete_object"
	// ToolSelectObjects replaces the current selection
	ToolSelectObjects = "select_objects"
	// ToolSetFrame moves the playhead
	ToolSetFrame = "set_frame"
)

// Resource URIs exposed by the server
const (
	ResourceActiveScene     = "scene://active"
	ResourceSelectedObjects = "scene://selection"
	ResourceObjectList      = "scene://objects"
)

// Prompt names exposed by the server
const (
	PromptDescribeScene = "describe_scene"
	PromptTidyScene     = "tidy_scene"
)

// AllTools returns a slice of all available tool names
func AllTools() []string {
	return []string{
		ToolGetSceneInfo,
		ToolGetObjectInfo,
		ToolCreateObject,
		ToolDeleteObject,
		ToolSelectObjects,
		ToolSetFrame,
	}
}
