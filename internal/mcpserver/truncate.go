package mcpserver

import (
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
)

// truncateResult caps every text block of result at limit bytes, appending a
// note with the omitted byte count. It returns the total bytes omitted.
func truncateResult(result *mcp.CallToolResult, limit int) int {
	if limit <= 0 {
		return 0
	}
	omitted := 0
	for i, c := range result.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			var n int
			tc.Text, n = truncateText(tc.Text, limit)
			result.Content[i] = tc
			omitted += n
		case *mcp.TextContent:
			var n int
			tc.Text, n = truncateText(tc.Text, limit)
			omitted += n
		}
	}
	return omitted
}

func truncateText(text string, limit int) (string, int) {
	if len(text) <= limit {
		return text, 0
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	omitted := len(text) - cut
	return text[:cut] + fmt.Sprintf(truncationNoteFormat, omitted), omitted
}
