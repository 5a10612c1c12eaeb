// response.go - Tool result construction and JSON serialization helpers.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SafeMarshal performs defensive JSON marshaling with a fallback value.
func SafeMarshal(v any, fallback string) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[firelens] JSON marshal error: %v\n", err)
		return json.RawMessage(fallback)
	}
	return json.RawMessage(raw)
}

const marshalFallback = `{"content":[{"type":"text","text":"Internal error: failed to marshal result"}],"isError":true}`

// TextResponse constructs a tool result with a single text content block.
func TextResponse(text string) json.RawMessage {
	result := MCPToolResult{
		Content: []MCPContentBlock{{Type: "text", Text: text}},
	}
	return SafeMarshal(result, marshalFallback)
}

// ErrorResponse constructs a tool error result with a single text block.
func ErrorResponse(text string) json.RawMessage {
	result := MCPToolResult{
		Content: []MCPContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
	return SafeMarshal(result, marshalFallback)
}

// JSONResponse constructs a tool result whose text is the compact JSON
// encoding of data, optionally prefixed by a summary line.
func JSONResponse(summary string, data any) json.RawMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		return ErrorResponse("Failed to serialize response: " + err.Error())
	}
	text := string(raw)
	if summary != "" {
		text = summary + "\n" + text
	}
	result := MCPToolResult{
		Content: []MCPContentBlock{{Type: "text", Text: text}},
	}
	return SafeMarshal(result, marshalFallback)
}

// Truncate returns s unchanged if it fits in maxLen, otherwise trims it and
// appends "..." so the total length equals maxLen.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// AppendWarningsToResponse adds a warnings content block to a tool response.
func AppendWarningsToResponse(resp JSONRPCResponse, warnings []string) JSONRPCResponse {
	if len(warnings) == 0 {
		return resp
	}
	var result MCPToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return resp
	}
	result.Content = append(result.Content, MCPContentBlock{
		Type: "text",
		Text: "_warnings: " + strings.Join(warnings, "; "),
	})
	raw, _ := json.Marshal(result)
	resp.Result = json.RawMessage(raw)
	return resp
}
