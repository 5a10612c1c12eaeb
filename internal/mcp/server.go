// server.go - JSON-RPC dispatch over a registered tool catalogue.
// The transport (stdio framing) lives in the bridge package; this type only
// maps requests onto handlers and shapes responses.
package mcp

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// ToolHandler executes one tool call and returns the serialized tool result.
type ToolHandler func(args json.RawMessage) json.RawMessage

type registeredTool struct {
	tool    MCPTool
	handler ToolHandler
}

// Server holds the fixed tool catalogue and dispatches JSON-RPC requests.
type Server struct {
	info  MCPServerInfo
	tools []registeredTool
	index map[string]int
}

// NewServer creates an empty server identified by name and version.
func NewServer(name, version string) *Server {
	return &Server{
		info:  MCPServerInfo{Name: name, Version: version},
		index: make(map[string]int),
	}
}

// RegisterTool adds one tool to the catalogue. Registration order is the
// tools/list order. Re-registering a name replaces the handler.
func (s *Server) RegisterTool(tool MCPTool, handler ToolHandler) {
	if i, ok := s.index[tool.Name]; ok {
		s.tools[i] = registeredTool{tool: tool, handler: handler}
		return
	}
	s.index[tool.Name] = len(s.tools)
	s.tools = append(s.tools, registeredTool{tool: tool, handler: handler})
}

// ToolCount returns the number of registered tools.
func (s *Server) ToolCount() int {
	return len(s.tools)
}

// HandleRequest dispatches one request. The second return value is false for
// notifications, which produce no response frame.
func (s *Server) HandleRequest(req JSONRPCRequest) (JSONRPCResponse, bool) {
	if req.HasInvalidID() {
		return errorResponse(nil, CodeInvalidRequest, "id must be a string or number"), true
	}

	switch req.Method {
	case "initialize":
		result := MCPInitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      s.info,
			Capabilities:    MCPCapabilities{},
		}
		return resultResponse(req.ID, SafeMarshal(result, "{}")), true

	case "notifications/initialized", "initialized":
		return JSONRPCResponse{}, false

	case "ping":
		return resultResponse(req.ID, json.RawMessage("{}")), true

	case "tools/list":
		list := MCPToolsListResult{Tools: make([]MCPTool, 0, len(s.tools))}
		for _, rt := range s.tools {
			list.Tools = append(list.Tools, rt.tool)
		}
		return resultResponse(req.ID, SafeMarshal(list, `{"tools":[]}`)), true

	case "tools/call":
		return s.handleToolCall(req), true

	default:
		if !req.HasID() {
			// Unknown notification, nothing to answer.
			return JSONRPCResponse{}, false
		}
		return errorResponse(req.ID, CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method)), true
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolCall(req JSONRPCRequest) JSONRPCResponse {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "malformed tools/call params")
	}
	i, ok := s.index[params.Name]
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound,
			fmt.Sprintf("unknown tool: %s", params.Name))
	}
	rt := s.tools[i]

	resp := resultResponse(req.ID, rt.handler(params.Arguments))
	warnings := ValidateParamsAgainstSchema(params.Arguments, rt.tool.InputSchema)
	return AppendWarningsToResponse(resp, warnings)
}

func resultResponse(id any, result json.RawMessage) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message}}
}
