// frames.go - Wire frame types for the agent duplex socket.
// One JSON object per message, discriminated by "type". Inbound frames are
// validated once at the boundary; downstream code consumes typed variants.
package ingest

import "encoding/json"

// Inbound frame types.
const (
	FrameTypePing          = "ping"
	FrameTypePong          = "pong"
	FrameTypeSessionStart  = "session_start"
	FrameTypeSessionEnd    = "session_end"
	FrameTypeEvent         = "event"
	FrameTypeEventBatch    = "event_batch"
	FrameTypeCaptureResult = "capture_result"
	FrameTypeError         = "error"
)

// Outbound frame type for server-originated capture requests.
const FrameTypeCaptureCommand = "capture_command"

// Wire error codes returned in error frames.
const (
	ErrInvalidMessage  = "INVALID_MESSAGE"
	ErrUnknownType     = "UNKNOWN_TYPE"
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrInternal        = "INTERNAL_ERROR"
)

// Recognized capture commands sent to the agent.
const (
	CmdCaptureDOMSubtree      = "CAPTURE_DOM_SUBTREE"
	CmdCaptureDOMDocument     = "CAPTURE_DOM_DOCUMENT"
	CmdCaptureComputedStyles  = "CAPTURE_COMPUTED_STYLES"
	CmdCaptureLayoutMetrics   = "CAPTURE_LAYOUT_METRICS"
	CmdCaptureUISnapshot      = "CAPTURE_UI_SNAPSHOT"
	CmdCaptureLiveConsoleLogs = "CAPTURE_GET_LIVE_CONSOLE_LOGS"
)

// RecognizedCommands is the closed set of capture commands.
var RecognizedCommands = map[string]bool{
	CmdCaptureDOMSubtree:      true,
	CmdCaptureDOMDocument:     true,
	CmdCaptureComputedStyles:  true,
	CmdCaptureLayoutMetrics:   true,
	CmdCaptureUISnapshot:      true,
	CmdCaptureLiveConsoleLogs: true,
}

// rawFrame is the first-pass decode of any inbound message.
type rawFrame struct {
	Type string `json:"type"`
}

// SessionStartFrame opens (or re-opens after reconnect) a session.
type SessionStartFrame struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	TabID     *int      `json:"tabId,omitempty"`
	WindowID  *int      `json:"windowId,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Viewport  *Viewport `json:"viewport,omitempty"`
	DPR       float64   `json:"dpr,omitempty"`
	SafeMode  bool      `json:"safeMode"`
}

// Viewport carries the window dimensions from session_start.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionEndFrame closes a session.
type SessionEndFrame struct {
	SessionID string `json:"sessionId"`
}

// EventFrame carries one telemetry event.
type EventFrame struct {
	SessionID string         `json:"sessionId"`
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	TabID     *int           `json:"tabId,omitempty"`
	Origin    string         `json:"origin,omitempty"`
}

// EventBatchFrame carries multiple telemetry events atomically.
type EventBatchFrame struct {
	SessionID string       `json:"sessionId"`
	Events    []EventFrame `json:"events"`
}

// CaptureResultFrame answers an outbound capture_command.
type CaptureResultFrame struct {
	CommandID string          `json:"commandId"`
	SessionID string          `json:"sessionId"`
	OK        bool            `json:"ok"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ErrorFrame is sent to the agent on protocol violations. The socket stays open.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// PongFrame answers an inbound JSON ping.
type PongFrame struct {
	Type string `json:"type"`
}

// CaptureCommandFrame is the server-originated capture request.
type CaptureCommandFrame struct {
	Type      string          `json:"type"`
	CommandID string          `json:"commandId"`
	SessionID string          `json:"sessionId"`
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	TimeoutMs int64           `json:"timeoutMs,omitempty"`
}
