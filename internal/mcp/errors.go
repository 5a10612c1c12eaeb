// errors.go - Tool error taxonomy.
// A failing tool surfaces a single-line message prefixed with its error kind,
// e.g. "LIVE_SESSION_DISCONNECTED: session sess-a is not connected". Capture
// timeouts are the exception: their message is surfaced verbatim.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error kinds visible to tool callers.
const (
	KindLiveDisconnected     = "LIVE_SESSION_DISCONNECTED"
	KindCaptureTimeout       = "CAPTURE_TIMEOUT"
	KindInvalidInput         = "INVALID_INPUT"
	KindSessionNotFound      = "SESSION_NOT_FOUND"
	KindSnapshotSizeExceeded = "SNAPSHOT_SIZE_EXCEEDED"
	KindSnapshotAssetMissing = "SNAPSHOT_ASSET_MISSING"
	KindInternal             = "INTERNAL_ERROR"
)

// captureTimeoutPrefix marks capture deadline errors, which pass through
// without a kind prefix so callers see the deadline in the first characters.
const captureTimeoutPrefix = "Capture command timed out after"

// disconnectSubstrings is the closed list that maps transport-level failures
// onto LIVE_SESSION_DISCONNECTED.
var disconnectSubstrings = []string{
	"is not connected",
	"connection closed before capture completed",
	"websocket: close",
	"use of closed network connection",
	"connection reset by peer",
	"broken pipe",
}

// ToolError is an error with a caller-visible kind.
type ToolError struct {
	Kind    string
	Message string
}

func (e *ToolError) Error() string {
	return e.Kind + ": " + e.Message
}

// NewToolError builds a ToolError with a formatted message.
func NewToolError(kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput builds an INVALID_INPUT error.
func InvalidInput(format string, args ...any) *ToolError {
	return NewToolError(KindInvalidInput, format, args...)
}

// NormalizeLiveError classifies an error from a live capture round-trip.
// Disconnect-shaped errors become LIVE_SESSION_DISCONNECTED; capture timeouts
// keep their original message; everything else is left as-is.
func NormalizeLiveError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.HasPrefix(msg, captureTimeoutPrefix) {
		return err
	}
	for _, sub := range disconnectSubstrings {
		if strings.Contains(msg, sub) {
			return &ToolError{Kind: KindLiveDisconnected, Message: msg}
		}
	}
	return err
}

// IsCaptureTimeout reports whether an error is a capture deadline failure.
func IsCaptureTimeout(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), captureTimeoutPrefix)
}

// ToolErrorResponse renders any error as an isError tool result. ToolError
// values keep their kind prefix; other errors surface their message verbatim.
func ToolErrorResponse(err error) json.RawMessage {
	if err == nil {
		return ErrorResponse(KindInternal + ": unknown failure")
	}
	return ErrorResponse(strings.SplitN(err.Error(), "\n", 2)[0])
}
