// deps.go - Dependencies shared by every tool handler.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/firelens/firelens/internal/registry"
	"github.com/firelens/firelens/internal/store"
)

// Capturer sends one capture command to a session's agent and waits for its
// result. Implemented by the ingest pipeline.
type Capturer interface {
	SendCapture(ctx context.Context, sessionID store.SessionID, command string, payload any, timeout time.Duration) (json.RawMessage, bool, error)
}

// Deps wires the tool handlers to the rest of the process.
type Deps struct {
	Store    *store.Store
	Registry *registry.Registry
	Capture  Capturer
	Log      zerolog.Logger
}
