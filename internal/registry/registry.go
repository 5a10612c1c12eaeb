// registry.go - In-memory per-session state: bound connection, liveness
// timestamps, pending capture commands, live console ring, tab scope.
// One mutex guards the session map; critical sections stay short and never
// span I/O or channel sends.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/firelens/firelens/internal/store"
)

// Disconnect reasons recorded on the connection state.
const (
	DisconnectManualStop    = "manual_stop"
	DisconnectNetworkError  = "network_error"
	DisconnectStaleTimeout  = "stale_timeout"
	DisconnectNormalClosure = "normal_closure"
	DisconnectAbnormalClose = "abnormal_close"
	DisconnectUnknown       = "unknown"
)

// Conn is the handle the ingest pipeline binds to a session. Implemented by
// the ingest package's connection wrapper.
type Conn interface {
	// SendFrame marshals and writes one outbound frame.
	SendFrame(v any) error
	// IsOpen reports whether the underlying socket is still writable.
	IsOpen() bool
}

// ConnectionState is the liveness view of a session's agent connection.
type ConnectionState struct {
	Connected        bool   `json:"connected"`
	ConnectedAt      int64  `json:"connectedAt,omitempty"`
	LastHeartbeatAt  int64  `json:"lastHeartbeatAt,omitempty"`
	DisconnectedAt   int64  `json:"disconnectedAt,omitempty"`
	DisconnectReason string `json:"disconnectReason,omitempty"`
}

// CaptureResult is the terminal outcome of a capture command round-trip.
type CaptureResult struct {
	OK        bool
	Payload   json.RawMessage
	Truncated bool
	Err       string
}

type pendingCapture struct {
	sessionID store.SessionID
	ch        chan CaptureResult
}

type sessionState struct {
	conn     Conn
	connInfo ConnectionState
	console  *ConsoleBuffer
	tabScope map[int]bool
}

// Registry owns all in-memory per-session state.
type Registry struct {
	mu       sync.Mutex
	sessions map[store.SessionID]*sessionState
	pending  map[string]*pendingCapture

	consoleCapacity int
}

// New creates a registry. consoleCapacity bounds each session's live console
// ring (0 uses the default).
func New(consoleCapacity int) *Registry {
	if consoleCapacity <= 0 {
		consoleCapacity = DefaultConsoleCapacity
	}
	return &Registry{
		sessions:        make(map[store.SessionID]*sessionState),
		pending:         make(map[string]*pendingCapture),
		consoleCapacity: consoleCapacity,
	}
}

func (r *Registry) stateLocked(id store.SessionID) *sessionState {
	st, ok := r.sessions[id]
	if !ok {
		st = &sessionState{console: NewConsoleBuffer(r.consoleCapacity)}
		r.sessions[id] = st
	}
	return st
}

// BindConnection binds a connection to a session, replacing any prior binding.
func (r *Registry) BindConnection(id store.SessionID, conn Conn) {
	now := time.Now().UnixMilli()
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateLocked(id)
	st.conn = conn
	st.connInfo = ConnectionState{Connected: true, ConnectedAt: now, LastHeartbeatAt: now}
}

// UnbindConnection clears the binding if it matches conn, recording the reason.
// Returns true if a binding was cleared.
func (r *Registry) UnbindConnection(id store.SessionID, conn Conn, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[id]
	if !ok || st.conn != conn {
		return false
	}
	st.conn = nil
	st.connInfo.Connected = false
	st.connInfo.DisconnectedAt = time.Now().UnixMilli()
	st.connInfo.DisconnectReason = reason
	return true
}

// Heartbeat refreshes the last-heartbeat timestamp for a bound session.
func (r *Registry) Heartbeat(id store.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.sessions[id]; ok && st.connInfo.Connected {
		st.connInfo.LastHeartbeatAt = time.Now().UnixMilli()
	}
}

// Connection returns the bound connection for a session, or nil.
func (r *Registry) Connection(id store.SessionID) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[id]
	if !ok || st.conn == nil || !st.conn.IsOpen() {
		return nil
	}
	return st.conn
}

// GetConnectionState returns the connection state for a session, if any.
func (r *Registry) GetConnectionState(id store.SessionID) (ConnectionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[id]
	if !ok {
		return ConnectionState{}, false
	}
	return st.connInfo, true
}

// SetTabScope records the tab ids a session is allowed to observe.
func (r *Registry) SetTabScope(id store.SessionID, tabIDs []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateLocked(id)
	st.tabScope = make(map[int]bool, len(tabIDs))
	for _, t := range tabIDs {
		st.tabScope[t] = true
	}
}

// InTabScope reports whether a tab id is within the session's scope. An empty
// scope admits every tab.
func (r *Registry) InTabScope(id store.SessionID, tabID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[id]
	if !ok || len(st.tabScope) == 0 {
		return true
	}
	return st.tabScope[tabID]
}

// Console returns the session's live console buffer, creating it if needed.
func (r *Registry) Console(id store.SessionID) *ConsoleBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(id).console
}

// RegisterPending records a pending capture command and returns the channel
// its result will arrive on. The channel is buffered so resolution never
// blocks the ingest read loop.
func (r *Registry) RegisterPending(commandID string, sessionID store.SessionID) <-chan CaptureResult {
	ch := make(chan CaptureResult, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[commandID] = &pendingCapture{sessionID: sessionID, ch: ch}
	return ch
}

// ResolvePending completes a pending command with the given result.
// Unknown command ids are silently dropped (late or duplicate results).
func (r *Registry) ResolvePending(commandID string, res CaptureResult) bool {
	r.mu.Lock()
	p, ok := r.pending[commandID]
	if ok {
		delete(r.pending, commandID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	p.ch <- res
	return true
}

// CancelPending removes a pending entry without resolving it (caller timed
// out or was cancelled). Returns true if an entry was removed.
func (r *Registry) CancelPending(commandID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[commandID]; !ok {
		return false
	}
	delete(r.pending, commandID)
	return true
}

// PendingCount returns the number of in-flight capture commands.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// RejectPendingForSession fails every pending command owned by the session.
// Called on disconnect so tool callers see a deterministic failure.
func (r *Registry) RejectPendingForSession(id store.SessionID, errMsg string) int {
	r.mu.Lock()
	var rejected []*pendingCapture
	for cid, p := range r.pending {
		if p.sessionID == id {
			rejected = append(rejected, p)
			delete(r.pending, cid)
		}
	}
	r.mu.Unlock()

	for _, p := range rejected {
		p.ch <- CaptureResult{OK: false, Err: errMsg}
	}
	return len(rejected)
}

// SessionCount returns the number of sessions with in-memory state.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ConnectedSessionIDs lists sessions with a live bound connection.
func (r *Registry) ConnectedSessionIDs() []store.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.SessionID
	for id, st := range r.sessions {
		if st.conn != nil && st.connInfo.Connected {
			out = append(out, id)
		}
	}
	return out
}

// Forget drops all in-memory state for a session (used by retention after a
// session row is deleted).
func (r *Registry) Forget(id store.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// String renders a one-line diagnostic summary.
func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	connected := 0
	for _, st := range r.sessions {
		if st.connInfo.Connected {
			connected++
		}
	}
	return fmt.Sprintf("registry{sessions=%d connected=%d pending=%d}",
		len(r.sessions), connected, len(r.pending))
}
