// pipeline.go - The agent-facing ingest pipeline: one duplex websocket at /ws.
// Each connection runs a single read loop that fans typed frames out to
// handler functions, so per-connection ordering is explicit. The pipeline
// never mutates the store's tables directly, only through Store operations.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/firelens/firelens/internal/redaction"
	"github.com/firelens/firelens/internal/registry"
	"github.com/firelens/firelens/internal/store"
	"github.com/firelens/firelens/internal/util"
)

const (
	// PingInterval is how often the server probes an idle connection.
	PingInterval = 30 * time.Second
	// StaleGrace is added to PingInterval before a silent connection is closed.
	StaleGrace = 10 * time.Second

	// ErrCaptureClosed is the rejection message for captures pending on a
	// connection that closed.
	ErrCaptureClosed = "connection closed before capture completed"

	maxFrameBytes = 16 * 1024 * 1024 // snapshots with inline PNGs are large
)

// Pipeline accepts agent connections and routes frames between the store,
// the registry, and tool callers awaiting capture results.
type Pipeline struct {
	store    *store.Store
	registry *registry.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader

	connSeq atomic.Int64
}

// New creates the pipeline.
func New(st *store.Store, reg *registry.Registry, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    st,
		registry: reg,
		log:      log.With().Str("component", "ingest").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Local trust boundary: the listener binds 127.0.0.1 only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// conn wraps one agent websocket. Writes are serialized by writeMu
// (gorilla/websocket permits a single concurrent writer).
type conn struct {
	id int64
	ws *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool

	connectedAt  time.Time
	lastActivity atomic.Int64 // unix ms
	msgCount     atomic.Int64

	// sessions bound on this connection (session_start seen here)
	mu       sync.Mutex
	sessions map[store.SessionID]bool
	safeMode map[store.SessionID]bool
}

// SendFrame implements registry.Conn.
func (c *conn) SendFrame(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(v)
}

// IsOpen implements registry.Conn.
func (c *conn) IsOpen() bool {
	return !c.closed.Load()
}

func (c *conn) touch() {
	c.lastActivity.Store(time.Now().UnixMilli())
}

func (c *conn) boundSessions() []store.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.SessionID, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// HandleWS upgrades an HTTP request into an agent connection and runs its
// read loop until the socket closes.
func (p *Pipeline) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &conn{
		id:          p.connSeq.Add(1),
		ws:          ws,
		connectedAt: time.Now(),
		sessions:    make(map[store.SessionID]bool),
		safeMode:    make(map[store.SessionID]bool),
	}
	c.touch()
	ws.SetReadLimit(maxFrameBytes)

	// Protocol-level pongs count as inbound activity.
	ws.SetPongHandler(func(string) error {
		c.touch()
		for _, id := range c.boundSessions() {
			p.registry.Heartbeat(id)
		}
		return nil
	})

	p.log.Info().Int64("conn", c.id).Str("remote", r.RemoteAddr).Msg("agent connected")

	stopProbe := make(chan struct{})
	util.SafeGo(p.log, func() { p.probeLoop(c, stopProbe) })

	reason := p.readLoop(c)
	close(stopProbe)
	p.closeConn(c, reason)
}

// readLoop consumes frames until the socket errors. Returns the disconnect reason.
func (p *Pipeline) readLoop(c *conn) string {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return registry.DisconnectNormalClosure
			}
			if websocket.IsUnexpectedCloseError(err) {
				return registry.DisconnectAbnormalClose
			}
			return registry.DisconnectNetworkError
		}
		c.touch()
		c.msgCount.Add(1)
		p.dispatch(c, data)
	}
}

// probeLoop pings the agent every PingInterval and force-closes the socket
// after PingInterval+StaleGrace of silence.
func (p *Pipeline) probeLoop(c *conn, stop <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			idle := time.Since(time.UnixMilli(c.lastActivity.Load()))
			if idle > PingInterval+StaleGrace {
				p.log.Warn().Int64("conn", c.id).Dur("idle", idle).Msg("connection stale, closing")
				p.closeConn(c, registry.DisconnectStaleTimeout)
				return
			}
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// closeConn tears down the connection once: unbinds sessions and rejects
// their pending captures.
func (p *Pipeline) closeConn(c *conn, reason string) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.ws.Close()

	for _, id := range c.boundSessions() {
		if p.registry.UnbindConnection(id, c, reason) {
			n := p.registry.RejectPendingForSession(id, ErrCaptureClosed)
			if n > 0 {
				p.log.Info().Str("session", string(id)).Int("rejected", n).
					Msg("rejected pending captures on disconnect")
			}
		}
	}
	p.log.Info().Int64("conn", c.id).Str("reason", reason).
		Int64("messages", c.msgCount.Load()).Msg("agent disconnected")
}

// dispatch routes one inbound frame. Malformed frames get an error frame back;
// the socket stays open.
func (p *Pipeline) dispatch(c *conn, data []byte) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		p.sendError(c, "frame is not valid JSON", ErrInvalidMessage)
		return
	}

	switch raw.Type {
	case FrameTypePing:
		_ = c.SendFrame(PongFrame{Type: FrameTypePong})
	case FrameTypePong:
		// activity already recorded by touch()
	case FrameTypeSessionStart:
		p.handleSessionStart(c, data)
	case FrameTypeSessionEnd:
		p.handleSessionEnd(c, data)
	case FrameTypeEvent:
		p.handleEvent(c, data)
	case FrameTypeEventBatch:
		p.handleEventBatch(c, data)
	case FrameTypeCaptureResult:
		p.handleCaptureResult(c, data)
	case FrameTypeError:
		var f struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &f)
		p.log.Warn().Int64("conn", c.id).Str("error", f.Error).Msg("agent error frame")
	default:
		p.sendError(c, "unknown frame type: "+raw.Type, ErrUnknownType)
	}
}

func (p *Pipeline) handleSessionStart(c *conn, data []byte) {
	var f SessionStartFrame
	if err := json.Unmarshal(data, &f); err != nil || f.SessionID == "" {
		p.sendError(c, "invalid session_start frame", ErrInvalidMessage)
		return
	}

	meta := store.SessionMeta{
		ID:        store.SessionID(f.SessionID),
		URL:       f.URL,
		TabID:     f.TabID,
		WindowID:  f.WindowID,
		UserAgent: f.UserAgent,
		DPR:       f.DPR,
		SafeMode:  f.SafeMode,
	}
	if f.Viewport != nil {
		meta.ViewportW = f.Viewport.Width
		meta.ViewportH = f.Viewport.Height
	}

	id, err := p.store.CreateSession(meta, util.NowMs())
	if err != nil {
		p.log.Error().Err(err).Str("session", f.SessionID).Msg("create session")
		p.sendError(c, "failed to create session", ErrInternal)
		return
	}

	c.mu.Lock()
	c.sessions[id] = true
	c.safeMode[id] = f.SafeMode
	c.mu.Unlock()

	p.registry.BindConnection(id, c)
	if f.TabID != nil {
		p.registry.SetTabScope(id, []int{*f.TabID})
	}
	p.log.Info().Str("session", string(id)).Bool("safeMode", f.SafeMode).Msg("session started")
}

func (p *Pipeline) handleSessionEnd(c *conn, data []byte) {
	var f SessionEndFrame
	if err := json.Unmarshal(data, &f); err != nil || f.SessionID == "" {
		p.sendError(c, "invalid session_end frame", ErrInvalidMessage)
		return
	}
	id := store.SessionID(f.SessionID)
	if err := p.store.EndSession(id, util.NowMs()); err != nil {
		p.log.Error().Err(err).Str("session", f.SessionID).Msg("end session")
		p.sendError(c, "failed to end session", ErrInternal)
		return
	}

	c.mu.Lock()
	bound := c.sessions[id]
	delete(c.sessions, id)
	delete(c.safeMode, id)
	c.mu.Unlock()

	if bound {
		p.registry.UnbindConnection(id, c, registry.DisconnectNormalClosure)
		p.registry.RejectPendingForSession(id, ErrCaptureClosed)
	}
	p.log.Info().Str("session", string(id)).Msg("session ended")
}

func (p *Pipeline) handleEvent(c *conn, data []byte) {
	var f EventFrame
	if err := json.Unmarshal(data, &f); err != nil || f.SessionID == "" {
		p.sendError(c, "invalid event frame", ErrInvalidMessage)
		return
	}
	p.ingestEvents(c, store.SessionID(f.SessionID), []EventFrame{f})
}

func (p *Pipeline) handleEventBatch(c *conn, data []byte) {
	var f EventBatchFrame
	if err := json.Unmarshal(data, &f); err != nil || f.SessionID == "" {
		p.sendError(c, "invalid event_batch frame", ErrInvalidMessage)
		return
	}
	for i := range f.Events {
		if f.Events[i].SessionID == "" {
			f.Events[i].SessionID = f.SessionID
		}
	}
	p.ingestEvents(c, store.SessionID(f.SessionID), f.Events)
}

// ingestEvents validates the session, redacts payloads, persists the batch,
// and mirrors console/error entries into the live console ring.
func (p *Pipeline) ingestEvents(c *conn, sessionID store.SessionID, frames []EventFrame) {
	exists, err := p.store.SessionExists(sessionID)
	if err != nil {
		p.log.Error().Err(err).Msg("session lookup")
		p.sendError(c, "session lookup failed", ErrInternal)
		return
	}
	if !exists {
		p.sendError(c, fmt.Sprintf("session %s not found", sessionID), ErrSessionNotFound)
		return
	}

	c.mu.Lock()
	safeMode := c.safeMode[sessionID]
	c.mu.Unlock()
	red := redaction.New(safeMode)

	batch := make([]store.IngestEvent, 0, len(frames))
	for i := range frames {
		f := &frames[i]
		if red.ShouldDropEvent(f.EventType) {
			continue
		}
		batch = append(batch, store.IngestEvent{
			SessionID: sessionID,
			EventType: f.EventType,
			Timestamp: f.Timestamp,
			TabID:     f.TabID,
			Origin:    f.Origin,
			Data:      red.RedactMap(f.Data),
		})
	}
	if len(batch) == 0 {
		return
	}

	if _, err := p.store.InsertEventBatch(batch); err != nil {
		p.log.Error().Err(err).Str("session", string(sessionID)).Msg("insert event batch")
		p.sendError(c, "failed to persist events", ErrInternal)
		return
	}

	console := p.registry.Console(sessionID)
	for i := range batch {
		ev := &batch[i]
		switch store.ProjectKind(ev.EventType) {
		case store.KindConsole, store.KindError:
			console.Append(consoleEntryFromEvent(ev))
		}
	}
}

// consoleEntryFromEvent mirrors a console or runtime-error event into the ring.
func consoleEntryFromEvent(ev *store.IngestEvent) registry.ConsoleEntry {
	entry := registry.ConsoleEntry{
		Timestamp:    ev.Timestamp,
		RuntimeError: store.ProjectKind(ev.EventType) == store.KindError,
		Origin:       util.NormalizeOrigin(ev.Origin),
	}
	if ev.TabID != nil {
		entry.TabID = *ev.TabID
	}
	if level, ok := ev.Data["level"].(string); ok {
		entry.Level = level
	} else if entry.RuntimeError {
		entry.Level = "error"
	}
	if msg, ok := ev.Data["message"].(string); ok {
		entry.Message = msg
	}
	if stack, ok := ev.Data["stack"].(string); ok {
		entry.Stack = stack
	}
	if args, ok := ev.Data["args"].([]any); ok {
		for _, a := range args {
			if s, ok := a.(string); ok {
				entry.Args = append(entry.Args, s)
			}
		}
	}
	return entry
}

func (p *Pipeline) handleCaptureResult(c *conn, data []byte) {
	var f CaptureResultFrame
	if err := json.Unmarshal(data, &f); err != nil || f.CommandID == "" {
		p.sendError(c, "invalid capture_result frame", ErrInvalidMessage)
		return
	}
	res := registry.CaptureResult{
		OK:        f.OK,
		Payload:   f.Payload,
		Truncated: f.Truncated,
		Err:       f.Error,
	}
	// Unknown command ids are dropped silently: the waiter already timed out.
	p.registry.ResolvePending(f.CommandID, res)
}

func (p *Pipeline) sendError(c *conn, msg, code string) {
	if err := c.SendFrame(ErrorFrame{Type: FrameTypeError, Error: msg, Code: code}); err != nil {
		p.log.Debug().Err(err).Msg("send error frame")
	}
}

// SendCapture sends a capture command to the session's bound agent and blocks
// until a matching capture_result arrives, the timeout fires, or ctx is
// cancelled. A failed call leaves no pending entry behind.
func (p *Pipeline) SendCapture(ctx context.Context, sessionID store.SessionID, command string, payload any, timeout time.Duration) (json.RawMessage, bool, error) {
	if !RecognizedCommands[command] {
		return nil, false, fmt.Errorf("unrecognized capture command: %s", command)
	}

	target := p.registry.Connection(sessionID)
	if target == nil {
		return nil, false, fmt.Errorf("session %s is not connected", sessionID)
	}

	var payloadJSON json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, false, fmt.Errorf("marshal capture payload: %w", err)
		}
		payloadJSON = b
	}

	commandID := "cmd-" + uuid.NewString()
	ch := p.registry.RegisterPending(commandID, sessionID)

	frame := CaptureCommandFrame{
		Type:      FrameTypeCaptureCommand,
		CommandID: commandID,
		SessionID: string(sessionID),
		Command:   command,
		Payload:   payloadJSON,
		TimeoutMs: timeout.Milliseconds(),
	}
	if err := target.SendFrame(frame); err != nil {
		p.registry.CancelPending(commandID)
		return nil, false, fmt.Errorf("session %s is not connected: %w", sessionID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if !res.OK {
			msg := res.Err
			if msg == "" {
				msg = "capture failed"
			}
			return nil, false, fmt.Errorf("%s", msg)
		}
		return res.Payload, res.Truncated, nil
	case <-timer.C:
		p.registry.CancelPending(commandID)
		return nil, false, fmt.Errorf("Capture command timed out after %dms", timeout.Milliseconds())
	case <-ctx.Done():
		p.registry.CancelPending(commandID)
		return nil, false, ctx.Err()
	}
}
