// types.go - Nominal id types and row structs for persisted telemetry.
package store

// SessionID identifies one debugging session ("sess-<adj>-<animal>-<date>-<rand>").
type SessionID string

// EventID identifies one persisted event ("evt-<ms>-<seq>").
type EventID string

// FingerprintID identifies an aggregated error fingerprint ("fp-<sha256 prefix>").
type FingerprintID string

// SnapshotID identifies a UI snapshot.
type SnapshotID string

// Event kinds stored in the events.type column. The set is closed; the wire
// protocol's richer eventType strings are projected onto these six.
const (
	KindConsole    = "console"
	KindError      = "error"
	KindNetwork    = "network"
	KindNav        = "nav"
	KindUI         = "ui"
	KindElementRef = "element_ref"
)

// ValidKind reports whether k is one of the closed set of event kinds.
func ValidKind(k string) bool {
	switch k {
	case KindConsole, KindError, KindNetwork, KindNav, KindUI, KindElementRef:
		return true
	}
	return false
}

// Session is one row of the sessions table.
type Session struct {
	ID         SessionID `json:"sessionId"`
	CreatedAt  int64     `json:"createdAt"`
	EndedAt    *int64    `json:"endedAt,omitempty"`
	TabIDs     []int     `json:"tabIds,omitempty"`
	WindowID   *int      `json:"windowId,omitempty"`
	URLInitial string    `json:"urlInitial,omitempty"`
	URLLast    string    `json:"urlLast,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	ViewportW  int       `json:"viewportWidth,omitempty"`
	ViewportH  int       `json:"viewportHeight,omitempty"`
	DPR        float64   `json:"dpr,omitempty"`
	SafeMode   bool      `json:"safeMode"`
	Pinned     bool      `json:"pinned"`
}

// SessionMeta carries the fields of a session_start frame that seed a session row.
type SessionMeta struct {
	ID        SessionID
	URL       string
	TabID     *int
	WindowID  *int
	UserAgent string
	ViewportW int
	ViewportH int
	DPR       float64
	SafeMode  bool
}

// Event is one row of the events table.
type Event struct {
	ID        EventID        `json:"eventId"`
	SessionID SessionID      `json:"sessionId"`
	Timestamp int64          `json:"timestamp"`
	Kind      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	TabID     *int           `json:"tabId,omitempty"`
	Origin    string         `json:"origin,omitempty"`
}

// IngestEvent is an event as it arrives on the wire, before kind projection.
type IngestEvent struct {
	SessionID SessionID
	EventType string
	Timestamp int64
	TabID     *int
	Origin    string
	Data      map[string]any
}

// NetworkRecord is one row of the network table.
type NetworkRecord struct {
	ID         string    `json:"id"`
	SessionID  SessionID `json:"sessionId"`
	StartTS    int64     `json:"startTimestamp"`
	DurationMs int64     `json:"durationMs"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	Origin     string    `json:"origin,omitempty"`
	Status     int       `json:"status"`
	Initiator  *string   `json:"initiator,omitempty"`
	ErrorClass *string   `json:"errorClass,omitempty"`
	BodySize   int64     `json:"bodySize"`
}

// Valid network.initiator values; unknown inbound values are stored as NULL.
var ValidInitiators = map[string]bool{
	"fetch": true, "xhr": true, "img": true, "script": true, "other": true,
}

// Valid network.error_class values; unknown inbound values are stored as NULL.
var ValidErrorClasses = map[string]bool{
	"timeout": true, "cors": true, "dns": true, "blocked": true,
	"http_error": true, "unknown": true,
}

// ErrorFingerprint is one row of the error_fingerprints table.
type ErrorFingerprint struct {
	ID            FingerprintID `json:"fingerprintId"`
	SessionID     SessionID     `json:"sessionId"`
	Count         int64         `json:"count"`
	SampleMessage string        `json:"sampleMessage"`
	SampleStack   string        `json:"sampleStack,omitempty"`
	FirstSeen     int64         `json:"firstSeen"`
	LastSeen      int64         `json:"lastSeen"`
}

// Snapshot is one row of the snapshots table. PNG bytes live on disk at
// PNGPath, relative to the data directory.
type Snapshot struct {
	ID             SnapshotID `json:"snapshotId"`
	SessionID      SessionID  `json:"sessionId"`
	TriggerEventID *EventID   `json:"triggerEventId,omitempty"`
	Timestamp      int64      `json:"timestamp"`
	Trigger        string     `json:"trigger"`
	Selector       string     `json:"selector,omitempty"`
	URL            string     `json:"url,omitempty"`
	Mode           string     `json:"mode"`
	StyleMode      string     `json:"styleMode,omitempty"`
	DOMJSON        string     `json:"-"`
	StylesJSON     string     `json:"-"`
	PNGPath        string     `json:"pngPath,omitempty"`
	PNGMime        string     `json:"pngMime,omitempty"`
	PNGBytes       int64      `json:"pngBytes,omitempty"`
	DOMTruncated   bool       `json:"domTruncated,omitempty"`
	StylesTrunc    bool       `json:"stylesTruncated,omitempty"`
	PNGTruncated   bool       `json:"pngTruncated,omitempty"`
}

// Settings is the server_settings singleton row.
type Settings struct {
	RetentionDays          int    `json:"retentionDays"`
	MaxDBMb                int    `json:"maxDbMb"`
	MaxSessions            int    `json:"maxSessions"`
	CleanupIntervalMinutes int    `json:"cleanupIntervalMinutes"`
	LastCleanupAt          int64  `json:"lastCleanupAt"`
	ExportPath             string `json:"exportPath,omitempty"`
}

// DefaultSettings returns the settings applied on first startup.
func DefaultSettings() Settings {
	return Settings{
		RetentionDays:          7,
		MaxDBMb:                500,
		MaxSessions:            200,
		CleanupIntervalMinutes: 60,
	}
}
