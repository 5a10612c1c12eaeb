// schema.go - Append-only versioned migrations.
// Never edit an existing migration; add a new version.
package store

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE sessions (
    session_id   TEXT PRIMARY KEY,
    created_at   INTEGER NOT NULL,
    ended_at     INTEGER,
    tab_ids      TEXT,
    window_id    INTEGER,
    url_initial  TEXT,
    url_last     TEXT,
    user_agent   TEXT,
    viewport_w   INTEGER,
    viewport_h   INTEGER,
    dpr          REAL,
    safe_mode    INTEGER NOT NULL DEFAULT 0,
    pinned       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE events (
    event_id   TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    ts         INTEGER NOT NULL,
    type       TEXT NOT NULL CHECK (type IN ('console','error','network','nav','ui','element_ref')),
    payload    TEXT NOT NULL,
    tab_id     INTEGER,
    origin     TEXT
);
CREATE INDEX idx_events_session_ts ON events(session_id, ts);
CREATE INDEX idx_events_type ON events(type);
CREATE INDEX idx_events_origin ON events(origin);

CREATE TABLE network (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    start_ts    INTEGER NOT NULL,
    duration_ms INTEGER,
    method      TEXT,
    url         TEXT,
    origin      TEXT,
    status      INTEGER,
    initiator   TEXT CHECK (initiator IN ('fetch','xhr','img','script','other')),
    error_class TEXT CHECK (error_class IN ('timeout','cors','dns','blocked','http_error','unknown')),
    body_size   INTEGER
);
CREATE INDEX idx_network_session_ts ON network(session_id, start_ts);
CREATE INDEX idx_network_origin ON network(origin);

CREATE TABLE error_fingerprints (
    fingerprint_id TEXT NOT NULL,
    session_id     TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    count          INTEGER NOT NULL DEFAULT 1,
    sample_message TEXT,
    sample_stack   TEXT,
    first_seen     INTEGER NOT NULL,
    last_seen      INTEGER NOT NULL,
    PRIMARY KEY (fingerprint_id, session_id)
);

CREATE TABLE snapshots (
    snapshot_id      TEXT PRIMARY KEY,
    session_id       TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
    trigger_event_id TEXT REFERENCES events(event_id) ON DELETE SET NULL,
    ts               INTEGER NOT NULL,
    "trigger"        TEXT NOT NULL CHECK ("trigger" IN ('click','manual','navigation','error')),
    selector         TEXT,
    url              TEXT,
    mode             TEXT NOT NULL CHECK (mode IN ('dom','png','both')),
    style_mode       TEXT CHECK (style_mode IN ('computed-lite','computed-full')),
    dom_json         TEXT,
    styles_json      TEXT,
    png_path         TEXT,
    png_mime         TEXT,
    png_bytes        INTEGER,
    dom_truncated    INTEGER NOT NULL DEFAULT 0,
    styles_truncated INTEGER NOT NULL DEFAULT 0,
    png_truncated    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_snapshots_session_ts ON snapshots(session_id, ts);
CREATE INDEX idx_snapshots_trigger_event ON snapshots(trigger_event_id);

CREATE TABLE server_settings (
    id                       INTEGER PRIMARY KEY CHECK (id = 1),
    retention_days           INTEGER NOT NULL,
    max_db_mb                INTEGER NOT NULL,
    max_sessions             INTEGER NOT NULL,
    cleanup_interval_minutes INTEGER NOT NULL,
    last_cleanup_at          INTEGER NOT NULL DEFAULT 0,
    export_path              TEXT
);
`,
	},
}
