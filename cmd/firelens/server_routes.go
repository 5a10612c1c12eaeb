// server_routes.go - HTTP surface: agent websocket, health, stats, retention
// admin, session management, export/import.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/firelens/firelens/internal/export"
	"github.com/firelens/firelens/internal/store"
	"github.com/firelens/firelens/internal/util"
)

// maxImportBodyBytes caps POST /sessions/import payloads. Archives carry
// inline PNGs, so this is well above the per-snapshot limits.
const maxImportBodyBytes = 64 << 20

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", a.pipeline.HandleWS)

	mux.HandleFunc("GET /", corsMiddleware(a.handleIdentity))
	mux.HandleFunc("GET /health", corsMiddleware(a.handleHealth))
	mux.HandleFunc("GET /stats", corsMiddleware(a.handleStats))
	mux.HandleFunc("GET /retention/settings", corsMiddleware(a.handleGetSettings))
	mux.HandleFunc("POST /retention/settings", corsMiddleware(a.handleUpdateSettings))
	mux.HandleFunc("POST /retention/run-cleanup", corsMiddleware(a.handleRunCleanup))
	mux.HandleFunc("GET /sessions", corsMiddleware(a.handleListSessions))
	mux.HandleFunc("POST /sessions/{id}/pin", corsMiddleware(a.handlePinSession))
	mux.HandleFunc("POST /sessions/{id}/export", corsMiddleware(a.handleExportSession))
	mux.HandleFunc("POST /sessions/import", corsMiddleware(a.handleImportSession))
	mux.HandleFunc("GET /sessions/{id}/entries", corsMiddleware(a.handleSessionEntries))
	mux.HandleFunc("GET /sessions/{id}/snapshots", corsMiddleware(a.handleSessionSnapshots))
	mux.HandleFunc("POST /db/reset", corsMiddleware(a.handleDBReset))

	return mux
}

// corsMiddleware allows browser extensions to hit the admin surface directly.
// The listener only binds loopback, so the permissive origin is local-only.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	util.JSONResponse(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func (a *app) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{
		"service": "firelens",
		"version": version,
	})
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	util.JSONResponse(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           version,
		"connectedSessions": a.registry.SessionCount(),
	})
}

func (a *app) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.GetStats()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "stats failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{
		"store":             stats,
		"connectedSessions": a.registry.SessionCount(),
		"pendingCaptures":   a.registry.PendingCount(),
		"registry":          a.registry.String(),
	})
}

func (a *app) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.store.GetSettings()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "read settings failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, settings)
}

func (a *app) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	current, err := a.store.GetSettings()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "read settings failed: %v", err)
		return
	}
	// Decode over the current values so omitted fields keep their setting.
	updated := current
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		httpError(w, http.StatusBadRequest, "invalid settings body: %v", err)
		return
	}
	if updated.RetentionDays < 1 || updated.MaxDBMb < 1 || updated.MaxSessions < 1 || updated.CleanupIntervalMinutes < 1 {
		httpError(w, http.StatusBadRequest, "settings values must be positive")
		return
	}
	updated.LastCleanupAt = current.LastCleanupAt
	if err := a.store.UpdateSettings(updated); err != nil {
		httpError(w, http.StatusInternalServerError, "update settings failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, updated)
}

func (a *app) handleRunCleanup(w http.ResponseWriter, r *http.Request) {
	result, err := a.retention.RunCleanup()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "cleanup failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, result)
}

func (a *app) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sinceMinutes := queryInt(r, "sinceMinutes", 0)
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	var sinceMs int64
	if sinceMinutes > 0 {
		sinceMs = util.NowMs() - int64(sinceMinutes)*60_000
	}
	sessions, err := a.store.ListRecentSessions(sinceMs, limit, offset)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "list sessions failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{
		"sessions":  sessions,
		"connected": a.registry.ConnectedSessionIDs(),
	})
}

func (a *app) handlePinSession(w http.ResponseWriter, r *http.Request) {
	id := store.SessionID(r.PathValue("id"))
	var body struct {
		Pinned *bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		httpError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	pinned := true
	if body.Pinned != nil {
		pinned = *body.Pinned
	}
	exists, err := a.store.SessionExists(id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "pin failed: %v", err)
		return
	}
	if !exists {
		httpError(w, http.StatusNotFound, "session %s not found", id)
		return
	}
	if err := a.store.PinSession(id, pinned); err != nil {
		httpError(w, http.StatusInternalServerError, "pin failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{"sessionId": id, "pinned": pinned})
}

func (a *app) handleExportSession(w http.ResponseWriter, r *http.Request) {
	id := store.SessionID(r.PathValue("id"))
	var body struct {
		Format           string `json:"format"`
		IncludePngBase64 bool   `json:"includePngBase64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		httpError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	if body.Format == "" {
		body.Format = r.URL.Query().Get("format")
	}

	exists, err := a.store.SessionExists(id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "export failed: %v", err)
		return
	}
	if !exists {
		httpError(w, http.StatusNotFound, "session %s not found", id)
		return
	}

	switch body.Format {
	case "", "json":
		data, err := export.SessionJSON(a.store, id, body.IncludePngBase64)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "export failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", store.SanitizeID(string(id))+".json"))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	case "zip":
		data, err := export.SessionZIP(a.store, id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "export failed: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", store.SanitizeID(string(id))+".zip"))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	default:
		httpError(w, http.StatusBadRequest, "format must be json or zip")
	}
}

func (a *app) handleImportSession(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBodyBytes+1))
	if err != nil {
		httpError(w, http.StatusBadRequest, "read body failed: %v", err)
		return
	}
	if len(data) > maxImportBodyBytes {
		httpError(w, http.StatusRequestEntityTooLarge, "import payload exceeds %d bytes", maxImportBodyBytes)
		return
	}
	if len(data) == 0 {
		httpError(w, http.StatusBadRequest, "empty import payload")
		return
	}
	result, err := export.ImportSession(a.store, data)
	if err != nil {
		httpError(w, http.StatusBadRequest, "import failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, result)
}

func (a *app) handleSessionEntries(w http.ResponseWriter, r *http.Request) {
	id := store.SessionID(r.PathValue("id"))
	exists, err := a.store.SessionExists(id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query failed: %v", err)
		return
	}
	if !exists {
		httpError(w, http.StatusNotFound, "session %s not found", id)
		return
	}

	filter := store.EventFilter{
		SessionID: id,
		Limit:     queryInt(r, "limit", 100),
		Offset:    queryInt(r, "offset", 0),
	}
	if filter.Limit < 1 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	if kinds := r.URL.Query().Get("kinds"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			k = strings.TrimSpace(k)
			if !store.ValidKind(k) {
				httpError(w, http.StatusBadRequest, "unknown event kind %q", k)
				return
			}
			filter.Kinds = append(filter.Kinds, k)
		}
	}
	if sinceMinutes := queryInt(r, "sinceMinutes", 0); sinceMinutes > 0 {
		filter.SinceMs = util.NowMs() - int64(sinceMinutes)*60_000
	}

	events, err := a.store.QueryEvents(filter)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{"sessionId": id, "entries": events})
}

func (a *app) handleSessionSnapshots(w http.ResponseWriter, r *http.Request) {
	id := store.SessionID(r.PathValue("id"))
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	snapshots, err := a.store.ListSnapshots(id, limit, queryInt(r, "offset", 0))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "query failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{"sessionId": id, "snapshots": snapshots})
}

func (a *app) handleDBReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		httpError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}
	if !body.Confirm {
		httpError(w, http.StatusBadRequest, "reset requires {\"confirm\": true}")
		return
	}
	if err := a.store.ResetDatabase(); err != nil {
		httpError(w, http.StatusInternalServerError, "reset failed: %v", err)
		return
	}
	util.JSONResponse(w, http.StatusOK, map[string]any{"reset": true})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
