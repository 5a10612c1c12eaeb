// engine.go - Periodic eviction under age, count, and size caps.
// Pins are inviolable: retention never deletes a pinned session even if that
// leaves the database over budget; the pass reports pinnedProtected instead.
package retention

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/firelens/firelens/internal/registry"
	"github.com/firelens/firelens/internal/store"
)

const (
	// sizePhaseMaxIterations is the emergency stop for the size phase.
	sizePhaseMaxIterations = 5000
	// vacuumEvery controls how often the size phase compacts mid-loop so the
	// file size check observes reclaimed space.
	vacuumEvery = 100

	warnOnlyPinned   = "retention caps exceeded but only pinned sessions remain"
	warnIterationCap = "size phase stopped at iteration safety cap"
)

// Result summarizes one retention pass.
type Result struct {
	DeletedSessions int    `json:"deletedSessions"`
	AgeDeleted      int    `json:"ageDeleted"`
	CountDeleted    int    `json:"countDeleted"`
	SizeDeleted     int    `json:"sizeDeleted"`
	OrphansRemoved  int    `json:"orphansRemoved"`
	PinnedProtected bool   `json:"pinnedProtected"`
	Warning         string `json:"warning,omitempty"`
	DurationMs      int64  `json:"durationMs"`
}

// Engine runs retention passes on a schedule and on demand.
type Engine struct {
	store    *store.Store
	registry *registry.Registry
	log      zerolog.Logger
	cron     *cron.Cron
}

// New creates a retention engine.
func New(st *store.Store, reg *registry.Registry, log zerolog.Logger) *Engine {
	return &Engine{
		store:    st,
		registry: reg,
		log:      log.With().Str("component", "retention").Logger(),
	}
}

// Start schedules periodic cleanup from the settings interval and runs a
// catch-up pass immediately if the recorded last cleanup is stale.
func (e *Engine) Start() error {
	settings, err := e.store.GetSettings()
	if err != nil {
		return err
	}

	interval := time.Duration(settings.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	e.cron = cron.New()
	_, err = e.cron.AddFunc(fmt.Sprintf("@every %dm", settings.CleanupIntervalMinutes), func() {
		if _, err := e.RunCleanup(); err != nil {
			e.log.Error().Err(err).Msg("scheduled cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	e.cron.Start()

	if time.Since(time.UnixMilli(settings.LastCleanupAt)) > interval {
		if _, err := e.RunCleanup(); err != nil {
			e.log.Error().Err(err).Msg("startup cleanup failed")
		}
	}
	return nil
}

// Stop halts the scheduler.
func (e *Engine) Stop() {
	if e.cron != nil {
		e.cron.Stop()
	}
}

// RunCleanup executes one full retention pass: age, count, size, orphan sweep.
// A phase error aborts the pass; completed phases stay committed.
func (e *Engine) RunCleanup() (Result, error) {
	start := time.Now()
	var res Result

	settings, err := e.store.GetSettings()
	if err != nil {
		return res, err
	}

	if err := e.agePhase(settings, &res); err != nil {
		return res, fmt.Errorf("age phase: %w", err)
	}
	if err := e.countPhase(settings, &res); err != nil {
		return res, fmt.Errorf("count phase: %w", err)
	}
	if err := e.sizePhase(settings, &res); err != nil {
		return res, fmt.Errorf("size phase: %w", err)
	}

	orphans, err := e.store.SweepOrphanAssets()
	if err != nil {
		return res, fmt.Errorf("orphan sweep: %w", err)
	}
	res.OrphansRemoved = orphans

	res.DeletedSessions = res.AgeDeleted + res.CountDeleted + res.SizeDeleted
	res.DurationMs = time.Since(start).Milliseconds()

	if err := e.store.TouchLastCleanup(time.Now().UnixMilli()); err != nil {
		return res, err
	}

	e.log.Info().
		Int("deleted", res.DeletedSessions).
		Int("orphans", res.OrphansRemoved).
		Bool("pinnedProtected", res.PinnedProtected).
		Msg("retention pass complete")
	return res, nil
}

// agePhase deletes unpinned sessions older than the retention window.
func (e *Engine) agePhase(settings store.Settings, res *Result) error {
	if settings.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -settings.RetentionDays).UnixMilli()
	for {
		id, err := e.store.OldestUnpinnedBefore(cutoff)
		if err != nil {
			return err
		}
		if id == "" {
			return nil
		}
		if err := e.deleteSession(id); err != nil {
			return err
		}
		res.AgeDeleted++
	}
}

// countPhase deletes oldest unpinned sessions while the total exceeds the cap.
func (e *Engine) countPhase(settings store.Settings, res *Result) error {
	if settings.MaxSessions <= 0 {
		return nil
	}
	for {
		total, err := e.store.CountSessions()
		if err != nil {
			return err
		}
		if total <= settings.MaxSessions {
			return nil
		}
		id, err := e.store.OldestUnpinnedBefore(0)
		if err != nil {
			return err
		}
		if id == "" {
			res.PinnedProtected = true
			res.Warning = warnOnlyPinned
			e.log.Warn().Int("total", total).Int("max", settings.MaxSessions).Msg(warnOnlyPinned)
			return nil
		}
		if err := e.deleteSession(id); err != nil {
			return err
		}
		res.CountDeleted++
	}
}

// sizePhase deletes oldest unpinned sessions while the database file exceeds
// the byte budget, compacting periodically so the check sees reclaimed space.
func (e *Engine) sizePhase(settings store.Settings, res *Result) error {
	if settings.MaxDBMb <= 0 {
		return nil
	}
	budget := int64(settings.MaxDBMb) * 1024 * 1024
	deleted := 0
	for i := 0; i < sizePhaseMaxIterations; i++ {
		size, err := e.store.DBSizeBytes()
		if err != nil {
			return err
		}
		if size <= budget {
			break
		}
		id, err := e.store.OldestUnpinnedBefore(0)
		if err != nil {
			return err
		}
		if id == "" {
			res.PinnedProtected = true
			res.Warning = warnOnlyPinned
			e.log.Warn().Int64("size", size).Int64("budget", budget).Msg(warnOnlyPinned)
			break
		}
		if err := e.deleteSession(id); err != nil {
			return err
		}
		deleted++
		res.SizeDeleted++
		if deleted%vacuumEvery == 0 {
			if err := e.store.Vacuum(); err != nil {
				return err
			}
		}
		if i == sizePhaseMaxIterations-1 {
			res.Warning = warnIterationCap
			e.log.Warn().Msg(warnIterationCap)
		}
	}
	if deleted > 0 {
		if err := e.store.Vacuum(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deleteSession(id store.SessionID) error {
	if err := e.store.DeleteSession(id); err != nil {
		return err
	}
	e.registry.Forget(id)
	e.log.Debug().Str("session", string(id)).Msg("session evicted")
	return nil
}
