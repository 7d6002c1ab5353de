package tempstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// DefaultSchedule runs the sweep every ten minutes.
const DefaultSchedule = "*/10 * * * *"

// Janitor removes scope directories left behind by a crashed process.
type Janitor struct {
	store    *Store
	schedule string
	maxAge   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewJanitor creates a janitor. Scopes older than maxAge are swept on each tick of
// the cron schedule.
func NewJanitor(store *Store, schedule string, maxAge time.Duration, logger zerolog.Logger) *Janitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Janitor{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger.With().Str("component", "tempstore.janitor").Logger(),
		now:      time.Now,
	}
}

// Validate reports whether the schedule is a valid cron expression.
func (j *Janitor) Validate() bool {
	return gronx.New().IsValid(j.schedule)
}

// Run sweeps on schedule until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(j.schedule, j.now(), false)
		if err != nil {
			j.logger.Error().Err(err).Str("schedule", j.schedule).Msg("invalid janitor schedule, stopping")
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.Sweep()
		}
	}
}

// Sweep removes expired scope directories and returns how many it removed.
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.store.root)
	if err != nil {
		j.logger.Warn().Err(err).Msg("temp sweep failed")
		return 0
	}
	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), scopePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.store.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn().Err(err).Str("path", path).Msg("failed to remove stale scope")
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("swept stale upload scopes")
	}
	return removed
}
