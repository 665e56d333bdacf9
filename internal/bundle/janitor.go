package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/photo-gallery/backend/internal/logging"
)

// Janitor removes archives left behind in the bundle directory, e.g. by a
// client that disconnected mid-download or a crash.
type Janitor struct {
	dir    string
	maxAge time.Duration
	logger logging.Logger
	now    func() time.Time
}

// NewJanitor creates a Janitor for archives older than maxAge.
func NewJanitor(dir string, maxAge time.Duration, logger logging.Logger) *Janitor {
	return &Janitor{
		dir:    dir,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep deletes stale archives and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, tempPattern))
	if err != nil {
		return 0, fmt.Errorf("listing bundles: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		if st.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.logger.Warn(ctx, "failed to remove stale bundle", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info(ctx, "stale bundles removed", "count", removed)
	}
	return removed, nil
}

// Start schedules Sweep with a cron spec such as "@every 10m". Stop the
// returned cron to end the schedule.
func (j *Janitor) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Warn(ctx, "bundle sweep failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
