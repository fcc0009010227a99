package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"subgen/internal/logging"
)

// newMaintenanceCron schedules the periodic sweep from the configured cron
// expression. The expression was validated at config load.
func (d *Daemon) newMaintenanceCron() *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(d.cfg.Maintenance.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		d.RunMaintenance(ctx)
	})
	if err != nil {
		d.logger.Warn("schedule maintenance", logging.Error(err))
	}
	return c
}

// RunMaintenance removes working files whose task is gone or finished, and
// prunes completed tasks past the retention window.
func (d *Daemon) RunMaintenance(ctx context.Context) {
	removedFiles := d.sweepTempFiles()

	var pruned int
	if days := d.cfg.Maintenance.CompletedRetentionDays; days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		n, err := d.registry.PruneCompleted(ctx, cutoff)
		if err != nil {
			d.logger.Warn("prune completed tasks", logging.Error(err))
		}
		pruned = n
	}

	if removedFiles > 0 || pruned > 0 {
		d.logger.Info("maintenance sweep",
			logging.Int("removed_files", removedFiles),
			logging.Int("pruned_tasks", pruned))
	}
}

// sweepTempFiles deletes temp artifacts that no live task still needs. Stage
// working files are named <taskID>.wav, <taskID>_seg_NNNN.wav, and
// <taskID>_burn.srt; anything whose task is unknown or terminal is stale.
func (d *Daemon) sweepTempFiles() int {
	entries, err := os.ReadDir(d.cfg.Paths.TempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("read temp directory", logging.Error(err))
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".wav" && ext != ".srt" {
			continue
		}
		if !d.tempFileStale(name, ext) {
			continue
		}
		path := filepath.Join(d.cfg.Paths.TempDir, name)
		if err := os.Remove(path); err != nil {
			d.logger.Warn("remove stale temp file",
				logging.String("path", path),
				logging.Error(err))
			continue
		}
		removed++
	}
	return removed
}

func (d *Daemon) tempFileStale(name, ext string) bool {
	taskID := strings.TrimSuffix(name, ext)
	if idx := strings.Index(taskID, "_"); idx >= 0 {
		taskID = taskID[:idx]
	}
	if taskID == "" {
		return false
	}
	t, err := d.registry.Get(taskID)
	if err != nil {
		return true
	}
	return t.Terminal()
}
