package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/rpupo63/realestate-site-backend/metrics"
)

// TempPurgeSchedule runs the purge at minute 0 of every hour.
const TempPurgeSchedule = "0 * * * *"

type CleanupReport struct {
	RemovedFiles int   `json:"removedFiles"`
	RemovedDirs  int   `json:"removedDirs"`
	FreedBytes   int64 `json:"freedBytes"`
	Failed       int   `json:"failed"`
}

// TempCleaner deletes abandoned files below <uploadRoot>/temp.
type TempCleaner struct {
	fs     afero.Fs
	dir    string
	maxAge time.Duration
	now    func() time.Time
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewTempCleaner(fs afero.Fs, uploadRoot string, maxAge time.Duration) *TempCleaner {
	return &TempCleaner{
		fs:     fs,
		dir:    filepath.Join(uploadRoot, "temp"),
		maxAge: maxAge,
		now:    time.Now,
		logger: log.With().Str("component", "tempCleaner").Logger(),
	}
}

// Purge removes files older than maxAge and then any directories left empty.
func (c *TempCleaner) Purge(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport
	cutoff := c.now().Add(-c.maxAge)

	var dirs []string
	err := afero.Walk(c.fs, c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if path != c.dir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := c.fs.Remove(path); err != nil {
			c.logger.Warn().Err(err).Str("file", path).Msg("Failed to remove temp file")
			report.Failed++
			return nil
		}
		report.RemovedFiles++
		report.FreedBytes += info.Size()
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walk %s: %w", c.dir, err)
	}

	// deepest first so parents become empty before they are checked
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		empty, err := afero.IsEmpty(c.fs, dir)
		if err != nil || !empty {
			continue
		}
		if err := c.fs.Remove(dir); err == nil {
			report.RemovedDirs++
		}
	}

	metrics.TempFilesPurged.Add(float64(report.RemovedFiles))
	c.logger.Info().
		Int("removedFiles", report.RemovedFiles).
		Int("removedDirs", report.RemovedDirs).
		Int64("freedBytes", report.FreedBytes).
		Msg("Temp upload purge finished")
	return report, nil
}

// Start schedules Purge with a standard five-field cron spec.
func (c *TempCleaner) Start(spec string) error {
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(spec, func() {
		if _, err := c.Purge(context.Background()); err != nil {
			c.logger.Error().Err(err).Msg("Scheduled temp purge failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule temp purge %q: %w", spec, err)
	}
	c.cron.Start()
	c.logger.Info().Str("schedule", spec).Dur("maxAge", c.maxAge).Msg("Temp upload purge scheduled")
	return nil
}

// Stop halts the schedule and waits for a running purge to finish.
func (c *TempCleaner) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
}
