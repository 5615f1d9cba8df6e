package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/services"
)

const pingTimeout = 2 * time.Second

// pinger is satisfied by database.Database.
type pinger interface {
	Ping(ctx context.Context) error
	Dialect() string
}

type healthHandler struct {
	responder   Responder
	db          pinger
	environment string
	startupTime time.Time
}

func newHealthHandler(responder Responder, db pinger, environment string, startupTime time.Time) healthHandler {
	return healthHandler{responder: responder, db: db, environment: environment, startupTime: startupTime}
}

// health answers 503 when the database does not respond.
func (h healthHandler) health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.responder.WriteError(w, errs.NewServiceUnavailableError("database unavailable", err))
			return
		}

		h.responder.WriteJSON(w, map[string]any{
			"status":      "ok",
			"timestamp":   time.Now().UTC(),
			"environment": h.environment,
			"uptime":      time.Since(h.startupTime).Seconds(),
		})
	}
}

type databaseStatus struct {
	Dialect   string  `json:"dialect"`
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latencyMs"`
	Error     string  `json:"error,omitempty"`
}

type uploadUsage struct {
	Dir   string `json:"dir"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
}

type systemInfo struct {
	Version       string         `json:"version"`
	Environment   string         `json:"environment"`
	GoVersion     string         `json:"goVersion"`
	StartedAt     time.Time      `json:"startedAt"`
	UptimeSeconds float64        `json:"uptimeSeconds"`
	Goroutines    int            `json:"goroutines"`
	HeapAlloc     uint64         `json:"heapAllocBytes"`
	Database      databaseStatus `json:"database"`
	Uploads       uploadUsage    `json:"uploads"`
}

type systemHandler struct {
	responder   Responder
	logger      zerolog.Logger
	db          pinger
	fs          afero.Fs
	uploadRoot  string
	cleaner     *services.TempCleaner
	version     string
	environment string
	startupTime time.Time
}

func newSystemHandler(responder Responder, db pinger, fs afero.Fs, uploadRoot string, cleaner *services.TempCleaner, version, environment string, startupTime time.Time) systemHandler {
	return systemHandler{
		responder:   responder,
		logger:      log.With().Str("handlerName", "systemHandler").Logger(),
		db:          db,
		fs:          fs,
		uploadRoot:  uploadRoot,
		cleaner:     cleaner,
		version:     version,
		environment: environment,
		startupTime: startupTime,
	}
}

func (h systemHandler) info() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		info := systemInfo{
			Version:       h.version,
			Environment:   h.environment,
			GoVersion:     runtime.Version(),
			StartedAt:     h.startupTime,
			UptimeSeconds: time.Since(h.startupTime).Seconds(),
			Goroutines:    runtime.NumGoroutine(),
			HeapAlloc:     mem.HeapAlloc,
			Database:      h.databaseStatus(r.Context()),
		}

		usage, err := h.uploadUsage()
		if err != nil {
			h.logger.Warn().Err(err).Str("dir", h.uploadRoot).Msg("Failed to measure upload directory")
		}
		info.Uploads = usage

		h.responder.WriteJSON(w, info)
	}
}

func (h systemHandler) databaseStatus(ctx context.Context) databaseStatus {
	status := databaseStatus{Dialect: h.db.Dialect(), Status: "ok"}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	status.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
	}
	return status
}

func (h systemHandler) uploadUsage() (uploadUsage, error) {
	usage := uploadUsage{Dir: h.uploadRoot}
	err := afero.Walk(h.fs, h.uploadRoot, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			usage.Files++
			usage.Bytes += info.Size()
		}
		return nil
	})
	return usage, err
}

// cleanupTemp runs the temp purge immediately instead of waiting for the hourly job.
func (h systemHandler) cleanupTemp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := h.cleaner.Purge(r.Context())
		if err != nil {
			h.responder.WriteError(w, errs.NewInternalErrorWithCause("temp cleanup failed", err))
			return
		}
		h.logger.Info().Int("removedFiles", report.RemovedFiles).Int64("freedBytes", report.FreedBytes).Msg("Temp uploads purged on request")
		h.responder.WriteMessage(w, "temp uploads purged", report)
	}
}
