// Package daemon implements the optional periodic watch driver (spec.md §5
// Non-goals: "no long-running daemon beyond an optional periodic driver
// that still uses the one-shot watch operation internally"). It is
// plumbing around watch/change.RunOnce: PID file, signal handling, and
// graceful shutdown are adapted from the teacher's internal/service.Daemon;
// the loopback-bound status endpoint is adapted from the teacher's
// internal/api.Server router.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/scoutforge/scout/internal/logger"
	"github.com/scoutforge/scout/internal/watch/change"
	"github.com/scoutforge/scout/internal/watch/lock"
)

// Status is the last-run summary exposed over /status.
type Status struct {
	LastRunAt    time.Time           `json:"last_run_at"`
	LastResults  []change.EntryResult `json:"last_results"`
	LastErr      string              `json:"last_error,omitempty"`
	RunCount     int                 `json:"run_count"`
}

// Daemon periodically invokes the one-shot watch operation and exposes a
// loopback-only health/status HTTP endpoint.
type Daemon struct {
	Driver     change.Driver
	LockPath   string
	PIDPath    string
	Interval   time.Duration
	ChangeOpts change.Options
	Addr       string

	// ConfigPath, if set, is watched for changes; edits trigger an
	// immediate run-once instead of waiting for the next tick.
	ConfigPath string

	mu         sync.Mutex
	status     Status
	server     *http.Server
	stopCh     chan struct{}
	stoppedCh  chan struct{}
	running    bool
	cfgWatcher *fsnotify.Watcher
	kickCh     chan struct{}
}

func (d *Daemon) withDefaults() {
	if d.Interval <= 0 {
		d.Interval = time.Hour
	}
	if d.Addr == "" {
		d.Addr = "127.0.0.1:0"
	}
}

// Start launches the HTTP status server and the periodic ticker loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.stoppedCh = make(chan struct{})
	d.kickCh = make(chan struct{}, 1)
	d.mu.Unlock()

	d.withDefaults()

	if err := d.writePID(); err != nil {
		return fmt.Errorf("write PID: %w", err)
	}

	if d.ConfigPath != "" {
		if err := d.watchConfig(); err != nil {
			logger.GetLogger().Warn().Err(err).Msg("watch daemon: config watcher unavailable")
		}
	}

	d.server = &http.Server{
		Addr:         d.Addr,
		Handler:      d.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.GetLogger().Warn().Err(err).Msg("watch daemon: status server error")
		}
	}()

	go d.loop(ctx)
	return nil
}

func (d *Daemon) loop(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	d.runOnceAndRecord(ctx)
	for {
		select {
		case <-ticker.C:
			d.runOnceAndRecord(ctx)
		case <-d.kickCh:
			ticker.Reset(d.Interval)
			d.runOnceAndRecord(ctx)
		case <-d.stopCh:
			d.shutdown()
			return
		case <-ctx.Done():
			d.shutdown()
			return
		}
	}
}

// watchConfig starts an fsnotify watch on the config file's parent
// directory (the file itself may be replaced wholesale by an editor) and
// nudges the run loop on any write or rename touching it.
func (d *Daemon) watchConfig() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(d.ConfigPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	d.cfgWatcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(d.ConfigPath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				logger.GetLogger().Info().Str("path", ev.Name).Msg("watch daemon: config changed, scheduling an immediate run")
				select {
				case d.kickCh <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.GetLogger().Warn().Err(err).Msg("watch daemon: config watcher error")
			}
		}
	}()
	return nil
}

func (d *Daemon) runOnceAndRecord(ctx context.Context) {
	var results []change.EntryResult
	err := lock.WithLock(ctx, d.LockPath, lock.Options{}, func() error {
		r, runErr := d.Driver.RunOnce(ctx, d.ChangeOpts)
		results = r
		return runErr
	})

	d.mu.Lock()
	d.status.LastRunAt = time.Now().UTC()
	d.status.LastResults = results
	d.status.RunCount++
	if err != nil {
		d.status.LastErr = err.Error()
	} else {
		d.status.LastErr = ""
	}
	d.mu.Unlock()

	if err != nil {
		logger.GetLogger().Warn().Err(err).Msg("watch daemon: run-once failed")
	}
}

// Wait blocks until a termination signal or Stop is received, then shuts
// down gracefully.
func (d *Daemon) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-sigCh:
	case <-d.stoppedCh:
	}
	d.Stop()
}

// Stop signals the daemon to stop and waits for it to finish.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	close(d.stopCh)
	<-d.stoppedCh
}

func (d *Daemon) shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if d.server != nil {
		_ = d.server.Shutdown(ctx)
	}
	if d.cfgWatcher != nil {
		_ = d.cfgWatcher.Close()
	}
	_ = os.Remove(d.PIDPath)
	d.running = false
	close(d.stoppedCh)
}

func (d *Daemon) writePID() error {
	if d.PIDPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.PIDPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(d.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (d *Daemon) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://127.0.0.1:*", "http://localhost:*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		d.mu.Lock()
		status := d.status
		d.mu.Unlock()
		writeJSON(w, http.StatusOK, status)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
