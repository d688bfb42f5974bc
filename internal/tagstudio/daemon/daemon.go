// Package daemon re-runs the import pipeline when the downloader database
// changes.
//
// The Watcher watches the directory holding the downloader database and
// reacts to writes to the database file and its WAL. Bursts of writes (a
// download session commits many times) are collapsed: the run callback fires
// once the file has been quiet for the debounce interval. Runs never overlap;
// changes seen while a run is in progress schedule one more run.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is how long the database must be quiet before a run.
const DefaultDebounceInterval = 2 * time.Second

// RunFunc is called for every debounced change. Errors are logged and do not
// stop the watcher.
type RunFunc func(ctx context.Context) error

// Config holds configuration for the Watcher.
type Config struct {
	// DebounceInterval is how long to wait after the last change before
	// running. This batches rapid writes together.
	DebounceInterval time.Duration

	// RunOnStart runs once before watching.
	RunOnStart bool

	// Logger for watcher activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: DefaultDebounceInterval,
		RunOnStart:       true,
		Logger:           slog.Default(),
	}
}

// Watcher runs a callback after the source database changes.
type Watcher struct {
	dbPath string
	dir    string
	names  map[string]bool
	run    RunFunc
	config *Config
	logger *slog.Logger

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	dirty     bool
	lastEvent time.Time

	runs    atomic.Int64
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Watcher for the database at dbPath.
//
// Use Start() to begin watching.
func New(dbPath string, run RunFunc, config *Config) (*Watcher, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if run == nil {
		return nil, fmt.Errorf("run func cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultDebounceInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dbPath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	base := filepath.Base(abs)
	return &Watcher{
		dbPath: abs,
		dir:    filepath.Dir(abs),
		names: map[string]bool{
			base:          true,
			base + "-wal": true,
		},
		run:     run,
		config:  config,
		logger:  config.Logger.With("component", "watcher"),
		watcher: watcher,
	}, nil
}

// Start watches until ctx is cancelled. It blocks.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("watcher already running")
	}
	defer w.running.Store(false)
	defer w.watcher.Close()

	if w.config.RunOnStart {
		w.runOnce(ctx)
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching source database", "path", w.dbPath, "debounce", w.config.DebounceInterval)

	w.wg.Add(2)
	go w.watchFileEvents(ctx)
	go w.processChanges(ctx)

	<-ctx.Done()
	w.logger.Info("shutdown signal received")
	w.wg.Wait()
	w.logger.Info("watcher stopped")
	return nil
}

// Runs returns how many times the run callback has been invoked.
func (w *Watcher) Runs() int64 {
	return w.runs.Load()
}

// IsRunning returns true while Start is active.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// watchFileEvents records relevant filesystem events.
func (w *Watcher) watchFileEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("file event", "op", event.Op.String(), "path", event.Name)
			w.mu.Lock()
			w.dirty = true
			w.lastEvent = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant reports whether event is a write to the database or its WAL.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	return w.names[filepath.Base(event.Name)]
}

// processChanges runs the callback once the database has been quiet long enough.
func (w *Watcher) processChanges(ctx context.Context) {
	defer w.wg.Done()

	tick := w.config.DebounceInterval / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if w.due(time.Now()) {
				w.runOnce(ctx)
			}
		}
	}
}

// due clears and reports the pending change once it has settled.
func (w *Watcher) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirty || now.Sub(w.lastEvent) < w.config.DebounceInterval {
		return false
	}
	w.dirty = false
	return true
}

func (w *Watcher) runOnce(ctx context.Context) {
	n := w.runs.Add(1)
	w.logger.Info("source changed, running import", "run", n)

	start := time.Now()
	if err := w.run(ctx); err != nil {
		w.logger.Error("run failed", "run", n, "error", err)
		return
	}
	w.logger.Info("run complete", "run", n, "elapsed", time.Since(start).Round(time.Millisecond))
}
