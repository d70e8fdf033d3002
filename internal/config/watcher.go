package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = 500 * time.Millisecond

// ReloadFunc receives every successfully loaded and validated configuration.
type ReloadFunc func(*Config)

// reloader debounces bursts of file events into a single reload.
type reloader struct {
	path     string
	delay    time.Duration
	onReload ReloadFunc

	mu    sync.Mutex
	timer *time.Timer
}

func (r *reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, r.reload)
}

func (r *reloader) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *reloader) reload() {
	slog.Info("Config file changed, attempting to reload...", "path", r.path)
	newCfg, _, err := Load(r.path, false)
	if err != nil {
		slog.Error("Failed to reload config file, keeping old configuration", "path", r.path, "error", err)
		return
	}
	r.onReload(newCfg)
	slog.Info("Configuration reloaded and applied successfully", "path", r.path)
}

// StartWatcher blocks until ctx is done, reloading the config file whenever
// it is written, created or renamed over.
func StartWatcher(ctx context.Context, configPath string, onReload ReloadFunc, debounceDelay time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}
	defer watcher.Close()

	configPath = filepath.Clean(configPath)
	// Editors often replace the file, so the directory is watched instead.
	configDir := filepath.Dir(configPath)
	if err := watcher.Add(configDir); err != nil {
		slog.Error("Failed to add config path to watcher", "path", configDir, "error", err)
		return
	}

	delay := debounceDelay
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	r := &reloader{path: configPath, delay: delay, onReload: onReload}

	slog.Info("Started configuration watcher", "path", configPath, "debounce", delay)

	for {
		select {
		case <-ctx.Done():
			r.stop()
			slog.Info("Stopping configuration watcher...")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				slog.Warn("Watcher events channel closed unexpectedly, stopping watcher.")
				return
			}
			if filepath.Clean(event.Name) != configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				r.schedule()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				slog.Warn("Watcher errors channel closed unexpectedly, stopping watcher.")
				return
			}
			slog.Error("Error watching config file", "error", err)
		}
	}
}
