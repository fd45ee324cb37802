package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDuration is how long a file must stay quiet before a change is
// reported.
var DebounceDuration = 500 * time.Millisecond

// WatchConfig watches the given files and emits the absolute path of a file
// once its changes have settled. The parent directories are watched rather
// than the files so editors that save by rename are still seen.
// The returned channel is closed when ctx is cancelled.
func WatchConfig(ctx context.Context, files ...string) <-chan string {
	reloadCh := make(chan string, len(files)+1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(reloadCh)
		return reloadCh
	}

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve absolute path for watch file", "file", file)
			continue
		}
		targets[absPath] = true
		dirs[filepath.Dir(absPath)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			slog.Warn("Could not watch directory", "dir", dir, "error", err)
		} else {
			slog.Debug("Watching configuration directory", "dir", dir)
		}
	}

	go func() {
		var wg sync.WaitGroup
		defer func() {
			watcher.Close()
			wg.Wait()
			close(reloadCh)
		}()

		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				if t.Stop() {
					wg.Done()
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || !targets[name] {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				if t, ok := timers[name]; ok && t.Stop() {
					wg.Done()
				}
				wg.Add(1)
				timers[name] = time.AfterFunc(DebounceDuration, func() {
					defer wg.Done()
					slog.Info("Configuration change detected", "file", name)
					select {
					case reloadCh <- name:
					case <-ctx.Done():
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return reloadCh
}
