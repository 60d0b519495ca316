package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events an editor or exporter
// produces for a single save.
const DefaultDebounce = 250 * time.Millisecond

// Watch calls onChange whenever one of paths changes, until ctx is
// cancelled. A file path is matched by name inside its parent directory so
// that atomic saves (write to temp, rename over) are seen. A directory path
// reacts to the *.csv files within it. Events arriving within debounce of
// each other result in one call.
func Watch(ctx context.Context, logger *zap.SugaredLogger, debounce time.Duration, onChange func(), paths ...string) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		dir := abs
		if info.IsDir() {
			dirs[abs] = true
		} else {
			files[abs] = true
			dir = filepath.Dir(abs)
		}
		if err := watcher.Add(dir); err != nil {
			return err
		}
		logger.Infow("watching for changes", "path", abs)
	}

	relevant := func(name string) bool {
		if files[name] {
			return true
		}
		return dirs[filepath.Dir(name)] && strings.EqualFold(filepath.Ext(name), ".csv")
	}

	// nil until an event arrives; a nil channel never fires.
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !relevant(name) {
				continue
			}
			logger.Debugw("change detected", "path", name, "op", event.Op.String())
			fire = time.After(debounce)

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorw("watcher error", "error", err)
		}
	}
}
