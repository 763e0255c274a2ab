// Package watcher reports changes to a single configuration file.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher calls onChange after the target file is written, created, renamed
// or removed. It watches the parent directory because editors often replace
// files instead of writing them in place.
type Watcher struct {
	targetPath string
	parentPath string
	onChange   func()
	debounce   time.Duration
}

// New creates a watcher for path.
func New(path string, onChange func()) *Watcher {
	clean := filepath.Clean(path)
	return &Watcher{
		targetPath: clean,
		parentPath: filepath.Dir(clean),
		onChange:   onChange,
		debounce:   DefaultDebounce,
	}
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.targetPath
}

// Run blocks until ctx is done. The parent directory must exist.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.parentPath); err != nil {
		return fmt.Errorf("watch %s: %w", w.parentPath, err)
	}
	log.Debug().Str("path", w.targetPath).Msg("Watching file")

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.targetPath || event.Op&relevant == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			log.Info().Str("path", w.targetPath).Msg("File changed")
			if w.onChange != nil {
				w.onChange()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Str("path", w.targetPath).Msg("Watcher error")
		}
	}
}
