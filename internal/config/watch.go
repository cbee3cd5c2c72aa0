package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config at path whenever it changes on disk and calls
// onUpdate with the new value. Invalid intermediate writes are logged and
// skipped. The watch runs until ctx is done.
func Watch(ctx context.Context, path string, logger zerolog.Logger, onUpdate func(*Config)) error {
	if path == "" {
		path = DefaultPath
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// editors replace files by rename, so watch the directory
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}
	file := filepath.Base(path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("config reload failed")
			return
		}
		logger.Info().Str("path", path).Msg("config reloaded")
		if onUpdate != nil {
			onUpdate(cfg)
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, reload)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				timerMu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timerMu.Unlock()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != file {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("config watch error")
			}
		}
	}()

	return nil
}
