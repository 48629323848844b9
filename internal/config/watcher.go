package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 100 * time.Millisecond

// Reload describes one applied config change.
type Reload struct {
	Old, New *Config
}

// LogLevelChanged reports whether server.log_level differs.
func (r Reload) LogLevelChanged() bool {
	return r.Old == nil || r.Old.Server.LogLevel != r.New.Server.LogLevel
}

// RestartRequired lists the sections whose new values only take effect when
// the daemon restarts. The router owns provider health and usage, so it is
// never rebuilt in place.
func (r Reload) RestartRequired() []string {
	if r.Old == nil {
		return nil
	}
	oldSrv, newSrv := r.Old.Server, r.New.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""

	var sections []string
	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server", oldSrv, newSrv},
		{"auth", r.Old.Auth, r.New.Auth},
		{"router", r.Old.Router, r.New.Router},
		{"providers", r.Old.Providers, r.New.Providers},
		{"store", r.Old.Store, r.New.Store},
		{"tracing", r.Old.Tracing, r.New.Tracing},
		{"metrics", r.Old.Metrics, r.New.Metrics},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			sections = append(sections, s.name)
		}
	}
	return sections
}

// Watcher reloads the config file when it changes on disk and hands every
// successful reload to the registered callbacks. Invalid files are logged
// and ignored.
type Watcher struct {
	fs   *fsnotify.Watcher
	path string

	mu        sync.Mutex
	callbacks []func(Reload)

	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching path. The parent directory is watched so that
// editors which save through a rename are noticed.
func Watch(path string) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{fs: fsw, path: abs, done: make(chan struct{})}
	go w.run()
	return w, nil
}

// OnChange registers fn to run after each successful reload.
func (w *Watcher) OnChange(fn func(Reload)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

// run coalesces bursts of events for the watched file into one reload,
// performed on this goroutine so reloads never overlap.
func (w *Watcher) run() {
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDebounce)
		case <-timer.C:
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	old := Get()
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous config")
		return
	}

	change := Reload{Old: old, New: cfg}
	log.Info().Str("path", w.path).Strs("restart_required", change.RestartRequired()).Msg("config reloaded")

	w.mu.Lock()
	cbs := append([]func(Reload){}, w.callbacks...)
	w.mu.Unlock()

	for _, cb := range cbs {
		w.notify(cb, change)
	}
}

func (w *Watcher) notify(cb func(Reload), change Reload) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("config reload callback panicked")
		}
	}()
	cb(change)
}
