// Package config - watcher.go provides config file hot-reload support.
//
// The watcher polls the config file for changes (stat-based, every 5 seconds)
// and notifies registered callbacks when per-strategy indicator thresholds
// change.
//
// Only Thresholds is reloadable. Market-data provider settings, store
// settings, and other structural settings require an engine restart.
package config

import (
	"log"
	"os"
	"reflect"
	"sync"
	"time"
)

// ConfigWatcher monitors the config file for changes and invokes callbacks
// when the per-strategy Thresholds overrides change. It uses stat-based
// polling (no external dependencies like fsnotify required), the same
// mechanism the teacher used for risk hot-reload.
type ConfigWatcher struct {
	path     string
	logger   *log.Logger
	mu       sync.RWMutex
	current  *Config
	lastMod  time.Time
	onChange []func(old, new *Config)
	done     chan struct{}
	stopped  bool
}

// NewConfigWatcher creates a watcher for the given config file path.
// initial is the currently loaded config. The watcher does not start
// until Start() is called.
func NewConfigWatcher(path string, initial *Config, logger *log.Logger) *ConfigWatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &ConfigWatcher{
		path:    path,
		logger:  logger,
		current: initial,
		done:    make(chan struct{}),
	}
}

// OnChange registers a callback invoked when the config file changes and
// the new config's Thresholds differ from the current one and pass
// validation. Multiple callbacks may be registered.
func (w *ConfigWatcher) OnChange(fn func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins polling the config file for changes. It returns immediately;
// the watcher runs in a background goroutine. Returns an error if the
// initial file stat fails.
func (w *ConfigWatcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.logger.Printf("[config-watcher] watching %s for changes (poll interval: 5s)", w.path)

	go w.pollLoop()
	return nil
}

// Stop stops the config watcher. Safe to call multiple times.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.done)
		w.logger.Println("[config-watcher] stopped")
	}
}

// Current returns the most recently loaded valid config.
func (w *ConfigWatcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ────────────────────────────────────────────────────────────────────
// Internal
// ────────────────────────────────────────────────────────────────────

func (w *ConfigWatcher) pollLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *ConfigWatcher) checkForChanges() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] stat error: %v", err)
		return
	}

	if !info.ModTime().After(w.lastMod) {
		return // file hasn't changed
	}
	w.lastMod = info.ModTime()

	newCfg, err := Load(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] reload error (keeping old config): %v", err)
		return
	}

	w.mu.RLock()
	oldCfg := w.current
	w.mu.RUnlock()

	if !thresholdsChanged(oldCfg.Thresholds, newCfg.Thresholds) {
		w.logger.Printf("[config-watcher] file changed but thresholds unchanged, skipping")
		return
	}

	w.logThresholdChanges(oldCfg.Thresholds, newCfg.Thresholds)

	w.mu.Lock()
	w.current = newCfg
	callbacks := make([]func(old, new *Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(oldCfg, newCfg)
	}
}

// thresholdsChanged reports whether any strategy's threshold override
// differs between old and new.
func thresholdsChanged(old, new map[string]ThresholdOverride) bool {
	return !reflect.DeepEqual(old, new)
}

func (w *ConfigWatcher) logThresholdChanges(old, new map[string]ThresholdOverride) {
	for name, n := range new {
		o, existed := old[name]
		if !existed || o != n {
			w.logger.Printf("[config-watcher] %s: golden_momentum %.2f -> %.2f, exceptional_momentum %.2f -> %.2f",
				name, o.GoldenMomentum, n.GoldenMomentum, o.ExceptionalMomentum, n.ExceptionalMomentum)
		}
	}
	for name := range old {
		if _, stillPresent := new[name]; !stillPresent {
			w.logger.Printf("[config-watcher] %s: threshold override removed", name)
		}
	}
}
