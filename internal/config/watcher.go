package config

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file for changes and reloads it without a
// daemon restart, grounded on the teacher's ConfigWatcher. Hot-reloadable
// settings (workspace deny patterns, approval policy, command allow/deny
// lists) take effect for
// sessions opened after a reload; an already-bound RunContext's Workspace
// is immutable for its lifetime regardless of a reload (§3).
type Watcher struct {
	path string

	mu             sync.RWMutex
	cfg            *Config
	lastReloadedAt time.Time
	reloadCounter  uint64

	// OnReload, if set, is invoked after every successful reload with the
	// new config. It must not block.
	OnReload func(*Config)

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a Watcher seeded with an already-loaded cfg.
func NewWatcher(path string, cfg *Config) *Watcher {
	return &Watcher{path: path, cfg: cfg, stopCh: make(chan struct{})}
}

// Start begins watching. A zero path disables watching (e.g. in tests).
func (w *Watcher) Start() error {
	if w.path == "" {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		w.watcher = nil
		return err
	}

	go w.loop(filepath.Base(w.path))
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// ReloadCounter reports how many successful reloads have occurred.
func (w *Watcher) ReloadCounter() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reloadCounter
}

func (w *Watcher) loop(configFile string) {
	var debounce *time.Timer
	const debounceDelay = 200 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	newCfg, err := LoadGlobalFrom(w.path)
	if err != nil {
		log.Printf("config reload failed: %v", err)
		return
	}

	w.mu.Lock()
	w.cfg = newCfg
	w.lastReloadedAt = time.Now()
	w.reloadCounter++
	w.mu.Unlock()

	log.Printf("config reloaded from %s", w.path)
	if w.OnReload != nil {
		w.OnReload(newCfg)
	}
}
