// Package watcher provides file system watching with debouncing for the fit
// description, driving validate --watch revalidation on every save.
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a config file for changes and sends debounced signals.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	configPath string
	debounce   time.Duration
	onChange   chan struct{}
	done       chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	ConfigPath  string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher. Editors save in
// bursts (write, rename, chmod), so a sub-second debounce collapses them.
func DefaultConfig(configPath string) Config {
	return Config{
		ConfigPath:  configPath,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a new config watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher:  fsw,
		configPath: cfg.ConfigPath,
		debounce:   cfg.DebounceDur,
		onChange:   make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory. Watching the directory
// rather than the file survives editors that replace the file on save.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.configPath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	go w.loop()
	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent accepts writes, creates, and renames touching the watched
// file. Atomic saves show up as create or rename of the final name.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.configPath)
}
