// Package watcher reports changes to a metrics directory with debouncing.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/green-ai-tracker/internal/logger"
)

// DefaultDebounce is the quiet period before a burst of writes is reported.
const DefaultDebounce = 250 * time.Millisecond

// Event represents a watcher event.
type Event struct {
	Type  EventType
	Path  string
	Error error
}

// EventType defines the type of watcher event.
type EventType int

const (
	// EventChanged means one or more matching files were written or created.
	EventChanged EventType = iota
	// EventRemoved means a matching file was removed, for example by a purge.
	EventRemoved
	// EventError carries an error from the underlying watcher.
	EventError
)

// Watcher watches one directory for changes to files accepted by its filter.
type Watcher struct {
	mu            sync.Mutex
	dir           string
	filter        func(name string) bool
	debounce      time.Duration
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	closeOnce     sync.Once
	debounceTimer *time.Timer
	lastPath      string
}

// New starts watching dir. filter receives base file names; nil accepts all.
func New(dir string, filter func(name string) bool, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if filter == nil {
		filter = func(string) bool { return true }
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create watched directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		if closeErr := fw.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:       dir,
		filter:    filter,
		debounce:  debounce,
		watcher:   fw,
		eventChan: make(chan Event, 16),
		stopChan:  make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Events returns the event channel. It is not closed; stop reading after Close.
func (w *Watcher) Events() <-chan Event {
	return w.eventChan
}

// watchLoop handles file system events with debouncing.
func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !w.filter(filepath.Base(event.Name)) {
				continue
			}

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				// Debounce rapid changes
				w.mu.Lock()
				w.lastPath = event.Name
				if w.debounceTimer != nil {
					w.debounceTimer.Stop()
				}
				w.debounceTimer = time.AfterFunc(w.debounce, w.flush)
				w.mu.Unlock()

			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.sendEvent(Event{Type: EventRemoved, Path: event.Name})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendEvent(Event{Type: EventError, Error: err})

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	path := w.lastPath
	w.mu.Unlock()
	w.sendEvent(Event{Type: EventChanged, Path: path})
}

// sendEvent sends an event to the event channel non-blocking.
func (w *Watcher) sendEvent(event Event) {
	select {
	case <-w.stopChan:
		return
	default:
	}

	select {
	case w.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-w.eventChan:
		default:
		}
		select {
		case w.eventChan <- event:
		default:
		}
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopChan)

		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	return err
}
