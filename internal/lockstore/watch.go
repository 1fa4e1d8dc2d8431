package lockstore

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iborker/iborker/internal/errors"
)

// EventKind distinguishes marker appearance from removal.
type EventKind int

const (
	EventClaimed EventKind = iota
	EventReleased
)

func (k EventKind) String() string {
	if k == EventClaimed {
		return "claimed"
	}
	return "released"
}

// Event reports a marker appearing in or leaving the lock directory.
type Event struct {
	Kind     EventKind
	ClientID int
	// Entry is the inspected marker for EventClaimed; nil for EventReleased
	// or when the marker vanished before it could be read.
	Entry *Entry
	Time  time.Time
}

// Watcher streams claim and release events for a lock directory. Reclaiming
// a stale marker shows up as a release followed by a claim.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher

	events chan Event
	errs   chan error

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Watch starts watching the store's directory.
func (s *Store) Watch() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewStoreError("create directory watcher", err).WithDir(s.dir)
	}
	if err := fw.Add(s.dir); err != nil {
		_ = fw.Close()
		return nil, errors.NewStoreError("watch lock directory", err).WithDir(s.dir)
	}

	w := &Watcher{
		store:   s,
		watcher: fw,
		events:  make(chan Event, 16),
		errs:    make(chan error, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Events returns the event stream. It is closed after Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns watcher errors. Only the most recent unread error is kept.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer close(w.events)

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			id, ok := ParseMarkerName(filepath.Base(ev.Name))
			if !ok {
				continue // temp files and the guard
			}
			if out, ok := w.translate(id, ev); ok {
				select {
				case w.events <- out:
				case <-w.stopCh:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) translate(id int, ev fsnotify.Event) (Event, bool) {
	out := Event{ClientID: id, Time: w.store.now()}
	switch {
	case ev.Op&fsnotify.Create != 0:
		out.Kind = EventClaimed
		entry, err := w.store.inspect(id)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.store.logger.Debug("inspect watched marker", "client_id", id, "error", err.Error())
		}
		out.Entry = entry
		return out, true
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		out.Kind = EventReleased
		return out, true
	default:
		return out, false
	}
}
