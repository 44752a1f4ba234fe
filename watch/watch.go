// Package watch reports changes to base-language locale files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind is what happened to a file.
type Kind int

const (
	Changed Kind = iota
	Removed
)

func (k Kind) String() string {
	if k == Removed {
		return "removed"
	}
	return "changed"
}

// Event is one file change under the watched root.
type Event struct {
	Path string
	Kind Kind
}

// Watcher delivers file events for a directory tree. Directories created
// after Start are watched as they appear.
type Watcher struct {
	root   string
	filter func(path string) bool
	fsw    *fsnotify.Watcher
	events chan Event
	errors chan error
}

// New watches root recursively. filter, when set, selects the file paths
// that produce events.
func New(root string, filter func(path string) bool) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		root:   root,
		filter: filter,
		fsw:    fsw,
		events: make(chan Event, 64),
		errors: make(chan error, 8),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events returns the event channel. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns watcher errors that did not stop it. It is closed when
// Run returns.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run forwards events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.errors)
	defer close(w.events)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				select {
				case w.errors <- err:
				default:
				}
			}
			// Files may already exist in a directory moved into place.
			w.emitTree(ctx, ev.Name)
			return
		}
	}

	var kind Kind
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = Removed
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		kind = Changed
	default:
		return
	}
	w.emit(ctx, Event{Path: ev.Name, Kind: kind})
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	if w.filter != nil && !w.filter(ev.Path) {
		return
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) emitTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			w.emit(ctx, Event{Path: path, Kind: Changed})
		}
		return nil
	})
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Debounce collects events and emits the set of affected paths once no new
// event arrived for window. Paths are deduplicated and sorted. The returned
// channel is unbuffered: the next batch is only built after the consumer
// took the previous one.
func Debounce(ctx context.Context, events <-chan Event, window time.Duration) <-chan []Event {
	out := make(chan []Event)
	go func() {
		defer close(out)

		pending := make(map[string]Kind)
		var timer *time.Timer
		var fire <-chan time.Time

		flush := func() bool {
			batch := make([]Event, 0, len(pending))
			for p, k := range pending {
				batch = append(batch, Event{Path: p, Kind: k})
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			pending = make(map[string]Kind)
			select {
			case out <- batch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					if len(pending) > 0 {
						flush()
					}
					return
				}
				pending[ev.Path] = ev.Kind
				if timer == nil {
					timer = time.NewTimer(window)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(window)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if len(pending) > 0 && !flush() {
					return
				}
			}
		}
	}()
	return out
}
