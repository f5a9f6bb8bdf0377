// Package watcher publishes store changes made outside the process.
//
// A Watcher observes the store root and its collection directories with
// fsnotify, maps file events to entity documents, debounces bursts per
// document and publishes the result on a notify.Notifier. Caches subscribed
// to the same notifier drop stale entries as a consequence.
package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/dshills/archctx/internal/model"
	"github.com/dshills/archctx/internal/notify"
	"github.com/dshills/archctx/internal/store"
)

// NotifySource identifies changes published by a Watcher.
const NotifySource = "watcher"

// DefaultDebounce is the default per-document debounce window.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatcherClosed is returned when using a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Stats contains watcher statistics.
type Stats struct {
	WatchedPaths int
	Pending      int
	TotalEvents  int64
	Errors       int64
	LastError    error
	StartTime    time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce window. Zero publishes every event.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.delay = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

// Watcher turns file system events below a store root into notifications.
type Watcher struct {
	root     string
	notifier *notify.Notifier
	log      logr.Logger
	delay    time.Duration

	fsw *fsnotify.Watcher
	deb *debouncer

	mu        sync.RWMutex
	paths     map[string]bool
	closed    bool
	lastError error

	startTime   time.Time
	totalEvents atomic.Int64
	totalErrors atomic.Int64

	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// New starts watching root and every collection directory that exists
// below it. Collection directories created later are picked up as they
// appear.
func New(root string, n *notify.Notifier, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "watch", Path: abs, Err: errors.New("not a directory")}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      abs,
		notifier:  n,
		log:       logr.Discard(),
		delay:     DefaultDebounce,
		fsw:       fsw,
		paths:     make(map[string]bool),
		startTime: time.Now(),
		closeCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.deb = newDebouncer(w.delay, w.publish)

	if err := w.add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, kind := range model.Kinds {
		dir := filepath.Join(abs, kind.Collection())
		if !isDir(dir) {
			continue
		}
		if err := w.add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	w.log.V(1).Info("watching store", "root", abs, "paths", len(w.paths))

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Root returns the absolute store root being watched.
func (w *Watcher) Root() string {
	return w.root
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.paths[dir] = true
	return nil
}

func (w *Watcher) forget(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.paths, dir)
}

// Close stops watching. Changes still inside their debounce window are
// published as one batch before Close returns.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	if pending := w.deb.flush(); len(pending) > 0 && w.notifier != nil {
		batch := w.notifier.NewBatch()
		for _, change := range pending {
			batch.Add(change)
		}
		w.log.V(1).Info("publishing pending changes", "count", batch.Len())
		batch.Commit()
	}

	return w.fsw.Close()
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return Stats{
		WatchedPaths: len(w.paths),
		Pending:      w.deb.len(),
		TotalEvents:  w.totalEvents.Load(),
		Errors:       w.totalErrors.Load(),
		LastError:    w.lastError,
		StartTime:    w.startTime,
	}
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.recordError(err)
		}
	}
}

// handle maps one fsnotify event onto the store layout.
func (w *Watcher) handle(ev fsnotify.Event) {
	w.totalEvents.Add(1)

	if filepath.Dir(ev.Name) == w.root {
		w.handleCollection(ev)
		return
	}

	kind, name, ok := store.Classify(w.root, ev.Name)
	if !ok {
		return
	}

	var typ notify.ChangeType
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		typ = notify.ChangeDelete
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		typ = notify.ChangeSet
	default:
		return
	}

	w.deb.add(notify.Change{Kind: kind, Name: name, Type: typ, Source: NotifySource})
}

// handleCollection reacts to collection directories appearing or
// disappearing directly below the root.
func (w *Watcher) handleCollection(ev fsnotify.Event) {
	base := filepath.Base(ev.Name)
	known := false
	for _, kind := range model.Kinds {
		if base == kind.Collection() {
			known = true
			break
		}
	}
	if !known {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		if !isDir(ev.Name) {
			return
		}
		if err := w.add(ev.Name); err != nil {
			if !errors.Is(err, ErrWatcherClosed) {
				w.recordError(err)
			}
			return
		}
		w.log.V(1).Info("collection appeared", "dir", base)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.forget(ev.Name)
		w.log.V(1).Info("collection removed", "dir", base)
	default:
		return
	}

	if w.notifier != nil {
		w.notifier.PublishReload(NotifySource)
	}
}

func (w *Watcher) publish(change notify.Change) {
	w.log.V(1).Info("document changed", "kind", change.Kind.Singular(), "name", change.Name, "type", change.Type.String())
	if w.notifier != nil {
		w.notifier.Publish(change)
	}
}

func (w *Watcher) recordError(err error) {
	w.totalErrors.Add(1)
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
	w.log.Error(err, "watch error", "root", w.root)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
