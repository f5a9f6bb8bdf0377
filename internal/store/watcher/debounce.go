package watcher

import (
	"sort"
	"sync"
	"time"

	"github.com/dshills/archctx/internal/model"
	"github.com/dshills/archctx/internal/notify"
)

type docKey struct {
	kind model.Kind
	name string
}

// debouncer coalesces rapid changes to the same document. Each document has
// its own timer; the last change type seen inside the window wins.
type debouncer struct {
	delay time.Duration
	emit  func(notify.Change)

	mu      sync.Mutex
	pending map[docKey]*pendingChange
	seq     uint64
	closed  bool
}

type pendingChange struct {
	change notify.Change
	timer  *time.Timer
	seq    uint64 // order of the first change in the window
}

func newDebouncer(delay time.Duration, emit func(notify.Change)) *debouncer {
	return &debouncer{
		delay:   delay,
		emit:    emit,
		pending: make(map[docKey]*pendingChange),
	}
}

// add schedules change, replacing any pending change for the same document.
// With no delay the change is emitted immediately.
func (d *debouncer) add(change notify.Change) {
	if d.delay <= 0 {
		d.emit(change)
		return
	}

	key := docKey{change.Kind, change.Name}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if p, ok := d.pending[key]; ok {
		p.change = change
		p.timer.Reset(d.delay)
		return
	}

	d.seq++
	p := &pendingChange{change: change, seq: d.seq}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(key) })
	d.pending[key] = p
}

func (d *debouncer) fire(key docKey) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	d.emit(p.change)
}

// flush stops accepting changes and returns the pending ones in the order
// their documents first changed. Their timers no longer fire.
func (d *debouncer) flush() []notify.Change {
	d.mu.Lock()
	d.closed = true
	pending := make([]*pendingChange, 0, len(d.pending))
	for _, p := range d.pending {
		p.timer.Stop()
		pending = append(pending, p)
	}
	d.pending = make(map[docKey]*pendingChange)
	d.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	out := make([]notify.Change, len(pending))
	for i, p := range pending {
		out[i] = p.change
	}
	return out
}

// len returns the number of pending changes.
func (d *debouncer) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
