// Package notify delivers document change events to subscribers.
//
// The store publishes a Change whenever a document is written or removed,
// and the file watcher publishes one for edits made outside archctx.
// Caches and long-running commands subscribe to stay current.
package notify

import (
	"sort"
	"sync"

	"github.com/dshills/archctx/internal/model"
)

// ChangeType is the kind of document change.
type ChangeType int

const (
	// ChangeSet indicates a document was created or updated.
	ChangeSet ChangeType = iota

	// ChangeDelete indicates a document was removed.
	ChangeDelete

	// ChangeReload indicates every document may have changed.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change describes one document change.
type Change struct {
	// Kind is the collection of the changed document. Empty for reloads.
	Kind model.Kind

	// Name is the changed entity.
	Name string

	// Type is the type of change.
	Type ChangeType

	// Source identifies who made the change ("store", "watcher").
	Source string
}

// Observer is called for each delivered change.
type Observer func(change Change)

// Subscription is an active observer registration.
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes this subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// Notifier fans changes out to observers.
type Notifier struct {
	mu        sync.RWMutex
	observers map[uint64]Observer
	nextID    uint64
	closed    bool

	async  bool
	buffer chan Change
	done   chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAsync delivers changes on a background goroutine with the given
// buffer size. Publish blocks when the buffer is full.
func WithAsync(bufferSize int) Option {
	return func(n *Notifier) {
		if bufferSize > 0 {
			n.async = true
			n.buffer = make(chan Change, bufferSize)
		}
	}
}

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		observers: make(map[uint64]Observer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.async {
		n.wg.Add(1)
		go n.processAsync()
	}
	return n
}

// Subscribe registers an observer for every change.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers[id] = observer
	return &Subscription{id: id, notifier: n}
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

// Publish delivers change to every observer. After Close it is a no-op.
func (n *Notifier) Publish(change Change) {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	if n.async {
		select {
		case n.buffer <- change:
		case <-n.done:
		}
		return
	}
	n.deliver(change)
}

// PublishSet announces a created or updated document.
func (n *Notifier) PublishSet(kind model.Kind, name, source string) {
	n.Publish(Change{Kind: kind, Name: name, Type: ChangeSet, Source: source})
}

// PublishDelete announces a removed document.
func (n *Notifier) PublishDelete(kind model.Kind, name, source string) {
	n.Publish(Change{Kind: kind, Name: name, Type: ChangeDelete, Source: source})
}

// PublishReload announces that any document may have changed.
func (n *Notifier) PublishReload(source string) {
	n.Publish(Change{Type: ChangeReload, Source: source})
}

// Close stops delivery, flushing buffered changes first. It is safe to call
// Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

// deliver calls observers in subscription order, outside the lock.
func (n *Notifier) deliver(change Change) {
	n.mu.RLock()
	ids := make([]uint64, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	observers := make([]Observer, len(ids))
	for i, id := range ids {
		observers[i] = n.observers[id]
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(change)
	}
}

func (n *Notifier) processAsync() {
	defer n.wg.Done()

	for {
		select {
		case change := <-n.buffer:
			n.deliver(change)
		case <-n.done:
			for {
				select {
				case change := <-n.buffer:
					n.deliver(change)
				default:
					return
				}
			}
		}
	}
}

// Batch collects changes and publishes them together on Commit.
type Batch struct {
	notifier *Notifier
	mu       sync.Mutex
	changes  []Change
}

// NewBatch creates an empty batch.
func (n *Notifier) NewBatch() *Batch {
	return &Batch{notifier: n}
}

// Add queues a change.
func (b *Batch) Add(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, change)
}

// Commit publishes queued changes in order and empties the batch. Repeated
// changes to the same document collapse to the last one.
func (b *Batch) Commit() {
	b.mu.Lock()
	changes := b.changes
	b.changes = nil
	b.mu.Unlock()

	for _, change := range collapse(changes) {
		b.notifier.Publish(change)
	}
}

// Len returns the number of queued changes.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changes)
}

type docKey struct {
	kind model.Kind
	name string
}

// collapse keeps the last change per document, ordered by that last change.
func collapse(changes []Change) []Change {
	last := make(map[docKey]int, len(changes))
	for i, c := range changes {
		last[docKey{c.Kind, c.Name}] = i
	}

	out := make([]Change, 0, len(last))
	for i, c := range changes {
		if last[docKey{c.Kind, c.Name}] == i {
			out = append(out, c)
		}
	}
	return out
}
