package canvas

import (
	"context"
	"sync"
)

// ChangeKind classifies a document change notification.
type ChangeKind string

const (
	ChangeLoaded       ChangeKind = "loaded"
	ChangeActivePage   ChangeKind = "active-page"
	ChangePagesDeleted ChangeKind = "pages-deleted"
	ChangeElements     ChangeKind = "elements"
	ChangeSelection    ChangeKind = "selection"
)

// Change describes one document mutation.
type Change struct {
	Kind                 ChangeKind
	Revision             uint64
	ActivePageID         string
	PreviousActivePageID string
	PageIDs              []string
	ElementIDs           []string
}

// Listener receives changes in publication order on the feed goroutine.
type Listener func(Change)

// changeFeed delivers changes asynchronously and in order to every listener and reports
// when the queue has drained.
type changeFeed struct {
	mu        sync.Mutex
	listeners map[int64]Listener
	nextID    int64
	queue     []Change
	pending   int
	idle      chan struct{}
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newChangeFeed() *changeFeed {
	idle := make(chan struct{})
	close(idle)
	feed := &changeFeed{
		listeners: make(map[int64]Listener),
		idle:      idle,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go feed.run()
	return feed
}

func (f *changeFeed) subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = listener
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

func (f *changeFeed) publish(change Change) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return
	default:
	}
	if f.pending == 0 {
		f.idle = make(chan struct{})
	}
	f.pending++
	f.queue = append(f.queue, change)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// waitIdle blocks until every published change has been handed to all listeners.
func (f *changeFeed) waitIdle(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *changeFeed) close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		close(f.done)
		f.mu.Unlock()
	})
}

func (f *changeFeed) run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}
		for {
			f.mu.Lock()
			if len(f.queue) == 0 {
				f.mu.Unlock()
				break
			}
			change := f.queue[0]
			f.queue = f.queue[1:]
			listeners := make([]Listener, 0, len(f.listeners))
			for _, listener := range f.listeners {
				listeners = append(listeners, listener)
			}
			f.mu.Unlock()

			for _, listener := range listeners {
				listener(change)
			}

			f.mu.Lock()
			f.pending--
			if f.pending == 0 {
				close(f.idle)
			}
			f.mu.Unlock()
		}
	}
}
