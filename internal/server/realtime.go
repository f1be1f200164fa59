package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventAlert     = "alert"
	realtimeEventHeartbeat = "heartbeat"
	realtimeEventReady     = "ready"
	realtimeSourceEditor   = "storyboard-editor"
)

// RealtimeMessage is one event streamed to the clients of an editor session.
type RealtimeMessage struct {
	SessionID    string
	EventType    string
	Revision     uint64
	ActivePageID string
	PageIDs      []string
	Message      string
	Timestamp    time.Time
}

// RealtimeDispatcher fans session events out to subscribers. Slow subscribers drop events
// rather than block the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  32,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, sessionID string) (<-chan RealtimeMessage, func()) {
	if sessionID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(sessionID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(sessionID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.SessionID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.SessionID] {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// CloseSession ends every stream of a session.
func (d *RealtimeDispatcher) CloseSession(sessionID string) {
	d.mu.Lock()
	subscribers := d.subscribers[sessionID]
	delete(d.subscribers, sessionID)
	d.mu.Unlock()
	for _, subscriber := range subscribers {
		close(subscriber.stream)
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(sessionID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[sessionID]; !ok {
		d.subscribers[sessionID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[sessionID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(sessionID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[sessionID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, sessionID)
		}
	}
	d.mu.Unlock()
}
