package server

import (
	"context"
	"sync"
	"time"
)

const (
	// ThreadEventCommentCreated announces a newly persisted comment.
	ThreadEventCommentCreated = "comment-created"
	// ThreadEventReactionChanged announces a reaction set or clear.
	ThreadEventReactionChanged = "reaction-changed"
	threadEventHeartbeat       = "heartbeat"
	threadEventSource          = "community-backend"
)

// ThreadEvent notifies subscribers that a post's thread changed.
type ThreadEvent struct {
	PostID     string
	EventType  string
	CommentIDs []string
	Timestamp  time.Time
}

// ThreadEventDispatcher fans thread events out to per-post subscribers.
type ThreadEventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*threadSubscriber
	nextID      int64
	bufferSize  int
}

type threadSubscriber struct {
	id     int64
	stream chan ThreadEvent
}

// NewThreadEventDispatcher constructs a dispatcher with a small per-subscriber buffer.
func NewThreadEventDispatcher() *ThreadEventDispatcher {
	return &ThreadEventDispatcher{
		subscribers: make(map[string]map[int64]*threadSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers interest in a post's thread events. The returned
// cleanup is idempotent and also runs when ctx is cancelled.
func (d *ThreadEventDispatcher) Subscribe(ctx context.Context, postID string) (<-chan ThreadEvent, func()) {
	if postID == "" {
		ch := make(chan ThreadEvent)
		close(ch)
		return ch, func() {}
	}
	subscriber := &threadSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ThreadEvent, d.bufferSize),
	}
	d.registerSubscriber(postID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(postID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers an event to every subscriber of its post. Slow
// subscribers drop events rather than block the publisher.
func (d *ThreadEventDispatcher) Publish(event ThreadEvent) {
	if event.PostID == "" || event.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[event.PostID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*threadSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *ThreadEventDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ThreadEventDispatcher) registerSubscriber(postID string, subscriber *threadSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[postID]; !ok {
		d.subscribers[postID] = make(map[int64]*threadSubscriber)
	}
	d.subscribers[postID][subscriber.id] = subscriber
}

func (d *ThreadEventDispatcher) unregisterSubscriber(postID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[postID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, postID)
		}
	}
	d.mu.Unlock()
}
