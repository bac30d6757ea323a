package notify

import (
	"sync"

	"github.com/jpalmerr/devicewatch/internal/inventory"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// Hub is an in-process [Notifier] that fans events out to subscribers.
//
// Subscribers receive events via buffered channels (buffer size 100). Sends
// are non-blocking; if a subscriber's buffer is full the event is dropped
// for that subscriber so one slow client cannot stall the reconciler.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan inventory.StatusChangeEvent]struct{}
}

var _ Notifier = (*Hub)(nil)

// NewHub creates an empty [Hub].
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan inventory.StatusChangeEvent]struct{}),
	}
}

// Publish sends event to every current subscriber without blocking.
func (h *Hub) Publish(event inventory.StatusChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber is slow, drop the event
		}
	}
}

// Subscribe registers a new subscriber.
//
// Caller must call [Hub.Unsubscribe] when done to prevent resource leaks.
func (h *Hub) Subscribe() <-chan inventory.StatusChangeEvent {
	ch := make(chan inventory.StatusChangeEvent, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (h *Hub) Unsubscribe(ch <-chan inventory.StatusChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subCh := range h.subscribers {
		if subCh == ch {
			delete(h.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
