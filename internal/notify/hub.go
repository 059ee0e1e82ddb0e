// Package notify fans task events out to connected subscribers.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	EventProgressUpdate = "progress_update"
	EventTasksCleared   = "tasks_cleared"
	EventPong           = "pong"
)

// Event is one push-channel message.
type Event struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const subscriberBuffer = 32

// Hub tracks the currently connected subscriber channels.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	log  *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		subs: make(map[chan Event]struct{}),
		log:  log,
	}
}

// Subscribe registers a new subscriber and returns its event channel.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber. The channel is not closed here; the
// owner stops reading it after unsubscribing.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Broadcast delivers ev to every currently connected subscriber. The set is
// snapshotted before iterating so connects/disconnects during a broadcast are
// safe. A subscriber that cannot accept the event loses it and the rest still
// receive theirs.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	targets := make([]chan Event, 0, len(h.subs))
	for ch := range h.subs {
		targets = append(targets, ch)
	}
	h.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			h.log.Warnf("dropping %s event for slow subscriber", ev.Type)
		}
	}
}

// SubscriberCount reports how many subscribers are connected.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
