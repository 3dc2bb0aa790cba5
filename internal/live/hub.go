// Package live implements the change broadcaster: a registry of connected
// subscribers and a fire-and-forget publish operation that fans events out to
// all of them.
//
// DELIVERY CONTRACT:
//   - Publish is called synchronously from the success branch of a service
//     mutation, only AFTER the database write commits. Never before, never on
//     a failure path — the only caller is the success branch itself.
//   - Each connected subscriber receives events in publish order (per-subscriber
//     FIFO via its own channel).
//   - A subscriber that connects after an event was published never receives
//     it. There is no backlog, no replay, no persistence — clients fetch the
//     full list on connect and reconcile from there.
//   - Delivery is best-effort: if a subscriber's buffer is full (slow client),
//     that event is dropped for that subscriber only. A publish failure can
//     never fail the mutation that triggered it — the write already committed.
package live

import (
	"log/slog"
	"sync"
)

// Event kinds. The payload is the full joined package row for created and
// updated, and just {"id": n} for deleted.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Event is an ephemeral change notification. It is produced once per
// successful mutation, delivered to whoever is connected right now, and then
// gone — there is no event log.
type Event struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// DeletedPayload is the payload for a deleted event — just the id, since the
// row no longer exists to send.
type DeletedPayload struct {
	ID int64 `json:"id"`
}

// subscriberBuffer is how many events a subscriber can lag behind before we
// start dropping events for it. SSE writes flush per-event, so in practice the
// buffer only fills when a client's connection has stalled.
const subscriberBuffer = 16

// Subscriber is one connected client's event stream.
//
// STATE MACHINE:
// A Subscriber is Connected from Subscribe() until Unsubscribe(); the
// transition is terminal for this instance. A client that reconnects gets a
// brand-new Subscriber and has missed whatever was published in between.
type Subscriber struct {
	events chan Event
}

// Events returns the receive side of the subscriber's stream.
// The channel is closed by Unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Hub tracks currently connected subscribers and delivers events to them.
//
// WHY A PLAIN MUTEX (not sync.RWMutex or channels-of-channels)?
// The hub is touched on three paths: subscribe, unsubscribe, publish. All
// three are short critical sections over a small map. A Mutex keeps the
// invariant trivial to see: nobody sends on a subscriber channel after it has
// been closed, because close and send both happen under the lock.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	logger      *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new connected subscriber and returns its stream.
// The caller must call Unsubscribe when the transport closes.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{events: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("subscriber connected", slog.Int("subscribers", count))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Terminal: the
// subscriber instance cannot be re-registered. Safe to call exactly once per
// Subscribe (the SSE handler defers it).
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.events)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("subscriber disconnected", slog.Int("subscribers", count))
}

// Publish delivers an event to every currently connected subscriber.
//
// Each event is sent at most once per subscriber (we iterate the set once).
// The send is non-blocking: a full buffer means that subscriber misses this
// event, logged and otherwise swallowed — the originating mutation has already
// committed and must not be affected.
func (h *Hub) Publish(kind string, payload any) {
	event := Event{Kind: kind, Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				slog.String("kind", kind),
			)
		}
	}
}

// SubscriberCount reports how many clients are currently connected.
// Used for logging and tests.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
