package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/KeyWizardDev/keywizard/internal/live"
)

// heartbeatInterval is how often we send an SSE comment line to keep
// intermediaries from idling out the connection.
const heartbeatInterval = 30 * time.Second

// EventsHandler streams live catalog changes to the browser over
// Server-Sent Events.
//
// WHY SSE AND NOT WEBSOCKETS?
// The stream is strictly one-directional: the server pushes change events,
// the client never sends anything back (mutations go through the normal REST
// endpoints). SSE covers that with nothing beyond net/http — http.Flusher on
// the response writer — and browsers reconnect automatically via EventSource.
//
// WIRE FORMAT (one frame per change):
//
//	event: created
//	data: {"id":7,"name":"vim-basics",...}
//
// Clients that connect mid-stream simply start receiving from the next
// change; there is no replay. The expected client behavior is: GET the full
// list once, then apply events as they arrive.
type EventsHandler struct {
	hub    *live.Hub
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler backed by the given hub.
func NewEventsHandler(hub *live.Hub, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleStream is the SSE endpoint.
//
// HTTP: GET /api/events
// Auth: None — the stream carries only public catalog data
//
// The handler blocks for the lifetime of the connection and exits when the
// client disconnects (r.Context() is canceled). Unsubscribing is deferred, so
// the hub never holds a dead subscriber.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		// The response writer must support streaming; plain HTTP/1.1 and
		// HTTP/2 both do, so this only trips in exotic middleware setups.
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Browser navigated away or closed the tab
			return

		case <-heartbeat.C:
			// SSE comment line — ignored by EventSource, keeps the pipe warm
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				h.logger.Debug("event stream write failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent serializes one event as an SSE frame.
func writeSSEEvent(w http.ResponseWriter, event live.Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshalling event payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
	return err
}
