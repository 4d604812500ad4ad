package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"gamenight/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Subscriber is the change-feed surface the watch handler needs.
type Subscriber interface {
	SubscribeToEvent(ctx context.Context, eventID string, onChange func(*domain.EventSnapshot)) func()
	SubscribeToActiveEvents(ctx context.Context, onChange func([]domain.Event)) func()
}

// WatchHandler streams store change notifications to clients over
// server-sent events. Each connected client holds one subscription for
// the lifetime of its request.
type WatchHandler struct {
	store Subscriber
	log   *zap.Logger
}

func NewWatchHandler(store Subscriber, log *zap.Logger) *WatchHandler {
	return &WatchHandler{store: store, log: log}
}

// WatchEvent handles GET /api/events/{eventID}/watch
func (h *WatchHandler) WatchEvent(w http.ResponseWriter, r *http.Request) {
	flusher, ok := h.prepareStream(w)
	if !ok {
		return
	}

	eventID := chi.URLParam(r, "eventID")
	events := make(chan *domain.EventSnapshot, 8)
	unsubscribe := h.store.SubscribeToEvent(r.Context(), eventID, func(snap *domain.EventSnapshot) {
		pushLatest(events, snap)
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-events:
			if snap == nil {
				h.writeSSE(w, flusher, "deleted", map[string]string{"event_id": eventID})
				continue
			}
			h.writeSSE(w, flusher, "snapshot", snap)
		}
	}
}

// WatchActiveEvents handles GET /api/events/watch
func (h *WatchHandler) WatchActiveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := h.prepareStream(w)
	if !ok {
		return
	}

	lists := make(chan []domain.Event, 8)
	unsubscribe := h.store.SubscribeToActiveEvents(r.Context(), func(events []domain.Event) {
		pushLatest(lists, events)
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case events := <-lists:
			h.writeSSE(w, flusher, "events", map[string]interface{}{
				"events": events,
				"count":  len(events),
			})
		}
	}
}

// pushLatest enqueues v, displacing the oldest buffered element when the
// buffer is full, so a slow client always drains towards the newest
// state rather than stalling one push behind.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func (h *WatchHandler) prepareStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func (h *WatchHandler) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal stream payload", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
