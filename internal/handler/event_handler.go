package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gamenight/internal/domain"
	"gamenight/internal/schedule"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventStore is the store surface the event handler needs.
type EventStore interface {
	CreateEvent(ctx context.Context, draft *domain.EventDraft) string
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	ListActiveEvents(ctx context.Context) []domain.Event
	CompleteEvent(ctx context.Context, id string) error
	ArchiveEvent(ctx context.Context, id string) error
	AddTimeSlots(ctx context.Context, id string, slots []domain.TimeSlot) error
	SubmitResponse(ctx context.Context, resp *domain.AvailabilityResponse) error
	GetEventResponses(ctx context.Context, eventID string) ([]domain.AvailabilityResponse, error)
}

type EventHandler struct {
	store         EventStore
	log           *zap.Logger
	bestSlotLimit int
}

func NewEventHandler(store EventStore, bestSlotLimit int, log *zap.Logger) *EventHandler {
	return &EventHandler{
		store:         store,
		log:           log,
		bestSlotLimit: bestSlotLimit,
	}
}

// CreateEventRequest is the POST /api/events body. Dates become one
// all-day candidate slot each.
type CreateEventRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CreatedBy   string   `json:"created_by"`
	Dates       []string `json:"dates"`
}

// List handles GET /api/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events := h.store.ListActiveEvents(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Create handles POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, err := h.buildDraft(&req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := h.store.CreateEvent(r.Context(), draft)
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Get handles GET /api/events/{eventID}. The response carries the event
// document plus its current responses and derived aggregates, so a
// detail view renders from one round trip.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		h.log.Error("failed to load event", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}

	responses, err := h.store.GetEventResponses(r.Context(), eventID)
	if err != nil {
		h.log.Error("failed to load responses", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load responses")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"event":        event,
		"responses":    responses,
		"participants": schedule.Participants(responses),
		"dates":        schedule.ComputeDateAvailability(event.TimeSlots, responses),
		"best_slots":   schedule.ComputeBestSlots(event.TimeSlots, responses, h.bestSlotLimit),
	})
}

// Complete handles POST /api/events/{eventID}/complete
func (h *EventHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.updateLifecycle(w, r, h.store.CompleteEvent)
}

// Archive handles POST /api/events/{eventID}/archive
func (h *EventHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.updateLifecycle(w, r, h.store.ArchiveEvent)
}

func (h *EventHandler) updateLifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	eventID := chi.URLParam(r, "eventID")
	if err := op(r.Context(), eventID); err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			respondError(w, http.StatusNotFound, "Event not found")
			return
		}
		h.log.Error("failed to update event lifecycle",
			zap.String("event_id", eventID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update event")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AddSlotsRequest is the POST /api/events/{eventID}/slots body.
type AddSlotsRequest struct {
	Dates []string `json:"dates"`
}

// AddSlots handles POST /api/events/{eventID}/slots
func (h *EventHandler) AddSlots(w http.ResponseWriter, r *http.Request) {
	var req AddSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	slots, err := buildSlots(req.Dates)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(slots) == 0 {
		respondError(w, http.StatusBadRequest, "At least one date is required")
		return
	}

	eventID := chi.URLParam(r, "eventID")
	if err := h.store.AddTimeSlots(r.Context(), eventID, slots); err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			respondError(w, http.StatusNotFound, "Event not found")
			return
		}
		h.log.Error("failed to add time slots",
			zap.String("event_id", eventID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to add time slots")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Responses handles GET /api/events/{eventID}/responses
func (h *EventHandler) Responses(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	responses, err := h.store.GetEventResponses(r.Context(), eventID)
	if err != nil {
		h.log.Error("failed to load responses",
			zap.String("event_id", eventID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load responses")
		return
	}
	if responses == nil {
		responses = []domain.AvailabilityResponse{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"responses":    responses,
		"participants": schedule.Participants(responses),
	})
}

// SubmitResponseRequest is the POST /api/events/{eventID}/responses body:
// one explicit per-slot availability answer.
type SubmitResponseRequest struct {
	ParticipantName string `json:"participant_name"`
	TimeSlotID      string `json:"time_slot_id"`
	Available       bool   `json:"available"`
}

// SubmitResponse handles POST /api/events/{eventID}/responses
func (h *EventHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req SubmitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ParticipantName) == "" {
		respondError(w, http.StatusBadRequest, "Participant name is required")
		return
	}
	if req.TimeSlotID == "" {
		respondError(w, http.StatusBadRequest, "Time slot id is required")
		return
	}

	eventID := chi.URLParam(r, "eventID")
	err := h.store.SubmitResponse(r.Context(), &domain.AvailabilityResponse{
		EventID:         eventID,
		ParticipantName: strings.TrimSpace(req.ParticipantName),
		TimeSlotID:      req.TimeSlotID,
		Available:       req.Available,
	})
	if err != nil {
		h.log.Error("failed to submit response",
			zap.String("event_id", eventID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to submit response")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// BestSlots handles GET /api/events/{eventID}/best-slots
func (h *EventHandler) BestSlots(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		h.log.Error("failed to load event", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}

	responses, err := h.store.GetEventResponses(r.Context(), eventID)
	if err != nil {
		h.log.Error("failed to load responses", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load responses")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"best_slots": schedule.ComputeBestSlots(event.TimeSlots, responses, h.bestSlotLimit),
	})
}

func (h *EventHandler) buildDraft(req *CreateEventRequest) (*domain.EventDraft, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}

	slots, err := buildSlots(req.Dates)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, errors.New("at least one candidate date is required")
	}

	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = "Anonymous"
	}

	return &domain.EventDraft{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   createdBy,
		TimeSlots:   slots,
	}, nil
}

// buildSlots turns date strings into all-day candidate slots, skipping
// duplicates.
func buildSlots(dates []string) ([]domain.TimeSlot, error) {
	seen := make(map[domain.Date]bool, len(dates))
	slots := make([]domain.TimeSlot, 0, len(dates))
	for _, raw := range dates {
		date, err := domain.ParseDate(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		if seen[date] {
			continue
		}
		seen[date] = true
		slots = append(slots, domain.TimeSlot{
			ID:   uuid.NewString(),
			Date: date,
			Time: domain.AllDay,
		})
	}
	return slots, nil
}
