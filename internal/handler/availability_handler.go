package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gamenight/internal/domain"
	"gamenight/internal/reconcile"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AvailabilityHandler exposes the per-participant edit session: the
// heatmap view, pending toggles, and the save batch.
type AvailabilityHandler struct {
	manager       *reconcile.Manager
	log           *zap.Logger
	bestSlotLimit int
}

func NewAvailabilityHandler(manager *reconcile.Manager, bestSlotLimit int, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		manager:       manager,
		log:           log,
		bestSlotLimit: bestSlotLimit,
	}
}

// View handles GET /api/events/{eventID}/availability?participant=NAME
func (h *AvailabilityHandler) View(w http.ResponseWriter, r *http.Request) {
	participant := strings.TrimSpace(r.URL.Query().Get("participant"))
	rec, ok := h.session(w, r, participant)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, rec.View(h.bestSlotLimit))
}

// ToggleRequest is the POST .../availability/toggle body.
type ToggleRequest struct {
	Participant string      `json:"participant"`
	Date        domain.Date `json:"date"`
}

// Toggle handles POST /api/events/{eventID}/availability/toggle
func (h *AvailabilityHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, ok := h.session(w, r, strings.TrimSpace(req.Participant))
	if !ok {
		return
	}

	if err := rec.ToggleDate(req.Date); err != nil {
		if errors.Is(err, domain.ErrMissingIdentity) {
			respondError(w, http.StatusBadRequest, "Participant name is required")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, rec.View(h.bestSlotLimit))
}

// SaveRequest is the POST .../availability/save body.
type SaveRequest struct {
	Participant string `json:"participant"`
}

// Save handles POST /api/events/{eventID}/availability/save
func (h *AvailabilityHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, ok := h.session(w, r, strings.TrimSpace(req.Participant))
	if !ok {
		return
	}

	if err := rec.Save(r.Context()); err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingIdentity):
			respondError(w, http.StatusBadRequest, "Participant name is required")
		case errors.Is(err, domain.ErrNoPendingChanges):
			respondError(w, http.StatusBadRequest, "No pending changes to save")
		default:
			var partial *domain.PartialSaveError
			if errors.As(err, &partial) {
				respondJSON(w, http.StatusBadGateway, map[string]interface{}{
					"error":  "Some dates could not be saved",
					"saved":  partial.Saved,
					"failed": partial.Failed,
					"view":   rec.View(h.bestSlotLimit),
				})
				return
			}
			h.log.Error("failed to save availability",
				zap.String("event_id", chi.URLParam(r, "eventID")),
				zap.Error(err))
			respondError(w, http.StatusBadGateway, "Failed to save availability")
		}
		return
	}

	respondJSON(w, http.StatusOK, rec.View(h.bestSlotLimit))
}

// CloseSession handles DELETE /api/events/{eventID}/availability; the
// client calls it on navigate-away so the session's change subscription
// is released immediately instead of waiting for the idle sweeper.
func (h *AvailabilityHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	participant := strings.TrimSpace(r.URL.Query().Get("participant"))
	if participant == "" {
		respondError(w, http.StatusBadRequest, "Participant name is required")
		return
	}

	h.manager.Close(chi.URLParam(r, "eventID"), participant)
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// session resolves the reconciler for the request, writing the error
// response itself when it cannot.
func (h *AvailabilityHandler) session(w http.ResponseWriter, r *http.Request, participant string) (*reconcile.Reconciler, bool) {
	if participant == "" {
		respondError(w, http.StatusBadRequest, "Participant name is required")
		return nil, false
	}

	eventID := chi.URLParam(r, "eventID")
	rec, err := h.manager.Session(r.Context(), eventID, participant)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			respondError(w, http.StatusNotFound, "Event not found")
			return nil, false
		}
		h.log.Error("failed to open availability session",
			zap.String("event_id", eventID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to open session")
		return nil, false
	}
	return rec, true
}
