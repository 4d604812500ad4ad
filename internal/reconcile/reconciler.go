// Package reconcile tracks a participant's unsaved availability toggles
// against their committed selections and reconciles both with the
// live-updating event snapshot pushed by the store.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gamenight/internal/domain"
	"gamenight/internal/schedule"

	"go.uber.org/zap"
)

// State is the reconciler's position in the edit cycle.
type State int

const (
	// StateIdle means no unsaved toggles.
	StateIdle State = iota
	// StateDirty means at least one pending toggle.
	StateDirty
	// StateSaving means a save batch is in flight.
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDirty:
		return "dirty"
	case StateSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// Store is the write surface the reconciler needs from the event store.
type Store interface {
	SubmitResponse(ctx context.Context, resp *domain.AvailabilityResponse) error
	UpdateEvent(ctx context.Context, id string, upd *domain.EventUpdate) error
}

// Reconciler is the per-(event, participant session) edit state machine:
// Idle -> Dirty on the first toggle, Dirty -> Saving -> Idle on a
// successful save, back to Dirty when any write fails so the remaining
// edits survive for a retry.
type Reconciler struct {
	store       Store
	log         *zap.Logger
	guardWindow time.Duration
	now         func() time.Time

	mu          sync.Mutex
	event       domain.Event
	responses   []domain.AvailabilityResponse
	participant string
	savedName   string
	selected    map[domain.Date]bool
	pending     []domain.Date // preserves toggle order; save writes in this order
	state       State
	lastSavedAt time.Time
}

func NewReconciler(store Store, snap *domain.EventSnapshot, guardWindow time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store:       store,
		log:         log,
		guardWindow: guardWindow,
		now:         time.Now,
		event:       snap.Event,
		responses:   snap.Responses,
		selected:    make(map[domain.Date]bool),
		state:       StateIdle,
	}
}

// SetParticipant records who is editing and derives their committed
// selections from the current response set. A rename while Idle rebases
// the selection onto the new name's responses.
func (r *Reconciler) SetParticipant(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participant = name
	if r.state == StateIdle {
		r.selected = schedule.SelectedDatesFor(r.displayName(), r.event.TimeSlots, r.responses)
	}
}

// ToggleDate flips the pending state of one candidate date. Toggling a
// date back off removes it from the pending set without issuing any
// write.
func (r *Reconciler) ToggleDate(date domain.Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.participant == "" {
		return domain.ErrMissingIdentity
	}
	if len(r.event.SlotsOnDate(date)) == 0 {
		return fmt.Errorf("date %s is not a candidate for event %s", date, r.event.ID)
	}

	for i, pending := range r.pending {
		if pending == date {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			if len(r.pending) == 0 {
				r.state = StateIdle
			}
			return nil
		}
	}

	r.pending = append(r.pending, date)
	r.state = StateDirty
	return nil
}

// Save writes the inverse of the committed availability for every slot
// of every pending date, sequentially in toggle order. Dates whose
// writes all succeed are committed locally; dates with a failed write
// stay pending and the whole batch reports a single error. The local
// selection commit happens only after every write attempt has returned.
func (r *Reconciler) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.participant == "" {
		return domain.ErrMissingIdentity
	}
	if len(r.pending) == 0 {
		return domain.ErrNoPendingChanges
	}

	r.state = StateSaving

	var saved, failed []domain.Date
	var firstErr error

	for _, date := range r.pending {
		wasAvailable := r.selected[date]
		dateOK := true

		for _, slot := range r.event.SlotsOnDate(date) {
			resp := &domain.AvailabilityResponse{
				EventID:         r.event.ID,
				ParticipantName: r.participant,
				TimeSlotID:      slot.ID,
				Available:       !wasAvailable,
			}
			if err := r.store.SubmitResponse(ctx, resp); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				dateOK = false
				break
			}
		}

		if dateOK {
			saved = append(saved, date)
		} else {
			failed = append(failed, date)
		}
	}

	// Commit what succeeded, keep the rest pending for a retry.
	for _, date := range saved {
		if r.selected[date] {
			delete(r.selected, date)
		} else {
			r.selected[date] = true
		}
	}
	r.pending = failed

	if len(saved) > 0 {
		r.savedName = r.participant
		r.lastSavedAt = r.now()
		r.appendToRoster(ctx)
	}

	if len(failed) > 0 {
		r.state = StateDirty
		if len(saved) == 0 {
			return fmt.Errorf("failed to save availability: %w", firstErr)
		}
		return &domain.PartialSaveError{Saved: saved, Failed: failed, Err: firstErr}
	}

	r.state = StateIdle
	return nil
}

// ApplySnapshot absorbs a remote push. The latest event document is
// always kept for slot lookups, but the selection set is only re-derived
// while Idle and outside the guard window, so a push racing a
// just-completed save cannot visually revert it.
func (r *Reconciler) ApplySnapshot(snap *domain.EventSnapshot) {
	if snap == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.event = snap.Event
	r.responses = snap.Responses

	if r.state != StateIdle {
		return
	}
	if !r.lastSavedAt.IsZero() && r.now().Sub(r.lastSavedAt) < r.guardWindow {
		return
	}

	r.selected = schedule.SelectedDatesFor(r.displayName(), r.event.TimeSlots, r.responses)
}

// State returns the current edit state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PendingDates returns the pending set in toggle order.
func (r *Reconciler) PendingDates() []domain.Date {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Date(nil), r.pending...)
}

// SelectedDates returns the committed selection set.
func (r *Reconciler) SelectedDates() map[domain.Date]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	selected := make(map[domain.Date]bool, len(r.selected))
	for date, ok := range r.selected {
		selected[date] = ok
	}
	return selected
}

// appendToRoster adds the participant to the event's denormalized
// roster after their first save. Failure is logged and non-fatal; the
// availability writes already succeeded.
func (r *Reconciler) appendToRoster(ctx context.Context) {
	if r.event.HasParticipant(r.participant) {
		return
	}

	participants := append(append([]string(nil), r.event.Participants...), r.participant)
	if err := r.store.UpdateEvent(ctx, r.event.ID, &domain.EventUpdate{Participants: participants}); err != nil {
		r.log.Warn("failed to append participant to event roster",
			zap.String("event_id", r.event.ID),
			zap.String("participant", r.participant),
			zap.Error(err))
		return
	}
	r.event.Participants = participants
}

func (r *Reconciler) displayName() string {
	if r.savedName != "" {
		return r.savedName
	}
	return r.participant
}
