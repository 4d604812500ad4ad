package reconcile

import (
	"gamenight/internal/domain"
	"gamenight/internal/schedule"
)

// DateView is one heatmap cell: the aggregate availability for a date
// plus its display tier.
type DateView struct {
	schedule.DateAvailability
	Heat schedule.HeatTier `json:"heat"`
}

// View is the full render model for one participant's session.
type View struct {
	EventID      string              `json:"event_id"`
	Participant  string              `json:"participant"`
	State        string              `json:"state"`
	PendingCount int                 `json:"pending_count"`
	Dates        []DateView          `json:"dates"`
	BestSlots    []schedule.BestSlot `json:"best_slots"`
	Participants []string            `json:"participants"`
}

// View derives the current render model from the latest snapshot, the
// committed selection and the pending toggles. Pure aggregation over
// held state; no I/O.
func (r *Reconciler) View(bestSlotLimit int) View {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[domain.Date]bool, len(r.pending))
	for _, date := range r.pending {
		pending[date] = true
	}

	entries := schedule.ComputeDateAvailability(r.event.TimeSlots, r.responses)
	maxCount := schedule.MaxAvailableCount(entries)

	dates := make([]DateView, 0, len(entries))
	for _, entry := range entries {
		entry.Selected = r.selected[entry.Date]
		entry.Pending = pending[entry.Date]
		dates = append(dates, DateView{
			DateAvailability: entry,
			Heat:             schedule.ComputeHeatColor(entry.AvailableCount, maxCount),
		})
	}

	return View{
		EventID:      r.event.ID,
		Participant:  r.participant,
		State:        r.state.String(),
		PendingCount: len(r.pending),
		Dates:        dates,
		BestSlots:    schedule.ComputeBestSlots(r.event.TimeSlots, r.responses, bestSlotLimit),
		Participants: schedule.Participants(r.responses),
	}
}
