// Package schedule computes derived availability views from an event's
// time slots and its current response set. Every function here is pure:
// identical inputs yield identical outputs, so callers may recompute on
// every snapshot push without caching.
package schedule

import (
	"sort"

	"gamenight/internal/domain"
)

// DateAvailability is the derived per-date view: how many distinct
// participants can attend, and whether the viewing participant has the
// date selected or pending. Never persisted.
type DateAvailability struct {
	Date           domain.Date `json:"date"`
	AvailableCount int         `json:"available_count"`
	Selected       bool        `json:"selected"`
	Pending        bool        `json:"pending"`
}

// BestSlot is a time slot ranked by net availability.
type BestSlot struct {
	domain.TimeSlot
	Score            int      `json:"score"`
	AvailableNames   []string `json:"available_names"`
	UnavailableNames []string `json:"unavailable_names"`
}

// HeatTier is a discrete heatmap intensity bucket.
type HeatTier struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

// ComputeDateAvailability returns one entry per distinct date in slots,
// chronologically sorted. A participant counts as available on a date
// when they have at least one available response on any slot of that
// date. Dates with slots but no responses get a zero count.
func ComputeDateAvailability(slots []domain.TimeSlot, responses []domain.AvailabilityResponse) []DateAvailability {
	slotDates := make(map[string]domain.Date, len(slots))
	byDate := make(map[domain.Date]map[string]bool)
	for _, slot := range slots {
		slotDates[slot.ID] = slot.Date
		if _, ok := byDate[slot.Date]; !ok {
			byDate[slot.Date] = make(map[string]bool)
		}
	}

	for _, resp := range responses {
		if !resp.Available {
			continue
		}
		date, ok := slotDates[resp.TimeSlotID]
		if !ok {
			continue
		}
		byDate[date][resp.ParticipantName] = true
	}

	result := make([]DateAvailability, 0, len(byDate))
	for date, names := range byDate {
		result = append(result, DateAvailability{Date: date, AvailableCount: len(names)})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result
}

// MaxAvailableCount returns the largest count across entries, floored at
// 1 so heat scaling never divides by zero.
func MaxAvailableCount(entries []DateAvailability) int {
	max := 1
	for _, e := range entries {
		if e.AvailableCount > max {
			max = e.AvailableCount
		}
	}
	return max
}

// ComputeHeatColor buckets count/maxCount into a fixed intensity tier.
func ComputeHeatColor(count, maxCount int) HeatTier {
	if maxCount < 1 {
		maxCount = 1
	}
	intensity := float64(count) / float64(maxCount)
	switch {
	case intensity == 0:
		return HeatTier{Color: "#f8f9fa", Label: "none"}
	case intensity <= 0.25:
		return HeatTier{Color: "#d4edda", Label: "few"}
	case intensity <= 0.5:
		return HeatTier{Color: "#c3e6cb", Label: "some"}
	case intensity <= 0.75:
		return HeatTier{Color: "#28a745", Label: "many"}
	default:
		return HeatTier{Color: "#155724", Label: "most"}
	}
}

// ComputeBestSlots ranks slots by score = available − unavailable
// (distinct participant names per polarity) and returns the top topN.
// Ties preserve original slot order.
func ComputeBestSlots(slots []domain.TimeSlot, responses []domain.AvailabilityResponse, topN int) []BestSlot {
	if topN <= 0 {
		return nil
	}

	scored := make([]BestSlot, 0, len(slots))
	for _, slot := range slots {
		available, unavailable := slotParticipants(slot.ID, responses)
		scored = append(scored, BestSlot{
			TimeSlot:         slot,
			Score:            len(available) - len(unavailable),
			AvailableNames:   available,
			UnavailableNames: unavailable,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

// SelectedDatesFor returns the set of dates on which the participant has
// at least one available response.
func SelectedDatesFor(participant string, slots []domain.TimeSlot, responses []domain.AvailabilityResponse) map[domain.Date]bool {
	slotDates := make(map[string]domain.Date, len(slots))
	for _, slot := range slots {
		slotDates[slot.ID] = slot.Date
	}

	selected := make(map[domain.Date]bool)
	for _, resp := range responses {
		if resp.ParticipantName != participant || !resp.Available {
			continue
		}
		if date, ok := slotDates[resp.TimeSlotID]; ok {
			selected[date] = true
		}
	}
	return selected
}

// Participants returns the distinct participant names in the response
// set, in first-seen order.
func Participants(responses []domain.AvailabilityResponse) []string {
	seen := make(map[string]bool)
	var names []string
	for _, resp := range responses {
		if !seen[resp.ParticipantName] {
			seen[resp.ParticipantName] = true
			names = append(names, resp.ParticipantName)
		}
	}
	return names
}

// slotParticipants splits a slot's responders into distinct available
// and unavailable name lists, in first-seen order.
func slotParticipants(slotID string, responses []domain.AvailabilityResponse) (available, unavailable []string) {
	seenAvail := make(map[string]bool)
	seenUnavail := make(map[string]bool)
	for _, resp := range responses {
		if resp.TimeSlotID != slotID {
			continue
		}
		if resp.Available {
			if !seenAvail[resp.ParticipantName] {
				seenAvail[resp.ParticipantName] = true
				available = append(available, resp.ParticipantName)
			}
		} else {
			if !seenUnavail[resp.ParticipantName] {
				seenUnavail[resp.ParticipantName] = true
				unavailable = append(unavailable, resp.ParticipantName)
			}
		}
	}
	return available, unavailable
}
