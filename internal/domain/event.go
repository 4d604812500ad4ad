package domain

import (
	"time"
)

// AllDay is the sentinel time label for a slot that covers the whole day.
// The create flow only produces all-day slots; HH:MM labels are accepted
// for events written by older clients.
const AllDay = "all-day"

// TimeSlot is one candidate date within an event. The Available and
// Unavailable name lists are a cached projection of the response set,
// not the source of truth.
type TimeSlot struct {
	ID          string   `json:"id"`
	Date        Date     `json:"date"`
	Time        string   `json:"time"`
	Available   []string `json:"available"`
	Unavailable []string `json:"unavailable"`
}

// Event is one scheduling poll: a set of candidate dates plus the
// participants who have responded so far.
type Event struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	TimeSlots    []TimeSlot `json:"time_slots"`
	Participants []string   `json:"participants"`
	IsActive     bool       `json:"is_active"`
	IsCompleted  bool       `json:"is_completed"`
}

// SlotsOnDate returns the event's slots for the given date, preserving
// slot order.
func (e *Event) SlotsOnDate(date Date) []TimeSlot {
	var slots []TimeSlot
	for _, slot := range e.TimeSlots {
		if slot.Date == date {
			slots = append(slots, slot)
		}
	}
	return slots
}

// HasParticipant reports whether name is already on the event roster.
func (e *Event) HasParticipant(name string) bool {
	for _, p := range e.Participants {
		if p == name {
			return true
		}
	}
	return false
}

// EventDraft is the organizer's input for a new event. Slots are
// generated from the selected dates, one all-day slot per date.
type EventDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CreatedBy   string     `json:"created_by"`
	TimeSlots   []TimeSlot `json:"time_slots"`
}

// EventUpdate is a partial update of an event document. Nil fields are
// left untouched; updated_at is stamped by the store on every update.
type EventUpdate struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	TimeSlots    []TimeSlot `json:"time_slots,omitempty"`
	Participants []string   `json:"participants,omitempty"`
	IsActive     *bool      `json:"is_active,omitempty"`
	IsCompleted  *bool      `json:"is_completed,omitempty"`
}

// BoolPtr returns a pointer to b, for building EventUpdate values.
func BoolPtr(b bool) *bool {
	return &b
}
