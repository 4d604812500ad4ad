package domain

import "time"

// AvailabilityResponse is one participant's yes/no statement about one
// time slot. The current response for a (event, participant, slot) key
// replaces any earlier one; the full write history is kept separately in
// the response log.
type AvailabilityResponse struct {
	EventID         string    `json:"event_id"`
	ParticipantName string    `json:"participant_name"`
	TimeSlotID      string    `json:"time_slot_id"`
	Available       bool      `json:"available"`
	Timestamp       time.Time `json:"timestamp"`
}

// EventSnapshot is the full current state of one event as delivered to
// subscribers: the event document plus its current response set.
type EventSnapshot struct {
	Event     Event                  `json:"event"`
	Responses []AvailabilityResponse `json:"responses"`
}
