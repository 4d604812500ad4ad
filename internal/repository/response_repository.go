package repository

import (
	"context"
	"fmt"
	"time"

	"gamenight/internal/domain"
	"gamenight/pkg/database"
)

// ResponseRepository persists availability responses. The current state
// lives in the responses table, upserted per (event, participant, slot)
// so repeated saves replace rather than accumulate. Every write is also
// appended to response_log, which keeps the full history for audit.
type ResponseRepository struct {
	db *database.PostgresDB
}

func NewResponseRepository(db *database.PostgresDB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// SubmitResponse records a participant's availability for one slot,
// replacing any previous response for the same key.
func (r *ResponseRepository) SubmitResponse(ctx context.Context, resp *domain.AvailabilityResponse, now time.Time) error {
	upsert := `
		INSERT INTO responses (event_id, participant_name, time_slot_id, available, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, participant_name, time_slot_id)
		DO UPDATE SET available = EXCLUDED.available, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Pool.Exec(ctx, upsert, resp.EventID, resp.ParticipantName, resp.TimeSlotID, resp.Available, now); err != nil {
		return fmt.Errorf("failed to submit response: %w", err)
	}

	appendLog := `
		INSERT INTO response_log (event_id, participant_name, time_slot_id, available, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.Pool.Exec(ctx, appendLog, resp.EventID, resp.ParticipantName, resp.TimeSlotID, resp.Available, now); err != nil {
		return fmt.Errorf("failed to append response log: %w", err)
	}

	return nil
}

// GetEventResponses returns the current response set for an event, in
// write order.
func (r *ResponseRepository) GetEventResponses(ctx context.Context, eventID string) ([]domain.AvailabilityResponse, error) {
	query := `
		SELECT event_id, participant_name, time_slot_id, available, updated_at
		FROM responses
		WHERE event_id = $1
		ORDER BY updated_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	defer rows.Close()

	var responses []domain.AvailabilityResponse
	for rows.Next() {
		var resp domain.AvailabilityResponse
		err := rows.Scan(
			&resp.EventID,
			&resp.ParticipantName,
			&resp.TimeSlotID,
			&resp.Available,
			&resp.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		responses = append(responses, resp)
	}

	return responses, rows.Err()
}
