package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamenight/internal/domain"
	"gamenight/pkg/database"

	"github.com/jackc/pgx/v5"
)

// EventRepository persists event documents. Time slots and participants
// are stored as JSONB so the event behaves like a single document, the
// way the store contract expects.
type EventRepository struct {
	db *database.PostgresDB
}

func NewEventRepository(db *database.PostgresDB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent inserts a new event document under the given id.
func (r *EventRepository) CreateEvent(ctx context.Context, id string, draft *domain.EventDraft, now time.Time) error {
	slots, err := json.Marshal(draft.TimeSlots)
	if err != nil {
		return fmt.Errorf("failed to encode time slots: %w", err)
	}

	query := `
		INSERT INTO events (id, title, description, created_by, time_slots, participants, is_active, is_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, true, false, $6, $6)
	`

	if _, err := r.db.Pool.Exec(ctx, query, id, draft.Title, draft.Description, draft.CreatedBy, slots, now); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEvent returns the event with the given id, or nil if absent.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, title, description, created_by, time_slots, participants, is_active, is_completed, created_at, updated_at
		FROM events
		WHERE id = $1
	`

	event, err := scanEvent(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// ListActiveEvents returns all active events, newest first.
func (r *EventRepository) ListActiveEvents(ctx context.Context) ([]domain.Event, error) {
	query := `
		SELECT id, title, description, created_by, time_slots, participants, is_active, is_completed, created_at, updated_at
		FROM events
		WHERE is_active = true
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

// UpdateEvent merges the non-nil fields of upd into the stored document
// and stamps updated_at. Returns domain.ErrEventNotFound if the event
// does not exist.
func (r *EventRepository) UpdateEvent(ctx context.Context, id string, upd *domain.EventUpdate, now time.Time) error {
	query := `
		UPDATE events SET
			title        = COALESCE($2, title),
			description  = COALESCE($3, description),
			time_slots   = COALESCE($4, time_slots),
			participants = COALESCE($5, participants),
			is_active    = COALESCE($6, is_active),
			is_completed = COALESCE($7, is_completed),
			updated_at   = $8
		WHERE id = $1
	`

	var slots, participants []byte
	var err error
	if upd.TimeSlots != nil {
		if slots, err = json.Marshal(upd.TimeSlots); err != nil {
			return fmt.Errorf("failed to encode time slots: %w", err)
		}
	}
	if upd.Participants != nil {
		if participants, err = json.Marshal(upd.Participants); err != nil {
			return fmt.Errorf("failed to encode participants: %w", err)
		}
	}

	tag, err := r.db.Pool.Exec(ctx, query, id, upd.Title, upd.Description, slots, participants, upd.IsActive, upd.IsCompleted, now)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var event domain.Event
	var slots, participants []byte

	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.CreatedBy,
		&slots,
		&participants,
		&event.IsActive,
		&event.IsCompleted,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(slots, &event.TimeSlots); err != nil {
		return nil, fmt.Errorf("failed to decode time slots: %w", err)
	}
	if err := json.Unmarshal(participants, &event.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}

	return &event, nil
}
