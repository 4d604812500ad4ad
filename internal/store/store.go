// Package store is the event store adapter: all reads, writes and change
// subscriptions for events and responses go through it. Writes land in
// Postgres and fan out change notifications over Redis pub/sub; nothing
// cached locally is authoritative, subscribers always re-query on a
// notification.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gamenight/internal/domain"
	"gamenight/pkg/redis"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventRepository is the persistence surface the store needs for events.
type EventRepository interface {
	CreateEvent(ctx context.Context, id string, draft *domain.EventDraft, now time.Time) error
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	ListActiveEvents(ctx context.Context) ([]domain.Event, error)
	UpdateEvent(ctx context.Context, id string, upd *domain.EventUpdate, now time.Time) error
}

// ResponseRepository is the persistence surface for availability responses.
type ResponseRepository interface {
	SubmitResponse(ctx context.Context, resp *domain.AvailabilityResponse, now time.Time) error
	GetEventResponses(ctx context.Context, eventID string) ([]domain.AvailabilityResponse, error)
}

type EventStore struct {
	events    EventRepository
	responses ResponseRepository
	redis     *redis.Client
	log       *zap.Logger
	now       func() time.Time
}

func NewEventStore(events EventRepository, responses ResponseRepository, redisClient *redis.Client, log *zap.Logger) *EventStore {
	return &EventStore{
		events:    events,
		responses: responses,
		redis:     redisClient,
		log:       log,
		now:       time.Now,
	}
}

// localIDPrefix marks ids handed out when the backing store was
// unreachable at create time. Callers must treat any returned id as
// "accepted, possibly not durably persisted".
const localIDPrefix = "local-"

// CreateEvent persists a new event and returns its id. When the store
// cannot be reached it degrades to a locally generated placeholder id
// instead of propagating the failure.
func (s *EventStore) CreateEvent(ctx context.Context, draft *domain.EventDraft) string {
	id := uuid.NewString()

	if err := s.events.CreateEvent(ctx, id, draft, s.now().UTC()); err != nil {
		s.log.Error("failed to create event, returning placeholder id",
			zap.String("title", draft.Title),
			zap.Error(err))
		return localIDPrefix + id
	}

	s.notifyActiveEvents(ctx)
	return id
}

// GetEvent returns the event with the given id, or nil if absent.
func (s *EventStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	return s.events.GetEvent(ctx, id)
}

// ListActiveEvents returns all active events newest first. On failure it
// serves the last cached list if one is still live, and otherwise an
// empty slice rather than an error, so list views can always render.
func (s *EventStore) ListActiveEvents(ctx context.Context) []domain.Event {
	events, err := s.events.ListActiveEvents(ctx)
	if err != nil {
		s.log.Error("failed to list active events", zap.Error(err))
		if cached, ok := s.cachedActiveEvents(ctx); ok {
			return cached
		}
		return []domain.Event{}
	}
	if events == nil {
		events = []domain.Event{}
	}
	s.cacheActiveEvents(ctx, events)
	return events
}

// UpdateEvent merges partial fields into the event and stamps updated_at.
func (s *EventStore) UpdateEvent(ctx context.Context, id string, upd *domain.EventUpdate) error {
	if err := s.events.UpdateEvent(ctx, id, upd, s.now().UTC()); err != nil {
		return err
	}
	s.invalidateCaches(ctx, id)
	s.notifyEvent(ctx, id)
	s.notifyActiveEvents(ctx)
	return nil
}

// CompleteEvent marks the event completed and inactive.
func (s *EventStore) CompleteEvent(ctx context.Context, id string) error {
	return s.UpdateEvent(ctx, id, &domain.EventUpdate{
		IsCompleted: domain.BoolPtr(true),
		IsActive:    domain.BoolPtr(false),
	})
}

// ArchiveEvent marks the event inactive without completing it.
func (s *EventStore) ArchiveEvent(ctx context.Context, id string) error {
	return s.UpdateEvent(ctx, id, &domain.EventUpdate{
		IsActive: domain.BoolPtr(false),
	})
}

// AddTimeSlots appends candidate slots to an existing event.
func (s *EventStore) AddTimeSlots(ctx context.Context, id string, slots []domain.TimeSlot) error {
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if event == nil {
		return domain.ErrEventNotFound
	}

	return s.UpdateEvent(ctx, id, &domain.EventUpdate{
		TimeSlots: append(event.TimeSlots, slots...),
	})
}

// SubmitResponse records one availability response with a server
// timestamp and notifies the event's subscribers.
func (s *EventStore) SubmitResponse(ctx context.Context, resp *domain.AvailabilityResponse) error {
	if err := s.responses.SubmitResponse(ctx, resp, s.now().UTC()); err != nil {
		return err
	}
	_ = s.redis.Delete(ctx, s.redis.KeyBuilder.KeyEventSnapshot(resp.EventID))
	s.notifyEvent(ctx, resp.EventID)
	return nil
}

// GetEventResponses returns the current response set for an event.
func (s *EventStore) GetEventResponses(ctx context.Context, eventID string) ([]domain.AvailabilityResponse, error) {
	return s.responses.GetEventResponses(ctx, eventID)
}

// Snapshot assembles the full current state of one event. Returns nil
// when the event does not exist. When the backing store cannot be read,
// a still-live cached snapshot is served instead of the error.
func (s *EventStore) Snapshot(ctx context.Context, eventID string) (*domain.EventSnapshot, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if cached, ok := s.cachedSnapshot(ctx, eventID); ok {
			s.log.Warn("serving cached snapshot, store read failed",
				zap.String("event_id", eventID),
				zap.Error(err))
			return cached, nil
		}
		return nil, err
	}
	if event == nil {
		return nil, nil
	}

	responses, err := s.responses.GetEventResponses(ctx, eventID)
	if err != nil {
		if cached, ok := s.cachedSnapshot(ctx, eventID); ok {
			s.log.Warn("serving cached snapshot, store read failed",
				zap.String("event_id", eventID),
				zap.Error(err))
			return cached, nil
		}
		return nil, err
	}

	snap := &domain.EventSnapshot{Event: *event, Responses: responses}
	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

// SubscribeToEvent delivers the full current snapshot of one event
// immediately, then again after every remote change, until the returned
// unsubscribe function is called. A nil snapshot means the event is
// absent.
func (s *EventStore) SubscribeToEvent(ctx context.Context, eventID string, onChange func(*domain.EventSnapshot)) func() {
	pubsub := s.redis.Subscribe(ctx, s.redis.KeyBuilder.ChannelEvent(eventID))

	done := make(chan struct{})
	go func() {
		defer pubsub.Close()

		s.pushSnapshot(ctx, eventID, onChange)

		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				s.pushSnapshot(ctx, eventID, onChange)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// SubscribeToActiveEvents delivers the live active-event list: once
// immediately, then after every change. On listener failure onChange is
// invoked with an empty slice so the caller never hangs on a loading
// state.
func (s *EventStore) SubscribeToActiveEvents(ctx context.Context, onChange func([]domain.Event)) func() {
	pubsub := s.redis.Subscribe(ctx, s.redis.KeyBuilder.ChannelActiveEvents())

	// Confirm the subscription attached before promising deltas.
	if _, err := pubsub.Receive(ctx); err != nil {
		s.log.Error("failed to attach active-events listener", zap.Error(err))
		pubsub.Close()
		onChange([]domain.Event{})
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer pubsub.Close()

		onChange(s.ListActiveEvents(ctx))

		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				onChange(s.ListActiveEvents(ctx))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (s *EventStore) pushSnapshot(ctx context.Context, eventID string, onChange func(*domain.EventSnapshot)) {
	snap, err := s.Snapshot(ctx, eventID)
	if err != nil {
		s.log.Error("failed to load event snapshot",
			zap.String("event_id", eventID),
			zap.Error(err))
		return
	}
	onChange(snap)
}

// notifyEvent publishes a change notification for one event. Delivery is
// best effort: a lost notification only delays the next snapshot.
func (s *EventStore) notifyEvent(ctx context.Context, eventID string) {
	if err := s.redis.Publish(ctx, s.redis.KeyBuilder.ChannelEvent(eventID), "changed"); err != nil {
		s.log.Warn("failed to publish event change",
			zap.String("event_id", eventID),
			zap.Error(err))
	}
}

func (s *EventStore) notifyActiveEvents(ctx context.Context) {
	if err := s.redis.Publish(ctx, s.redis.KeyBuilder.ChannelActiveEvents(), "changed"); err != nil {
		s.log.Warn("failed to publish active-events change", zap.Error(err))
	}
}

// cacheSnapshot keeps the latest serialized snapshot in Redis for cold
// reads. Failures are ignored; the cache is never authoritative.
func (s *EventStore) cacheSnapshot(ctx context.Context, snap *domain.EventSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, s.redis.KeyBuilder.KeyEventSnapshot(snap.Event.ID), string(data), redis.TTLSnapshot)
}

func (s *EventStore) cacheActiveEvents(ctx context.Context, events []domain.Event) {
	data, err := json.Marshal(events)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, s.redis.KeyBuilder.KeyActiveEvents(), string(data), redis.TTLActiveEvents)
}

func (s *EventStore) cachedSnapshot(ctx context.Context, eventID string) (*domain.EventSnapshot, bool) {
	data, err := s.redis.Get(ctx, s.redis.KeyBuilder.KeyEventSnapshot(eventID))
	if err != nil {
		return nil, false
	}
	var snap domain.EventSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func (s *EventStore) cachedActiveEvents(ctx context.Context) ([]domain.Event, bool) {
	data, err := s.redis.Get(ctx, s.redis.KeyBuilder.KeyActiveEvents())
	if err != nil {
		return nil, false
	}
	var events []domain.Event
	if err := json.Unmarshal([]byte(data), &events); err != nil {
		return nil, false
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, true
}

// invalidateCaches drops cached state for an event after a write so a
// cold read cannot serve the pre-write document for a full TTL.
func (s *EventStore) invalidateCaches(ctx context.Context, eventID string) {
	_ = s.redis.Delete(ctx,
		s.redis.KeyBuilder.KeyEventSnapshot(eventID),
		s.redis.KeyBuilder.KeyActiveEvents())
}
