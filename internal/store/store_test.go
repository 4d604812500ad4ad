package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gamenight/internal/domain"
	"gamenight/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*domain.Event

	failCreate bool
	failList   bool
	failGet    bool
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*domain.Event)}
}

func (f *fakeEventRepo) CreateEvent(ctx context.Context, id string, draft *domain.EventDraft, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("connection refused")
	}
	f.events[id] = &domain.Event{
		ID:           id,
		Title:        draft.Title,
		Description:  draft.Description,
		CreatedBy:    draft.CreatedBy,
		TimeSlots:    draft.TimeSlots,
		Participants: []string{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return nil
}

func (f *fakeEventRepo) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return nil, errors.New("connection refused")
	}
	event, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	copied := *event
	return &copied, nil
}

func (f *fakeEventRepo) ListActiveEvents(ctx context.Context) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("connection refused")
	}
	var events []domain.Event
	for _, event := range f.events {
		if event.IsActive {
			events = append(events, *event)
		}
	}
	return events, nil
}

func (f *fakeEventRepo) UpdateEvent(ctx context.Context, id string, upd *domain.EventUpdate, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	if upd.Title != nil {
		event.Title = *upd.Title
	}
	if upd.TimeSlots != nil {
		event.TimeSlots = upd.TimeSlots
	}
	if upd.Participants != nil {
		event.Participants = upd.Participants
	}
	if upd.IsActive != nil {
		event.IsActive = *upd.IsActive
	}
	if upd.IsCompleted != nil {
		event.IsCompleted = *upd.IsCompleted
	}
	event.UpdatedAt = now
	return nil
}

type fakeResponseRepo struct {
	mu        sync.Mutex
	responses map[string][]domain.AvailabilityResponse
}

func newFakeResponseRepo() *fakeResponseRepo {
	return &fakeResponseRepo{responses: make(map[string][]domain.AvailabilityResponse)}
}

func (f *fakeResponseRepo) SubmitResponse(ctx context.Context, resp *domain.AvailabilityResponse, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *resp
	stored.Timestamp = now
	// Upsert per (participant, slot) key.
	existing := f.responses[resp.EventID]
	for i, prev := range existing {
		if prev.ParticipantName == resp.ParticipantName && prev.TimeSlotID == resp.TimeSlotID {
			existing[i] = stored
			return nil
		}
	}
	f.responses[resp.EventID] = append(existing, stored)
	return nil
}

func (f *fakeResponseRepo) GetEventResponses(ctx context.Context, eventID string) ([]domain.AvailabilityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AvailabilityResponse(nil), f.responses[eventID]...), nil
}

func setupStore(t *testing.T) (*EventStore, *fakeEventRepo, *fakeResponseRepo, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { redisClient.Close() })

	events := newFakeEventRepo()
	responses := newFakeResponseRepo()
	return NewEventStore(events, responses, redisClient, zap.NewNop()), events, responses, mr
}

func draft(title string, dates ...string) *domain.EventDraft {
	d := &domain.EventDraft{Title: title, CreatedBy: "Anonymous"}
	for i, date := range dates {
		d.TimeSlots = append(d.TimeSlots, domain.TimeSlot{
			ID:   "s" + string(rune('1'+i)),
			Date: domain.MustParseDate(date),
			Time: domain.AllDay,
		})
	}
	return d
}

func TestCreateEvent(t *testing.T) {
	s, repo, _, _ := setupStore(t)
	ctx := context.Background()

	id := s.CreateEvent(ctx, draft("Game night", "2025-06-01"))
	require.NotEmpty(t, id)
	assert.False(t, strings.HasPrefix(id, "local-"))

	event, err := s.GetEvent(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "Game night", event.Title)
	assert.True(t, event.IsActive)

	// Storage failure degrades to a placeholder id, not an error.
	repo.failCreate = true
	id = s.CreateEvent(ctx, draft("Unreachable", "2025-06-01"))
	assert.True(t, strings.HasPrefix(id, "local-"))
}

func TestListActiveEvents_FailureServesCacheThenEmpty(t *testing.T) {
	s, repo, _, mr := setupStore(t)
	ctx := context.Background()

	s.CreateEvent(ctx, draft("Game night", "2025-06-01"))
	assert.Len(t, s.ListActiveEvents(ctx), 1)

	// Store down: the last successfully read list is still served.
	repo.failList = true
	events := s.ListActiveEvents(ctx)
	require.Len(t, events, 1)
	assert.Equal(t, "Game night", events[0].Title)

	// Store down and cache expired: empty slice, never nil.
	mr.FlushAll()
	events = s.ListActiveEvents(ctx)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestSnapshot_FailureServesCache(t *testing.T) {
	s, repo, _, mr := setupStore(t)
	ctx := context.Background()

	id := s.CreateEvent(ctx, draft("Game night", "2025-06-01"))

	snap, err := s.Snapshot(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap)

	// Store down: the cached snapshot is served instead of the error.
	repo.failGet = true
	cached, err := s.Snapshot(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, id, cached.Event.ID)
	assert.Equal(t, "Game night", cached.Event.Title)

	// Store down and cache expired: the error propagates.
	mr.FlushAll()
	_, err = s.Snapshot(ctx, id)
	assert.Error(t, err)
}

func TestSubmitResponse_InvalidatesCachedSnapshot(t *testing.T) {
	s, _, _, mr := setupStore(t)
	ctx := context.Background()

	id := s.CreateEvent(ctx, draft("Game night", "2025-06-01"))
	event, err := s.GetEvent(ctx, id)
	require.NoError(t, err)

	_, err = s.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:schedule:event:"+id+":snapshot"))

	err = s.SubmitResponse(ctx, &domain.AvailabilityResponse{
		EventID:         id,
		ParticipantName: "Ana",
		TimeSlotID:      event.TimeSlots[0].ID,
		Available:       true,
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:schedule:event:"+id+":snapshot"))
}

func TestCompleteAndArchive(t *testing.T) {
	s, _, _, _ := setupStore(t)
	ctx := context.Background()

	id := s.CreateEvent(ctx, draft("Game night", "2025-06-01"))

	require.NoError(t, s.CompleteEvent(ctx, id))
	event, err := s.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.True(t, event.IsCompleted)
	assert.False(t, event.IsActive)

	assert.ErrorIs(t, s.CompleteEvent(ctx, "missing"), domain.ErrEventNotFound)
	assert.ErrorIs(t, s.ArchiveEvent(ctx, "missing"), domain.ErrEventNotFound)
}

func TestAddTimeSlots(t *testing.T) {
	s, _, _, _ := setupStore(t)
	ctx := context.Background()

	id := s.CreateEvent(ctx, draft("Game night", "2025-06-01"))

	err := s.AddTimeSlots(ctx, id, []domain.TimeSlot{
		{ID: "extra", Date: domain.MustParseDate("2025-06-05"), Time: domain.AllDay},
	})
	require.NoError(t, err)

	event, err := s.GetEvent(ctx, id)
	require.NoError(t, err)
	require.Len(t, event.TimeSlots, 2)
	assert.Equal(t, "extra", event.TimeSlots[1].ID)

	assert.ErrorIs(t, s.AddTimeSlots(ctx, "missing", nil), domain.ErrEventNotFound)
}

func TestSubscribeToEvent_DeliversSnapshots(t *testing.T) {
	s, _, _, _ := setupStore(t)
	ctx := context.Background()

	id := s.CreateEvent(ctx, draft("Game night", "2025-06-01"))
	event, err := s.GetEvent(ctx, id)
	require.NoError(t, err)
	slotID := event.TimeSlots[0].ID

	snapshots := make(chan *domain.EventSnapshot, 8)
	unsubscribe := s.SubscribeToEvent(ctx, id, func(snap *domain.EventSnapshot) {
		snapshots <- snap
	})
	defer unsubscribe()

	// Initial snapshot arrives without any write.
	select {
	case snap := <-snapshots:
		require.NotNil(t, snap)
		assert.Equal(t, id, snap.Event.ID)
		assert.Empty(t, snap.Responses)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	// A write triggers another push with the new response included.
	err = s.SubmitResponse(ctx, &domain.AvailabilityResponse{
		EventID:         id,
		ParticipantName: "Ana",
		TimeSlotID:      slotID,
		Available:       true,
	})
	require.NoError(t, err)

	select {
	case snap := <-snapshots:
		require.NotNil(t, snap)
		require.Len(t, snap.Responses, 1)
		assert.Equal(t, "Ana", snap.Responses[0].ParticipantName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change snapshot")
	}
}

func TestSubscribeToEvent_UnsubscribeStopsCallbacks(t *testing.T) {
	s, _, _, _ := setupStore(t)
	ctx := context.Background()

	id := s.CreateEvent(ctx, draft("Game night", "2025-06-01"))

	snapshots := make(chan *domain.EventSnapshot, 8)
	unsubscribe := s.SubscribeToEvent(ctx, id, func(snap *domain.EventSnapshot) {
		snapshots <- snap
	})

	select {
	case <-snapshots:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	unsubscribe()
	// Unsubscribe twice must be safe.
	unsubscribe()

	require.NoError(t, s.CompleteEvent(ctx, id))

	select {
	case <-snapshots:
		t.Fatal("received snapshot after unsubscribe")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSubscribeToActiveEvents(t *testing.T) {
	s, _, _, _ := setupStore(t)
	ctx := context.Background()

	s.CreateEvent(ctx, draft("Game night", "2025-06-01"))

	lists := make(chan []domain.Event, 8)
	unsubscribe := s.SubscribeToActiveEvents(ctx, func(events []domain.Event) {
		lists <- events
	})
	defer unsubscribe()

	select {
	case events := <-lists:
		assert.Len(t, events, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial list")
	}

	s.CreateEvent(ctx, draft("Another night", "2025-07-01"))

	select {
	case events := <-lists:
		assert.Len(t, events, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for updated list")
	}
}

func TestSubscribeToActiveEvents_AttachFailure(t *testing.T) {
	s, _, _, mr := setupStore(t)

	// Simulate the notification backend being unreachable.
	mr.Close()

	called := make(chan []domain.Event, 1)
	unsubscribe := s.SubscribeToActiveEvents(context.Background(), func(events []domain.Event) {
		called <- events
	})
	defer unsubscribe()

	select {
	case events := <-called:
		assert.NotNil(t, events)
		assert.Empty(t, events)
	case <-time.After(2 * time.Second):
		t.Fatal("callback was never invoked on attach failure")
	}
}
