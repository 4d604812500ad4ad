package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamenight/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu            sync.Mutex
	responses     []domain.AvailabilityResponse
	rosterUpdates [][]string
	failSlots     map[string]bool
	failRoster    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{failSlots: make(map[string]bool)}
}

func (f *fakeStore) SubmitResponse(ctx context.Context, resp *domain.AvailabilityResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSlots[resp.TimeSlotID] {
		return errors.New("connection refused")
	}
	f.responses = append(f.responses, *resp)
	return nil
}

func (f *fakeStore) UpdateEvent(ctx context.Context, id string, upd *domain.EventUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRoster {
		return errors.New("connection refused")
	}
	if upd.Participants != nil {
		f.rosterUpdates = append(f.rosterUpdates, upd.Participants)
	}
	return nil
}

func (f *fakeStore) writes() []domain.AvailabilityResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AvailabilityResponse(nil), f.responses...)
}

func twoDateSnapshot() *domain.EventSnapshot {
	return &domain.EventSnapshot{
		Event: domain.Event{
			ID:    "e1",
			Title: "Game night",
			TimeSlots: []domain.TimeSlot{
				{ID: "s1", Date: domain.MustParseDate("2025-06-01"), Time: domain.AllDay},
				{ID: "s2", Date: domain.MustParseDate("2025-06-02"), Time: domain.AllDay},
			},
			Participants: []string{},
			IsActive:     true,
		},
	}
}

func setupReconciler(t *testing.T) (*Reconciler, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	rec := NewReconciler(store, twoDateSnapshot(), 2*time.Second, zap.NewNop())
	return rec, store
}

func TestToggleDate_RequiresIdentity(t *testing.T) {
	rec, _ := setupReconciler(t)

	err := rec.ToggleDate(domain.MustParseDate("2025-06-01"))
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)
}

func TestToggleDate_RejectsUnknownDate(t *testing.T) {
	rec, _ := setupReconciler(t)
	rec.SetParticipant("Ana")

	err := rec.ToggleDate(domain.MustParseDate("2025-12-25"))
	assert.Error(t, err)
	assert.Equal(t, StateIdle, rec.State())
}

func TestToggleDate_TwiceReturnsToIdle(t *testing.T) {
	rec, store := setupReconciler(t)
	rec.SetParticipant("Ana")
	date := domain.MustParseDate("2025-06-01")

	require.NoError(t, rec.ToggleDate(date))
	assert.Equal(t, StateDirty, rec.State())
	assert.Equal(t, []domain.Date{date}, rec.PendingDates())

	require.NoError(t, rec.ToggleDate(date))
	assert.Equal(t, StateIdle, rec.State())
	assert.Empty(t, rec.PendingDates())
	assert.Empty(t, store.writes())
}

func TestSave_NoPendingChanges(t *testing.T) {
	rec, _ := setupReconciler(t)
	rec.SetParticipant("Ana")

	assert.ErrorIs(t, rec.Save(context.Background()), domain.ErrNoPendingChanges)
}

func TestSave_CommitsSelections(t *testing.T) {
	rec, store := setupReconciler(t)
	rec.SetParticipant("Ana")
	d1 := domain.MustParseDate("2025-06-01")
	d2 := domain.MustParseDate("2025-06-02")

	require.NoError(t, rec.ToggleDate(d1))
	require.NoError(t, rec.ToggleDate(d2))
	require.NoError(t, rec.Save(context.Background()))

	assert.Equal(t, StateIdle, rec.State())
	assert.Empty(t, rec.PendingDates())
	assert.Equal(t, map[domain.Date]bool{d1: true, d2: true}, rec.SelectedDates())

	writes := store.writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "s1", writes[0].TimeSlotID)
	assert.True(t, writes[0].Available)
	assert.Equal(t, "s2", writes[1].TimeSlotID)
	assert.True(t, writes[1].Available)

	// First save appends Ana to the roster.
	require.Len(t, store.rosterUpdates, 1)
	assert.Equal(t, []string{"Ana"}, store.rosterUpdates[0])
}

func TestSave_DeselectWritesUnavailable(t *testing.T) {
	rec, store := setupReconciler(t)
	rec.SetParticipant("Ana")
	d1 := domain.MustParseDate("2025-06-01")

	rec.ApplySnapshot(&domain.EventSnapshot{
		Event: twoDateSnapshot().Event,
		Responses: []domain.AvailabilityResponse{
			{EventID: "e1", ParticipantName: "Ana", TimeSlotID: "s1", Available: true},
		},
	})
	require.Equal(t, map[domain.Date]bool{d1: true}, rec.SelectedDates())

	require.NoError(t, rec.ToggleDate(d1))
	require.NoError(t, rec.Save(context.Background()))

	writes := store.writes()
	require.Len(t, writes, 1)
	assert.False(t, writes[0].Available)
	assert.Empty(t, rec.SelectedDates())
}

func TestSave_PartialFailureKeepsFailedPending(t *testing.T) {
	rec, store := setupReconciler(t)
	rec.SetParticipant("Ana")
	d1 := domain.MustParseDate("2025-06-01")
	d2 := domain.MustParseDate("2025-06-02")
	store.failSlots["s2"] = true

	require.NoError(t, rec.ToggleDate(d1))
	require.NoError(t, rec.ToggleDate(d2))

	err := rec.Save(context.Background())
	require.Error(t, err)

	var partial *domain.PartialSaveError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []domain.Date{d1}, partial.Saved)
	assert.Equal(t, []domain.Date{d2}, partial.Failed)

	// First date committed, second still pending for a retry.
	assert.Equal(t, map[domain.Date]bool{d1: true}, rec.SelectedDates())
	assert.Equal(t, []domain.Date{d2}, rec.PendingDates())
	assert.Equal(t, StateDirty, rec.State())

	// Retry succeeds once the backend recovers.
	store.failSlots["s2"] = false
	require.NoError(t, rec.Save(context.Background()))
	assert.Equal(t, StateIdle, rec.State())
	assert.Equal(t, map[domain.Date]bool{d1: true, d2: true}, rec.SelectedDates())
}

func TestSave_AllFailedReturnsPlainError(t *testing.T) {
	rec, store := setupReconciler(t)
	rec.SetParticipant("Ana")
	store.failSlots["s1"] = true

	require.NoError(t, rec.ToggleDate(domain.MustParseDate("2025-06-01")))

	err := rec.Save(context.Background())
	require.Error(t, err)
	var partial *domain.PartialSaveError
	assert.False(t, errors.As(err, &partial))
	assert.Equal(t, StateDirty, rec.State())
	assert.Empty(t, store.rosterUpdates)
}

func TestSave_RosterFailureIsNonFatal(t *testing.T) {
	rec, store := setupReconciler(t)
	rec.SetParticipant("Ana")
	store.failRoster = true

	require.NoError(t, rec.ToggleDate(domain.MustParseDate("2025-06-01")))
	require.NoError(t, rec.Save(context.Background()))
	assert.Equal(t, StateIdle, rec.State())
}

func TestApplySnapshot_IgnoredWhileDirty(t *testing.T) {
	rec, _ := setupReconciler(t)
	rec.SetParticipant("Ana")
	d1 := domain.MustParseDate("2025-06-01")

	require.NoError(t, rec.ToggleDate(d1))

	rec.ApplySnapshot(&domain.EventSnapshot{
		Event: twoDateSnapshot().Event,
		Responses: []domain.AvailabilityResponse{
			{EventID: "e1", ParticipantName: "Ana", TimeSlotID: "s2", Available: true},
		},
	})

	// Pending edits survive; selection is not re-derived mid-edit.
	assert.Equal(t, []domain.Date{d1}, rec.PendingDates())
	assert.Empty(t, rec.SelectedDates())
}

func TestApplySnapshot_GuardWindowSuppressesStaleEcho(t *testing.T) {
	rec, _ := setupReconciler(t)
	rec.SetParticipant("Ana")
	d1 := domain.MustParseDate("2025-06-01")

	now := time.Now()
	rec.now = func() time.Time { return now }

	require.NoError(t, rec.ToggleDate(d1))
	require.NoError(t, rec.Save(context.Background()))
	require.Equal(t, map[domain.Date]bool{d1: true}, rec.SelectedDates())

	// A stale push without Ana's write arrives inside the guard window
	// and must not revert the just-saved selection.
	stale := &domain.EventSnapshot{Event: twoDateSnapshot().Event}
	rec.ApplySnapshot(stale)
	assert.Equal(t, map[domain.Date]bool{d1: true}, rec.SelectedDates())

	// Once the window passes the snapshot is authoritative again.
	now = now.Add(3 * time.Second)
	rec.ApplySnapshot(stale)
	assert.Empty(t, rec.SelectedDates())
}

func TestApplySnapshot_IdleReconciles(t *testing.T) {
	rec, _ := setupReconciler(t)
	rec.SetParticipant("Ana")
	d2 := domain.MustParseDate("2025-06-02")

	rec.ApplySnapshot(&domain.EventSnapshot{
		Event: twoDateSnapshot().Event,
		Responses: []domain.AvailabilityResponse{
			{EventID: "e1", ParticipantName: "Ana", TimeSlotID: "s2", Available: true},
		},
	})

	assert.Equal(t, map[domain.Date]bool{d2: true}, rec.SelectedDates())
}

func TestView_AnnotatesSelectedAndPending(t *testing.T) {
	rec, _ := setupReconciler(t)
	rec.SetParticipant("Ana")
	d1 := domain.MustParseDate("2025-06-01")
	d2 := domain.MustParseDate("2025-06-02")

	rec.ApplySnapshot(&domain.EventSnapshot{
		Event: twoDateSnapshot().Event,
		Responses: []domain.AvailabilityResponse{
			{EventID: "e1", ParticipantName: "Ana", TimeSlotID: "s1", Available: true},
			{EventID: "e1", ParticipantName: "Bo", TimeSlotID: "s2", Available: true},
		},
	})
	require.NoError(t, rec.ToggleDate(d2))

	view := rec.View(3)

	assert.Equal(t, "e1", view.EventID)
	assert.Equal(t, "dirty", view.State)
	assert.Equal(t, 1, view.PendingCount)
	require.Len(t, view.Dates, 2)

	assert.Equal(t, d1, view.Dates[0].Date)
	assert.True(t, view.Dates[0].Selected)
	assert.False(t, view.Dates[0].Pending)

	assert.Equal(t, d2, view.Dates[1].Date)
	assert.False(t, view.Dates[1].Selected)
	assert.True(t, view.Dates[1].Pending)

	require.Len(t, view.BestSlots, 2)
	assert.ElementsMatch(t, []string{"Ana", "Bo"}, view.Participants)
}
