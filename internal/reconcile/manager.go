package reconcile

import (
	"context"
	"sync"
	"time"

	"gamenight/internal/domain"

	"go.uber.org/zap"
)

// SnapshotStore is the store surface the manager needs: the reconciler
// write path plus snapshot reads and change subscriptions.
type SnapshotStore interface {
	Store
	Snapshot(ctx context.Context, eventID string) (*domain.EventSnapshot, error)
	SubscribeToEvent(ctx context.Context, eventID string, onChange func(*domain.EventSnapshot)) func()
}

type session struct {
	rec         *Reconciler
	unsubscribe func()
	lastUsed    time.Time
}

// Manager owns the live reconciler sessions, one per (event,
// participant), each wired to the store's change feed for its event.
// Sessions are released three ways: an explicit Close, the idle sweeper
// once a session has gone untouched for idleTTL, and Shutdown.
type Manager struct {
	store       SnapshotStore
	guardWindow time.Duration
	idleTTL     time.Duration
	log         *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(store SnapshotStore, guardWindow, idleTTL time.Duration, log *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:       store,
		guardWindow: guardWindow,
		idleTTL:     idleTTL,
		log:         log,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*session),
	}

	if idleTTL > 0 {
		go m.sweep()
	}

	return m
}

// Session returns the reconciler for (eventID, participant), creating
// and subscribing it on first use. Returns domain.ErrEventNotFound when
// the event does not exist.
func (m *Manager) Session(ctx context.Context, eventID, participant string) (*Reconciler, error) {
	key := eventID + "\x00" + participant

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		existing.lastUsed = m.now()
		m.mu.Unlock()
		return existing.rec, nil
	}
	m.mu.Unlock()

	snap, err := m.store.Snapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, domain.ErrEventNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another request may have raced us here.
	if existing, ok := m.sessions[key]; ok {
		existing.lastUsed = m.now()
		return existing.rec, nil
	}

	rec := NewReconciler(m.store, snap, m.guardWindow, m.log)
	rec.SetParticipant(participant)

	// Subscriptions outlive the creating request; they run until the
	// session is closed, evicted, or the manager shuts down.
	unsubscribe := m.store.SubscribeToEvent(m.ctx, eventID, rec.ApplySnapshot)

	m.sessions[key] = &session{rec: rec, unsubscribe: unsubscribe, lastUsed: m.now()}
	m.log.Info("opened availability session",
		zap.String("event_id", eventID),
		zap.String("participant", participant))

	return rec, nil
}

// Close tears down one session and its subscription.
func (m *Manager) Close(eventID, participant string) {
	key := eventID + "\x00" + participant

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[key]; ok {
		sess.unsubscribe()
		delete(m.sessions, key)
	}
}

// Shutdown tears down every session and stops all subscriptions.
func (m *Manager) Shutdown() {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, sess := range m.sessions {
		sess.unsubscribe()
		delete(m.sessions, key)
	}
}

// sweep periodically evicts idle sessions until the manager shuts down.
func (m *Manager) sweep() {
	interval := m.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle releases sessions untouched for idleTTL. Sessions with
// unsaved edits or a save in flight are never evicted, whatever their
// age.
func (m *Manager) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idleTTL)
	for key, sess := range m.sessions {
		if sess.lastUsed.After(cutoff) {
			continue
		}
		if sess.rec.State() != StateIdle {
			continue
		}
		sess.unsubscribe()
		delete(m.sessions, key)
		m.log.Info("evicted idle availability session")
	}
}
