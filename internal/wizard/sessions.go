package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bountywizard/internal/logging"
	"bountywizard/internal/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionsConfig configures a Sessions registry.
type SessionsConfig struct {
	Submitter   Submitter
	SubmitDelay time.Duration
	TTL         time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

type session struct {
	store    *Store
	actorID  string
	lastSeen time.Time
}

// Sessions holds wizard stores keyed by session id, each owned by one actor.
type Sessions struct {
	mu    sync.Mutex
	cfg   SessionsConfig
	log   *zap.Logger
	items map[string]*session
}

func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sessions{
		cfg:   cfg,
		log:   logging.OrNop(cfg.Logger),
		items: map[string]*session{},
	}
}

// Create starts a fresh session for actorID.
func (s *Sessions) Create(actorID string) (string, *Store) {
	id := uuid.NewString()
	store := NewStore(Config{
		SessionID:   id,
		ActorID:     actorID,
		Submitter:   s.cfg.Submitter,
		SubmitDelay: s.cfg.SubmitDelay,
		Now:         s.cfg.Now,
		Logger:      s.log,
	})
	s.mu.Lock()
	s.items[id] = &session{store: store, actorID: actorID, lastSeen: s.cfg.Now()}
	n := len(s.items)
	s.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	s.log.Debug("session created", zap.String("session_id", id), zap.String("actor_id", actorID))
	return id, store
}

// Get returns the store of id. Sessions owned by another actor are reported as missing.
func (s *Sessions) Get(id, actorID string) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.actorID != actorID {
		return nil, ErrSessionNotFound
	}
	item.lastSeen = s.cfg.Now()
	return item.store, nil
}

// Delete drops the session.
func (s *Sessions) Delete(id, actorID string) error {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.actorID != actorID {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.items, id)
	n := len(s.items)
	s.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep removes sessions idle for longer than the TTL and returns how many were dropped.
// Sessions with a submission in flight are kept.
func (s *Sessions) Sweep(now time.Time) int {
	if s.cfg.TTL <= 0 {
		return 0
	}
	s.mu.Lock()
	removed := 0
	for id, item := range s.items {
		if now.Sub(item.lastSeen) <= s.cfg.TTL {
			continue
		}
		if item.store.Snapshot().Submitting {
			continue
		}
		delete(s.items, id)
		removed++
	}
	n := len(s.items)
	s.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	if removed > 0 {
		s.log.Info("expired sessions swept", zap.Int("removed", removed), zap.Int("remaining", n))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.cfg.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.cfg.Now())
		}
	}
}
