// ABOUTME: In-memory registry of live tutoring sessions keyed by session ID
// ABOUTME: Provides atomic per-session mutation, turn reservation, and idle eviction

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrBusy is returned when a turn is already in flight for the session.
var ErrBusy = errors.New("session busy")

// ErrLimitExceeded is returned when the store is at its session capacity.
var ErrLimitExceeded = errors.New("session limit exceeded")

// entry wraps a live session with its own mutex so that mutations for
// different sessions never contend on a shared lock.
type entry struct {
	mu           sync.Mutex
	sess         *Session
	turnInFlight bool
	deleted      bool
}

// Store owns the set of live sessions. All access goes through its
// create/get/mutate/delete contract; no other component holds long-lived
// references to Session objects.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	idleTTL     time.Duration
	maxSessions int
	logger      *slog.Logger

	done   chan struct{}
	closed bool
}

// NewStore creates a session store. Sessions idle longer than idleTTL are
// evicted by a background sweeper; idleTTL <= 0 disables eviction.
// maxSessions <= 0 means unlimited. Pass nil logger for default.
func NewStore(idleTTL time.Duration, maxSessions int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		sessions:    make(map[string]*entry),
		idleTTL:     idleTTL,
		maxSessions: maxSessions,
		logger:      logger.With("component", "session-store"),
		done:        make(chan struct{}),
	}
	if idleTTL > 0 {
		go s.sweep()
	}
	return s
}

// Create allocates a new session in the topic-gathering phase with a fresh
// identifier and empty history. The session is immediately visible to
// subsequent lookups.
func (s *Store) Create() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return nil, ErrLimitExceeded
	}

	now := time.Now()
	sess := &Session{
		ID:           uuid.New().String(),
		Phase:        PhaseTopicGathering,
		History:      []Turn{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.sessions[sess.ID] = &entry{sess: sess}

	s.logger.Debug("session created", "session_id", sess.ID, "total_sessions", len(s.sessions))
	return sess.Clone(), nil
}

// Get returns a snapshot of the session, or ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}
	return e.sess.Clone(), nil
}

// Mutate applies fn to the live session under its per-session lock and
// returns a snapshot of the result. If fn returns an error the session is
// left untouched only to the extent fn did not modify it; callers are
// expected to mutate after all fallible work is done.
// Mutations for different session IDs proceed independently.
func (s *Store) Mutate(id string, fn func(*Session) error) (*Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}
	if err := fn(e.sess); err != nil {
		return nil, err
	}
	return e.sess.Clone(), nil
}

// Delete removes the session. It is idempotent: deleting an absent session
// reports false without error.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()

	s.logger.Debug("session deleted", "session_id", id)
	return true
}

// BeginTurn reserves the session for a single in-flight turn. It returns
// ErrBusy while another turn holds the reservation, so two concurrent turns
// can never both read the same pre-turn state. The reservation must be
// released with EndTurn.
func (s *Store) BeginTurn(id string) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return ErrNotFound
	}
	if e.turnInFlight {
		return ErrBusy
	}
	e.turnInFlight = true
	return nil
}

// EndTurn releases a turn reservation taken by BeginTurn. Releasing an
// absent or unreserved session is a no-op.
func (s *Store) EndTurn(id string) {
	e, err := s.lookup(id)
	if err != nil {
		return
	}

	e.mu.Lock()
	e.turnInFlight = false
	e.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// lookup fetches the entry pointer under the store read lock. The entry's
// own mutex is taken by callers after the store lock is released.
func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// sweep runs in a background goroutine, periodically evicting idle sessions.
func (s *Store) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.done:
			return
		}
	}
}

// runSweep evicts sessions whose last activity is older than the idle TTL.
// Sessions with a turn in flight are skipped.
func (s *Store) runSweep() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.sessions {
		e.mu.Lock()
		idle := !e.turnInFlight && e.sess.LastActiveAt.Before(cutoff)
		if idle {
			e.deleted = true
			delete(s.sessions, id)
		}
		e.mu.Unlock()

		if idle {
			s.logger.Info("evicted idle session", "session_id", id)
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
