// ABOUTME: Tests for the in-memory session store
// ABOUTME: Covers CRUD, turn reservation atomicity, idle eviction, and clone isolation

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(0, 0, nil)
	t.Cleanup(s.Close)
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, PhaseTopicGathering, sess.Phase)
	assert.Empty(t, sess.Topic)
	assert.Empty(t, sess.History)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, PhaseTopicGathering, got.Phase)
}

func TestStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetReturnsClone(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create()
	require.NoError(t, err)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	got.History = append(got.History, Turn{Role: RoleUser, Text: "leaked?"})
	got.Phase = PhaseCompleted

	fresh, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh.History)
	assert.Equal(t, PhaseTopicGathering, fresh.Phase)
}

func TestStore_Mutate(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create()
	require.NoError(t, err)

	updated, err := s.Mutate(sess.ID, func(sess *Session) error {
		sess.History = append(sess.History, Turn{Role: RoleUser, Text: "hi"})
		sess.Phase = PhaseFeynmanTutoring
		sess.Topic = "entropy"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseFeynmanTutoring, updated.Phase)
	assert.Equal(t, "entropy", updated.Topic)
	assert.Len(t, updated.History, 1)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseFeynmanTutoring, got.Phase)
}

func TestStore_MutateNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Mutate("missing", func(sess *Session) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create()
	require.NoError(t, err)

	assert.True(t, s.Delete(sess.ID))
	assert.False(t, s.Delete(sess.ID), "second delete reports absent")

	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestStore_SessionLimit(t *testing.T) {
	s := NewStore(0, 2, nil)
	defer s.Close()

	_, err := s.Create()
	require.NoError(t, err)
	second, err := s.Create()
	require.NoError(t, err)

	_, err = s.Create()
	assert.ErrorIs(t, err, ErrLimitExceeded)

	// Deleting frees capacity.
	s.Delete(second.ID)
	_, err = s.Create()
	assert.NoError(t, err)
}

func TestStore_BeginTurn(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create()
	require.NoError(t, err)

	require.NoError(t, s.BeginTurn(sess.ID))
	assert.ErrorIs(t, s.BeginTurn(sess.ID), ErrBusy)

	s.EndTurn(sess.ID)
	assert.NoError(t, s.BeginTurn(sess.ID))
}

func TestStore_BeginTurnNotFound(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.BeginTurn("missing"), ErrNotFound)
}

func TestStore_BeginTurn_ExactlyOneWinner(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create()
	require.NoError(t, err)

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginTurn(sess.ID) == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won, "exactly one goroutine should win the reservation")
}

func TestStore_TurnsOnDifferentSessionsIndependent(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Create()
	require.NoError(t, err)
	b, err := s.Create()
	require.NoError(t, err)

	require.NoError(t, s.BeginTurn(a.ID))
	assert.NoError(t, s.BeginTurn(b.ID), "reservation on one session must not block another")
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create()
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(sess.ID, func(sess *Session) error {
				sess.History = append(sess.History, Turn{Role: RoleUser, Text: "x"})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, writers, "no appends lost under concurrency")
}

func TestStore_SweepEvictsIdleSessions(t *testing.T) {
	s := NewStore(10*time.Millisecond, 0, nil)
	defer s.Close()

	idle, err := s.Create()
	require.NoError(t, err)
	active, err := s.Create()
	require.NoError(t, err)

	// Make one session look stale, keep the other fresh.
	_, err = s.Mutate(idle.ID, func(sess *Session) error {
		sess.LastActiveAt = time.Now().Add(-time.Hour)
		return nil
	})
	require.NoError(t, err)

	s.runSweep()

	_, err = s.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(active.ID)
	assert.NoError(t, err)
}

func TestStore_SweepSkipsInFlightTurn(t *testing.T) {
	s := NewStore(10*time.Millisecond, 0, nil)
	defer s.Close()

	sess, err := s.Create()
	require.NoError(t, err)

	_, err = s.Mutate(sess.ID, func(sess *Session) error {
		sess.LastActiveAt = time.Now().Add(-time.Hour)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.BeginTurn(sess.ID))
	s.runSweep()

	_, err = s.Get(sess.ID)
	assert.NoError(t, err, "a session with a turn in flight must not be evicted")
}

func TestStore_CloseIdempotent(t *testing.T) {
	s := NewStore(time.Minute, 0, nil)
	s.Close()
	s.Close()
}
