// ABOUTME: Session data model for the Feynman tutoring dialogue
// ABOUTME: Defines phases, turn roles, and the append-only conversation history

package session

import (
	"time"
)

// Phase is the coarse stage of tutoring a session is in.
type Phase string

const (
	// PhaseTopicGathering is the initial phase: discover what the learner wants to learn.
	PhaseTopicGathering Phase = "topic_gathering"
	// PhaseFeynmanTutoring is the second phase: the learner explains the topic back.
	PhaseFeynmanTutoring Phase = "feynman_tutoring"
	// PhaseCompleted is the terminal phase: understanding confirmed or learner quit.
	PhaseCompleted Phase = "completed"
)

// rank orders phases for the forward-only transition invariant.
func (p Phase) rank() int {
	switch p {
	case PhaseTopicGathering:
		return 0
	case PhaseFeynmanTutoring:
		return 1
	case PhaseCompleted:
		return 2
	default:
		return -1
	}
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p.rank() >= 0
}

// Before reports whether p precedes other in the tutoring progression.
func (p Phase) Before(other Phase) bool {
	return p.rank() < other.rank()
}

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a session's history.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Session represents one learner's ongoing interaction.
// History is append-only: turns are never reordered or mutated in place.
// Topic is non-empty exactly when Phase is feynman_tutoring or completed.
type Session struct {
	ID           string
	Phase        Phase
	Topic        string
	History      []Turn
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Clone returns a deep copy of the session. The store hands out clones so
// callers can never alias the live history slice.
func (s *Session) Clone() *Session {
	clone := *s
	clone.History = make([]Turn, len(s.History))
	copy(clone.History, s.History)
	return &clone
}

// TurnCount returns the number of turns in the session's history.
func (s *Session) TurnCount() int {
	return len(s.History)
}
