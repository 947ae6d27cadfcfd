// ABOUTME: Dialogue controller advancing one session by exactly one user turn
// ABOUTME: Owns the phase state machine and commit/rollback around the model call

package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/feynomenon-gateway/internal/session"
)

// Fixed replies that never touch the model.
const (
	// GreetingReply opens every new session.
	GreetingReply = "Hello! I'm here to help you learn. What topic or concept are you curious about today?"

	// goodbyeReply answers an explicit quit during tutoring.
	goodbyeReply = "Thanks for learning with me today! Goodbye!"

	// completedReply answers any message on an already-completed session.
	completedReply = "This session is complete. Delete it or start a new one to keep learning."
)

// quitCommands end the tutoring phase without a model call.
var quitCommands = map[string]bool{
	"quit": true,
	"exit": true,
	"stop": true,
}

// archiveTimeout bounds the background context used for transcript writes,
// so persistence continues even if the request context is cancelled.
const archiveTimeout = 5 * time.Second

// SessionStore defines what the controller needs from session storage.
type SessionStore interface {
	Create() (*session.Session, error)
	Get(id string) (*session.Session, error)
	Mutate(id string, fn func(*session.Session) error) (*session.Session, error)
	Delete(id string) bool
	BeginTurn(id string) error
	EndTurn(id string)
}

// Archiver defines what the controller needs from the transcript ledger.
type Archiver interface {
	SaveTurn(ctx context.Context, sessionID string, turn session.Turn, phase session.Phase, topic string) error
}

// Config holds the controller's dialogue limits.
type Config struct {
	// MaxContextTurns bounds the history window sent to the gateway.
	// Oldest turns are truncated first; the most recent never are.
	MaxContextTurns int

	// MaxMessageChars rejects oversized user messages before any model call.
	MaxMessageChars int

	// GatewayTimeout bounds each model call.
	GatewayTimeout time.Duration
}

// Controller advances sessions through the Feynman tutoring phases.
// It receives transient access to one session per call through the store's
// atomic contract and never retains a session beyond that call.
type Controller struct {
	store   SessionStore
	gateway Gateway
	archive Archiver // nil when the transcript archive is disabled
	cfg     Config
	logger  *slog.Logger
}

// NewController creates a dialogue controller. Pass nil archive to disable
// transcript archiving and nil logger for the default.
func NewController(store SessionStore, gateway Gateway, archive Archiver, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = 40
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 30 * time.Second
	}
	return &Controller{
		store:   store,
		gateway: gateway,
		archive: archive,
		cfg:     cfg,
		logger:  logger.With("component", "tutor"),
	}
}

// TurnResult is the structured outcome of one processed turn.
type TurnResult struct {
	SessionID string
	Reply     string
	Phase     session.Phase
	Topic     string
	TurnCount int
}

// StateResult is the session-lookup accessor's view of a session.
type StateResult struct {
	SessionID    string
	Phase        session.Phase
	Topic        string
	TurnCount    int
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// StartSession creates a fresh session and returns the fixed greeting.
// The greeting is not recorded in history: history holds only processed
// user/assistant turn pairs.
func (c *Controller) StartSession() (*TurnResult, error) {
	sess, err := c.store.Create()
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	c.logger.Info("session started", "session_id", sess.ID)
	return &TurnResult{
		SessionID: sess.ID,
		Reply:     GreetingReply,
		Phase:     sess.Phase,
	}, nil
}

// ProcessTurn advances exactly one session by exactly one user turn.
//
// On success the session gains the user turn and the assistant reply, and at
// most one forward phase transition. On any failure nothing is committed:
// history and phase are exactly as they were before the call.
func (c *Controller) ProcessTurn(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if c.cfg.MaxMessageChars > 0 && utf8.RuneCountInString(text) > c.cfg.MaxMessageChars {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, c.cfg.MaxMessageChars)
	}

	// Reserve the session so a concurrent turn cannot read the same
	// pre-turn state while the model call is outstanding.
	if err := c.store.BeginTurn(sessionID); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, session.ErrBusy):
			return nil, ErrSessionBusy
		default:
			return nil, err
		}
	}
	defer c.store.EndTurn(sessionID)

	snap, err := c.store.Get(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	switch snap.Phase {
	case session.PhaseCompleted:
		// Idempotent terminal behavior: no model call, no history growth.
		return resultFrom(snap, completedReply), nil
	case session.PhaseFeynmanTutoring:
		if quitCommands[strings.ToLower(text)] {
			return c.commitTurn(snap, text, goodbyeReply, session.PhaseCompleted, snap.Topic)
		}
	case session.PhaseTopicGathering:
		// Normal flow below.
	default:
		c.logger.Error("session in unknown phase", "session_id", sessionID, "phase", snap.Phase)
		return nil, ErrInvalidPhase
	}

	result, err := c.generate(ctx, snap, text)
	if err != nil {
		// Nothing was committed: the prospective user turn lives only in
		// the request we built, never in the store.
		c.logger.Warn("model generation failed",
			"session_id", sessionID,
			"phase", snap.Phase,
			"retryable", IsRetryable(err),
			"error", err)
		return nil, err
	}

	newPhase, newTopic := applySignal(snap, result.Signal)
	return c.commitTurn(snap, text, result.ReplyText, newPhase, newTopic)
}

// SessionState returns the current {phase, topic, turn count} view of a session.
func (c *Controller) SessionState(sessionID string) (*StateResult, error) {
	snap, err := c.store.Get(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return &StateResult{
		SessionID:    snap.ID,
		Phase:        snap.Phase,
		Topic:        snap.Topic,
		TurnCount:    snap.TurnCount(),
		CreatedAt:    snap.CreatedAt,
		LastActiveAt: snap.LastActiveAt,
	}, nil
}

// DeleteSession removes a session, reporting whether it existed.
func (c *Controller) DeleteSession(sessionID string) bool {
	return c.store.Delete(sessionID)
}

// generate builds the phase-specific gateway request and invokes the model
// with the prospective user turn appended and the history window enforced.
func (c *Controller) generate(ctx context.Context, snap *session.Session, text string) (*GenerateResult, error) {
	var directive Directive
	switch snap.Phase {
	case session.PhaseTopicGathering:
		directive = DirectiveTopicGathering
	case session.PhaseFeynmanTutoring:
		directive = DirectiveTutoring
	default:
		return nil, ErrInvalidPhase
	}

	// Prospective history: snap is a private clone, appending is safe.
	history := append(snap.History, session.Turn{
		Role:      session.RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	})
	history = windowHistory(history, c.cfg.MaxContextTurns)

	gwCtx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()

	result, err := c.gateway.Generate(gwCtx, &GenerateRequest{
		History:         history,
		Directive:       directive,
		Topic:           snap.Topic,
		MaxContextTurns: c.cfg.MaxContextTurns,
	})
	if err != nil {
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			retryable := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
			err = NewGenerationError(retryable, err)
		}
		return nil, err
	}
	if strings.TrimSpace(result.ReplyText) == "" {
		return nil, NewGenerationError(true, errors.New("model returned an empty reply"))
	}
	return result, nil
}

// commitTurn appends the user and assistant turns and applies the phase and
// topic atomically through the store. Failure of any earlier step means this
// is never reached, which is what keeps failed turns invisible.
func (c *Controller) commitTurn(snap *session.Session, userText, replyText string, newPhase session.Phase, newTopic string) (*TurnResult, error) {
	now := time.Now()
	userTurn := session.Turn{Role: session.RoleUser, Text: userText, Timestamp: now}
	assistantTurn := session.Turn{Role: session.RoleAssistant, Text: replyText, Timestamp: now}

	committed, err := c.store.Mutate(snap.ID, func(s *session.Session) error {
		if s.Phase != snap.Phase {
			// The turn reservation makes this unreachable; treat any
			// occurrence as an invariant breach rather than corrupt state.
			return ErrInvalidPhase
		}
		s.History = append(s.History, userTurn, assistantTurn)
		s.Phase = newPhase
		s.Topic = newTopic
		s.LastActiveAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if snap.Phase != newPhase {
		c.logger.Info("session phase advanced",
			"session_id", snap.ID,
			"from", snap.Phase,
			"to", newPhase,
			"topic", newTopic)
	}

	c.archiveTurn(committed, userTurn)
	c.archiveTurn(committed, assistantTurn)

	return resultFrom(committed, replyText), nil
}

// archiveTurn records a committed turn in the transcript ledger with its own
// timeout context. Archive failures are logged, never surfaced: the ledger
// is an audit artifact, not part of the turn's success.
func (c *Controller) archiveTurn(sess *session.Session, turn session.Turn) {
	if c.archive == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := c.archive.SaveTurn(saveCtx, sess.ID, turn, sess.Phase, sess.Topic); err != nil {
		c.logger.Error("failed to archive turn",
			"session_id", sess.ID,
			"role", turn.Role,
			"error", err)
	}
}

// applySignal interprets the gateway's tagged signal against the current
// phase. Signals that do not apply to the phase are ignored, so state can
// never regress on a stray signal.
func applySignal(snap *session.Session, sig Signal) (session.Phase, string) {
	switch {
	case snap.Phase == session.PhaseTopicGathering && sig.Kind == SignalTopicIdentified:
		if topic := strings.TrimSpace(sig.Topic); topic != "" {
			return session.PhaseFeynmanTutoring, topic
		}
	case snap.Phase == session.PhaseFeynmanTutoring && sig.Kind == SignalUnderstandingConfirmed:
		return session.PhaseCompleted, snap.Topic
	}
	return snap.Phase, snap.Topic
}

// windowHistory keeps the most recent max turns, truncating oldest first.
// A truncated window never opens with an assistant turn; the model API
// expects the first content to be user-role.
func windowHistory(history []session.Turn, max int) []session.Turn {
	if max <= 0 || len(history) <= max {
		return history
	}
	window := history[len(history)-max:]
	if window[0].Role == session.RoleAssistant {
		window = window[1:]
	}
	return window
}

func resultFrom(sess *session.Session, reply string) *TurnResult {
	return &TurnResult{
		SessionID: sess.ID,
		Reply:     reply,
		Phase:     sess.Phase,
		Topic:     sess.Topic,
		TurnCount: sess.TurnCount(),
	}
}
