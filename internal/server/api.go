// ABOUTME: JSON API handlers for chat turns, session lifecycle, and health
// ABOUTME: Maps controller errors onto status codes with a machine-readable kind

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/feynomenon-gateway/internal/session"
	"github.com/2389/feynomenon-gateway/internal/tutor"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the body of a successful turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Phase     string `json:"phase"`
	Topic     string `json:"topic,omitempty"`
	TurnCount int    `json:"turn_count"`
}

// SessionStateResponse is the body of GET /api/sessions/{id}.
type SessionStateResponse struct {
	SessionID    string    `json:"session_id"`
	Phase        string    `json:"phase"`
	Topic        string    `json:"topic,omitempty"`
	TurnCount    int       `json:"turn_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// TranscriptEvent is one row of GET /api/sessions/{id}/transcript.
type TranscriptEvent struct {
	Role      string    `json:"role"`
	Phase     string    `json:"phase"`
	Topic     string    `json:"topic,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorResponse wraps an ErrorDetail.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// handleChat processes one user turn. When session_id is omitted a new
// session is created and the message becomes its first processed turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", false)
		return
	}

	// Validate before creating anything: an invalid message must not leave
	// a session behind.
	if err := s.validateMessage(req.Message); err != nil {
		s.sendControllerError(w, err)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		started, err := s.controller.StartSession()
		if err != nil {
			s.sendControllerError(w, err)
			return
		}
		sessionID = started.SessionID
	}

	result, err := s.controller.ProcessTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		s.sendControllerError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, chatResponse(result))
}

// handleCreateSession creates a session without processing a turn and
// returns the fixed greeting.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.controller.StartSession()
	if err != nil {
		s.sendControllerError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, chatResponse(result))
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	state, err := s.controller.SessionState(r.PathValue("id"))
	if err != nil {
		s.sendControllerError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionStateResponse{
		SessionID:    state.SessionID,
		Phase:        string(state.Phase),
		Topic:        state.Topic,
		TurnCount:    state.TurnCount,
		CreatedAt:    state.CreatedAt,
		LastActiveAt: state.LastActiveAt,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.controller.DeleteSession(r.PathValue("id")) {
		s.sendError(w, http.StatusNotFound, "session_not_found", "session not found", false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTranscript serves a session's archived events. Transcripts survive
// session deletion, so this does not consult the session store.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.sendError(w, http.StatusNotImplemented, "archive_disabled", "transcript archive is not enabled", false)
		return
	}

	events, err := s.archive.ListBySession(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		s.logger.Error("failed to list transcript", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal", "failed to read transcript", false)
		return
	}

	out := make([]TranscriptEvent, 0, len(events))
	for _, e := range events {
		out = append(out, TranscriptEvent{
			Role:      string(e.Role),
			Phase:     string(e.Phase),
			Topic:     e.Topic,
			Text:      e.Text,
			CreatedAt: e.CreatedAt,
		})
	}
	s.sendJSON(w, http.StatusOK, map[string]any{
		"session_id": r.PathValue("id"),
		"events":     out,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.store.Len(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// validateMessage mirrors the controller's input checks so the chat handler
// can reject bad input before it creates a session.
func (s *Server) validateMessage(message string) error {
	text := strings.TrimSpace(message)
	if text == "" {
		return fmt.Errorf("%w: message is empty", tutor.ErrInvalidInput)
	}
	if s.maxMessageChars > 0 && utf8.RuneCountInString(text) > s.maxMessageChars {
		return fmt.Errorf("%w: message exceeds %d characters", tutor.ErrInvalidInput, s.maxMessageChars)
	}
	return nil
}

// sendControllerError maps controller error taxonomy onto HTTP responses.
func (s *Server) sendControllerError(w http.ResponseWriter, err error) {
	var genErr *tutor.GenerationError
	switch {
	case errors.Is(err, tutor.ErrInvalidInput):
		s.sendError(w, http.StatusBadRequest, "invalid_input", err.Error(), false)
	case errors.Is(err, tutor.ErrSessionNotFound):
		s.sendError(w, http.StatusNotFound, "session_not_found", "session not found", false)
	case errors.Is(err, tutor.ErrSessionBusy):
		s.sendError(w, http.StatusConflict, "session_busy", "a turn is already in progress for this session", true)
	case errors.Is(err, session.ErrLimitExceeded):
		s.sendError(w, http.StatusServiceUnavailable, "session_limit", "session limit reached, try again later", true)
	case errors.As(err, &genErr):
		s.sendError(w, http.StatusBadGateway, "generation_failed", "the model failed to generate a reply", genErr.Retryable)
	default:
		s.logger.Error("unhandled controller error", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal", "internal server error", false)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, kind, message string, retryable bool) {
	s.sendJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Kind:      kind,
		Message:   message,
		Retryable: retryable,
	}})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func chatResponse(result *tutor.TurnResult) ChatResponse {
	return ChatResponse{
		SessionID: result.SessionID,
		Reply:     result.Reply,
		Phase:     string(result.Phase),
		Topic:     result.Topic,
		TurnCount: result.TurnCount,
	}
}
