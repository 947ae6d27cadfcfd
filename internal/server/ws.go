// ABOUTME: WebSocket transport for streaming a tutoring dialogue over one connection
// ABOUTME: Each inbound message is one user turn; errors are sent in-band, not fatal

package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/feynomenon-gateway/internal/tutor"
)

// wsInbound is one user turn sent by the client.
type wsInbound struct {
	Message string `json:"message"`
}

// wsOutbound is one frame sent to the client. Type is "message" for a
// processed turn and "error" for an in-band failure.
type wsOutbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Topic     string `json:"topic,omitempty"`
	TurnCount int    `json:"turn_count,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// handleWebSocket attaches a streaming dialogue to a session. The path id
// "new" creates a fresh session and sends the greeting as the first frame.
// Disconnecting leaves the session alive; the client can reattach with the
// same id or fall back to the HTTP endpoints.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sessionID := r.PathValue("id")

	if sessionID == "new" {
		started, err := s.controller.StartSession()
		if err != nil {
			s.wsSendControllerError(ctx, conn, err)
			conn.Close(websocket.StatusInternalError, "session creation failed")
			return
		}
		sessionID = started.SessionID
		if err := wsjson.Write(ctx, conn, wsOutbound{
			Type:      "message",
			SessionID: sessionID,
			Reply:     started.Reply,
			Phase:     string(started.Phase),
		}); err != nil {
			return
		}
	} else if _, err := s.controller.SessionState(sessionID); err != nil {
		s.wsSendControllerError(ctx, conn, err)
		conn.Close(websocket.StatusPolicyViolation, "unknown session")
		return
	}

	s.logger.Info("websocket attached", "session_id", sessionID)

	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return
			}
			s.logger.Debug("websocket read ended", "session_id", sessionID, "error", err)
			return
		}

		result, err := s.controller.ProcessTurn(ctx, sessionID, in.Message)
		if err != nil {
			s.wsSendControllerError(ctx, conn, err)
			if errors.Is(err, tutor.ErrSessionNotFound) {
				conn.Close(websocket.StatusPolicyViolation, "session gone")
				return
			}
			continue
		}

		if err := wsjson.Write(ctx, conn, wsOutbound{
			Type:      "message",
			SessionID: result.SessionID,
			Reply:     result.Reply,
			Phase:     string(result.Phase),
			Topic:     result.Topic,
			TurnCount: result.TurnCount,
		}); err != nil {
			return
		}
	}
}

// wsSendControllerError sends the controller error taxonomy as an in-band
// error frame, mirroring the HTTP mapping.
func (s *Server) wsSendControllerError(ctx context.Context, conn *websocket.Conn, err error) {
	out := wsOutbound{Type: "error", Kind: "internal", Message: "internal server error"}

	var genErr *tutor.GenerationError
	switch {
	case errors.Is(err, tutor.ErrInvalidInput):
		out.Kind, out.Message = "invalid_input", err.Error()
	case errors.Is(err, tutor.ErrSessionNotFound):
		out.Kind, out.Message = "session_not_found", "session not found"
	case errors.Is(err, tutor.ErrSessionBusy):
		out.Kind, out.Message, out.Retryable = "session_busy", "a turn is already in progress", true
	case errors.As(err, &genErr):
		out.Kind, out.Message, out.Retryable = "generation_failed", "the model failed to generate a reply", genErr.Retryable
	default:
		s.logger.Error("unhandled websocket error", "error", err)
	}

	if werr := wsjson.Write(ctx, conn, out); werr != nil {
		s.logger.Debug("failed to send websocket error", "error", werr)
	}
}
