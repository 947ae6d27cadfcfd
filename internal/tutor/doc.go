// Package tutor implements the Feynman tutoring dialogue state machine.
//
// # Overview
//
// The tutor package sits between the transports (HTTP, WebSocket) and the
// model gateway. It owns the phase state machine and guarantees that each
// user turn either fully commits (user turn + assistant reply + at most one
// forward phase transition) or leaves the session exactly as it was.
//
// # Phases
//
// A session moves monotonically through three phases:
//
//  1. topic_gathering: the assistant works out what the learner wants to study
//  2. feynman_tutoring: the learner explains the topic and gets probed for gaps
//  3. completed: terminal; further messages get a fixed reply with no model call
//
// Transitions happen only on signals from the model gateway (topic
// identified, understanding confirmed), validated against the current phase,
// or on an explicit quit command during tutoring.
//
// # Controller
//
// The Controller coordinates turn processing:
//
//	ctrl := tutor.NewController(store, gateway, archiver, cfg, logger)
//	result, err := ctrl.ProcessTurn(ctx, sessionID, "what is entropy?")
//
// Concurrent turns on the same session are rejected with ErrSessionBusy via
// the store's turn reservation; turns on different sessions proceed
// independently.
package tutor
