// Package server exposes the tutoring gateway over HTTP and WebSocket.
//
// Endpoints:
//
//   - POST /api/chat: process one user turn (creates a session when
//     session_id is omitted)
//   - POST /api/sessions: create a session, returns the greeting
//   - GET /api/sessions/{id}: session state
//   - DELETE /api/sessions/{id}: delete a session
//   - GET /api/sessions/{id}/transcript: archived transcript events
//   - GET /ws/{id}: streaming dialogue ("new" creates a session)
//   - GET /health, GET /health/ready: health checks
//
// Errors carry a machine-readable kind and a retryable flag so clients can
// distinguish transient failures (busy session, model timeout) from
// permanent ones.
package server
