// ABOUTME: SQLite-backed append-only transcript ledger for tutoring sessions
// ABOUTME: Write-only from the dialogue path; sessions are never rehydrated from it

package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/feynomenon-gateway/internal/session"
)

// Event is one archived transcript row.
type Event struct {
	ID        string
	SessionID string
	Role      session.Role
	Phase     session.Phase
	Topic     string
	Text      string
	CreatedAt time.Time
}

// Ledger persists transcript events to SQLite.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the transcript database at path.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	l := &Ledger{db: db, logger: logger.With("component", "archive")}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	l.logger.Info("transcript archive opened", "path", path)
	return l, nil
}

func (l *Ledger) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcript_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		phase TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_session
		ON transcript_events(session_id, created_at);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("creating archive schema: %w", err)
	}
	return nil
}

// SaveTurn appends one committed turn to the ledger.
func (l *Ledger) SaveTurn(ctx context.Context, sessionID string, turn session.Turn, phase session.Phase, topic string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transcript_events (id, session_id, role, phase, topic, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), sessionID, string(turn.Role), string(phase), topic, turn.Text, turn.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting transcript event: %w", err)
	}
	return nil
}

// ListBySession returns a session's archived events oldest first, up to
// limit rows. limit <= 0 means no limit.
func (l *Ledger) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error) {
	query := `
		SELECT id, session_id, role, phase, topic, text, created_at
		FROM transcript_events
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcript events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var role, phase string
		if err := rows.Scan(&e.ID, &e.SessionID, &role, &phase, &e.Topic, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transcript event: %w", err)
		}
		e.Role = session.Role(role)
		e.Phase = session.Phase(phase)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountBySession returns the number of archived events for a session.
func (l *Ledger) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transcript_events WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting transcript events: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
