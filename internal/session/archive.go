package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Archive journals turns to SQLite so transcripts survive restarts.
// The in-memory Store remains the source of truth for live requests;
// the archive is write-behind and read only by the transcript endpoint.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// ArchivedTurn is one journaled turn as read back for transcripts.
type ArchivedTurn struct {
	Role      string
	Content   string
	ToolName  string
	CreatedAt time.Time
}

// NewArchive prepares the journal schema on an open database handle.
// The handle is shared with the readings store and is not closed here.
func NewArchive(db *sql.DB, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema := `
	CREATE TABLE IF NOT EXISTS session_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_name TEXT,
		tool_calls TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_turns ON session_turns(session_id, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate session archive: %w", err)
	}
	return &Archive{db: db, logger: logger}, nil
}

func (a *Archive) record(sessionID string, t Turn) {
	var toolCalls any
	if len(t.ToolCalls) > 0 {
		if b, err := json.Marshal(t.ToolCalls); err == nil {
			toolCalls = string(b)
		}
	}
	_, err := a.db.Exec(
		`INSERT INTO session_turns (id, session_id, role, content, tool_name, tool_calls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, t.Role, t.Content, t.ToolName, toolCalls, t.CreatedAt)
	if err != nil {
		a.logger.Warn("archive turn failed", "session_id", sessionID, "error", err)
	}
}

// Transcript returns a session's journaled turns in order.
func (a *Archive) Transcript(sessionID string) ([]ArchivedTurn, error) {
	rows, err := a.db.Query(
		`SELECT role, content, COALESCE(tool_name, ''), created_at
		 FROM session_turns WHERE session_id = ? ORDER BY rowid`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []ArchivedTurn
	for rows.Next() {
		var t ArchivedTurn
		if err := rows.Scan(&t.Role, &t.Content, &t.ToolName, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
