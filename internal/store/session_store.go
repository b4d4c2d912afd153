package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Timestamps keep sub-second precision so List can order by recency.
const timeLayout = time.RFC3339Nano

// SQLiteSessionStore implements agent.SessionStore backed by SQLite.
type SQLiteSessionStore struct {
	db *DB
}

var _ agent.SessionStore = (*SQLiteSessionStore)(nil)

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

// GetOrCreate returns the session with id, creating it with the seed
// messages when it does not exist yet.
func (s *SQLiteSessionStore) GetOrCreate(id, persona string, seed []domain.Message) (*domain.Session, bool, error) {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	res, err := tx.Exec(
		`INSERT OR IGNORE INTO sessions (id, persona, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, persona, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating session %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	created := n == 1

	if created {
		for _, m := range seed {
			if err := insertMessage(tx, id, m); err != nil {
				return nil, false, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	sess := s.Get(id)
	if sess == nil {
		return nil, false, fmt.Errorf("session %s vanished after create", id)
	}
	return sess, created, nil
}

// Get returns a session by ID, or nil if not found.
func (s *SQLiteSessionStore) Get(id string) *domain.Session {
	var sess domain.Session
	var createdAt, updatedAt string

	err := s.db.sql.QueryRow(
		`SELECT id, persona, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Persona, &createdAt, &updatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.db.log.Error().Err(err).Str("sessionId", id).Msg("failed to load session")
		}
		return nil
	}

	sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	sess.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	sess.Messages = s.History(id)
	return &sess
}

// Append adds messages to a session in one transaction.
func (s *SQLiteSessionStore) Append(id string, msgs ...domain.Message) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("touching session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &agent.SessionNotFoundError{ID: id}
	}

	for _, m := range msgs {
		if err := insertMessage(tx, id, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// History returns the messages of a session in insertion order.
func (s *SQLiteSessionStore) History(id string) []domain.Message {
	rows, err := s.db.sql.Query(
		`SELECT role, content, timestamp, tool_calls, tool_call_id, tool_name, turn
		 FROM messages WHERE session_id = ? ORDER BY id`, id,
	)
	if err != nil {
		s.db.log.Error().Err(err).Str("sessionId", id).Msg("failed to load history")
		return nil
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var ts string
		var toolCalls sql.NullString

		if err := rows.Scan(&m.Role, &m.Content, &ts, &toolCalls, &m.ToolCallID, &m.ToolName, &m.Turn); err != nil {
			s.db.log.Warn().Err(err).Str("sessionId", id).Msg("skipping unreadable message")
			continue
		}
		m.Timestamp, _ = time.Parse(timeLayout, ts)
		if toolCalls.Valid && toolCalls.String != "" {
			_ = json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Reset deletes a session and its messages. Unknown ids are not an error.
func (s *SQLiteSessionStore) Reset(id string) error {
	if _, err := s.db.sql.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// List returns all session IDs, most recently updated first.
func (s *SQLiteSessionStore) List() []string {
	rows, err := s.db.sql.Query(`SELECT id FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func insertMessage(tx *sql.Tx, sessionID string, m domain.Message) error {
	var toolCalls sql.NullString
	if len(m.ToolCalls) > 0 {
		data, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("encoding tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := tx.Exec(
		`INSERT INTO messages (session_id, role, content, timestamp, tool_calls, tool_call_id, tool_name, turn)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(m.Role), m.Content, ts.UTC().Format(timeLayout),
		toolCalls, m.ToolCallID, m.ToolName, m.Turn,
	)
	if err != nil {
		return fmt.Errorf("appending message to %s: %w", sessionID, err)
	}
	return nil
}
