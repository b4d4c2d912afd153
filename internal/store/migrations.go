package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				id          TEXT PRIMARY KEY,
				persona     TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_sessions_updated ON sessions (updated_at);

			CREATE TABLE messages (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role          TEXT NOT NULL,
				content       TEXT NOT NULL,
				timestamp     TEXT NOT NULL,
				tool_calls    TEXT,
				tool_call_id  TEXT NOT NULL DEFAULT '',
				tool_name     TEXT NOT NULL DEFAULT '',
				turn          INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_messages_session ON messages (session_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create handoff slots",
		SQL: `
			CREATE TABLE handoff_slots (
				key         TEXT PRIMARY KEY,
				value       BLOB NOT NULL,
				expires_at  INTEGER NOT NULL
			);

			CREATE INDEX idx_handoff_expires ON handoff_slots (expires_at);
		`,
	},
}
