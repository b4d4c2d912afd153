package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/soyeahso/gaia/internal/cache"
)

// HandoffStore implements cache.Store on the handoff_slots table.
type HandoffStore struct {
	db  *DB
	now func() time.Time
}

var _ cache.Store = (*HandoffStore)(nil)

// NewHandoffStore creates a handoff slot store using the given database.
func NewHandoffStore(db *DB) *HandoffStore {
	return &HandoffStore{db: db, now: time.Now}
}

// Set upserts value under key.
func (h *HandoffStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := h.db.sql.ExecContext(ctx,
		`INSERT INTO handoff_slots (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, h.now().Add(ttl).UnixNano(),
	)
	return err
}

// Take deletes key and returns its value in a single statement.
func (h *HandoffStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := h.db.sql.QueryRowContext(ctx,
		`DELETE FROM handoff_slots WHERE key = ? RETURNING value, expires_at`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if h.now().UnixNano() > expiresAt {
		return nil, false, nil
	}
	return value, true, nil
}

// Delete removes keys.
func (h *HandoffStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := h.db.sql.ExecContext(ctx, `DELETE FROM handoff_slots WHERE key = ?`, k); err != nil {
			return err
		}
	}
	return nil
}

// Sweep removes expired slots and returns how many were dropped.
func (h *HandoffStore) Sweep(ctx context.Context) (int64, error) {
	res, err := h.db.sql.ExecContext(ctx,
		`DELETE FROM handoff_slots WHERE expires_at < ?`, h.now().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
