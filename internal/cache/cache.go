// Package cache holds the handoff slots that carry raw tool payloads from a
// tool execution to the turn response that reports it.
//
// A slot is written by a tool, read at most once by the orchestrator right
// after the turn, and expires on its own if nobody reads it.
package cache

import (
	"context"
	"time"

	"github.com/soyeahso/gaia/internal/logging"
)

// Store is a key-value store with per-key expiry and read-once access.
type Store interface {
	// Set stores value under key until ttl elapses.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Take returns the value under key and removes it atomically. ok is false
	// when the key is absent or expired.
	Take(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Sweeper is implemented by backends that only notice expiry on read.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SweepEvery runs s.Sweep at each interval until ctx is done.
func SweepEvery(ctx context.Context, s Sweeper, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("sweeping expired slots failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("expired slots swept")
			}
		}
	}
}

// DefaultTTL bounds how long an unread payload stays around.
const DefaultTTL = time.Hour

// PlacesKey is the slot holding place search records for a session.
func PlacesKey(sessionID string) string { return sessionID }

// QueryKey is the slot holding the last place search query for a session.
func QueryKey(sessionID string) string { return sessionID + "_query" }

// PartnerKey is the slot holding partner establishment records for a session.
func PartnerKey(sessionID string) string { return sessionID + "_clapzy" }

// SessionKeys lists every slot a session can own.
func SessionKeys(sessionID string) []string {
	return []string{PlacesKey(sessionID), QueryKey(sessionID), PartnerKey(sessionID)}
}
