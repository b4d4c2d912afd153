package cache

import (
	"context"
	"errors"
	"time"
)

// Handoff writes and consumes the per-session tool payload slots.
type Handoff struct {
	store Store
	ttl   time.Duration
}

// NewHandoff wraps store. A non-positive ttl uses DefaultTTL.
func NewHandoff(store Store, ttl time.Duration) *Handoff {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Handoff{store: store, ttl: ttl}
}

// TTL returns the slot expiry.
func (h *Handoff) TTL() time.Duration { return h.ttl }

// PutPlaces stores place search records and the query that produced them.
func (h *Handoff) PutPlaces(ctx context.Context, sessionID string, records []byte, query string) error {
	return errors.Join(
		h.store.Set(ctx, PlacesKey(sessionID), records, h.ttl),
		h.store.Set(ctx, QueryKey(sessionID), []byte(query), h.ttl),
	)
}

// PutPartners stores partner establishment records.
func (h *Handoff) PutPartners(ctx context.Context, sessionID string, records []byte) error {
	return h.store.Set(ctx, PartnerKey(sessionID), records, h.ttl)
}

// TakePlaces consumes the place records slot. It returns nil when empty.
func (h *Handoff) TakePlaces(ctx context.Context, sessionID string) ([]byte, error) {
	return h.take(ctx, PlacesKey(sessionID))
}

// TakeQuery consumes the query slot. It returns "" when empty.
func (h *Handoff) TakeQuery(ctx context.Context, sessionID string) (string, error) {
	b, err := h.take(ctx, QueryKey(sessionID))
	return string(b), err
}

// TakePartners consumes the partner records slot. It returns nil when empty.
func (h *Handoff) TakePartners(ctx context.Context, sessionID string) ([]byte, error) {
	return h.take(ctx, PartnerKey(sessionID))
}

// DropPlaces discards the place records and query slots.
func (h *Handoff) DropPlaces(ctx context.Context, sessionID string) error {
	return h.store.Delete(ctx, PlacesKey(sessionID), QueryKey(sessionID))
}

// DropPartners discards the partner records slot.
func (h *Handoff) DropPartners(ctx context.Context, sessionID string) error {
	return h.store.Delete(ctx, PartnerKey(sessionID))
}

// Clear drops every slot of a session.
func (h *Handoff) Clear(ctx context.Context, sessionID string) error {
	return h.store.Delete(ctx, SessionKeys(sessionID)...)
}

func (h *Handoff) take(ctx context.Context, key string) ([]byte, error) {
	b, ok, err := h.store.Take(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return b, nil
}
