package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"coffee-booking-backend/internal/model"
)

// fallbackStore remembers the last successful read of each record and serves
// it when the primary store fails. Served copies may be stale; the primary
// error is always logged.
type fallbackStore struct {
	Store
	cache *cache.Cache
}

// WithFallback wraps primary with a last-known-good read cache. A ttl <= 0
// keeps entries until they are replaced.
func WithFallback(primary Store, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &fallbackStore{
		Store: primary,
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func ledgerCacheKey(month string) string { return "ledger:" + month }

const reactionsCacheKey = "reactions"

// EnsureLedger falls back to the last ledger read for the same month.
func (s *fallbackStore) EnsureLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error) {
	slots, err := s.Store.EnsureLedger(ctx, month, names)
	if err == nil {
		s.cache.Set(ledgerCacheKey(month), slots, cache.DefaultExpiration)
		return slots, nil
	}
	if cached, ok := s.cache.Get(ledgerCacheKey(month)); ok {
		log.Printf("Primary store failed loading ledger %s, serving cached copy: %v", month, err)
		return cached.([]model.BookingSlot), nil
	}
	return nil, err
}

// ClaimSlot invalidates the cached ledger once the slot is claimed.
func (s *fallbackStore) ClaimSlot(ctx context.Context, month, name, booker string, at time.Time) error {
	err := s.Store.ClaimSlot(ctx, month, name, booker, at)
	if err == nil || errors.Is(err, ErrConflict) {
		s.cache.Delete(ledgerCacheKey(month))
	}
	return err
}

// ResetLedger refreshes the cached ledger.
func (s *fallbackStore) ResetLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error) {
	slots, err := s.Store.ResetLedger(ctx, month, names)
	if err == nil {
		s.cache.Set(ledgerCacheKey(month), slots, cache.DefaultExpiration)
	}
	return slots, err
}

// GetReactions falls back to the last totals read or written.
func (s *fallbackStore) GetReactions(ctx context.Context) (model.ReactionCounter, error) {
	rc, err := s.Store.GetReactions(ctx)
	if err == nil {
		s.cache.Set(reactionsCacheKey, rc, cache.DefaultExpiration)
		return rc, nil
	}
	if cached, ok := s.cache.Get(reactionsCacheKey); ok {
		log.Printf("Primary store failed loading reactions, serving cached copy: %v", err)
		return cached.(model.ReactionCounter), nil
	}
	return model.ReactionCounter{}, err
}

// IncrementReaction refreshes the cached totals.
func (s *fallbackStore) IncrementReaction(ctx context.Context, kind model.ReactionKind) (model.ReactionCounter, error) {
	rc, err := s.Store.IncrementReaction(ctx, kind)
	if err == nil {
		s.cache.Set(reactionsCacheKey, rc, cache.DefaultExpiration)
	}
	return rc, err
}
