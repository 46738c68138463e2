package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"coffee-booking-backend/internal/model"
)

// maxTxRetries bounds optimistic WATCH/MULTI retries under contention.
const maxTxRetries = 16

// redisStore keeps each record as a JSON document under its own key and
// uses WATCH/MULTI for conditional updates.
type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore creates a Store backed by a Redis server.
func NewRedisStore(rdb *redis.Client, keyPrefix string) Store {
	return &redisStore{rdb: rdb, prefix: keyPrefix}
}

func (s *redisStore) ledgerKey(month string) string { return s.prefix + "ledger:" + month }

func (s *redisStore) reactionsKey() string { return s.prefix + "reactions" }

func (s *redisStore) visitsKey() string { return s.prefix + "visits" }

func (s *redisStore) invitationKey(id string) string { return s.prefix + "invitation:" + id }

func (s *redisStore) subscriptionsKey() string { return s.prefix + "push_subscriptions" }

func (s *redisStore) deadLettersKey() string { return s.prefix + "dead_letters" }

// watch runs fn under WATCH on key, retrying when another client wins the race.
func (s *redisStore) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis: too much contention on %s", key)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// getJSON decodes the document at key into v. found is false if the key is
// absent; a document that fails to decode is reported as absent so callers
// fall back to a fresh default record.
func getJSON(ctx context.Context, c getter, key string, v any) (found bool, err error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("Discarding malformed document at %s: %v", key, err)
		return false, nil
	}
	return true, nil
}

func setJSON(ctx context.Context, tx *redis.Tx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		return nil
	})
	return err
}

type redisLedger struct {
	Month string              `json:"month"`
	Slots []model.BookingSlot `json:"slots"`
}

func (l *redisLedger) find(name string) int {
	for i := range l.Slots {
		if l.Slots[i].Name == name {
			return i
		}
	}
	return -1
}

// fill appends any missing slot and reports whether the document changed.
func (l *redisLedger) fill(month string, names []string, now time.Time) bool {
	if l.Month != month {
		l.Month = month
		l.Slots = nil
	}
	changed := false
	for _, m := range missingSlots(month, l.Slots, names) {
		m.CreatedAt, m.UpdatedAt = now, now
		l.Slots = append(l.Slots, m)
		changed = true
	}
	return changed
}

// EnsureLedger loads the month's document, creating missing slots.
func (s *redisStore) EnsureLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error) {
	key := s.ledgerKey(month)
	var ledger redisLedger
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		ledger = redisLedger{}
		found, err := getJSON(ctx, tx, key, &ledger)
		if err != nil {
			return err
		}
		if !found {
			ledger = redisLedger{}
			log.Printf("No ledger for %s yet; creating it", month)
		}
		if ledger.fill(month, names, time.Now().UTC()) {
			return setJSON(ctx, tx, key, &ledger)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for %s: %w", month, err)
	}
	return orderSlots(ledger.Slots, names), nil
}

// ClaimSlot books the slot if, at commit time, nobody else changed the ledger.
func (s *redisStore) ClaimSlot(ctx context.Context, month, name, booker string, at time.Time) error {
	key := s.ledgerKey(month)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		var ledger redisLedger
		found, err := getJSON(ctx, tx, key, &ledger)
		if err != nil {
			return err
		}
		if !found || ledger.Month != month {
			return ErrNotFound
		}
		i := ledger.find(name)
		if i < 0 {
			return ErrNotFound
		}
		if ledger.Slots[i].Booked {
			return ErrConflict
		}
		bookedAt := at
		ledger.Slots[i].Booked = true
		ledger.Slots[i].BookerName = booker
		ledger.Slots[i].BookedAt = &bookedAt
		ledger.Slots[i].UpdatedAt = at
		return setJSON(ctx, tx, key, &ledger)
	})
}

// ResetLedger replaces the month's document with an unbooked one.
func (s *redisStore) ResetLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error) {
	key := s.ledgerKey(month)
	var ledger redisLedger
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		ledger = redisLedger{}
		found, err := getJSON(ctx, tx, key, &ledger)
		if err != nil {
			return err
		}
		if !found {
			ledger = redisLedger{}
		}
		now := time.Now().UTC()
		ledger.fill(month, names, now)
		for i := range ledger.Slots {
			ledger.Slots[i].Booked = false
			ledger.Slots[i].BookerName = ""
			ledger.Slots[i].BookedAt = nil
			ledger.Slots[i].UpdatedAt = now
		}
		return setJSON(ctx, tx, key, &ledger)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset ledger for %s: %w", month, err)
	}
	return orderSlots(ledger.Slots, names), nil
}

func reactionField(kind model.ReactionKind) (string, error) {
	switch kind {
	case model.ReactionLike:
		return "likes", nil
	case model.ReactionDislike:
		return "dislikes", nil
	}
	return "", fmt.Errorf("unknown reaction %q", kind)
}

func (s *redisStore) readReactions(ctx context.Context) (model.ReactionCounter, error) {
	values, err := s.rdb.HGetAll(ctx, s.reactionsKey()).Result()
	if err != nil {
		return model.ReactionCounter{}, fmt.Errorf("failed to load reactions: %w", err)
	}
	rc := model.ReactionCounter{ID: singletonID}
	for field, dst := range map[string]*int64{"likes": &rc.Likes, "dislikes": &rc.Dislikes} {
		raw, ok := values[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("Ignoring malformed reaction counter %s=%q: %v", field, raw, err)
			continue
		}
		*dst = n
	}
	return rc, nil
}

// GetReactions returns the current reaction totals.
func (s *redisStore) GetReactions(ctx context.Context) (model.ReactionCounter, error) {
	return s.readReactions(ctx)
}

// IncrementReaction uses HINCRBY so concurrent increments are never lost.
func (s *redisStore) IncrementReaction(ctx context.Context, kind model.ReactionKind) (model.ReactionCounter, error) {
	field, err := reactionField(kind)
	if err != nil {
		return model.ReactionCounter{}, err
	}
	if err := s.rdb.HIncrBy(ctx, s.reactionsKey(), field, 1).Err(); err != nil {
		return model.ReactionCounter{}, fmt.Errorf("failed to increment %s: %w", kind, err)
	}
	return s.readReactions(ctx)
}

// RecordVisit counts one visit.
func (s *redisStore) RecordVisit(ctx context.Context, day string, at time.Time) (model.VisitStat, error) {
	key := s.visitsKey()
	var stat model.VisitStat
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		stat = model.VisitStat{}
		found, err := getJSON(ctx, tx, key, &stat)
		if err != nil {
			return err
		}
		if !found {
			stat = model.VisitStat{}
		}
		stat.ID = singletonID
		stat.Visits++
		if stat.TodayDate == day {
			stat.TodayCount++
		} else {
			stat.TodayDate = day
			stat.TodayCount = 1
		}
		visitAt := at
		stat.LastVisitAt = &visitAt
		return setJSON(ctx, tx, key, &stat)
	})
	if err != nil {
		return model.VisitStat{}, fmt.Errorf("failed to record visit: %w", err)
	}
	return stat, nil
}

// CreateInvitation stores the invitation unless the id is taken.
func (s *redisStore) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, s.invitationKey(inv.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create invitation %s: %w", inv.ID, err)
	}
	if !ok {
		return fmt.Errorf("invitation %s: %w", inv.ID, ErrConflict)
	}
	return nil
}

// GetInvitation loads an invitation by id.
func (s *redisStore) GetInvitation(ctx context.Context, id string) (model.Invitation, error) {
	var inv model.Invitation
	found, err := getJSON(ctx, s.rdb, s.invitationKey(id), &inv)
	if err != nil {
		return model.Invitation{}, err
	}
	if !found {
		return model.Invitation{}, ErrNotFound
	}
	return inv, nil
}

// TransitionInvitation updates the status guarded by the expected current status.
func (s *redisStore) TransitionInvitation(ctx context.Context, id string, from, to model.InvitationStatus, at time.Time) (model.Invitation, bool, error) {
	key := s.invitationKey(id)
	var (
		inv     model.Invitation
		changed bool
	)
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		inv, changed = model.Invitation{}, false
		found, err := getJSON(ctx, tx, key, &inv)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if inv.Status != from {
			return nil
		}
		inv.Status = to
		inv.UpdatedAt = at
		changed = true
		return setJSON(ctx, tx, key, &inv)
	})
	if err != nil {
		return model.Invitation{}, false, err
	}
	return inv, changed, nil
}

// SavePushSubscription creates or replaces a subscription.
func (s *redisStore) SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if existing, err := s.GetPushSubscription(ctx, sub.Endpoint); err == nil {
		sub.CreatedAt = existing.CreatedAt
	} else if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, s.subscriptionsKey(), sub.Endpoint, data).Err()
}

// GetPushSubscription loads a subscription by endpoint.
func (s *redisStore) GetPushSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	data, err := s.rdb.HGet(ctx, s.subscriptionsKey(), endpoint).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.PushSubscription{}, ErrNotFound
	}
	if err != nil {
		return model.PushSubscription{}, err
	}
	var sub model.PushSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return model.PushSubscription{}, fmt.Errorf("malformed subscription %s: %w", endpoint, err)
	}
	return sub, nil
}

// ListPushSubscriptions returns every well-formed subscription.
func (s *redisStore) ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	values, err := s.rdb.HGetAll(ctx, s.subscriptionsKey()).Result()
	if err != nil {
		return nil, err
	}
	subs := make([]model.PushSubscription, 0, len(values))
	for endpoint, raw := range values {
		var sub model.PushSubscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			log.Printf("Skipping malformed subscription %s: %v", endpoint, err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// DeletePushSubscription removes a subscription.
func (s *redisStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	return s.rdb.HDel(ctx, s.subscriptionsKey(), endpoint).Err()
}

// SaveDeadLetter appends the dead letter to a list.
func (s *redisStore) SaveDeadLetter(ctx context.Context, dl *model.DeadLetter) error {
	id, err := s.rdb.Incr(ctx, s.deadLettersKey()+":seq").Result()
	if err != nil {
		return err
	}
	dl.ID = id
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, s.deadLettersKey(), data).Err()
}

// Close closes the Redis client.
func (s *redisStore) Close() error {
	return s.rdb.Close()
}
