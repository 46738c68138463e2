package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coffee-booking-backend/internal/model"
)

// singletonID is the primary key of the single reaction and visit rows.
const singletonID = 1

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// EnsureLedger loads the month's slots, creating the missing ones.
func (s *gormStore) EnsureLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error) {
	return ensureLedger(s.db.WithContext(ctx), month, names)
}

func ensureLedger(tx *gorm.DB, month string, names []string) ([]model.BookingSlot, error) {
	slots, err := fetchLedger(tx, month)
	if err != nil {
		return nil, err
	}

	missing := missingSlots(month, slots, names)
	if len(missing) == 0 {
		return orderSlots(slots, names), nil
	}

	if len(slots) == 0 {
		log.Printf("No ledger for %s yet; creating %d unbooked slots", month, len(missing))
	}
	// Concurrent first readers of a new month race here; DO NOTHING keeps the
	// first writer's rows.
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&missing).Error; err != nil {
		return nil, fmt.Errorf("failed to create ledger slots for %s: %w", month, err)
	}

	slots, err = fetchLedger(tx, month)
	if err != nil {
		return nil, err
	}
	return orderSlots(slots, names), nil
}

func fetchLedger(tx *gorm.DB, month string) ([]model.BookingSlot, error) {
	var slots []model.BookingSlot
	if err := tx.Where("month = ?", month).Order("position").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("failed to load ledger for %s: %w", month, err)
	}
	return slots, nil
}

func missingSlots(month string, existing []model.BookingSlot, names []string) []model.BookingSlot {
	present := make(map[string]bool, len(existing))
	for _, s := range existing {
		present[s.Name] = true
	}
	var missing []model.BookingSlot
	for i, name := range names {
		if !present[name] {
			missing = append(missing, model.BookingSlot{Month: month, Name: name, Position: i})
		}
	}
	return missing
}

// ClaimSlot flips booked to true with a single conditional UPDATE.
func (s *gormStore) ClaimSlot(ctx context.Context, month, name, booker string, at time.Time) error {
	return claimSlot(s.db.WithContext(ctx), month, name, booker, at)
}

func claimSlot(tx *gorm.DB, month, name, booker string, at time.Time) error {
	res := tx.Model(&model.BookingSlot{}).
		Where("month = ? AND name = ? AND booked = ?", month, name, false).
		Updates(map[string]any{
			"booked":      true,
			"booker_name": booker,
			"booked_at":   at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to claim slot %s/%s: %w", month, name, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := tx.Model(&model.BookingSlot{}).
		Where("month = ? AND name = ?", month, name).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to inspect slot %s/%s: %w", month, name, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// ResetLedger unbooks every slot of the month inside one transaction.
func (s *gormStore) ResetLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error) {
	var slots []model.BookingSlot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ensureLedger(tx, month, names); err != nil {
			return err
		}
		if err := tx.Model(&model.BookingSlot{}).
			Where("month = ?", month).
			Updates(map[string]any{
				"booked":      false,
				"booker_name": "",
				"booked_at":   nil,
			}).Error; err != nil {
			return fmt.Errorf("failed to reset ledger for %s: %w", month, err)
		}
		var err error
		slots, err = fetchLedger(tx, month)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orderSlots(slots, names), nil
}

// ensureRow inserts the singleton row if it does not exist yet.
func ensureRow(tx *gorm.DB, row any) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// GetReactions returns the current reaction totals.
func (s *gormStore) GetReactions(ctx context.Context) (model.ReactionCounter, error) {
	var rc model.ReactionCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRow(tx, &model.ReactionCounter{ID: singletonID}); err != nil {
			return err
		}
		return tx.First(&rc, singletonID).Error
	})
	if err != nil {
		return model.ReactionCounter{}, fmt.Errorf("failed to load reactions: %w", err)
	}
	return rc, nil
}

// IncrementReaction atomically adds one to the named counter.
func (s *gormStore) IncrementReaction(ctx context.Context, kind model.ReactionKind) (model.ReactionCounter, error) {
	var column string
	switch kind {
	case model.ReactionLike:
		column = "likes"
	case model.ReactionDislike:
		column = "dislikes"
	default:
		return model.ReactionCounter{}, fmt.Errorf("unknown reaction %q", kind)
	}

	var rc model.ReactionCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRow(tx, &model.ReactionCounter{ID: singletonID}); err != nil {
			return err
		}
		if err := tx.Model(&model.ReactionCounter{}).
			Where("id = ?", singletonID).
			Update(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
			return err
		}
		return tx.First(&rc, singletonID).Error
	})
	if err != nil {
		return model.ReactionCounter{}, fmt.Errorf("failed to increment %s: %w", kind, err)
	}
	return rc, nil
}

// RecordVisit counts a visit with one UPDATE so concurrent page loads are not lost.
func (s *gormStore) RecordVisit(ctx context.Context, day string, at time.Time) (model.VisitStat, error) {
	var stat model.VisitStat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRow(tx, &model.VisitStat{ID: singletonID}); err != nil {
			return err
		}
		if err := tx.Model(&model.VisitStat{}).
			Where("id = ?", singletonID).
			Updates(map[string]any{
				"visits":        gorm.Expr("visits + ?", 1),
				"today_count":   gorm.Expr("CASE WHEN today_date = ? THEN today_count + 1 ELSE 1 END", day),
				"today_date":    day,
				"last_visit_at": at,
			}).Error; err != nil {
			return err
		}
		return tx.First(&stat, singletonID).Error
	})
	if err != nil {
		return model.VisitStat{}, fmt.Errorf("failed to record visit: %w", err)
	}
	return stat, nil
}

// CreateInvitation inserts a new invitation.
func (s *gormStore) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("failed to create invitation %s: %w", inv.ID, err)
	}
	return nil
}

// GetInvitation loads an invitation by id.
func (s *gormStore) GetInvitation(ctx context.Context, id string) (model.Invitation, error) {
	return getInvitation(s.db.WithContext(ctx), id)
}

func getInvitation(tx *gorm.DB, id string) (model.Invitation, error) {
	var inv model.Invitation
	if err := tx.First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Invitation{}, ErrNotFound
		}
		return model.Invitation{}, fmt.Errorf("failed to load invitation %s: %w", id, err)
	}
	return inv, nil
}

// TransitionInvitation updates the status guarded by the expected current status.
func (s *gormStore) TransitionInvitation(ctx context.Context, id string, from, to model.InvitationStatus, at time.Time) (model.Invitation, bool, error) {
	var (
		inv     model.Invitation
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Invitation{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]any{"status": to, "updated_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to update invitation %s: %w", id, res.Error)
		}
		changed = res.RowsAffected == 1

		var err error
		inv, err = getInvitation(tx, id)
		return err
	})
	if err != nil {
		return model.Invitation{}, false, err
	}
	return inv, changed, nil
}

// SavePushSubscription creates or replaces a subscription.
func (s *gormStore) SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(sub).Error
}

// GetPushSubscription loads a subscription by endpoint.
func (s *gormStore) GetPushSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.PushSubscription{}, ErrNotFound
		}
		return model.PushSubscription{}, err
	}
	return sub, nil
}

// ListPushSubscriptions returns every subscription.
func (s *gormStore) ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Order("created_at").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// DeletePushSubscription removes a subscription; deleting a missing one is not an error.
func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

// SaveDeadLetter records an undeliverable notification.
func (s *gormStore) SaveDeadLetter(ctx context.Context, dl *model.DeadLetter) error {
	return s.db.WithContext(ctx).Create(dl).Error
}

// Close releases the underlying connection pool.
func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
