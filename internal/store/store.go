package store

import (
	"context"
	"errors"
	"time"

	"coffee-booking-backend/internal/model"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a conditional update lost to the current state.
	ErrConflict = errors.New("store: conditional update conflict")
)

// LedgerStore persists the monthly slot ledger.
type LedgerStore interface {
	// EnsureLedger returns the slots of month in the order of names, creating
	// any missing slot unbooked.
	EnsureLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error)
	// ClaimSlot books the slot only if it is currently unbooked. It returns
	// ErrNotFound for an unknown slot and ErrConflict if it is already booked.
	ClaimSlot(ctx context.Context, month, name, booker string, at time.Time) error
	// ResetLedger marks every slot of month unbooked.
	ResetLedger(ctx context.Context, month string, names []string) ([]model.BookingSlot, error)
}

// ReactionStore persists the reaction counters.
type ReactionStore interface {
	GetReactions(ctx context.Context) (model.ReactionCounter, error)
	IncrementReaction(ctx context.Context, kind model.ReactionKind) (model.ReactionCounter, error)
}

// VisitStore persists the visit counters.
type VisitStore interface {
	// RecordVisit counts one visit on day at the given instant.
	RecordVisit(ctx context.Context, day string, at time.Time) (model.VisitStat, error)
}

// InvitationStore persists coffee invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *model.Invitation) error
	GetInvitation(ctx context.Context, id string) (model.Invitation, error)
	// TransitionInvitation moves the invitation from one status to another. The
	// returned bool is false, with the current record, if it was not in from.
	TransitionInvitation(ctx context.Context, id string, from, to model.InvitationStatus, at time.Time) (model.Invitation, bool, error)
}

// SubscriptionStore persists browser push subscriptions.
type SubscriptionStore interface {
	SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetPushSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	ListPushSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// DeadLetterStore records undeliverable notifications.
type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, dl *model.DeadLetter) error
}

// Store defines the interface for all persistence operations.
type Store interface {
	LedgerStore
	ReactionStore
	VisitStore
	InvitationStore
	SubscriptionStore
	DeadLetterStore
	Close() error
}

// orderSlots returns the slots named in names, in that order.
func orderSlots(slots []model.BookingSlot, names []string) []model.BookingSlot {
	byName := make(map[string]model.BookingSlot, len(slots))
	for _, s := range slots {
		byName[s.Name] = s
	}
	ordered := make([]model.BookingSlot, 0, len(names))
	for _, name := range names {
		if s, ok := byName[name]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered
}
