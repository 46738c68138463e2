// Package booking implements the monthly slot ledger, reactions and visit
// counters.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"coffee-booking-backend/internal/calendar"
	"coffee-booking-backend/internal/model"
	"coffee-booking-backend/internal/notification"
	"coffee-booking-backend/internal/store"
)

// Store is the persistence the service needs.
type Store interface {
	store.LedgerStore
	store.ReactionStore
	store.VisitStore
}

// Notifier queues outbound notices. It must not block.
type Notifier interface {
	Dispatch(ev notification.Event)
}

// Broadcaster pushes ledger snapshots to live clients.
type Broadcaster interface {
	Broadcast(v any)
}

// Options configures a Service.
type Options struct {
	SlotNames   []string
	Location    *time.Location
	AdminDigest string
	Now         func() time.Time
	Live        Broadcaster
}

// Service is the booking domain.
type Service struct {
	store    Store
	notifier Notifier
	names    []string
	loc      *time.Location
	digest   string
	now      func() time.Time
	live     Broadcaster
}

// NewService creates a booking service. notifier may be nil.
func NewService(s Store, notifier Notifier, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    s,
		notifier: notifier,
		names:    opts.SlotNames,
		loc:      opts.Location,
		digest:   opts.AdminDigest,
		now:      opts.Now,
		live:     opts.Live,
	}
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// ReadLedger returns the ledger of the current month, creating it unbooked
// on the first read of a month.
func (s *Service) ReadLedger(ctx context.Context) (Ledger, error) {
	month := calendar.MonthKey(s.clock())
	rows, err := s.store.EnsureLedger(ctx, month, s.names)
	if err != nil {
		return Ledger{}, err
	}
	return newLedger(month, rows, s.loc), nil
}

// BookSlot claims slot for booker in the current month.
func (s *Service) BookSlot(ctx context.Context, slot, booker string) (Ledger, error) {
	booker = strings.TrimSpace(booker)
	if booker == "" {
		return Ledger{}, ErrInvalidBooker
	}
	now := s.clock()
	month := calendar.MonthKey(now)

	ledger, err := s.ReadLedger(ctx)
	if err != nil {
		return Ledger{}, err
	}
	target, ok := ledger.Slot(slot)
	if !ok {
		return Ledger{}, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	if target.Booked {
		return Ledger{}, fmt.Errorf("%w: %q", ErrAlreadyBooked, slot)
	}

	switch err := s.store.ClaimSlot(ctx, month, slot, booker, now); {
	case errors.Is(err, store.ErrConflict):
		return Ledger{}, fmt.Errorf("%w: %q", ErrAlreadyBooked, slot)
	case errors.Is(err, store.ErrNotFound):
		return Ledger{}, fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	case err != nil:
		return Ledger{}, err
	}
	log.Printf("Slot %q of %s booked by %s", slot, month, booker)

	updated, err := s.ReadLedger(ctx)
	if err != nil {
		return Ledger{}, err
	}
	booked, _ := updated.Slot(slot)
	s.notify(bookingEvent(booked, booker, now))
	s.broadcast(updated)
	return updated, nil
}

// ResetLedger unbooks every slot of the current month. Reactions and visit
// counters are left alone.
func (s *Service) ResetLedger(ctx context.Context, password string, confirmed bool) (Ledger, error) {
	if !VerifyPassword(s.digest, password) {
		return Ledger{}, ErrUnauthorized
	}
	if !confirmed {
		return Ledger{}, ErrConfirmationRequired
	}
	month := calendar.MonthKey(s.clock())
	rows, err := s.store.ResetLedger(ctx, month, s.names)
	if err != nil {
		return Ledger{}, err
	}
	log.Printf("Ledger for %s reset by admin", month)
	ledger := newLedger(month, rows, s.loc)
	s.broadcast(ledger)
	return ledger, nil
}

// Reactions returns the like and dislike totals.
func (s *Service) Reactions(ctx context.Context) (model.ReactionCounter, error) {
	return s.store.GetReactions(ctx)
}

// React adds one to the counter of kind.
func (s *Service) React(ctx context.Context, kind model.ReactionKind) (model.ReactionCounter, error) {
	if !kind.Valid() {
		return model.ReactionCounter{}, fmt.Errorf("%w: %q", ErrInvalidReaction, kind)
	}
	return s.store.IncrementReaction(ctx, kind)
}

// TodayVisits counts the visits of one calendar day.
type TodayVisits struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// VisitStats is the public view of the visit counters.
type VisitStats struct {
	Visits        int64       `json:"visits"`
	TodayVisits   TodayVisits `json:"todayVisits"`
	LastVisitTime *time.Time  `json:"lastVisitTime"`
}

// RecordVisit counts one page load.
func (s *Service) RecordVisit(ctx context.Context) (VisitStats, error) {
	now := s.clock()
	stat, err := s.store.RecordVisit(ctx, calendar.DayKey(now), now)
	if err != nil {
		return VisitStats{}, err
	}
	return VisitStats{
		Visits:        stat.Visits,
		TodayVisits:   TodayVisits{Date: stat.TodayDate, Count: stat.TodayCount},
		LastVisitTime: stat.LastVisitAt,
	}, nil
}

func (s *Service) notify(ev notification.Event) {
	if s.notifier != nil {
		s.notifier.Dispatch(ev)
	}
}

func (s *Service) broadcast(l Ledger) {
	if s.live != nil {
		s.live.Broadcast(l)
	}
}

func bookingEvent(slot Slot, booker string, at time.Time) notification.Event {
	period := slot.Name
	if slot.From != "" {
		period = fmt.Sprintf("%s (%s ~ %s)", slot.Name, slot.From, slot.To)
	}
	return notification.Event{
		Kind:  notification.KindBooking,
		Title: "☕ 新的咖啡预约",
		Body: fmt.Sprintf("**预约时段**：%s\n**预约人**：%s\n**预约时间**：%s",
			period, booker, at.Format("2006-01-02 15:04:05")),
	}
}
