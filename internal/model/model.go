// Package model contains the persisted records of the booking service.
package model

// All returns every model that must be migrated.
func All() []any {
	return []any{
		&BookingSlot{},
		&ReactionCounter{},
		&VisitStat{},
		&Invitation{},
		&PushSubscription{},
		&DeadLetter{},
	}
}
