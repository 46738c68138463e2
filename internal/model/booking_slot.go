package model

import "time"

// BookingSlot is one weekly slot of a month's ledger. A month's ledger is the
// set of rows sharing the same Month key, ordered by Position.
type BookingSlot struct {
	Month      string     `gorm:"primaryKey;size:7" json:"month"`
	Name       string     `gorm:"primaryKey;size:64" json:"name"`
	Position   int        `gorm:"not null" json:"position"`
	Booked     bool       `gorm:"not null;index" json:"booked"`
	BookerName string     `gorm:"size:128" json:"bookerName,omitempty"`
	BookedAt   *time.Time `json:"bookedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
