package model

import "time"

// DeadLetter records a notification that exhausted its delivery attempts.
type DeadLetter struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Sink      string    `gorm:"size:64;not null;index" json:"sink"`
	Kind      string    `gorm:"size:64;not null" json:"kind"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	Attempts  int       `gorm:"not null" json:"attempts"`
	LastError string    `gorm:"type:text" json:"lastError"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}
