package model

import "time"

// VisitStat is the singleton row holding page visit counters.
type VisitStat struct {
	ID          uint   `gorm:"primaryKey"`
	Visits      int64  `gorm:"not null;default:0"`
	TodayDate   string `gorm:"size:10;not null"`
	TodayCount  int64  `gorm:"not null;default:0"`
	LastVisitAt *time.Time
}
