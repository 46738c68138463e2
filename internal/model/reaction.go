package model

import "time"

// ReactionKind names one of the two reaction counters.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)

// Valid reports whether k is a known reaction.
func (k ReactionKind) Valid() bool {
	return k == ReactionLike || k == ReactionDislike
}

// ReactionCounter is the singleton row holding the like/dislike totals.
type ReactionCounter struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Likes     int64     `gorm:"not null;default:0" json:"like"`
	Dislikes  int64     `gorm:"not null;default:0" json:"dislike"`
	UpdatedAt time.Time `json:"-"`
}
