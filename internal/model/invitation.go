package model

import "time"

// InvitationStatus is the state of a coffee invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s InvitationStatus) Terminal() bool {
	return s == InvitationAccepted || s == InvitationRejected
}

// Invitation is a request sent to a chat recipient to accept or decline a
// coffee meeting.
type Invitation struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	SenderID    string           `gorm:"size:255;not null" json:"senderId"`
	RecipientID string           `gorm:"size:255;not null;index" json:"recipientId"`
	Status      InvitationStatus `gorm:"size:16;not null;index" json:"status"`
	Message     string           `gorm:"type:text" json:"message,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
