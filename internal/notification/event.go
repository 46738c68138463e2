// Package notification delivers booking and invitation notices to outbound
// channels on a background worker pool.
package notification

import (
	"context"
	"errors"
)

// Event is one notice to deliver. Chat sinks render Title and Body as a card
// with a Color header; ReceiveID overrides the sink's default recipient.
type Event struct {
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Color     string `json:"color,omitempty"`
	ReceiveID string `json:"receiveId,omitempty"`
}

// Event kinds.
const (
	KindBooking           = "booking"
	KindInvitationOutcome = "invitation_outcome"
)

// Sink delivers events to one outbound channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
