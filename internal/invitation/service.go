// Package invitation runs the coffee invitation state machine:
// pending -> accepted | rejected, both terminal.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"coffee-booking-backend/internal/model"
	"coffee-booking-backend/internal/notification"
	"coffee-booking-backend/internal/store"
)

var (
	ErrNotFound              = errors.New("invitation not found")
	ErrInvalidAction         = errors.New("invalid invitation action")
	ErrRecipientRequired     = errors.New("recipient id is required")
	ErrInvalidUserID         = errors.New("invalid open id")
	ErrNotRecipient          = errors.New("only the invitee can respond")
	ErrTransportUnconfigured = errors.New("chat transport is not configured")
	ErrTransport             = errors.New("chat transport failure")
)

// Card actions carried in the invitation card buttons.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// openIDPattern matches chat open ids. Ids are placed in card markup, so
// anything else is refused.
var openIDPattern = regexp.MustCompile(`^ou_[A-Za-z0-9]+$`)

func validOpenID(id string) bool {
	return openIDPattern.MatchString(id)
}

// CardSender delivers the interactive invitation card to the recipient.
type CardSender interface {
	SendInvitationCard(ctx context.Context, inv model.Invitation) error
}

// Notifier queues outbound notices. It must not block.
type Notifier interface {
	Dispatch(ev notification.Event)
}

// Service creates invitations and applies card callbacks.
type Service struct {
	store         store.InvitationStore
	cards         CardSender
	notifier      Notifier
	defaultSender string
	now           func() time.Time
	newID         func() string
}

// NewService creates an invitation service. cards may be nil when no chat
// transport is configured; Create then fails with ErrTransportUnconfigured.
func NewService(s store.InvitationStore, cards CardSender, notifier Notifier, defaultSender string) *Service {
	return &Service{
		store:         s,
		cards:         cards,
		notifier:      notifier,
		defaultSender: defaultSender,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Create stores a pending invitation and sends its card. If the card cannot
// be delivered the invitation stays pending and ErrTransport is returned.
func (s *Service) Create(ctx context.Context, senderID, recipientID, message string) (model.Invitation, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return model.Invitation{}, ErrRecipientRequired
	}
	if senderID == "" {
		senderID = s.defaultSender
	}
	if !validOpenID(recipientID) {
		return model.Invitation{}, fmt.Errorf("%w: recipient %q", ErrInvalidUserID, recipientID)
	}
	if senderID != "" && !validOpenID(senderID) {
		return model.Invitation{}, fmt.Errorf("%w: sender %q", ErrInvalidUserID, senderID)
	}
	if s.cards == nil {
		return model.Invitation{}, ErrTransportUnconfigured
	}

	now := s.now().UTC()
	inv := model.Invitation{
		ID:          s.newID(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      model.InvitationPending,
		Message:     strings.TrimSpace(message),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateInvitation(ctx, &inv); err != nil {
		return model.Invitation{}, err
	}

	if err := s.cards.SendInvitationCard(ctx, inv); err != nil {
		log.Printf("Failed to send invitation card %s to %s: %v", inv.ID, recipientID, err)
		return inv, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	log.Printf("Invitation %s sent to %s", inv.ID, recipientID)
	return inv, nil
}

// Get returns the invitation with id.
func (s *Service) Get(ctx context.Context, id string) (model.Invitation, error) {
	inv, err := s.store.GetInvitation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Invitation{}, ErrNotFound
	}
	return inv, err
}

// HandleCallback applies a card button press. Only the recipient may answer;
// an empty operatorID is taken to be the recipient. A pending invitation
// moves to accepted or rejected and the sender is notified; replays on a
// terminal invitation return it unchanged without notifying again.
func (s *Service) HandleCallback(ctx context.Context, id, action, operatorID string) (model.Invitation, error) {
	var to model.InvitationStatus
	switch action {
	case ActionAccept:
		to = model.InvitationAccepted
	case ActionReject:
		to = model.InvitationRejected
	default:
		return model.Invitation{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	if operatorID != "" && !validOpenID(operatorID) {
		return model.Invitation{}, fmt.Errorf("%w: operator %q", ErrInvalidUserID, operatorID)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return model.Invitation{}, err
	}
	if operatorID != "" && operatorID != current.RecipientID {
		return model.Invitation{}, fmt.Errorf("%w: %s", ErrNotRecipient, operatorID)
	}

	inv, changed, err := s.store.TransitionInvitation(ctx, id, model.InvitationPending, to, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return model.Invitation{}, ErrNotFound
	}
	if err != nil {
		return model.Invitation{}, err
	}
	if !changed {
		log.Printf("Invitation %s already %s; ignoring %s", id, inv.Status, action)
		return inv, nil
	}

	log.Printf("Invitation %s %s by %s", id, inv.Status, operatorID)
	if s.notifier != nil {
		s.notifier.Dispatch(outcomeEvent(inv, operatorID))
	}
	return inv, nil
}

func outcomeEvent(inv model.Invitation, operatorID string) notification.Event {
	if operatorID == "" {
		operatorID = inv.RecipientID
	}
	body := fmt.Sprintf(`<at id="%s"></at> 婉拒了你的咖啡邀请`, operatorID)
	color := "grey"
	if inv.Status == model.InvitationAccepted {
		body = fmt.Sprintf(`<at id="%s"></at> 接受了你的咖啡邀请！🎉`, operatorID)
		color = "green"
	}
	return notification.Event{
		Kind:      notification.KindInvitationOutcome,
		Title:     "☕ 咖啡邀请回复通知",
		Body:      body,
		Color:     color,
		ReceiveID: inv.SenderID,
	}
}
