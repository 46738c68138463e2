package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"coffee-booking-backend/internal/invitation"
	"coffee-booking-backend/internal/model"
)

// CallbackHandler applies an invitation card button press.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, id, action, operatorID string) (model.Invitation, error)
}

// Listener receives card callbacks over the long connection, so the
// service needs no public callback URL.
type Listener struct {
	appID     string
	appSecret string
	handler   CallbackHandler
}

// NewListener creates a listener for the given app.
func NewListener(appID, appSecret string, handler CallbackHandler) *Listener {
	return &Listener{appID: appID, appSecret: appSecret, handler: handler}
}

// Run connects and serves callbacks. The SDK reconnects on its own; Run
// only returns if the first connection fails.
func (l *Listener) Run(ctx context.Context) error {
	events := dispatcher.NewEventDispatcher("", "").
		OnP2CardActionTrigger(l.onCardAction)

	cli := larkws.NewClient(l.appID, l.appSecret,
		larkws.WithEventHandler(events),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)
	log.Println("Lark callback listener connecting")
	return cli.Start(ctx)
}

func (l *Listener) onCardAction(ctx context.Context, event *callback.CardActionTriggerEvent) (*callback.CardActionTriggerResponse, error) {
	if event == nil || event.Event == nil {
		return toastResponse(toastFor(cardAction{}, nil, nil))
	}
	raw, err := json.Marshal(event.Event)
	if err != nil {
		return nil, err
	}
	action, err := decodeCardAction(raw)
	if err != nil {
		log.Printf("Malformed card action: %v", err)
		return toastResponse(errorToast)
	}
	return toastResponse(l.respond(ctx, action))
}

// cardAction is the part of a card.action.trigger payload we use.
type cardAction struct {
	Action struct {
		Tag   string            `json:"tag"`
		Value map[string]string `json:"value"`
	} `json:"action"`
	Operator struct {
		OpenID string `json:"open_id"`
	} `json:"operator"`
}

func decodeCardAction(raw []byte) (cardAction, error) {
	var a cardAction
	if err := json.Unmarshal(raw, &a); err != nil {
		return cardAction{}, fmt.Errorf("decode card action: %w", err)
	}
	return a, nil
}

// respond applies a button press and returns the toast for the clicker.
func (l *Listener) respond(ctx context.Context, a cardAction) Toast {
	if a.Action.Tag != "button" {
		return toastFor(a, nil, nil)
	}
	id := a.Action.Value[valueInvitationID]
	actionType := a.Action.Value[valueActionType]
	inv, err := l.handler.HandleCallback(ctx, id, actionType, a.Operator.OpenID)
	if err != nil {
		log.Printf("Card callback for invitation %q failed: %v", id, err)
	}
	return toastFor(a, &inv, err)
}

// Toast is the popup shown to the user who pressed a card button.
type Toast struct {
	Type    string            `json:"type"`
	Content string            `json:"content"`
	I18n    map[string]string `json:"i18n"`
}

func newToast(kind, zh, en string) Toast {
	return Toast{Type: kind, Content: zh, I18n: map[string]string{"zh_cn": zh, "en_us": en}}
}

var errorToast = newToast("error", "系统错误", "System error")

func toastFor(a cardAction, inv *model.Invitation, err error) Toast {
	switch {
	case errors.Is(err, invitation.ErrNotFound):
		return newToast("error", "邀请不存在", "Invitation not found")
	case errors.Is(err, invitation.ErrInvalidAction):
		return newToast("error", "无效的操作", "Invalid action")
	case errors.Is(err, invitation.ErrNotRecipient), errors.Is(err, invitation.ErrInvalidUserID):
		return newToast("error", "只有受邀人可以回复", "Only the invitee can respond")
	case err != nil:
		return errorToast
	case inv == nil:
		return newToast("success", "卡片交互成功", "Card action success")
	}

	requested := model.InvitationAccepted
	if a.Action.Value[valueActionType] == invitation.ActionReject {
		requested = model.InvitationRejected
	}
	switch {
	case inv.Status != requested:
		return newToast("info", "邀请已经回复过了", "Invitation already answered")
	case inv.Status == model.InvitationAccepted:
		return newToast("success", "已接受邀请", "Invitation accepted")
	default:
		return newToast("success", "已婉拒邀请", "Invitation declined")
	}
}

func toastResponse(t Toast) (*callback.CardActionTriggerResponse, error) {
	raw, err := json.Marshal(map[string]Toast{"toast": t})
	if err != nil {
		return nil, err
	}
	var resp callback.CardActionTriggerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
