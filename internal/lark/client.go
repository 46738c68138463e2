package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"coffee-booking-backend/config"
	"coffee-booking-backend/internal/model"
	"coffee-booking-backend/internal/notification"
)

// Client sends cards as the app bot. The SDK handles the tenant access
// token.
type Client struct {
	api           *lark.Client
	receiveID     string
	receiveIDType string
	templateID    string
}

// NewClient creates a client from the app credentials in cfg.
func NewClient(cfg config.LarkConfig) *Client {
	var opts []lark.ClientOptionFunc
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	return &Client{
		api:           lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		receiveID:     cfg.ReceiveID,
		receiveIDType: cfg.ReceiveIDType,
		templateID:    cfg.InvitationTemplateID,
	}
}

// Name implements notification.Sink.
func (c *Client) Name() string { return "lark" }

// Send implements notification.Sink. Events addressed to a user go to that
// open id; the rest go to the configured receiver.
func (c *Client) Send(ctx context.Context, ev notification.Event) error {
	receiveID, receiveIDType := ev.ReceiveID, "open_id"
	if receiveID == "" {
		receiveID, receiveIDType = c.receiveID, c.receiveIDType
	}
	if receiveID == "" {
		return notification.Permanent(errors.New("lark: no receive id configured"))
	}
	return c.sendCard(ctx, receiveIDType, receiveID, EventCard(ev))
}

// SendInvitationCard sends the interactive invitation card to the invitee.
func (c *Client) SendInvitationCard(ctx context.Context, inv model.Invitation) error {
	return c.sendCard(ctx, "open_id", inv.RecipientID, InvitationCard(inv, c.templateID))
}

type apiResult struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *Client) sendCard(ctx context.Context, receiveIDType, receiveID string, card any) error {
	content, err := json.Marshal(card)
	if err != nil {
		return notification.Permanent(err)
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType("interactive").
			Content(string(content)).
			Build()).
		Build()
	resp, err := c.api.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("lark: send message: %w", err)
	}
	return checkResult(resp.StatusCode, resp.RawBody)
}

// checkResult maps an open platform reply to an error. Client errors other
// than rate limiting are permanent.
func checkResult(status int, body []byte) error {
	var res apiResult
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("lark: unexpected reply (status %d): %w", status, err)
	}
	if status < 300 && res.Code == 0 {
		return nil
	}
	err := fmt.Errorf("lark: code=%d msg=%s status=%d", res.Code, res.Msg, status)
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return notification.Permanent(err)
	}
	return err
}
