package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"coffee-booking-backend/internal/notification"
)

// WebhookSink posts cards to a custom bot webhook.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink for the given webhook URL.
func NewWebhookSink(webhookURL string) *WebhookSink {
	return &WebhookSink{url: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

// Name implements notification.Sink.
func (w *WebhookSink) Name() string { return "lark-webhook" }

type webhookMessage struct {
	MsgType string `json:"msg_type"`
	Card    Card   `json:"card"`
}

// webhookReply covers both the current and the legacy bot reply shape.
type webhookReply struct {
	Code       *int   `json:"code"`
	Msg        string `json:"msg"`
	StatusCode *int   `json:"StatusCode"`
}

// Send implements notification.Sink.
func (w *WebhookSink) Send(ctx context.Context, ev notification.Event) error {
	payload, err := json.Marshal(webhookMessage{MsgType: "interactive", Card: EventCard(ev)})
	if err != nil {
		return notification.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return notification.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("lark webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("lark webhook: read reply: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("lark webhook: status %d: %s", resp.StatusCode, body)
	}

	var reply webhookReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("lark webhook: unexpected reply: %w", err)
	}
	switch {
	case reply.Code != nil && *reply.Code != 0:
		return notification.Permanent(fmt.Errorf("lark webhook: code=%d msg=%s", *reply.Code, reply.Msg))
	case reply.StatusCode != nil && *reply.StatusCode != 0:
		return notification.Permanent(fmt.Errorf("lark webhook: StatusCode=%d", *reply.StatusCode))
	}
	return nil
}
