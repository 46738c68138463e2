package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"coffee-booking-backend/internal/model"
	"coffee-booking-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPushSink pushes every event to all stored browser subscriptions.
type WebPushSink struct {
	subs    store.SubscriptionStore
	options *webpush.Options
	sender  NotificationSender
}

// NewWebPushSink creates a sink using the real webpush sender.
func NewWebPushSink(subs store.SubscriptionStore, options *webpush.Options) *WebPushSink {
	return &WebPushSink{subs: subs, options: options, sender: &WebPushSender{}}
}

// Name implements Sink.
func (s *WebPushSink) Name() string { return "webpush" }

// Send delivers ev to every subscription. It fails only if no delivery
// succeeded, so one broken browser does not trigger retries for the rest.
func (s *WebPushSink) Send(ctx context.Context, ev Event) error {
	subscriptions, err := s.subs.ListPushSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subscriptions) == 0 {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return Permanent(err)
	}

	var errs []error
	for _, sub := range subscriptions {
		if err := s.sendOne(ctx, sub, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(subscriptions) {
		return errors.Join(errs...)
	}
	return nil
}

// sendOne sends a single web push notification.
func (s *WebPushSink) sendOne(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := s.sender.Send(payload, wpSub, s.options)
	if err != nil {
		return fmt.Errorf("push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := s.subs.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
		return nil
	case resp.StatusCode >= 400:
		return fmt.Errorf("push to %s: status %d", sub.Endpoint, resp.StatusCode)
	}
	return nil
}
