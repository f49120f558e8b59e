package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pinksync/internal/contract"
)

// webhookPayload is the JSON body pushed to consumer endpoints.
type webhookPayload struct {
	SubscriptionID string          `json:"subscription_id"`
	EventID        string          `json:"event_id"`
	AppID          string          `json:"app_id"`
	UserID         string          `json:"user_id,omitempty"`
	Intent         string          `json:"intent"`
	Timestamp      time.Time       `json:"timestamp"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Level          string          `json:"compliance_level,omitempty"`
}

// WebhookDeliverer pushes events to consumer callback URLs. A 2xx response
// within the context deadline is an ack; anything else is a failed attempt.
type WebhookDeliverer struct {
	client *http.Client
}

func NewWebhookDeliverer(client *http.Client) *WebhookDeliverer {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookDeliverer{client: client}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, sub Subscription, event contract.Event) error {
	if sub.Endpoint == "" {
		return fmt.Errorf("subscription %s has no endpoint", sub.ID)
	}
	body, err := json.Marshal(webhookPayload{
		SubscriptionID: sub.ID.String(),
		EventID:        event.EventID,
		AppID:          event.AppID.String(),
		UserID:         event.UserID.String(),
		Intent:         event.Intent.String(),
		Timestamp:      event.Timestamp,
		Metadata:       event.Metadata,
		Level:          event.Level.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("push webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("consumer responded %d", resp.StatusCode)
	}
	return nil
}
