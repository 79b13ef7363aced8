package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

// WebhookSender posts SMS or voice jobs to a telephony vendor. The acquired
// phone resource's identifier is the caller id.
type WebhookSender struct {
	id       string
	path     string
	cost     float64
	defaults Payload
	client   *resty.Client
}

type webhookRequest struct {
	To             string `json:"to"`
	From           string `json:"from"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key"`
}

type webhookResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status,omitempty"`
}

// NewSMSSender creates a sender posting to {base}/messages.
func NewSMSSender(cfg config.ProviderConfig) (*WebhookSender, error) {
	return newWebhookSender(cfg, "/messages")
}

// NewVoiceSender creates a sender posting to {base}/calls. The rendered
// body is the call script.
func NewVoiceSender(cfg config.ProviderConfig) (*WebhookSender, error) {
	return newWebhookSender(cfg, "/calls")
}

func newWebhookSender(cfg config.ProviderConfig, path string) (*WebhookSender, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s needs base_url", ErrMissingConfig, cfg.ID)
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if key := cfg.Key(); key != "" {
		client.SetHeader("x-api-key", key)
	}
	return &WebhookSender{
		id:       cfg.ID,
		path:     path,
		cost:     cfg.CostPerCall,
		defaults: Payload{Body: cfg.Template},
		client:   client,
	}, nil
}

func (w *WebhookSender) ID() string               { return w.id }
func (w *WebhookSender) DefaultPayload() Payload { return w.defaults }

// Send submits msg. The idempotency key lets the vendor drop duplicates
// if a retry races a slow acknowledgement.
func (w *WebhookSender) Send(ctx context.Context, msg Message) Result {
	var out webhookResponse
	start := time.Now()
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", msg.IdempotencyKey).
		SetBody(webhookRequest{
			To:             msg.To,
			From:           msg.From,
			Content:        msg.Body,
			IdempotencyKey: msg.IdempotencyKey,
		}).
		SetResult(&out).
		Post(w.path)
	if err != nil {
		return Failed(KindProviderError, fmt.Errorf("%s: %w", w.id, err), 0)
	}

	if kind := classifySend(resp.StatusCode()); kind != KindNone {
		logger.Warn("telephony send failed", "provider", w.id, "phone", msg.To, "status", resp.StatusCode(), "kind", kind)
		return Failed(kind, fmt.Errorf("%s: status %d: %s", w.id, resp.StatusCode(), resp.String()), 0)
	}

	logger.Info("telephony message accepted", "provider", w.id, "phone", msg.To,
		"message_id", out.MessageID, "duration", time.Since(start))
	return Delivered(out.MessageID, w.cost)
}
