package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/pkg/httpretry"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

// PostalSender submits letters to a print-and-mail vendor. Postal mail holds
// no shared resource, so msg.From is unused.
type PostalSender struct {
	id       string
	baseURL  string
	apiKey   string
	cost     float64
	defaults Payload
	client   httpretry.HTTPDoer
}

type letterRequest struct {
	ToName         string `json:"to_name"`
	ToAddress      string `json:"to_address"`
	HTML           string `json:"html"`
	IdempotencyKey string `json:"idempotency_key"`
}

type letterResponse struct {
	ID           string `json:"id"`
	ExpectedDate string `json:"expected_delivery_date,omitempty"`
}

// NewPostalSender creates a print-and-mail sender.
func NewPostalSender(cfg config.ProviderConfig) (*PostalSender, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s needs base_url", ErrMissingConfig, cfg.ID)
	}
	return &PostalSender{
		id:       cfg.ID,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.Key(),
		cost:     cfg.CostPerCall,
		defaults: Payload{Body: cfg.Template},
		client:   httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.MaxRetries),
	}, nil
}

func (p *PostalSender) ID() string               { return p.id }
func (p *PostalSender) DefaultPayload() Payload { return p.defaults }

// Send submits one letter.
func (p *PostalSender) Send(ctx context.Context, msg Message) Result {
	payload, err := json.Marshal(letterRequest{
		ToName:         msg.RecipientName,
		ToAddress:      msg.To,
		HTML:           msg.Body,
		IdempotencyKey: msg.IdempotencyKey,
	})
	if err != nil {
		return Failed(KindRejected, err, 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/letters", bytes.NewReader(payload))
	if err != nil {
		return Failed(KindProviderError, err, 0)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.SetBasicAuth(p.apiKey, "")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Failed(KindProviderError, fmt.Errorf("%s: %w", p.id, err), 0)
	}
	defer resp.Body.Close()

	if kind := classifySend(resp.StatusCode); kind != KindNone {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Failed(kind, fmt.Errorf("%s: status %d: %s", p.id, resp.StatusCode, strings.TrimSpace(string(detail))), 0)
	}

	// The letter is accepted once the vendor answers 2xx; a bad body only costs us the id.
	var out letterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logger.Warn("postal response not decodable", "provider", p.id, "error", err)
	}
	return Delivered(out.ID, p.cost)
}
