package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/pkg/httpretry"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

// LinkedInSender sends direct messages from a social seat. The seat is the
// acquired resource; its identifier is the sending member URN.
type LinkedInSender struct {
	id       string
	baseURL  string
	cost     float64
	defaults Payload
	client   httpretry.HTTPDoer
}

type linkedInMessage struct {
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	Subject        string `json:"subject,omitempty"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type linkedInResponse struct {
	ID string `json:"id"`
}

// NewLinkedInSender creates a sender authenticated with the OAuth2
// client-credentials grant. Tokens are fetched and refreshed by the
// oauth2 transport.
func NewLinkedInSender(ctx context.Context, cfg config.ProviderConfig) (*LinkedInSender, error) {
	if cfg.BaseURL == "" || cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: %s needs base_url, token_url and client_id", ErrMissingConfig, cfg.ID)
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = cfg.Timeout()

	return &LinkedInSender{
		id:       cfg.ID,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cost:     cfg.CostPerCall,
		defaults: Payload{Subject: cfg.Subject, Body: cfg.Template},
		client:   httpretry.NewRetryClient(httpClient, cfg.MaxRetries),
	}, nil
}

func (l *LinkedInSender) ID() string               { return l.id }
func (l *LinkedInSender) DefaultPayload() Payload { return l.defaults }

// Send posts one message from msg.From to msg.To.
func (l *LinkedInSender) Send(ctx context.Context, msg Message) Result {
	body, err := json.Marshal(linkedInMessage{
		Sender:         msg.From,
		Recipient:      msg.To,
		Subject:        msg.Subject,
		Body:           msg.Body,
		IdempotencyKey: msg.IdempotencyKey,
	})
	if err != nil {
		return Failed(KindRejected, err, 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v2/messages", bytes.NewReader(body))
	if err != nil {
		return Failed(KindProviderError, err, 0)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Failed(KindProviderError, fmt.Errorf("%s: %w", l.id, err), 0)
	}
	defer resp.Body.Close()

	if kind := classifySend(resp.StatusCode); kind != KindNone {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Warn("linkedin send failed", "provider", l.id, "seat", msg.From, "status", resp.StatusCode, "kind", kind)
		return Failed(kind, fmt.Errorf("%s: status %d: %s", l.id, resp.StatusCode, strings.TrimSpace(string(detail))), 0)
	}

	var out linkedInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		logger.Warn("linkedin response not decodable", "provider", l.id, "error", err)
	}
	return Delivered(out.ID, l.cost)
}
