package provider

import (
	"context"
	"net/http"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// ErrorKind classifies a failed adapter call.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindNotFound      ErrorKind = "not_found"
	KindProviderError ErrorKind = "provider_error"
	KindRateLimited   ErrorKind = "rate_limited"
	// KindRejected means the vendor permanently refused a message
	// (invalid number, blocked recipient). Only senders return it.
	KindRejected ErrorKind = "rejected"
)

// Transient reports whether the same call may succeed if repeated.
func (k ErrorKind) Transient() bool {
	return k == KindProviderError || k == KindRateLimited
}

// ResolutionResult maps the kind onto the resolution attempt vocabulary.
func (k ErrorKind) ResolutionResult() domain.ResolutionResult {
	switch k {
	case KindNone:
		return domain.ResultSuccess
	case KindNotFound, KindRejected:
		return domain.ResultNotFound
	case KindRateLimited:
		return domain.ResultRateLimited
	}
	return domain.ResultProviderError
}

// Result is the outcome of one adapter call.
type Result struct {
	Success   bool
	Data      string // resolved contact value for enrichers
	MessageID string // vendor message id for senders
	Cost      float64
	Retryable bool
	ErrorKind ErrorKind
	Err       error
}

// Error returns the failure message, or "" on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Found is a successful lookup.
func Found(value string, cost float64) Result {
	return Result{Success: true, Data: value, Cost: cost}
}

// Delivered is a successful send.
func Delivered(messageID string, cost float64) Result {
	return Result{Success: true, MessageID: messageID, Cost: cost}
}

// NotFound is a permanent miss for this vendor and lead.
func NotFound(cost float64) Result {
	return Result{ErrorKind: KindNotFound, Cost: cost}
}

// Failed builds a failure result of the given kind.
func Failed(kind ErrorKind, err error, cost float64) Result {
	return Result{ErrorKind: kind, Err: err, Cost: cost, Retryable: kind.Transient()}
}

// Adapter is the common identity of every provider.
type Adapter interface {
	ID() string
}

// Enricher resolves a missing contact field for a lead.
type Enricher interface {
	Adapter
	Lookup(ctx context.Context, lead *domain.Lead, field domain.ContactField) Result
}

// Sender delivers a composed message.
type Sender interface {
	Adapter
	Send(ctx context.Context, msg Message) Result
}

// Payload is the caller-supplied message content. Subject and Body are
// Liquid templates rendered against the lead.
type Payload struct {
	Subject string         `json:"subject,omitempty"`
	Body    string         `json:"body,omitempty"`
	Vars    map[string]any `json:"vars,omitempty"`
}

// Message is a rendered, addressed message ready for a Sender.
type Message struct {
	LeadID         string
	ClientID       string
	CampaignID     string
	Channel        domain.Channel
	IdempotencyKey string
	To             string // recipient contact value
	From           string // acquired resource identifier; empty for postal mail
	RecipientName  string
	Subject        string
	Body           string
}

// Templated is implemented by senders that carry a default template used
// when the payload has no body.
type Templated interface {
	DefaultPayload() Payload
}

// classifyLookup maps an enrichment vendor's HTTP status to an error kind.
func classifyLookup(status int) ErrorKind {
	switch {
	case status == http.StatusNoContent, status == http.StatusNotFound,
		status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindNotFound
	case status >= 200 && status < 300:
		return KindNone
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	}
	return KindProviderError
}

// classifySend maps a messaging vendor's HTTP status to an error kind.
func classifySend(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return KindNone
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout:
		return KindProviderError
	case status >= 400 && status < 500:
		return KindRejected
	}
	return KindProviderError
}
