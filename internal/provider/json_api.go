package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/httpretry"
)

// JSONAPIEnricher looks up contact data from a vendor exposing
// GET {base}/v1/lookup?field=...&first_name=...
//
// 200 with a value is a hit; 404, 204, or an empty value is a miss;
// 429 is rate limiting; anything else is a provider error.
type JSONAPIEnricher struct {
	id      string
	baseURL string
	apiKey  string
	cost    float64
	client  httpretry.HTTPDoer
}

type lookupResponse struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
}

// NewJSONAPIEnricher creates a lookup adapter from its provider definition.
func NewJSONAPIEnricher(cfg config.ProviderConfig) (*JSONAPIEnricher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s needs base_url", ErrMissingConfig, cfg.ID)
	}
	return &JSONAPIEnricher{
		id:      cfg.ID,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.Key(),
		cost:    cfg.CostPerCall,
		client:  httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.MaxRetries),
	}, nil
}

func (e *JSONAPIEnricher) ID() string { return e.id }

// Lookup queries the vendor for one field of lead.
func (e *JSONAPIEnricher) Lookup(ctx context.Context, lead *domain.Lead, field domain.ContactField) Result {
	q := url.Values{}
	q.Set("field", string(field))
	setIf(q, "first_name", lead.FirstName)
	setIf(q, "last_name", lead.LastName)
	setIf(q, "company", lead.Company)
	setIf(q, "domain", lead.Domain)
	setIf(q, "title", lead.Title)
	if field != domain.FieldEmail {
		setIf(q, "email", lead.Email)
	}
	if field != domain.FieldSocialHandle {
		setIf(q, "linkedin", lead.SocialHandle)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/lookup?"+q.Encode(), nil)
	if err != nil {
		return Failed(KindProviderError, err, 0)
	}
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Failed(KindProviderError, fmt.Errorf("%s lookup: %w", e.id, err), 0)
	}
	defer resp.Body.Close()

	// Vendors bill per answered request, not per transport failure.
	kind := classifyLookup(resp.StatusCode)
	switch kind {
	case KindNone:
	case KindNotFound:
		return NotFound(e.cost)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Failed(kind, fmt.Errorf("%s lookup: status %d: %s", e.id, resp.StatusCode, strings.TrimSpace(string(body))), 0)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Failed(KindProviderError, fmt.Errorf("%s lookup: decode: %w", e.id, err), e.cost)
	}
	if strings.TrimSpace(out.Value) == "" {
		return NotFound(e.cost)
	}
	return Found(out.Value, e.cost)
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}
