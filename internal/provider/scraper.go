package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
)

// ScraperEnricher drives a headless-browser scraping service. It is slow and
// expensive, so it normally sits in the last tier and does no client retries.
type ScraperEnricher struct {
	id     string
	cost   float64
	client *resty.Client
}

type scrapeRequest struct {
	Field     string `json:"field"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Profile   string `json:"profile_url,omitempty"`
}

type scrapeResponse struct {
	Value  string `json:"value"`
	Source string `json:"source,omitempty"`
}

// NewScraperEnricher creates a scraping adapter from its provider definition.
func NewScraperEnricher(cfg config.ProviderConfig) (*ScraperEnricher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s needs base_url", ErrMissingConfig, cfg.ID)
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if key := cfg.Key(); key != "" {
		client.SetAuthToken(key)
	}
	return &ScraperEnricher{id: cfg.ID, cost: cfg.CostPerCall, client: client}, nil
}

func (s *ScraperEnricher) ID() string { return s.id }

// Lookup asks the scraping service to find one field of lead.
func (s *ScraperEnricher) Lookup(ctx context.Context, lead *domain.Lead, field domain.ContactField) Result {
	var out scrapeResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(scrapeRequest{
			Field:     string(field),
			FirstName: lead.FirstName,
			LastName:  lead.LastName,
			Company:   lead.Company,
			Domain:    lead.Domain,
			Profile:   lead.SocialHandle,
		}).
		SetResult(&out).
		Post("/scrape")
	if err != nil {
		return Failed(KindProviderError, fmt.Errorf("%s scrape: %w", s.id, err), 0)
	}

	switch kind := classifyLookup(resp.StatusCode()); kind {
	case KindNone:
	case KindNotFound:
		return NotFound(s.cost)
	default:
		return Failed(kind, fmt.Errorf("%s scrape: status %d: %s", s.id, resp.StatusCode(), resp.String()), 0)
	}

	if strings.TrimSpace(out.Value) == "" {
		return NotFound(s.cost)
	}
	return Found(out.Value, s.cost)
}
