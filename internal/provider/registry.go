package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Variant names accepted in provider configuration.
const (
	VariantJSONAPI  = "json_api"
	VariantScraper  = "scraper"
	VariantSES      = "ses"
	VariantSMS      = "sms_webhook"
	VariantVoice    = "voice_webhook"
	VariantLinkedIn = "linkedin"
	VariantPostal   = "postal"
	VariantStatic   = "static"
)

// Registry holds the adapters built at startup, keyed by provider id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Build constructs one adapter per provider definition.
func Build(ctx context.Context, cfg *config.Config) (*Registry, error) {
	r := NewRegistry()
	for _, pc := range cfg.Providers {
		a, err := newAdapter(ctx, pc, cfg.AWS)
		if err != nil {
			return nil, err
		}
		r.Register(a)
	}
	return r, nil
}

func newAdapter(ctx context.Context, pc config.ProviderConfig, aws config.AWSConfig) (Adapter, error) {
	switch pc.Variant {
	case VariantJSONAPI:
		return NewJSONAPIEnricher(pc)
	case VariantScraper:
		return NewScraperEnricher(pc)
	case VariantSES:
		return NewSESSender(ctx, pc, aws)
	case VariantSMS:
		return NewSMSSender(pc)
	case VariantVoice:
		return NewVoiceSender(pc)
	case VariantLinkedIn:
		return NewLinkedInSender(ctx, pc)
	case VariantPostal:
		return NewPostalSender(pc)
	case VariantStatic:
		values := make(map[domain.ContactField]string, len(pc.Values))
		for k, v := range pc.Values {
			values[domain.ContactField(k)] = v
		}
		s := NewStatic(pc.ID, values, pc.CostPerCall)
		if pc.FailWith != "" {
			s.FailWith(ErrorKind(pc.FailWith))
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q (provider %s)", ErrUnknownVariant, pc.Variant, pc.ID)
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.ID()] = a
	r.mu.Unlock()
}

// Enricher returns the adapter with id as an Enricher.
func (r *Registry) Enricher(id string) (Enricher, error) {
	r.mu.RLock()
	a, ok := r.adapters[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	e, ok := a.(Enricher)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEnricher, id)
	}
	return e, nil
}

// Sender returns the adapter with id as a Sender.
func (r *Registry) Sender(id string) (Sender, error) {
	r.mu.RLock()
	a, ok := r.adapters[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	s, ok := a.(Sender)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSender, id)
	}
	return s, nil
}

// IDs lists registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tiers resolves the configured enricher chain for every contact field.
func (r *Registry) Tiers(tiers map[string][]string) (map[domain.ContactField][]Enricher, error) {
	out := make(map[domain.ContactField][]Enricher, len(tiers))
	for field, ids := range tiers {
		chain := make([]Enricher, 0, len(ids))
		for _, id := range ids {
			e, err := r.Enricher(id)
			if err != nil {
				return nil, fmt.Errorf("tier %s: %w", field, err)
			}
			chain = append(chain, e)
		}
		out[domain.ContactField(field)] = chain
	}
	return out, nil
}

// Senders resolves the configured channel -> sender routing.
func (r *Registry) Senders(channels map[string]string) (map[domain.Channel]Sender, error) {
	out := make(map[domain.Channel]Sender, len(channels))
	for ch, id := range channels {
		c := domain.Channel(ch)
		if !c.Valid() {
			return nil, fmt.Errorf("channel %q: unknown channel", ch)
		}
		s, err := r.Sender(id)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch, err)
		}
		out[c] = s
	}
	return out, nil
}
