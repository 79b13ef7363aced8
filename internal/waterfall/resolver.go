package waterfall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
	"github.com/ignite/outreach-dispatch/internal/provider"
)

// Status is the overall outcome of resolving one field.
type Status string

const (
	StatusResolved       Status = "resolved"
	StatusAlreadyPresent Status = "already_present"
	StatusUnresolved     Status = "unresolved"
)

// Resolution reports what Resolve did for one field.
type Resolution struct {
	Field      domain.ContactField
	Status     Status
	Value      string
	TierIndex  int
	ProviderID string
	Attempts   []domain.ResolutionAttempt
	Cost       float64
}

// Config holds the resolver policy constants.
type Config struct {
	Cooldown        time.Duration // how long a not_found keeps a tier skipped for a lead
	MaxTierAttempts int           // calls per tier before moving on after transient failures
	Timeout         time.Duration // per-call deadline
	CountryCode     string        // dialing code assumed for national phone numbers
}

// ConfigFrom maps the waterfall section of the service config.
func ConfigFrom(cfg config.WaterfallConfig) Config {
	return Config{
		Cooldown:        cfg.Cooldown(),
		MaxTierAttempts: cfg.MaxTierAttempts,
		Timeout:         cfg.AdapterTimeout(),
		CountryCode:     cfg.DefaultCountryCode,
	}
}

// Resolver runs the waterfall. It is safe for concurrent use across leads;
// callers serialize work on the same lead.
type Resolver struct {
	repo  Repository
	tiers map[domain.ContactField][]provider.Enricher
	cfg   Config
	now   func() time.Time
	log   *logger.Scoped
}

// NewResolver creates a resolver over the given tier chains.
func NewResolver(repo Repository, tiers map[domain.ContactField][]provider.Enricher, cfg Config) *Resolver {
	if cfg.MaxTierAttempts < 1 {
		cfg.MaxTierAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Resolver{
		repo:  repo,
		tiers: tiers,
		cfg:   cfg,
		now:   time.Now,
		log:   logger.Component("waterfall"),
	}
}

// WithClock overrides the time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve fills field on lead if it is missing. Business outcomes
// (resolved, unresolved) are reported in the Resolution; a non-nil error
// means the repository failed or ctx was cancelled.
func (r *Resolver) Resolve(ctx context.Context, lead *domain.Lead, field domain.ContactField) (*Resolution, error) {
	res := &Resolution{Field: field, TierIndex: -1}

	if lead.HasContact(field) {
		res.Status = StatusAlreadyPresent
		res.Value = lead.Contact(field)
		return res, nil
	}

	chain, ok := r.tiers[field]
	if !ok {
		switch field {
		case domain.FieldEmail, domain.FieldPhone, domain.FieldSocialHandle, domain.FieldMailingAddress:
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}

	if lead.State.CanTransition(domain.LeadEnriching) && lead.State != domain.LeadEnriching {
		fresh, err := r.repo.UpdateLead(ctx, lead.ID, func(l *domain.Lead) error {
			l.Advance(domain.LeadEnriching)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("save lead %s: %w", lead.ID, err)
		}
		*lead = *fresh
	}

	history, err := r.repo.ListResolutionAttempts(ctx, lead.ID, field)
	if err != nil {
		return nil, fmt.Errorf("list attempts for %s: %w", lead.ID, err)
	}
	cooling := r.coolingProviders(history)

	for idx, enricher := range chain {
		if until, ok := cooling[enricher.ID()]; ok {
			r.log.Debug("tier on cool-down", "lead_id", lead.ID, "field", field, "tier", idx,
				"provider", enricher.ID(), "until", until)
			continue
		}

		value, found, err := r.tryTier(ctx, lead, field, idx, enricher, res)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		// Only the resolved field and the state move are written. A value
		// stored meanwhile by another run is kept.
		fresh, err := r.repo.UpdateLead(ctx, lead.ID, func(l *domain.Lead) error {
			if !l.HasContact(field) {
				l.SetContact(field, value)
			}
			l.Advance(domain.LeadEnriched)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("save lead %s: %w", lead.ID, err)
		}
		*lead = *fresh
		res.Status = StatusResolved
		res.Value = lead.Contact(field)
		res.TierIndex = idx
		res.ProviderID = enricher.ID()
		r.log.Info("contact resolved", "lead_id", lead.ID, "field", field, "tier", idx,
			"provider", enricher.ID(), "attempts", len(res.Attempts), "cost", res.Cost)
		return res, nil
	}

	res.Status = StatusUnresolved
	r.log.Info("contact unresolved", "lead_id", lead.ID, "field", field,
		"tiers", len(chain), "attempts", len(res.Attempts), "cost", res.Cost)
	return res, nil
}

// tryTier calls one enricher up to MaxTierAttempts times. It returns the
// normalized value when the tier produced a usable answer.
func (r *Resolver) tryTier(ctx context.Context, lead *domain.Lead, field domain.ContactField, idx int,
	e provider.Enricher, res *Resolution) (string, bool, error) {

	for attempt := 1; attempt <= r.cfg.MaxTierAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		out := e.Lookup(callCtx, lead, field)
		cancel()

		result := out.ErrorKind.ResolutionResult()
		var value string
		if out.Success {
			normalized, ok := domain.NormalizeContact(field, out.Data, r.cfg.CountryCode)
			if ok {
				value = normalized
				result = domain.ResultSuccess
			} else {
				// An answer we cannot use is a miss for this tier.
				result = domain.ResultNotFound
				out.Err = errors.New("unusable value returned")
			}
		}

		a := domain.ResolutionAttempt{
			ID:          uuid.NewString(),
			LeadID:      lead.ID,
			Field:       field,
			TierIndex:   idx,
			ProviderID:  e.ID(),
			Result:      result,
			Cost:        out.Cost,
			Error:       out.Error(),
			AttemptedAt: r.now().UTC(),
		}
		if err := r.repo.AppendResolutionAttempt(ctx, &a); err != nil {
			return "", false, fmt.Errorf("record attempt: %w", err)
		}
		res.Attempts = append(res.Attempts, a)
		res.Cost += out.Cost

		switch {
		case result == domain.ResultSuccess:
			return value, true, nil
		case result.Transient():
			r.log.Warn("tier call failed", "lead_id", lead.ID, "field", field, "tier", idx,
				"provider", e.ID(), "attempt", attempt, "result", result, "error", out.Error())
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			continue
		default:
			return "", false, nil
		}
	}
	return "", false, nil
}

// coolingProviders returns providers whose latest not_found for this
// lead/field is younger than the cool-down, with the cool-down end.
func (r *Resolver) coolingProviders(history []domain.ResolutionAttempt) map[string]time.Time {
	cooling := make(map[string]time.Time)
	if r.cfg.Cooldown <= 0 {
		return cooling
	}
	now := r.now()
	for _, a := range history {
		if a.Result != domain.ResultNotFound {
			continue
		}
		until := a.AttemptedAt.Add(r.cfg.Cooldown)
		if until.After(now) {
			if prev, ok := cooling[a.ProviderID]; !ok || until.After(prev) {
				cooling[a.ProviderID] = until
			}
		}
	}
	return cooling
}
