package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

// Gate-local reasons.
const (
	ReasonInvalidPhone    = "invalid_phone"
	ReasonDNCRUnavailable = "dncr_unavailable"
)

const actorGate = "compliance_gate"

// Config holds gate policy.
type Config struct {
	Hours           BusinessHours
	DefaultTimezone string
	// ClientTimezone returns a client's default timezone, "" when unset.
	ClientTimezone func(clientID string) string
	DefaultMode    domain.PermissionMode
	CacheTTL       time.Duration
	RetryAfter     time.Duration // deferral while the registry is unreachable
	CountryCode    string
}

// Check is one outbound action to evaluate.
type Check struct {
	Lead           *domain.Lead
	Channel        domain.Channel
	SequenceStep   int
	CampaignID     string
	IdempotencyKey string
	PermissionMode domain.PermissionMode
	ApprovedBy     string // set when a human already approved this action
	Subject        string
	Body           string
}

// Verdict is the gate's answer. When Allowed is false, Outcome is blocked
// or deferred and Holds ends with the hold that stopped the action.
type Verdict struct {
	Allowed bool
	Holds   []domain.ComplianceHold
	Outcome domain.Outcome
	Reason  string
	RetryAt *time.Time
}

func allow() Verdict { return Verdict{Allowed: true} }

func block(kind domain.HoldKind, reason string) Verdict {
	return Verdict{
		Outcome: domain.OutcomeBlocked,
		Reason:  reason,
		Holds:   []domain.ComplianceHold{{Kind: kind, Blocking: true, Reason: reason}},
	}
}

func deferUntil(kind domain.HoldKind, reason string, retryAt *time.Time) Verdict {
	return Verdict{
		Outcome: domain.OutcomeDeferred,
		Reason:  reason,
		RetryAt: retryAt,
		Holds:   []domain.ComplianceHold{{Kind: kind, Reason: reason, RetryAt: retryAt}},
	}
}

// Gate evaluates legal and policy holds. Checks run in a fixed order and
// the first hold wins.
type Gate struct {
	repo     Repository
	registry Registry
	cache    Cache
	queue    ReviewQueue
	cfg      Config
	now      func() time.Time
	log      *logger.Scoped
}

// NewGate creates a gate. A nil registry defers every voice and SMS action
// until one is configured.
func NewGate(repo Repository, registry Registry, cache Cache, queue ReviewQueue, cfg Config) *Gate {
	if cfg.Hours.Days == nil {
		cfg.Hours = DefaultBusinessHours()
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = domain.ModeCoPilot
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 15 * time.Minute
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if queue == nil {
		queue = NewMemoryReviewQueue()
	}
	return &Gate{
		repo:     repo,
		registry: registry,
		cache:    cache,
		queue:    queue,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.Component("compliance"),
	}
}

// WithClock overrides the time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Evaluate runs the checks for c. Holds are business outcomes; an error
// means a store the gate depends on failed.
func (g *Gate) Evaluate(ctx context.Context, c Check) (Verdict, error) {
	lead := c.Lead
	if lead.Suppressed {
		return block(domain.HoldSuppression, domain.ReasonSuppression), nil
	}

	if c.Channel.RequiresDNCR() {
		v, err := g.checkDNCR(ctx, c)
		if err != nil || !v.Allowed {
			return v, err
		}
	}

	now := g.now()
	loc, tz := resolveLocation(lead.Timezone, g.clientTimezone(lead.ClientID), g.cfg.DefaultTimezone)
	local := now.In(loc)
	if !g.cfg.Hours.Open(local) {
		next := g.cfg.Hours.NextOpen(local).UTC()
		g.log.Info("outside business hours", "lead_id", lead.ID, "timezone", tz, "retry_at", next)
		return deferUntil(domain.HoldBusinessHours, domain.ReasonOutsideBusinessHours, &next), nil
	}

	if g.needsApproval(c) {
		if c.ApprovedBy == "" {
			if err := g.enqueueReview(ctx, c, now); err != nil {
				return Verdict{}, err
			}
			return deferUntil(domain.HoldApprovalRequired, domain.ReasonApprovalRequired, nil), nil
		}
		if err := g.recordApproval(ctx, c, now); err != nil {
			return Verdict{}, err
		}
	}

	return allow(), nil
}

func (g *Gate) clientTimezone(clientID string) string {
	if g.cfg.ClientTimezone == nil {
		return ""
	}
	return g.cfg.ClientTimezone(clientID)
}

func (g *Gate) checkDNCR(ctx context.Context, c Check) (Verdict, error) {
	lead := c.Lead
	number, ok := domain.NormalizePhone(lead.Phone, g.cfg.CountryCode)
	if !ok {
		return block(domain.HoldDNCR, ReasonInvalidPhone), nil
	}

	registered, cached, err := g.cache.Get(ctx, number)
	if err != nil {
		g.log.Warn("dncr cache read failed", "error", err)
		cached = false
	}
	if !cached {
		if g.registry == nil {
			retry := g.now().Add(g.cfg.RetryAfter).UTC()
			return deferUntil(domain.HoldDNCR, ReasonDNCRUnavailable, &retry), nil
		}
		registered, err = g.registry.Registered(ctx, number)
		if err != nil {
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			g.log.Warn("dncr registry unavailable", "lead_id", lead.ID, "error", err)
			retry := g.now().Add(g.cfg.RetryAfter).UTC()
			return deferUntil(domain.HoldDNCR, ReasonDNCRUnavailable, &retry), nil
		}
		if err := g.cache.Set(ctx, number, registered, g.cfg.CacheTTL); err != nil {
			g.log.Warn("dncr cache write failed", "error", err)
		}
	}
	if !registered {
		return allow(), nil
	}

	now := g.now().UTC()
	fresh, err := g.repo.UpdateLead(ctx, lead.ID, func(l *domain.Lead) error {
		if l.Suppressed {
			// A registry hit outranks any earlier reason so no override can lift it.
			l.SuppressionReason = domain.ReasonDNCRRegistered
		}
		l.Suppress(domain.ReasonDNCRRegistered)
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("save suppressed lead %s: %w", lead.ID, err)
	}
	*lead = *fresh
	event := &domain.ComplianceEvent{
		LeadID:     lead.ID,
		ClientID:   lead.ClientID,
		Action:     domain.ActionDNCRSuppressed,
		Channel:    c.Channel,
		Reason:     string(domain.ReasonDNCRRegistered),
		Actor:      actorGate,
		Identifier: number,
		CreatedAt:  now,
	}
	if err := g.repo.AppendComplianceEvent(ctx, event); err != nil {
		return Verdict{}, fmt.Errorf("append compliance event: %w", err)
	}
	g.log.Info("lead suppressed by dncr", "lead_id", lead.ID, "phone", number)
	return block(domain.HoldDNCR, domain.ReasonDNCR), nil
}

func (g *Gate) needsApproval(c Check) bool {
	mode := c.PermissionMode
	if mode == "" {
		mode = g.cfg.DefaultMode
	}
	switch mode {
	case domain.ModeManual:
		return true
	case domain.ModeCoPilot:
		return c.Lead.FirstTouch()
	}
	return false
}

func (g *Gate) enqueueReview(ctx context.Context, c Check, now time.Time) error {
	mode := c.PermissionMode
	if mode == "" {
		mode = g.cfg.DefaultMode
	}
	item := domain.ReviewItem{
		LeadID:         c.Lead.ID,
		ClientID:       c.Lead.ClientID,
		CampaignID:     c.CampaignID,
		Channel:        c.Channel,
		SequenceStep:   c.SequenceStep,
		IdempotencyKey: c.IdempotencyKey,
		PermissionMode: mode,
		Subject:        c.Subject,
		Body:           c.Body,
		EnqueuedAt:     now.UTC(),
	}
	added, err := g.queue.Enqueue(ctx, item)
	if err != nil {
		return fmt.Errorf("enqueue review: %w", err)
	}
	if !added {
		return nil
	}
	event := &domain.ComplianceEvent{
		LeadID:    c.Lead.ID,
		ClientID:  c.Lead.ClientID,
		Action:    domain.ActionQueuedForReview,
		Channel:   c.Channel,
		Reason:    string(mode),
		Actor:     actorGate,
		CreatedAt: now.UTC(),
	}
	if err := g.repo.AppendComplianceEvent(ctx, event); err != nil {
		return fmt.Errorf("append compliance event: %w", err)
	}
	g.log.Info("queued for review", "lead_id", c.Lead.ID, "channel", c.Channel, "mode", mode)
	return nil
}

// recordApproval audits a human approval that released a held action. The
// gate trusts ApprovedBy as given; callers must only set it for an
// authenticated reviewer.
func (g *Gate) recordApproval(ctx context.Context, c Check, now time.Time) error {
	event := &domain.ComplianceEvent{
		LeadID:    c.Lead.ID,
		ClientID:  c.Lead.ClientID,
		Action:    domain.ActionApprovalGranted,
		Channel:   c.Channel,
		Reason:    c.IdempotencyKey,
		Actor:     c.ApprovedBy,
		CreatedAt: now.UTC(),
	}
	if err := g.repo.AppendComplianceEvent(ctx, event); err != nil {
		return fmt.Errorf("append compliance event: %w", err)
	}
	g.log.Info("approval granted", "lead_id", c.Lead.ID, "channel", c.Channel, "approved_by", c.ApprovedBy)
	return nil
}

// ConfigFrom builds gate policy from the service config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	hours, err := NewBusinessHours(cfg.Compliance.BusinessHours)
	if err != nil {
		return Config{}, err
	}
	mode := domain.PermissionMode(cfg.Compliance.DefaultPermissionMode)
	if !mode.Valid() {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if _, err := time.LoadLocation(cfg.Compliance.DefaultTimezone); err != nil {
		return Config{}, fmt.Errorf("default timezone: %w", err)
	}
	return Config{
		Hours:           hours,
		DefaultTimezone: cfg.Compliance.DefaultTimezone,
		ClientTimezone:  cfg.ClientTimezone,
		DefaultMode:     mode,
		CacheTTL:        cfg.Compliance.DNCR.CacheTTL(),
		RetryAfter:      cfg.Compliance.DNCR.RetryAfter(),
		CountryCode:     cfg.Waterfall.DefaultCountryCode,
	}, nil
}
