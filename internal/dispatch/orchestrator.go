package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-dispatch/internal/compliance"
	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/distlock"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
	"github.com/ignite/outreach-dispatch/internal/provider"
	"github.com/ignite/outreach-dispatch/internal/waterfall"
)

// ReasonTemplateError marks a payload that failed to render.
const ReasonTemplateError = "template_error"

// Config holds orchestrator policy.
type Config struct {
	NoCapacityBackoff time.Duration
	InProgressRetry   time.Duration
	// EscalateAfter flags a decision once its key has this many consecutive
	// deferrals, counting the new one. Zero disables escalation.
	EscalateAfter int
	SendTimeout   time.Duration
	// LockRefresh is how often an expiring key lock is renewed. Zero means
	// a third of the lock's TTL.
	LockRefresh time.Duration
}

// ConfigFrom maps the service config onto orchestrator policy.
func ConfigFrom(cfg config.DispatchConfig) Config {
	return Config{
		NoCapacityBackoff: cfg.NoCapacityBackoff(),
		InProgressRetry:   cfg.InProgressRetry(),
		EscalateAfter:     cfg.EscalateAfterDeferrals,
		SendTimeout:       cfg.SendTimeout(),
	}
}

// Request is one "lead is due for channel X" event.
type Request struct {
	LeadID         string                `json:"lead_id"`
	Channel        domain.Channel        `json:"channel"`
	SequenceStep   int                   `json:"sequence_step"`
	CampaignID     string                `json:"campaign_id,omitempty"`
	PermissionMode domain.PermissionMode `json:"permission_mode,omitempty"`
	Payload        provider.Payload      `json:"payload"`
	ApprovedBy     string                `json:"approved_by,omitempty"`
}

// Key returns the request's idempotency key.
func (r Request) Key() string {
	return domain.IdempotencyKey(r.LeadID, r.Channel, r.SequenceStep)
}

// Orchestrator drives one dispatch end to end. It is safe for concurrent
// use; invocations for the same key exclude each other through locks.
type Orchestrator struct {
	repo     Repository
	locks    distlock.Factory
	resolver Resolver
	gate     Gate
	pool     ResourcePool
	senders  map[domain.Channel]provider.Sender
	renderer *provider.Renderer
	cfg      Config
	now      func() time.Time
	log      *logger.Scoped
}

// New creates an orchestrator. senders maps each channel to the provider
// that delivers on it.
func New(repo Repository, locks distlock.Factory, resolver Resolver, gate Gate, pool ResourcePool,
	senders map[domain.Channel]provider.Sender, cfg Config) *Orchestrator {
	if locks == nil {
		locks = distlock.NewLocalLocker().Lock
	}
	if cfg.NoCapacityBackoff <= 0 {
		cfg.NoCapacityBackoff = 15 * time.Minute
	}
	if cfg.InProgressRetry <= 0 {
		cfg.InProgressRetry = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Orchestrator{
		repo:     repo,
		locks:    locks,
		resolver: resolver,
		gate:     gate,
		pool:     pool,
		senders:  senders,
		renderer: provider.NewRenderer(),
		cfg:      cfg,
		now:      time.Now,
		log:      logger.Component("dispatch"),
	}
}

// WithClock overrides the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Dispatch runs the pipeline for req and returns the decision it recorded.
// A replay of a key that was already sent returns the original decision and
// records nothing. Business outcomes never surface as errors; an error means
// the request was malformed or a store failed.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) (*domain.DispatchDecision, error) {
	if req.LeadID == "" || req.SequenceStep < 0 {
		return nil, ErrInvalidRequest
	}
	if !req.Channel.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, req.Channel)
	}
	sender, ok := o.senders[req.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSender, req.Channel)
	}

	key := req.Key()
	lock := o.locks(key)
	held, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	lead, err := o.repo.GetLead(ctx, req.LeadID)
	if err != nil {
		if held {
			o.unlock(ctx, lock, key)
		}
		return nil, fmt.Errorf("get lead %s: %w", req.LeadID, err)
	}
	d := o.newDecision(lead, req, key)

	if !held {
		o.log.Info("dispatch in progress elsewhere", "key", key)
		retry := o.now().Add(o.cfg.InProgressRetry).UTC()
		return o.record(ctx, d.deferred(domain.ReasonInProgress, &retry, nil))
	}
	defer o.unlock(ctx, lock, key)
	keepalive := distlock.KeepAlive(ctx, lock, o.cfg.LockRefresh)
	defer keepalive.Stop()

	// 1. Idempotency. A suppressed lead falls through so the gate reports
	// the block.
	if !lead.Suppressed {
		prev, err := o.repo.FindSentDecision(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("find sent decision %s: %w", key, err)
		}
		if prev != nil {
			o.log.Info("already sent", "key", key, "decision_id", prev.ID)
			return prev, nil
		}
	}

	// 2. Resolve the contact field the channel needs. A suppressed lead is
	// left alone; the gate blocks it below.
	field := req.Channel.ContactField()
	if !lead.Suppressed && !lead.HasContact(field) {
		res, err := o.resolver.Resolve(ctx, lead, field)
		if err != nil {
			return nil, fmt.Errorf("resolve %s for %s: %w", field, lead.ID, err)
		}
		if res.Status == waterfall.StatusUnresolved {
			d.Outcome = domain.OutcomeFailed
			d.Reason = domain.ReasonUnresolvedContact
			d.Retryable = anyTransient(res.Attempts)
			return o.record(ctx, d)
		}
	}

	msg, err := o.renderer.Compose(lead, sender, provider.Envelope{
		Channel:        req.Channel,
		CampaignID:     req.CampaignID,
		IdempotencyKey: key,
	}, req.Payload)
	if err != nil {
		o.log.Warn("payload render failed", "key", key, "error", err)
		d.Outcome = domain.OutcomeFailed
		d.Reason = ReasonTemplateError
		return o.record(ctx, d)
	}

	// 3. Compliance.
	verdict, err := o.gate.Evaluate(ctx, compliance.Check{
		Lead:           lead,
		Channel:        req.Channel,
		SequenceStep:   req.SequenceStep,
		CampaignID:     req.CampaignID,
		IdempotencyKey: key,
		PermissionMode: req.PermissionMode,
		ApprovedBy:     req.ApprovedBy,
		Subject:        msg.Subject,
		Body:           msg.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("compliance %s: %w", key, err)
	}
	if !verdict.Allowed {
		if verdict.Outcome == domain.OutcomeBlocked {
			d.Outcome = domain.OutcomeBlocked
			d.Reason = verdict.Reason
			d.Holds = verdict.Holds
			return o.record(ctx, d)
		}
		return o.record(ctx, d.deferred(verdict.Reason, verdict.RetryAt, verdict.Holds))
	}

	// Resolution can outlast the key lock's TTL. Nothing is sent unless the
	// lock is still ours.
	held, err = keepalive.Held(ctx)
	if err != nil {
		return nil, fmt.Errorf("confirm lock %s: %w", key, err)
	}
	if !held {
		o.log.Warn("key lock lost before send", "key", key)
		retry := o.now().Add(o.cfg.InProgressRetry).UTC()
		return o.record(ctx, d.deferred(domain.ReasonInProgress, &retry, nil))
	}

	// 4. Capacity.
	var lease *domain.Resource
	if kind, needs := req.Channel.ResourceKind(); needs {
		lease, err = o.pool.Acquire(ctx, lead.ClientID, kind)
		if err != nil {
			return nil, fmt.Errorf("acquire %s for %s: %w", kind, lead.ClientID, err)
		}
		if lease == nil {
			retry := o.now().Add(o.cfg.NoCapacityBackoff).UTC()
			return o.record(ctx, d.deferred(domain.ReasonNoCapacity, &retry, nil))
		}
		d.ResourceID = lease.ID
		msg.From = lease.Identifier
	}
	// From here the slot and the outcome must be recorded whatever happens
	// to the caller.
	ctx = context.WithoutCancel(ctx)

	// 5. Send.
	result := o.send(ctx, sender, msg)
	d.ProviderID = sender.ID()
	if !result.Success {
		o.release(ctx, lease, domain.ReleaseFailure)
		d.Outcome = domain.OutcomeFailed
		d.Reason = failureReason(result.ErrorKind)
		d.Retryable = result.Retryable
		o.log.Warn("send failed", "key", key, "provider", d.ProviderID, "kind", result.ErrorKind, "error", result.Error())
		return o.record(ctx, d)
	}
	o.release(ctx, lease, domain.ReleaseSuccess)

	d.Outcome = domain.OutcomeSent
	d.MessageID = result.MessageID
	// Only this send's delta is written; suppression or contact changes made
	// by runs on other channels stay intact.
	_, err = o.repo.UpdateLead(ctx, lead.ID, func(l *domain.Lead) error {
		l.Advance(domain.LeadInSequence)
		l.MarkContacted(req.Channel, d.DecidedAt)
		l.UpdatedAt = d.DecidedAt
		return nil
	})
	if err != nil {
		o.log.Error("save lead after send failed", "lead_id", lead.ID, "error", err)
	}
	return o.record(ctx, d)
}

// send calls sender under the send timeout. A call cut off by the deadline
// is a transient provider error.
func (o *Orchestrator) send(ctx context.Context, sender provider.Sender, msg provider.Message) provider.Result {
	sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
	defer cancel()
	result := sender.Send(sendCtx, msg)
	if !result.Success && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return provider.Failed(provider.KindProviderError,
			fmt.Errorf("%s: send timed out after %s", sender.ID(), o.cfg.SendTimeout), result.Cost)
	}
	return result
}

func (o *Orchestrator) release(ctx context.Context, lease *domain.Resource, outcome domain.ReleaseOutcome) {
	if lease == nil {
		return
	}
	if err := o.pool.Release(ctx, lease, outcome); err != nil {
		o.log.Error("release failed", "resource_id", lease.ID, "outcome", outcome, "error", err)
	}
}

func (o *Orchestrator) unlock(ctx context.Context, lock distlock.DistLock, key string) {
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		o.log.Warn("lock release failed", "key", key, "error", err)
	}
}

// decision wraps a DispatchDecision under construction.
type decision struct {
	*domain.DispatchDecision
}

func (o *Orchestrator) newDecision(lead *domain.Lead, req Request, key string) decision {
	return decision{&domain.DispatchDecision{
		LeadID:         lead.ID,
		ClientID:       lead.ClientID,
		Channel:        req.Channel,
		SequenceStep:   req.SequenceStep,
		IdempotencyKey: key,
		DecidedAt:      o.now().UTC(),
	}}
}

func (d decision) deferred(reason string, retryAt *time.Time, holds []domain.ComplianceHold) decision {
	d.Outcome = domain.OutcomeDeferred
	d.Reason = reason
	d.RetryAt = retryAt
	d.Retryable = true
	d.Holds = holds
	return d
}

// record persists d. Deferrals are checked for escalation first.
func (o *Orchestrator) record(ctx context.Context, d decision) (*domain.DispatchDecision, error) {
	if d.Outcome == domain.OutcomeDeferred && o.cfg.EscalateAfter > 0 {
		streak, err := o.deferralStreak(ctx, d.LeadID, d.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if streak+1 >= o.cfg.EscalateAfter {
			d.Escalated = true
			o.log.Warn("dispatch escalated for manual review", "key", d.IdempotencyKey,
				"deferrals", streak+1, "reason", d.Reason)
		}
	}

	err := o.repo.AppendDecision(ctx, d.DispatchDecision)
	if errors.Is(err, domain.ErrDuplicateSend) {
		// Another run sent this key after our idempotency check.
		o.log.Error("duplicate send recorded", "key", d.IdempotencyKey, "message_id", d.MessageID)
		prev, ferr := o.repo.FindSentDecision(ctx, d.IdempotencyKey)
		if ferr != nil {
			return nil, ferr
		}
		return prev, nil
	}
	if err != nil {
		return nil, fmt.Errorf("append decision %s: %w", d.IdempotencyKey, err)
	}

	o.log.Info("dispatch decided", "key", d.IdempotencyKey, "outcome", d.Outcome, "reason", d.Reason,
		"resource_id", d.ResourceID, "provider", d.ProviderID)
	return d.DispatchDecision, nil
}

// deferralStreak counts the trailing run of deferred decisions for key.
func (o *Orchestrator) deferralStreak(ctx context.Context, leadID, key string) (int, error) {
	history, err := o.repo.ListDecisions(ctx, leadID)
	if err != nil {
		return 0, fmt.Errorf("list decisions %s: %w", leadID, err)
	}
	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.IdempotencyKey != key {
			continue
		}
		if h.Outcome != domain.OutcomeDeferred {
			break
		}
		streak++
	}
	return streak, nil
}

func failureReason(kind provider.ErrorKind) string {
	switch kind {
	case provider.KindRejected, provider.KindNotFound:
		return domain.ReasonProviderRejected
	case provider.KindRateLimited:
		return domain.ReasonRateLimited
	}
	return domain.ReasonProviderError
}

func anyTransient(attempts []domain.ResolutionAttempt) bool {
	for _, a := range attempts {
		if a.Result.Transient() {
			return true
		}
	}
	return false
}
