package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// ClearSuppression lifts a lead's suppression flag and restores the state
// it had before suppression. It refuses DNCR registrations.
func (o *Orchestrator) ClearSuppression(ctx context.Context, leadID, actor, note string) (*domain.Lead, error) {
	lead, err := o.lift(ctx, leadID, domain.ActionSuppressionCleared, actor, note)
	if errors.Is(err, ErrNotSuppressed) || errors.Is(err, ErrDNCROverride) {
		current, gerr := o.repo.GetLead(ctx, leadID)
		if gerr != nil {
			return nil, gerr
		}
		return current, err
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// ForceUnblock returns a lead to its pre-suppression outbound state. Leads
// that are not suppressed, or are suppressed by a DNCR registration, are
// returned unchanged.
func (o *Orchestrator) ForceUnblock(ctx context.Context, leadID, actor, note string) (*domain.Lead, error) {
	lead, err := o.lift(ctx, leadID, domain.ActionForceUnblocked, actor, note)
	switch {
	case errors.Is(err, ErrDNCROverride):
		o.log.Warn("force unblock refused for dncr lead", "lead_id", leadID, "actor", actor)
		return o.repo.GetLead(ctx, leadID)
	case errors.Is(err, ErrNotSuppressed):
		return o.repo.GetLead(ctx, leadID)
	case err != nil:
		return nil, err
	}
	return lead, nil
}

// lift clears the suppression on the stored lead. The check and the write
// happen on the same locked copy, so a DNCR registration landing meanwhile
// is never undone.
func (o *Orchestrator) lift(ctx context.Context, leadID string, action domain.ComplianceAction, actor, note string) (*domain.Lead, error) {
	now := o.now().UTC()
	var prev domain.SuppressionReason
	lead, err := o.repo.UpdateLead(ctx, leadID, func(l *domain.Lead) error {
		if !l.Suppressed {
			return ErrNotSuppressed
		}
		if l.SuppressionReason == domain.ReasonDNCRRegistered {
			return ErrDNCROverride
		}
		prev = l.SuppressionReason
		l.ClearSuppression()
		l.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrNotSuppressed) || errors.Is(err, ErrDNCROverride) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update lead %s: %w", leadID, err)
	}

	reason := string(prev)
	if note = strings.TrimSpace(note); note != "" {
		reason += ": " + note
	}
	event := &domain.ComplianceEvent{
		LeadID:    lead.ID,
		ClientID:  lead.ClientID,
		Action:    action,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: now,
	}
	if err := o.repo.AppendComplianceEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("append compliance event: %w", err)
	}
	o.log.Info("suppression lifted", "lead_id", lead.ID, "action", action, "actor", actor, "was", prev)
	return lead, nil
}
