package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

func TestStore_LeadsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()

	lead := &domain.Lead{ID: "l1", ClientID: "c1", State: domain.LeadNew}
	require.NoError(t, s.SaveLead(ctx, lead))

	got, err := s.GetLead(ctx, "l1")
	require.NoError(t, err)
	got.MarkContacted(domain.ChannelEmail, time.Now())
	got.State = domain.LeadEnriched

	again, err := s.GetLead(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadNew, again.State)
	assert.True(t, again.FirstTouch())
	assert.False(t, again.CreatedAt.IsZero())

	_, err = s.GetLead(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)
}

func TestStore_ResourcesFilteredAndSorted(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, r := range []domain.Resource{
		{ID: "r3", ClientID: "c1", Kind: domain.ResourcePhone},
		{ID: "r1", ClientID: "c1", Kind: domain.ResourcePhone},
		{ID: "r2", ClientID: "c1", Kind: domain.ResourceMailbox},
		{ID: "r4", ClientID: "c2", Kind: domain.ResourcePhone},
	} {
		r := r
		require.NoError(t, s.SaveResource(ctx, &r))
	}

	phones, err := s.ListResources(ctx, "c1", domain.ResourcePhone)
	require.NoError(t, err)
	require.Len(t, phones, 2)
	assert.Equal(t, "r1", phones[0].ID)
	assert.Equal(t, "r3", phones[1].ID)

	_, err = s.GetResource(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
}

func TestStore_OneSentPerKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := domain.IdempotencyKey("l1", domain.ChannelSMS, 1)

	require.NoError(t, s.AppendDecision(ctx, &domain.DispatchDecision{LeadID: "l1", IdempotencyKey: key, Outcome: domain.OutcomeDeferred}))
	found, err := s.FindSentDecision(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, found)

	first := &domain.DispatchDecision{LeadID: "l1", IdempotencyKey: key, Outcome: domain.OutcomeSent, MessageID: "m1"}
	require.NoError(t, s.AppendDecision(ctx, first))
	assert.NotEmpty(t, first.ID)

	err = s.AppendDecision(ctx, &domain.DispatchDecision{LeadID: "l1", IdempotencyKey: key, Outcome: domain.OutcomeSent})
	assert.ErrorIs(t, err, domain.ErrDuplicateSend)

	found, err = s.FindSentDecision(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "m1", found.MessageID)

	all, err := s.ListDecisions(ctx, "l1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_AttemptsByField(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendResolutionAttempt(ctx, &domain.ResolutionAttempt{LeadID: "l1", Field: domain.FieldPhone, TierIndex: 0}))
	require.NoError(t, s.AppendResolutionAttempt(ctx, &domain.ResolutionAttempt{LeadID: "l1", Field: domain.FieldEmail, TierIndex: 0}))
	require.NoError(t, s.AppendResolutionAttempt(ctx, &domain.ResolutionAttempt{LeadID: "l1", Field: domain.FieldPhone, TierIndex: 1}))

	phone, err := s.ListResolutionAttempts(ctx, "l1", domain.FieldPhone)
	require.NoError(t, err)
	require.Len(t, phone, 2)
	assert.Equal(t, 1, phone[1].TierIndex)

	all, err := s.ListResolutionAttempts(ctx, "l1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_ComplianceEvents(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendComplianceEvent(ctx, &domain.ComplianceEvent{LeadID: "l1", Action: domain.ActionDNCRSuppressed}))
	events, err := s.ListComplianceEvents(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
}

func TestStore_UpdateLeadReadsLatest(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveLead(ctx, &domain.Lead{ID: "l1", ClientID: "c1", State: domain.LeadScored}))

	stale, err := s.GetLead(ctx, "l1")
	require.NoError(t, err)

	fresh, _ := s.GetLead(ctx, "l1")
	fresh.Suppress(domain.ReasonDNCRRegistered)
	require.NoError(t, s.SaveLead(ctx, fresh))

	updated, err := s.UpdateLead(ctx, stale.ID, func(l *domain.Lead) error {
		l.MarkContacted(domain.ChannelEmail, time.Now())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.Suppressed)
	assert.Equal(t, domain.ReasonDNCRRegistered, updated.SuppressionReason)
	assert.False(t, updated.FirstTouch())

	boom := errors.New("boom")
	_, err = s.UpdateLead(ctx, "l1", func(l *domain.Lead) error {
		l.Suppressed = false
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, _ := s.GetLead(ctx, "l1")
	assert.True(t, got.Suppressed, "a failed mutation writes nothing")

	_, err = s.UpdateLead(ctx, "missing", func(*domain.Lead) error { return nil })
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)
}

func TestStore_UpdateResource(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveResource(ctx, &domain.Resource{ID: "r1", ClientID: "c1", Kind: domain.ResourcePhone,
		Health: domain.HealthActive, Capacity: 5}))

	r, err := s.UpdateResource(ctx, "r1", func(r *domain.Resource) error {
		r.Health = domain.HealthSuspended
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HealthSuspended, r.Health)

	got, err := s.GetResource(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthSuspended, got.Health)
	assert.Equal(t, 5, got.Capacity)

	_, err = s.UpdateResource(ctx, "missing", func(*domain.Resource) error { return nil })
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
}
