package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLeadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	contacted := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	lead := &domain.Lead{
		ID: "lead-1", ClientID: "acme", FirstName: "Ada", Phone: "+14155550100",
		Timezone: "America/New_York", State: domain.LeadInSequence, Score: 0.75,
		LastContacted: map[domain.Channel]time.Time{domain.ChannelSMS: contacted},
	}
	require.NoError(t, s.SaveLead(ctx, lead))

	got, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, domain.LeadInSequence, got.State)
	assert.InDelta(t, 0.75, got.Score, 1e-9)
	assert.False(t, got.Suppressed)
	assert.True(t, contacted.Equal(got.LastContacted[domain.ChannelSMS]))
	created := got.CreatedAt

	got.Suppress(domain.ReasonHardBounce)
	require.NoError(t, s.SaveLead(ctx, got))

	again, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, again.Suppressed)
	assert.Equal(t, domain.ReasonHardBounce, again.SuppressionReason)
	assert.Equal(t, domain.LeadInSequence, again.PreSuppressionState)
	assert.True(t, created.Equal(again.CreatedAt))

	_, err = s.GetLead(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)
}

func TestResources(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveResource(ctx, &domain.Resource{ID: "ph-2", ClientID: "acme", Kind: domain.ResourcePhone,
		Identifier: "+16285550002", Health: domain.HealthWarming, Capacity: 100, WarmingStartedAt: &started}))
	require.NoError(t, s.SaveResource(ctx, &domain.Resource{ID: "ph-1", ClientID: "acme", Kind: domain.ResourcePhone,
		Identifier: "+16285550001", Health: domain.HealthActive, Capacity: 100}))
	require.NoError(t, s.SaveResource(ctx, &domain.Resource{ID: "mb-1", ClientID: "acme", Kind: domain.ResourceMailbox,
		Identifier: "sales@acme.io", Health: domain.HealthActive, Capacity: 50}))
	require.NoError(t, s.SaveResource(ctx, &domain.Resource{ID: "ph-9", ClientID: "other", Kind: domain.ResourcePhone,
		Identifier: "+16285550009", Health: domain.HealthActive, Capacity: 10}))

	phones, err := s.ListResources(ctx, "acme", domain.ResourcePhone)
	require.NoError(t, err)
	require.Len(t, phones, 2)
	assert.Equal(t, "ph-1", phones[0].ID)
	assert.Nil(t, phones[0].WarmingStartedAt)
	require.NotNil(t, phones[1].WarmingStartedAt)
	assert.True(t, started.Equal(*phones[1].WarmingStartedAt))

	all, err := s.ListResources(ctx, "acme", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	r, err := s.GetResource(ctx, "ph-1")
	require.NoError(t, err)
	r.Health = domain.HealthDegraded
	r.ConsecutiveFailures = 3
	require.NoError(t, s.SaveResource(ctx, r))

	r, err = s.GetResource(ctx, "ph-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthDegraded, r.Health)
	assert.Equal(t, 3, r.ConsecutiveFailures)

	_, err = s.GetResource(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
}

func TestDecisions_OneSentPerKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	retry := now.Add(15 * time.Minute)
	key := domain.IdempotencyKey("lead-1", domain.ChannelSMS, 1)

	deferred := &domain.DispatchDecision{LeadID: "lead-1", ClientID: "acme", Channel: domain.ChannelSMS,
		SequenceStep: 1, IdempotencyKey: key, Outcome: domain.OutcomeDeferred, Reason: domain.ReasonNoCapacity,
		RetryAt: &retry, Retryable: true, DecidedAt: now}
	require.NoError(t, s.AppendDecision(ctx, deferred))
	assert.NotEmpty(t, deferred.ID)

	found, err := s.FindSentDecision(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, found)

	sent := &domain.DispatchDecision{LeadID: "lead-1", ClientID: "acme", Channel: domain.ChannelSMS,
		SequenceStep: 1, IdempotencyKey: key, Outcome: domain.OutcomeSent, ResourceID: "ph-1",
		ProviderID: "twilio", MessageID: "SM1", DecidedAt: now.Add(time.Hour)}
	require.NoError(t, s.AppendDecision(ctx, sent))

	dup := &domain.DispatchDecision{LeadID: "lead-1", ClientID: "acme", Channel: domain.ChannelSMS,
		SequenceStep: 1, IdempotencyKey: key, Outcome: domain.OutcomeSent, DecidedAt: now.Add(2 * time.Hour)}
	assert.ErrorIs(t, s.AppendDecision(ctx, dup), domain.ErrDuplicateSend)

	found, err = s.FindSentDecision(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "SM1", found.MessageID)

	list, err := s.ListDecisions(ctx, "lead-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.OutcomeDeferred, list[0].Outcome)
	require.NotNil(t, list[0].RetryAt)
	assert.True(t, retry.Equal(*list[0].RetryAt))
	assert.True(t, list[0].Retryable)
	assert.Nil(t, list[1].RetryAt)
}

func TestDecisions_HoldsPersisted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := &domain.DispatchDecision{LeadID: "lead-1", ClientID: "acme", Channel: domain.ChannelEmail,
		IdempotencyKey: "lead-1:email:0", Outcome: domain.OutcomeBlocked, Reason: domain.ReasonSuppression,
		Holds:     []domain.ComplianceHold{{Kind: domain.HoldSuppression, Blocking: true, Reason: "unsubscribe"}},
		DecidedAt: time.Now().UTC()}
	require.NoError(t, s.AppendDecision(ctx, d))

	list, err := s.ListDecisions(ctx, "lead-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Holds, 1)
	assert.True(t, list[0].Holds[0].Blocking)
	assert.Equal(t, domain.HoldSuppression, list[0].Holds[0].Kind)
}

func TestDecisions_ConcurrentSentRace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := "lead-1:email:3"

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.AppendDecision(ctx, &domain.DispatchDecision{LeadID: "lead-1", ClientID: "acme",
				Channel: domain.ChannelEmail, SequenceStep: 3, IdempotencyKey: key,
				Outcome: domain.OutcomeSent, DecidedAt: time.Now().UTC()})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrDuplicateSend)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAttemptsAndEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendResolutionAttempt(ctx, &domain.ResolutionAttempt{LeadID: "lead-1",
		Field: domain.FieldPhone, TierIndex: 0, ProviderID: "tier-a", Result: domain.ResultNotFound, AttemptedAt: now}))
	require.NoError(t, s.AppendResolutionAttempt(ctx, &domain.ResolutionAttempt{LeadID: "lead-1",
		Field: domain.FieldPhone, TierIndex: 1, ProviderID: "tier-b", Result: domain.ResultSuccess,
		Cost: 0.05, AttemptedAt: now.Add(time.Second)}))
	require.NoError(t, s.AppendResolutionAttempt(ctx, &domain.ResolutionAttempt{LeadID: "lead-1",
		Field: domain.FieldEmail, TierIndex: 0, ProviderID: "hunter", Result: domain.ResultRateLimited, AttemptedAt: now}))

	phone, err := s.ListResolutionAttempts(ctx, "lead-1", domain.FieldPhone)
	require.NoError(t, err)
	require.Len(t, phone, 2)
	assert.Equal(t, "tier-a", phone[0].ProviderID)
	assert.Equal(t, "tier-b", phone[1].ProviderID)
	assert.InDelta(t, 0.05, phone[1].Cost, 1e-9)

	all, err := s.ListResolutionAttempts(ctx, "lead-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	e := &domain.ComplianceEvent{LeadID: "lead-1", ClientID: "acme", Action: domain.ActionDNCRSuppressed,
		Channel: domain.ChannelSMS, Reason: "dncr_registered", Actor: "compliance_gate",
		Identifier: "+14155550100", CreatedAt: now}
	require.NoError(t, s.AppendComplianceEvent(ctx, e))
	assert.NotEmpty(t, e.ID)

	events, err := s.ListComplianceEvents(ctx, "lead-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ActionDNCRSuppressed, events[0].Action)
	assert.Equal(t, "+14155550100", events[0].Identifier)
}

func TestUpdateLead_ConcurrentDeltasAllLand(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveLead(ctx, &domain.Lead{ID: "lead-1", ClientID: "acme", State: domain.LeadScored}))

	channels := []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelLinkedIn, domain.ChannelVoice}
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			_, err := s.UpdateLead(ctx, "lead-1", func(l *domain.Lead) error {
				l.MarkContacted(ch, at)
				return nil
			})
			assert.NoError(t, err)
		}(ch)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.UpdateLead(ctx, "lead-1", func(l *domain.Lead) error {
			l.Suppress(domain.ReasonDNCRRegistered)
			return nil
		})
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Len(t, got.LastContacted, len(channels))
	assert.True(t, got.Suppressed)
	assert.Equal(t, domain.ReasonDNCRRegistered, got.SuppressionReason)

	_, err = s.UpdateLead(ctx, "nobody", func(*domain.Lead) error { return nil })
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)
}

func TestUpdateResource_KeepsConcurrentSuspension(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResource(ctx, &domain.Resource{ID: "ph-1", ClientID: "acme", Kind: domain.ResourcePhone,
		Identifier: "+16285550001", Health: domain.HealthWarming, Capacity: 10}))

	listed, err := s.ListResources(ctx, "acme", domain.ResourcePhone)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = s.UpdateResource(ctx, "ph-1", func(r *domain.Resource) error {
		r.Health = domain.HealthSuspended
		return nil
	})
	require.NoError(t, err)

	r, err := s.UpdateResource(ctx, listed[0].ID, func(r *domain.Resource) error {
		if r.Health == domain.HealthWarming {
			r.Health = domain.HealthActive
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HealthSuspended, r.Health)
	assert.Equal(t, 10, r.Capacity)
}
