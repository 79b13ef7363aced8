package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStore(db), mock
}

var leadCols = []string{
	"id", "client_id", "campaign_id", "first_name", "last_name", "company", "title", "domain",
	"email", "phone", "social_handle", "mailing_address", "timezone", "state", "score",
	"suppressed", "suppression_reason", "pre_suppression_state", "last_contacted",
	"created_at", "updated_at",
}

func TestGetLead(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM leads WHERE id = \\$1").
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows(leadCols).AddRow(
			"lead-1", "acme", "", "Ada", "Lovelace", "Analytical", "CTO", "acme.io",
			"ada@acme.io", "+14155550100", "", "", "America/New_York", "in_sequence", 0.8,
			false, "", "", []byte(`{"email":"2026-03-01T15:00:00Z"}`),
			now, now,
		))

	lead, err := store.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", lead.FirstName)
	assert.Equal(t, domain.LeadInSequence, lead.State)
	assert.Equal(t, time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC), lead.LastContacted[domain.ChannelEmail])
}

func TestGetLead_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM leads").WillReturnError(sql.ErrNoRows)

	_, err := store.GetLead(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)
}

func TestSaveLead_Upserts(t *testing.T) {
	store, mock := newMockStore(t)
	lead := &domain.Lead{ID: "lead-1", ClientID: "acme", State: domain.LeadSuppressed, Suppressed: true,
		SuppressionReason: domain.ReasonUnsubscribe, PreSuppressionState: domain.LeadScored}

	mock.ExpectExec("INSERT INTO leads .+ ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs("lead-1", "acme", "", "", "", "", "", "", "", "", "", "", "",
			domain.LeadSuppressed, 0.0, true, domain.ReasonUnsubscribe, domain.LeadScored, []byte("{}")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveLead(context.Background(), lead))
}

func TestUpdateLead_AppliesDeltaToLockedRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM leads WHERE id = \\$1 FOR UPDATE").
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows(leadCols).AddRow(
			"lead-1", "acme", "", "Ada", "", "", "", "",
			"ada@acme.io", "+14155550100", "", "", "", "suppressed", 0.0,
			true, "dncr_registered", "scored", []byte(`{}`),
			now, now,
		))
	mock.ExpectExec("INSERT INTO leads .+ ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs("lead-1", "acme", "", "Ada", "", "", "", "", "ada@acme.io", "+14155550100", "", "", "",
			domain.LeadSuppressed, 0.0, true, domain.ReasonDNCRRegistered, domain.LeadScored,
			[]byte(`{"email":"2026-03-02T15:00:00Z"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lead, err := store.UpdateLead(context.Background(), "lead-1", func(l *domain.Lead) error {
		l.Advance(domain.LeadInSequence)
		l.MarkContacted(domain.ChannelEmail, now)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, lead.Suppressed)
	assert.Equal(t, domain.LeadSuppressed, lead.State)
}

func TestUpdateLead_MutateErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows(leadCols).AddRow(
			"lead-1", "acme", "", "", "", "", "", "", "", "", "", "", "", "scored", 0.0,
			false, "", "", []byte(`{}`), now, now,
		))
	mock.ExpectRollback()

	_, err := store.UpdateLead(context.Background(), "lead-1", func(*domain.Lead) error {
		return domain.ErrLeadNotFound
	})
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)
}

var resourceCols = []string{
	"id", "client_id", "kind", "identifier", "health", "capacity", "usage", "last_reset_at",
	"consecutive_failures", "warming_started_at", "created_at", "updated_at",
}

func TestListResources(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM sending_resources\\s+WHERE client_id = \\$1 AND \\(\\$2 = '' OR kind = \\$2\\)").
		WithArgs("acme", domain.ResourcePhone).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow("ph-1", "acme", "phone", "+16285550001", "active", 100, 4, now, 0, nil, now, now).
			AddRow("ph-2", "acme", "phone", "+16285550002", "warming", 100, 0, nil, 0, now, now, now))

	res, err := store.ListResources(context.Background(), "acme", domain.ResourcePhone)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, domain.HealthActive, res[0].Health)
	assert.Nil(t, res[0].WarmingStartedAt)
	assert.Equal(t, now, res[0].LastResetAt)
	require.NotNil(t, res[1].WarmingStartedAt)
	assert.True(t, res[1].LastResetAt.IsZero())
}

func TestGetResource_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM sending_resources WHERE id = \\$1").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(resourceCols))

	_, err := store.GetResource(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
}

func TestSaveResource(t *testing.T) {
	store, mock := newMockStore(t)
	started := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := &domain.Resource{ID: "ph-1", ClientID: "acme", Kind: domain.ResourcePhone, Identifier: "+16285550001",
		Health: domain.HealthWarming, Capacity: 100, WarmingStartedAt: &started}

	mock.ExpectExec("INSERT INTO sending_resources").
		WithArgs("ph-1", "acme", domain.ResourcePhone, "+16285550001", domain.HealthWarming, 100, 0, nil, 0, started).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveResource(context.Background(), r))
}

func TestAppendDecision(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	d := &domain.DispatchDecision{
		LeadID: "lead-1", ClientID: "acme", Channel: domain.ChannelSMS, SequenceStep: 2,
		IdempotencyKey: domain.IdempotencyKey("lead-1", domain.ChannelSMS, 2),
		Outcome:        domain.OutcomeDeferred, Reason: domain.ReasonOutsideBusinessHours,
		Holds:          []domain.ComplianceHold{{Kind: domain.HoldBusinessHours}},
		RetryAt:        &now, DecidedAt: now,
	}

	mock.ExpectExec("INSERT INTO dispatch_decisions").
		WithArgs(sqlmock.AnyArg(), "lead-1", "acme", domain.ChannelSMS, 2, d.IdempotencyKey,
			domain.OutcomeDeferred, domain.ReasonOutsideBusinessHours, "", "", "",
			sqlmock.AnyArg(), now, false, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.AppendDecision(context.Background(), d))
	assert.NotEmpty(t, d.ID)
}

func TestAppendDecision_DuplicateSend(t *testing.T) {
	store, mock := newMockStore(t)
	d := &domain.DispatchDecision{LeadID: "lead-1", IdempotencyKey: "lead-1:email:1", Outcome: domain.OutcomeSent}

	mock.ExpectExec("INSERT INTO dispatch_decisions").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.AppendDecision(context.Background(), d)
	assert.ErrorIs(t, err, domain.ErrDuplicateSend)
	assert.Empty(t, d.ID)
}

var decisionCols = []string{
	"id", "lead_id", "client_id", "channel", "sequence_step", "idempotency_key", "outcome", "reason",
	"resource_id", "provider_id", "message_id", "holds", "retry_at", "retryable", "escalated", "decided_at",
}

func TestFindSentDecision(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM dispatch_decisions\\s+WHERE idempotency_key = \\$1 AND outcome = 'sent'").
		WithArgs("lead-1:email:1").
		WillReturnRows(sqlmock.NewRows(decisionCols).AddRow(
			"d-1", "lead-1", "acme", "email", 1, "lead-1:email:1", "sent", "",
			"mb-1", "ses", "msg-1", []byte("[]"), nil, false, false, now))

	d, err := store.FindSentDecision(context.Background(), "lead-1:email:1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "msg-1", d.MessageID)
	assert.Nil(t, d.RetryAt)
	assert.Empty(t, d.Holds)

	mock.ExpectQuery("FROM dispatch_decisions").
		WithArgs("lead-1:email:2").
		WillReturnRows(sqlmock.NewRows(decisionCols))

	d, err = store.FindSentDecision(context.Background(), "lead-1:email:2")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestListDecisions_DecodesHolds(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	retry := now.Add(15 * time.Minute)

	mock.ExpectQuery("FROM dispatch_decisions\\s+WHERE lead_id = \\$1\\s+ORDER BY seq").
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows(decisionCols).AddRow(
			"d-1", "lead-1", "acme", "sms", 1, "lead-1:sms:1", "deferred", "dncr_unavailable",
			"", "", "", []byte(`[{"kind":"dncr","reason":"dncr_unavailable"}]`), retry, true, false, now))

	out, err := store.ListDecisions(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Holds, 1)
	assert.Equal(t, domain.HoldDNCR, out[0].Holds[0].Kind)
	require.NotNil(t, out[0].RetryAt)
	assert.Equal(t, retry, *out[0].RetryAt)
}

func TestResolutionAttempts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	a := &domain.ResolutionAttempt{LeadID: "lead-1", Field: domain.FieldPhone, TierIndex: 0,
		ProviderID: "tier-a", Result: domain.ResultNotFound, Cost: 0.02, AttemptedAt: now}

	mock.ExpectExec("INSERT INTO resolution_attempts").
		WithArgs(sqlmock.AnyArg(), "lead-1", domain.FieldPhone, 0, "tier-a", domain.ResultNotFound, 0.02, "", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.AppendResolutionAttempt(context.Background(), a))
	assert.NotEmpty(t, a.ID)

	mock.ExpectQuery("FROM resolution_attempts\\s+WHERE lead_id = \\$1 AND \\(\\$2 = '' OR field = \\$2\\)").
		WithArgs("lead-1", domain.ContactField("")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lead_id", "field", "tier_index", "provider_id", "result", "cost", "error", "attempted_at",
		}).AddRow(a.ID, "lead-1", "phone", 0, "tier-a", "not_found", 0.02, "", now))

	out, err := store.ListResolutionAttempts(context.Background(), "lead-1", "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ResultNotFound, out[0].Result)
}

func TestComplianceEvents(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	e := &domain.ComplianceEvent{LeadID: "lead-1", ClientID: "acme", Action: domain.ActionDNCRSuppressed,
		Channel: domain.ChannelSMS, Reason: "dncr_registered", Actor: "compliance_gate",
		Identifier: "+14155550100", CreatedAt: now}

	mock.ExpectExec("INSERT INTO compliance_events").
		WithArgs(sqlmock.AnyArg(), "lead-1", "acme", domain.ActionDNCRSuppressed, domain.ChannelSMS,
			"dncr_registered", "compliance_gate", "+14155550100", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.AppendComplianceEvent(context.Background(), e))

	mock.ExpectQuery("FROM compliance_events\\s+WHERE lead_id = \\$1").
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "lead_id", "client_id", "action", "channel", "reason", "actor", "identifier", "created_at",
		}).AddRow(e.ID, "lead-1", "acme", "dncr_suppressed", "sms", "dncr_registered", "compliance_gate", "+14155550100", now))

	out, err := store.ListComplianceEvents(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "+14155550100", out[0].Identifier)
}

func TestUpdateResource_NeverReadsASnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM sending_resources WHERE id = \\$1 FOR UPDATE").
		WithArgs("ph-1").
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow("ph-1", "acme", "phone", "+16285550001", "suspended", 100, 0, nil, 6, now, now, now))
	mock.ExpectExec("INSERT INTO sending_resources").
		WithArgs("ph-1", "acme", domain.ResourcePhone, "+16285550001", domain.HealthSuspended, 100, 0, nil, 6, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r, err := store.UpdateResource(context.Background(), "ph-1", func(r *domain.Resource) error {
		if r.Health == domain.HealthWarming {
			r.Health = domain.HealthActive
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HealthSuspended, r.Health)
}
