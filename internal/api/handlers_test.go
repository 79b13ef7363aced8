package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-dispatch/internal/compliance"
	"github.com/ignite/outreach-dispatch/internal/dispatch"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pool"
	"github.com/ignite/outreach-dispatch/internal/provider"
	"github.com/ignite/outreach-dispatch/internal/repository/memory"
	"github.com/ignite/outreach-dispatch/internal/waterfall"
	"github.com/ignite/outreach-dispatch/internal/worker"
)

// Monday 2026-03-02 10:00 in New York.
var mondayMorning = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type noRegistry struct{}

func (noRegistry) Registered(context.Context, string) (bool, error) { return false, nil }

type testEnv struct {
	repo    *memory.Store
	email   *provider.Static
	workers *worker.DispatchWorkerPool
	router  http.Handler
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return mondayMorning }

	repo := memory.New()
	require.NoError(t, repo.SaveResource(ctx, &domain.Resource{
		ID: "mb-1", ClientID: "acme", Kind: domain.ResourceMailbox,
		Identifier: "sales@acme.io", Health: domain.HealthActive, Capacity: 50,
	}))
	require.NoError(t, repo.SaveLead(ctx, &domain.Lead{
		ID: "lead-1", ClientID: "acme", FirstName: "Ada", Email: "ada@example.com", State: domain.LeadScored,
	}))

	finder := provider.NewStatic("finder", map[domain.ContactField]string{domain.FieldPhone: "+14155550100"}, 0.02)
	resolver := waterfall.NewResolver(repo, map[domain.ContactField][]provider.Enricher{
		domain.FieldPhone: {finder},
	}, waterfall.Config{MaxTierAttempts: 1, Timeout: time.Second, CountryCode: "1"}).WithClock(clock)
	gate := compliance.NewGate(repo, noRegistry{}, nil, nil, compliance.Config{
		DefaultTimezone: "America/New_York",
		DefaultMode:     domain.ModeAutopilot,
		CountryCode:     "1",
	}).WithClock(clock)
	p := pool.New(repo, pool.NewMemoryCounterStore(), pool.Config{Window: 24 * time.Hour}).WithClock(clock)

	email := provider.NewStatic("ses", nil, 0)
	orch := dispatch.New(repo, nil, resolver, gate, p, map[domain.Channel]provider.Sender{
		domain.ChannelEmail: email,
	}, dispatch.Config{}).WithClock(clock)

	workers := worker.NewDispatchWorkerPool(orch, 2, 8)
	h := NewHandlers(orch, p, repo, workers)

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	hc := NewHealthChecker(nil, rc, nil, workers)

	return &testEnv{repo: repo, email: email, workers: workers, router: SetupRoutes(h, hc, nil)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestDispatchEndpoint_Sends(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/dispatch", map[string]any{
		"lead_id":       "lead-1",
		"channel":       "email",
		"sequence_step": 1,
		"subject":       "Hello {{ first_name }}",
		"body":          "<p>Hi</p>",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var d domain.DispatchDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, domain.OutcomeSent, d.Outcome)
	assert.Equal(t, "mb-1", d.ResourceID)

	sent := env.email.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hello Ada", sent[0].Subject)
	assert.Equal(t, "sales@acme.io", sent[0].From)
}

func TestDispatchEndpoint_Validation(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/dispatch", map[string]any{
		"channel":         "fax",
		"permission_mode": "yolo",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Contains(t, resp.Details, "lead_id")
	assert.Contains(t, resp.Details, "channel")
	assert.Contains(t, resp.Details, "permission_mode")

	rec = env.do(t, http.MethodPost, "/v1/dispatch", map[string]any{"lead_id": "x", "channel": "email", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchEndpoint_UnknownLead(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/dispatch", map[string]any{"lead_id": "nobody", "channel": "email"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatchEndpoint_NoSender(t *testing.T) {
	env := setupTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/dispatch", map[string]any{"lead_id": "lead-1", "channel": "linkedin"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDispatchEndpoint_Async(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/dispatch?async=true", map[string]any{"lead_id": "lead-1", "channel": "email"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.workers.Start()
	rec = env.do(t, http.MethodPost, "/v1/dispatch?async=true", map[string]any{"lead_id": "lead-1", "channel": "email", "body": "hi"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.workers.Stop()

	assert.Len(t, env.email.Sent(), 1)
	rec = env.do(t, http.MethodGet, "/v1/workers/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_sent":1`)
}

func TestEnrichAndAudit(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/leads/lead-1/enrich", map[string]any{"fields": []string{"phone"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/leads/lead-1/enrich", map[string]any{"fields": []string{"shoe_size"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/dispatch", map[string]any{"lead_id": "lead-1", "channel": "email", "body": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/leads/lead-1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit LeadAudit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	assert.Equal(t, "+14155550100", audit.Lead.Phone)
	require.Len(t, audit.Resolution, 1)
	assert.Equal(t, "finder", audit.Resolution[0].ProviderID)
	require.Len(t, audit.Decisions, 1)
	assert.Equal(t, domain.OutcomeSent, audit.Decisions[0].Outcome)
	assert.Empty(t, audit.ComplianceEvents)

	rec = env.do(t, http.MethodGet, "/v1/leads/nobody/audit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminOverrides(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	opted := &domain.Lead{ID: "lead-2", ClientID: "acme", Email: "b@example.com", State: domain.LeadScored}
	opted.Suppress(domain.ReasonUnsubscribe)
	require.NoError(t, env.repo.SaveLead(ctx, opted))
	dncr := &domain.Lead{ID: "lead-3", ClientID: "acme", Phone: "+14155550100", State: domain.LeadScored}
	dncr.Suppress(domain.ReasonDNCRRegistered)
	require.NoError(t, env.repo.SaveLead(ctx, dncr))

	rec := env.do(t, http.MethodPost, "/v1/admin/leads/lead-2/clear-suppression", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/leads/lead-2/clear-suppression", map[string]any{"actor": "compliance@acme.io"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lead domain.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lead))
	assert.False(t, lead.Suppressed)

	rec = env.do(t, http.MethodPost, "/v1/admin/leads/lead-2/clear-suppression", map[string]any{"actor": "compliance@acme.io"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/leads/lead-3/clear-suppression", map[string]any{"actor": "compliance@acme.io"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "dncr_override")

	rec = env.do(t, http.MethodPost, "/v1/admin/leads/lead-3/force-unblock", map[string]any{"actor": "ops"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lead))
	assert.True(t, lead.Suppressed)
}

func TestResourceAdmin(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/admin/resources", map[string]any{
		"id": "ph-1", "client_id": "acme", "kind": "phone", "identifier": "+16285550001", "capacity": 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res domain.Resource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.HealthWarming, res.Health)

	rec = env.do(t, http.MethodPost, "/v1/admin/resources/ph-1/health", map[string]any{"health": "suspended"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/resources/nope/health", map[string]any{"health": "active"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/clients/acme/resources?kind=phone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Resources []pool.Status `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Resources, 1)
	assert.Equal(t, domain.HealthSuspended, list.Resources[0].Health)
	assert.Equal(t, 0, list.Resources[0].EffectiveCapacity)

	rec = env.do(t, http.MethodGet, "/v1/clients/acme/resources?kind=pigeon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["redis"].Status)
	assert.Equal(t, notConfigured, status.Checks["database"].Message)

	rec = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"}, "redis": {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: notConfigured}, "redis": {Status: "up"},
	}))
}
