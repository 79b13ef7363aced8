package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-dispatch/internal/dispatch"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/httputil"
	"github.com/ignite/outreach-dispatch/internal/provider"
)

type dispatchRequest struct {
	LeadID         string         `json:"lead_id" validate:"required,max=128"`
	Channel        string         `json:"channel" validate:"required,oneof=email sms linkedin voice mail"`
	SequenceStep   int            `json:"sequence_step" validate:"min=0"`
	CampaignID     string         `json:"campaign_id,omitempty" validate:"max=128"`
	PermissionMode string         `json:"permission_mode,omitempty" validate:"omitempty,oneof=autopilot co_pilot manual"`
	Subject        string         `json:"subject,omitempty" validate:"max=998"`
	Body           string         `json:"body,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	ApprovedBy     string         `json:"approved_by,omitempty" validate:"omitempty,max=256"`
}

func (d dispatchRequest) toRequest() dispatch.Request {
	return dispatch.Request{
		LeadID:         d.LeadID,
		Channel:        domain.Channel(d.Channel),
		SequenceStep:   d.SequenceStep,
		CampaignID:     d.CampaignID,
		PermissionMode: domain.PermissionMode(d.PermissionMode),
		ApprovedBy:     d.ApprovedBy,
		Payload:        provider.Payload{Subject: d.Subject, Body: d.Body, Vars: d.Vars},
	}
}

// Dispatch runs one dispatch and returns its decision. With ?async=true the
// request is queued and 202 is returned.
//
// approved_by is taken at face value: it releases a send held for review and
// is audited as an approval_granted event. Only the review consumer, behind
// the service's authenticating proxy, may set it.
//
//	POST /v1/dispatch
func (h *Handlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchRequest
	if !h.decodeValid(w, r, &body) {
		return
	}
	req := body.toRequest()

	if r.URL.Query().Get("async") == "true" {
		if h.workers == nil {
			httputil.ServiceUnavailable(w, "async dispatch is not enabled")
			return
		}
		if err := h.workers.Submit(req); err != nil {
			writeError(w, err)
			return
		}
		httputil.Accepted(w, map[string]string{"status": "queued", "idempotency_key": req.Key()})
		return
	}

	d, err := h.engine.Dispatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, d)
}

type enrichRequest struct {
	Fields []string `json:"fields" validate:"required,min=1,dive,oneof=email phone social_handle mailing_address"`
}

// Enrich runs the waterfall for the requested fields.
//
//	POST /v1/leads/{id}/enrich
func (h *Handlers) Enrich(w http.ResponseWriter, r *http.Request) {
	var body enrichRequest
	if !h.decodeValid(w, r, &body) {
		return
	}
	fields := make([]domain.ContactField, len(body.Fields))
	for i, f := range body.Fields {
		fields[i] = domain.ContactField(f)
	}

	res, ran, err := h.engine.Enrich(r.Context(), chi.URLParam(r, "id"), fields...)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ran {
		httputil.Conflict(w, "enrichment_in_progress", "lead is being enriched by another request")
		return
	}
	httputil.OK(w, map[string]any{"resolutions": res})
}

// WorkerStats reports the background worker counters.
//
//	GET /v1/workers/stats
func (h *Handlers) WorkerStats(w http.ResponseWriter, r *http.Request) {
	if h.workers == nil {
		httputil.OK(w, map[string]any{"enabled": false})
		return
	}
	httputil.OK(w, map[string]any{"enabled": true, "stats": h.workers.Stats()})
}
