package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/httputil"
)

// LeadAudit is everything recorded about a lead.
type LeadAudit struct {
	Lead             *domain.Lead               `json:"lead"`
	Resolution       []domain.ResolutionAttempt `json:"resolution_attempts"`
	Decisions        []domain.DispatchDecision  `json:"decisions"`
	ComplianceEvents []domain.ComplianceEvent   `json:"compliance_events"`
}

// LeadAuditTrail returns the lead with its resolution attempts, dispatch
// decisions and compliance events, oldest first.
//
//	GET /v1/leads/{id}/audit
func (h *Handlers) LeadAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	lead, err := h.audit.GetLead(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	attempts, err := h.audit.ListResolutionAttempts(ctx, id, "")
	if err != nil {
		writeError(w, err)
		return
	}
	decisions, err := h.audit.ListDecisions(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	events, err := h.audit.ListComplianceEvents(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.OK(w, LeadAudit{
		Lead:             lead,
		Resolution:       nonNil(attempts),
		Decisions:        nonNil(decisions),
		ComplianceEvents: nonNil(events),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
