package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/httputil"
)

type overrideRequest struct {
	Actor string `json:"actor" validate:"required,max=256"`
	Note  string `json:"note,omitempty" validate:"max=1000"`
}

// ClearSuppression lifts a non-DNCR suppression.
//
//	POST /v1/admin/leads/{id}/clear-suppression
func (h *Handlers) ClearSuppression(w http.ResponseWriter, r *http.Request) {
	var body overrideRequest
	if !h.decodeValid(w, r, &body) {
		return
	}
	lead, err := h.engine.ClearSuppression(r.Context(), chi.URLParam(r, "id"), body.Actor, body.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, lead)
}

// ForceUnblock returns a suppressed lead to its pre-suppression state.
// DNCR-suppressed leads come back unchanged.
//
//	POST /v1/admin/leads/{id}/force-unblock
func (h *Handlers) ForceUnblock(w http.ResponseWriter, r *http.Request) {
	var body overrideRequest
	if !h.decodeValid(w, r, &body) {
		return
	}
	lead, err := h.engine.ForceUnblock(r.Context(), chi.URLParam(r, "id"), body.Actor, body.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, lead)
}

type registerResourceRequest struct {
	ID         string `json:"id" validate:"required,max=128"`
	ClientID   string `json:"client_id" validate:"required,max=128"`
	Kind       string `json:"kind" validate:"required,oneof=phone mailbox social_seat"`
	Identifier string `json:"identifier" validate:"required,max=320"`
	Health     string `json:"health,omitempty" validate:"omitempty,oneof=warming active degraded suspended"`
	Capacity   int    `json:"capacity" validate:"min=0"`
}

// RegisterResource adds or replaces a sending resource.
//
//	POST /v1/admin/resources
func (h *Handlers) RegisterResource(w http.ResponseWriter, r *http.Request) {
	var body registerResourceRequest
	if !h.decodeValid(w, r, &body) {
		return
	}
	res := &domain.Resource{
		ID:         body.ID,
		ClientID:   body.ClientID,
		Kind:       domain.ResourceKind(body.Kind),
		Identifier: body.Identifier,
		Health:     domain.ResourceHealth(body.Health),
		Capacity:   body.Capacity,
	}
	if err := h.resources.Register(r.Context(), res); err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, res)
}

type healthRequest struct {
	Health string `json:"health" validate:"required,oneof=warming active degraded suspended"`
}

// SetResourceHealth changes a resource's health by hand.
//
//	POST /v1/admin/resources/{id}/health
func (h *Handlers) SetResourceHealth(w http.ResponseWriter, r *http.Request) {
	var body healthRequest
	if !h.decodeValid(w, r, &body) {
		return
	}
	res, err := h.resources.SetHealth(r.Context(), chi.URLParam(r, "id"), domain.ResourceHealth(body.Health))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ListResources returns a client's resources with live usage.
//
//	GET /v1/clients/{clientID}/resources?kind=phone
func (h *Handlers) ListResources(w http.ResponseWriter, r *http.Request) {
	kind := domain.ResourceKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		httputil.BadRequest(w, "unknown resource kind")
		return
	}
	status, err := h.resources.Snapshot(r.Context(), chi.URLParam(r, "clientID"), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"resources": status})
}
