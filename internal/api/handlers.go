package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/outreach-dispatch/internal/dispatch"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/httputil"
	"github.com/ignite/outreach-dispatch/internal/pool"
	"github.com/ignite/outreach-dispatch/internal/waterfall"
	"github.com/ignite/outreach-dispatch/internal/worker"
)

// Engine is the orchestrator surface the API exposes.
type Engine interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*domain.DispatchDecision, error)
	Enrich(ctx context.Context, leadID string, fields ...domain.ContactField) ([]*waterfall.Resolution, bool, error)
	ClearSuppression(ctx context.Context, leadID, actor, note string) (*domain.Lead, error)
	ForceUnblock(ctx context.Context, leadID, actor, note string) (*domain.Lead, error)
}

// ResourceAdmin manages the sending resource pool.
type ResourceAdmin interface {
	Register(ctx context.Context, r *domain.Resource) error
	SetHealth(ctx context.Context, resourceID string, health domain.ResourceHealth) (*domain.Resource, error)
	Snapshot(ctx context.Context, clientID string, kind domain.ResourceKind) ([]pool.Status, error)
}

// AuditStore reads a lead's history.
type AuditStore interface {
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	ListResolutionAttempts(ctx context.Context, leadID string, field domain.ContactField) ([]domain.ResolutionAttempt, error)
	ListDecisions(ctx context.Context, leadID string) ([]domain.DispatchDecision, error)
	ListComplianceEvents(ctx context.Context, leadID string) ([]domain.ComplianceEvent, error)
}

// JobQueue accepts dispatch requests for background processing.
type JobQueue interface {
	Submit(req dispatch.Request) error
	Stats() map[string]int64
}

// Handlers holds the API's dependencies. Workers may be nil, in which case
// async dispatch is refused.
type Handlers struct {
	engine    Engine
	resources ResourceAdmin
	audit     AuditStore
	workers   JobQueue
	validate  *Validator
}

// NewHandlers creates the handler set.
func NewHandlers(engine Engine, resources ResourceAdmin, audit AuditStore, workers JobQueue) *Handlers {
	return &Handlers{
		engine:    engine,
		resources: resources,
		audit:     audit,
		workers:   workers,
		validate:  NewValidator(),
	}
}

// decodeValid decodes and validates a request body, writing the error
// response itself on failure.
func (h *Handlers) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !httputil.Decode(w, r, dst) {
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			httputil.ValidationFailed(w, ve.Errors)
			return false
		}
		httputil.BadRequest(w, err.Error())
		return false
	}
	return true
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLeadNotFound), errors.Is(err, domain.ErrResourceNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, dispatch.ErrDNCROverride):
		httputil.Conflict(w, "dncr_override", err.Error())
	case errors.Is(err, dispatch.ErrNotSuppressed):
		httputil.Conflict(w, "not_suppressed", err.Error())
	case errors.Is(err, dispatch.ErrUnknownChannel), errors.Is(err, dispatch.ErrInvalidRequest),
		errors.Is(err, pool.ErrInvalidKind), errors.Is(err, pool.ErrInvalidHealth),
		errors.Is(err, waterfall.ErrUnknownField):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, dispatch.ErrNoSender):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, "no_sender", err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped):
		httputil.ServiceUnavailable(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
