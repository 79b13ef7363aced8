package dispatch

import (
	"context"

	"github.com/ignite/outreach-dispatch/internal/compliance"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/waterfall"
)

// Repository is the slice of the store the orchestrator needs.
type Repository interface {
	GetLead(ctx context.Context, id string) (*domain.Lead, error)

	// UpdateLead applies mutate to the latest stored copy of the lead as one
	// atomic step. Runs on other channels may change the same lead while a
	// dispatch is in flight, so writes carry only their own delta.
	UpdateLead(ctx context.Context, id string, mutate func(*domain.Lead) error) (*domain.Lead, error)

	// AppendDecision stores a decision. A second sent decision for the same
	// idempotency key fails with domain.ErrDuplicateSend.
	AppendDecision(ctx context.Context, d *domain.DispatchDecision) error

	// FindSentDecision returns the sent decision for key, or nil.
	FindSentDecision(ctx context.Context, key string) (*domain.DispatchDecision, error)

	// ListDecisions returns a lead's decisions oldest first.
	ListDecisions(ctx context.Context, leadID string) ([]domain.DispatchDecision, error)

	AppendComplianceEvent(ctx context.Context, e *domain.ComplianceEvent) error
}

// Resolver fills missing contact fields.
type Resolver interface {
	Resolve(ctx context.Context, lead *domain.Lead, field domain.ContactField) (*waterfall.Resolution, error)
}

// Gate evaluates legal and policy holds.
type Gate interface {
	Evaluate(ctx context.Context, c compliance.Check) (compliance.Verdict, error)
}

// ResourcePool hands out sending capacity.
type ResourcePool interface {
	Acquire(ctx context.Context, clientID string, kind domain.ResourceKind) (*domain.Resource, error)
	Release(ctx context.Context, lease *domain.Resource, outcome domain.ReleaseOutcome) error
}
