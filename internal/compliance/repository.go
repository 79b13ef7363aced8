package compliance

import (
	"context"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Repository persists the side effects of a legal hold.
type Repository interface {
	// UpdateLead applies mutate to the latest stored copy of the lead as one
	// atomic step. The gate uses it to suppress.
	UpdateLead(ctx context.Context, id string, mutate func(*domain.Lead) error) (*domain.Lead, error)

	// AppendComplianceEvent records an audited compliance action.
	AppendComplianceEvent(ctx context.Context, e *domain.ComplianceEvent) error
}
