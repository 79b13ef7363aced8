package waterfall

import (
	"context"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Repository is the persistence the resolver needs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// UpdateLead applies mutate to the latest stored copy of the lead as one
	// atomic step and returns the result.
	UpdateLead(ctx context.Context, id string, mutate func(*domain.Lead) error) (*domain.Lead, error)

	// AppendResolutionAttempt records one tier call. Attempts are never updated.
	AppendResolutionAttempt(ctx context.Context, a *domain.ResolutionAttempt) error

	// ListResolutionAttempts returns prior attempts for a lead/field, oldest first.
	ListResolutionAttempts(ctx context.Context, leadID string, field domain.ContactField) ([]domain.ResolutionAttempt, error)
}
