package pool

import (
	"context"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Repository holds resource definitions and their last observed state.
// Usage counters live in the CounterStore, not here.
type Repository interface {
	// ListResources returns a client's resources of one kind ordered by ID.
	ListResources(ctx context.Context, clientID string, kind domain.ResourceKind) ([]domain.Resource, error)

	// GetResource returns domain.ErrResourceNotFound if id is unknown.
	GetResource(ctx context.Context, id string) (*domain.Resource, error)

	SaveResource(ctx context.Context, r *domain.Resource) error

	// UpdateResource applies mutate to the latest stored copy of the resource
	// as one atomic step. Health changes go through it so a concurrent
	// demotion is never overwritten by a stale snapshot.
	UpdateResource(ctx context.Context, id string, mutate func(*domain.Resource) error) (*domain.Resource, error)
}
