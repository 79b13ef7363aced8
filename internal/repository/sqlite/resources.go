package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

const resourceColumns = `id, client_id, kind, identifier, health, capacity, usage, last_reset_at,
	consecutive_failures, warming_started_at, created_at, updated_at`

// ListResources returns a client's resources ordered by ID. An empty kind
// matches every kind.
func (s *Store) ListResources(ctx context.Context, clientID string, kind domain.ResourceKind) ([]domain.Resource, error) {
	var out []domain.Resource
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+resourceColumns+` FROM sending_resources
		WHERE client_id = ? AND (? = '' OR kind = ?)
		ORDER BY id
	`, clientID, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return out, nil
}

func (s *Store) GetResource(ctx context.Context, id string) (*domain.Resource, error) {
	return getResource(ctx, s.db, id)
}

// UpdateResource applies mutate to the current row and writes it back
// inside one transaction.
func (s *Store) UpdateResource(ctx context.Context, id string, mutate func(*domain.Resource) error) (*domain.Resource, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resource update: %w", err)
	}
	defer tx.Rollback()

	r, err := getResource(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(r); err != nil {
		return nil, err
	}
	r.ID = id
	if err := s.saveResource(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resource update: %w", err)
	}
	return r, nil
}

func getResource(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Resource, error) {
	var r domain.Resource
	err := sqlx.GetContext(ctx, q, &r, `SELECT `+resourceColumns+` FROM sending_resources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &r, nil
}

func (s *Store) SaveResource(ctx context.Context, r *domain.Resource) error {
	return s.saveResource(ctx, s.db, r)
}

func (s *Store) saveResource(ctx context.Context, e sqlx.ExtContext, r *domain.Resource) error {
	row := *r
	now := s.now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	_, err := sqlx.NamedExecContext(ctx, e, `
		INSERT INTO sending_resources (`+resourceColumns+`)
		VALUES (:id, :client_id, :kind, :identifier, :health, :capacity, :usage, :last_reset_at,
		        :consecutive_failures, :warming_started_at, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			kind = excluded.kind,
			identifier = excluded.identifier,
			health = excluded.health,
			capacity = excluded.capacity,
			usage = excluded.usage,
			last_reset_at = excluded.last_reset_at,
			consecutive_failures = excluded.consecutive_failures,
			warming_started_at = excluded.warming_started_at,
			updated_at = excluded.updated_at
	`, row)
	if err != nil {
		return fmt.Errorf("save resource: %w", err)
	}
	return nil
}
