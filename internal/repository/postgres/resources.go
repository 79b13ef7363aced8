package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

const resourceColumns = `
	id, client_id, kind, identifier, health, capacity, usage, last_reset_at,
	consecutive_failures, warming_started_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (domain.Resource, error) {
	var (
		r       domain.Resource
		reset   sql.NullTime
		warming sql.NullTime
	)
	err := row.Scan(&r.ID, &r.ClientID, &r.Kind, &r.Identifier, &r.Health, &r.Capacity, &r.Usage, &reset,
		&r.ConsecutiveFailures, &warming, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	if reset.Valid {
		r.LastResetAt = reset.Time.UTC()
	}
	r.WarmingStartedAt = nullTime(warming)
	return r, nil
}

// ListResources returns a client's resources ordered by ID. An empty kind
// matches every kind.
func (s *Store) ListResources(ctx context.Context, clientID string, kind domain.ResourceKind) ([]domain.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resourceColumns+`
		FROM sending_resources
		WHERE client_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY id
	`, clientID, kind)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetResource(ctx context.Context, id string) (*domain.Resource, error) {
	return getResource(ctx, s.db, id, "")
}

// UpdateResource locks the resource row, applies mutate to the current row
// and writes it back in one transaction.
func (s *Store) UpdateResource(ctx context.Context, id string, mutate func(*domain.Resource) error) (*domain.Resource, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resource update: %w", err)
	}
	defer tx.Rollback()

	r, err := getResource(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if err := mutate(r); err != nil {
		return nil, err
	}
	r.ID = id
	if err := saveResource(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resource update: %w", err)
	}
	return r, nil
}

func getResource(ctx context.Context, q queryer, id, lock string) (*domain.Resource, error) {
	row := q.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM sending_resources WHERE id = $1`+lock, id)
	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return &r, nil
}

func (s *Store) SaveResource(ctx context.Context, r *domain.Resource) error {
	return saveResource(ctx, s.db, r)
}

func saveResource(ctx context.Context, e execer, r *domain.Resource) error {
	var reset any
	if !r.LastResetAt.IsZero() {
		reset = r.LastResetAt
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO sending_resources (`+resourceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			kind = EXCLUDED.kind,
			identifier = EXCLUDED.identifier,
			health = EXCLUDED.health,
			capacity = EXCLUDED.capacity,
			usage = EXCLUDED.usage,
			last_reset_at = EXCLUDED.last_reset_at,
			consecutive_failures = EXCLUDED.consecutive_failures,
			warming_started_at = EXCLUDED.warming_started_at,
			updated_at = NOW()
	`, r.ID, r.ClientID, r.Kind, r.Identifier, r.Health, r.Capacity, r.Usage, reset,
		r.ConsecutiveFailures, r.WarmingStartedAt)
	if err != nil {
		return fmt.Errorf("save resource: %w", err)
	}
	return nil
}
