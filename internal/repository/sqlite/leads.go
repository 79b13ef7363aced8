package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

type leadRow struct {
	domain.Lead
	LastContactedJSON string `db:"last_contacted"`
}

const leadColumns = `id, client_id, campaign_id, first_name, last_name, company, title, domain,
	email, phone, social_handle, mailing_address, timezone, state, score,
	suppressed, suppression_reason, pre_suppression_state, last_contacted,
	created_at, updated_at`

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	return getLead(ctx, s.db, id)
}

// UpdateLead applies mutate to the current row and writes it back inside
// one transaction. The store has a single connection, so the transaction
// excludes every other reader and writer.
func (s *Store) UpdateLead(ctx context.Context, id string, mutate func(*domain.Lead) error) (*domain.Lead, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lead update: %w", err)
	}
	defer tx.Rollback()

	lead, err := getLead(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(lead); err != nil {
		return nil, err
	}
	lead.ID = id
	if err := s.saveLead(ctx, tx, lead); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lead update: %w", err)
	}
	return lead, nil
}

func getLead(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Lead, error) {
	var row leadRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	lead := row.Lead
	if err := json.Unmarshal([]byte(row.LastContactedJSON), &lead.LastContacted); err != nil {
		return nil, fmt.Errorf("decode last_contacted for lead %s: %w", id, err)
	}
	if len(lead.LastContacted) == 0 {
		lead.LastContacted = nil
	}
	return &lead, nil
}

func (s *Store) SaveLead(ctx context.Context, l *domain.Lead) error {
	return s.saveLead(ctx, s.db, l)
}

func (s *Store) saveLead(ctx context.Context, e sqlx.ExtContext, l *domain.Lead) error {
	lc := []byte("{}")
	if len(l.LastContacted) > 0 {
		b, err := json.Marshal(l.LastContacted)
		if err != nil {
			return fmt.Errorf("encode last_contacted: %w", err)
		}
		lc = b
	}
	row := leadRow{Lead: *l, LastContactedJSON: string(lc)}
	now := s.now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	_, err := sqlx.NamedExecContext(ctx, e, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES (:id, :client_id, :campaign_id, :first_name, :last_name, :company, :title, :domain,
		        :email, :phone, :social_handle, :mailing_address, :timezone, :state, :score,
		        :suppressed, :suppression_reason, :pre_suppression_state, :last_contacted,
		        :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			campaign_id = excluded.campaign_id,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			company = excluded.company,
			title = excluded.title,
			domain = excluded.domain,
			email = excluded.email,
			phone = excluded.phone,
			social_handle = excluded.social_handle,
			mailing_address = excluded.mailing_address,
			timezone = excluded.timezone,
			state = excluded.state,
			score = excluded.score,
			suppressed = excluded.suppressed,
			suppression_reason = excluded.suppression_reason,
			pre_suppression_state = excluded.pre_suppression_state,
			last_contacted = excluded.last_contacted,
			updated_at = excluded.updated_at
	`, row)
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}
