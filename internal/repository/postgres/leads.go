package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

const leadColumns = `
	id, client_id, campaign_id, first_name, last_name, company, title, domain,
	email, phone, social_handle, mailing_address, timezone, state, score,
	suppressed, suppression_reason, pre_suppression_state, last_contacted,
	created_at, updated_at`

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	return getLead(ctx, s.db, id, "")
}

// UpdateLead locks the lead row, applies mutate to the current row and
// writes it back in one transaction. Nothing is written when mutate fails.
func (s *Store) UpdateLead(ctx context.Context, id string, mutate func(*domain.Lead) error) (*domain.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lead update: %w", err)
	}
	defer tx.Rollback()

	l, err := getLead(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if err := mutate(l); err != nil {
		return nil, err
	}
	l.ID = id
	if err := saveLead(ctx, tx, l); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lead update: %w", err)
	}
	return l, nil
}

func getLead(ctx context.Context, q queryer, id, lock string) (*domain.Lead, error) {
	l := &domain.Lead{}
	var lastContacted []byte
	err := q.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`+lock, id).Scan(
		&l.ID, &l.ClientID, &l.CampaignID, &l.FirstName, &l.LastName, &l.Company, &l.Title, &l.Domain,
		&l.Email, &l.Phone, &l.SocialHandle, &l.MailingAddress, &l.Timezone, &l.State, &l.Score,
		&l.Suppressed, &l.SuppressionReason, &l.PreSuppressionState, &lastContacted,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if len(lastContacted) > 0 {
		if err := json.Unmarshal(lastContacted, &l.LastContacted); err != nil {
			return nil, fmt.Errorf("decode last_contacted for lead %s: %w", id, err)
		}
	}
	return l, nil
}

// SaveLead inserts or replaces a lead. created_at is kept from the first
// insert.
func (s *Store) SaveLead(ctx context.Context, l *domain.Lead) error {
	return saveLead(ctx, s.db, l)
}

func saveLead(ctx context.Context, e execer, l *domain.Lead) error {
	lastContacted, err := jsonColumn(l.LastContacted, "{}")
	if err != nil {
		return fmt.Errorf("encode last_contacted: %w", err)
	}
	_, err = e.ExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			campaign_id = EXCLUDED.campaign_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			company = EXCLUDED.company,
			title = EXCLUDED.title,
			domain = EXCLUDED.domain,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			social_handle = EXCLUDED.social_handle,
			mailing_address = EXCLUDED.mailing_address,
			timezone = EXCLUDED.timezone,
			state = EXCLUDED.state,
			score = EXCLUDED.score,
			suppressed = EXCLUDED.suppressed,
			suppression_reason = EXCLUDED.suppression_reason,
			pre_suppression_state = EXCLUDED.pre_suppression_state,
			last_contacted = EXCLUDED.last_contacted,
			updated_at = NOW()
	`, l.ID, l.ClientID, l.CampaignID, l.FirstName, l.LastName, l.Company, l.Title, l.Domain,
		l.Email, l.Phone, l.SocialHandle, l.MailingAddress, l.Timezone, l.State, l.Score,
		l.Suppressed, l.SuppressionReason, l.PreSuppressionState, lastContacted)
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}
