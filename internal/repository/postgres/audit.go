package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Attempts, decisions and compliance events are append-only. Each table
// carries a bigserial seq column that fixes insertion order.

func (s *Store) AppendResolutionAttempt(ctx context.Context, a *domain.ResolutionAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolution_attempts
			(id, lead_id, field, tier_index, provider_id, result, cost, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.LeadID, a.Field, a.TierIndex, a.ProviderID, a.Result, a.Cost, a.Error, a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("append resolution attempt: %w", err)
	}
	return nil
}

// ListResolutionAttempts returns a lead's attempts in insertion order. An
// empty field matches every field.
func (s *Store) ListResolutionAttempts(ctx context.Context, leadID string, field domain.ContactField) ([]domain.ResolutionAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, field, tier_index, provider_id, result, cost, error, attempted_at
		FROM resolution_attempts
		WHERE lead_id = $1 AND ($2 = '' OR field = $2)
		ORDER BY seq
	`, leadID, field)
	if err != nil {
		return nil, fmt.Errorf("list resolution attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.ResolutionAttempt
	for rows.Next() {
		var a domain.ResolutionAttempt
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Field, &a.TierIndex, &a.ProviderID,
			&a.Result, &a.Cost, &a.Error, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan resolution attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendDecision records d. A unique partial index on sent decisions turns
// a second sent row for the same key into domain.ErrDuplicateSend.
func (s *Store) AppendDecision(ctx context.Context, d *domain.DispatchDecision) error {
	holds, err := jsonColumn(d.Holds, "[]")
	if err != nil {
		return fmt.Errorf("encode holds: %w", err)
	}
	id := d.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dispatch_decisions
			(id, lead_id, client_id, channel, sequence_step, idempotency_key, outcome, reason,
			 resource_id, provider_id, message_id, holds, retry_at, retryable, escalated, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, id, d.LeadID, d.ClientID, d.Channel, d.SequenceStep, d.IdempotencyKey, d.Outcome, d.Reason,
		d.ResourceID, d.ProviderID, d.MessageID, holds, d.RetryAt, d.Retryable, d.Escalated, d.DecidedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSend
	}
	if err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	d.ID = id
	return nil
}

const decisionColumns = `
	id, lead_id, client_id, channel, sequence_step, idempotency_key, outcome, reason,
	resource_id, provider_id, message_id, holds, retry_at, retryable, escalated, decided_at`

func scanDecision(row rowScanner) (domain.DispatchDecision, error) {
	var (
		d     domain.DispatchDecision
		holds []byte
		retry sql.NullTime
	)
	err := row.Scan(&d.ID, &d.LeadID, &d.ClientID, &d.Channel, &d.SequenceStep, &d.IdempotencyKey,
		&d.Outcome, &d.Reason, &d.ResourceID, &d.ProviderID, &d.MessageID, &holds, &retry,
		&d.Retryable, &d.Escalated, &d.DecidedAt)
	if err != nil {
		return d, err
	}
	if len(holds) > 0 {
		if err := json.Unmarshal(holds, &d.Holds); err != nil {
			return d, fmt.Errorf("decode holds for decision %s: %w", d.ID, err)
		}
	}
	d.RetryAt = nullTime(retry)
	return d, nil
}

// FindSentDecision returns the sent decision for key, or nil if none exists.
func (s *Store) FindSentDecision(ctx context.Context, key string) (*domain.DispatchDecision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+decisionColumns+`
		FROM dispatch_decisions
		WHERE idempotency_key = $1 AND outcome = 'sent'
	`, key)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find sent decision: %w", err)
	}
	return &d, nil
}

// ListDecisions returns a lead's decisions oldest first.
func (s *Store) ListDecisions(ctx context.Context, leadID string) ([]domain.DispatchDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+decisionColumns+`
		FROM dispatch_decisions
		WHERE lead_id = $1
		ORDER BY seq
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.DispatchDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) AppendComplianceEvent(ctx context.Context, e *domain.ComplianceEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compliance_events
			(id, lead_id, client_id, action, channel, reason, actor, identifier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.LeadID, e.ClientID, e.Action, e.Channel, e.Reason, e.Actor, e.Identifier, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append compliance event: %w", err)
	}
	return nil
}

// ListComplianceEvents returns a lead's compliance events oldest first.
func (s *Store) ListComplianceEvents(ctx context.Context, leadID string) ([]domain.ComplianceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, client_id, action, channel, reason, actor, identifier, created_at
		FROM compliance_events
		WHERE lead_id = $1
		ORDER BY seq
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list compliance events: %w", err)
	}
	defer rows.Close()

	var out []domain.ComplianceEvent
	for rows.Next() {
		var e domain.ComplianceEvent
		if err := rows.Scan(&e.ID, &e.LeadID, &e.ClientID, &e.Action, &e.Channel, &e.Reason,
			&e.Actor, &e.Identifier, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan compliance event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
