package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Append-only tables are read back in rowid order.

func (s *Store) AppendResolutionAttempt(ctx context.Context, a *domain.ResolutionAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO resolution_attempts
			(id, lead_id, field, tier_index, provider_id, result, cost, error, attempted_at)
		VALUES (:id, :lead_id, :field, :tier_index, :provider_id, :result, :cost, :error, :attempted_at)
	`, a)
	if err != nil {
		return fmt.Errorf("append resolution attempt: %w", err)
	}
	return nil
}

// ListResolutionAttempts returns a lead's attempts in insertion order. An
// empty field matches every field.
func (s *Store) ListResolutionAttempts(ctx context.Context, leadID string, field domain.ContactField) ([]domain.ResolutionAttempt, error) {
	var out []domain.ResolutionAttempt
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, lead_id, field, tier_index, provider_id, result, cost, error, attempted_at
		FROM resolution_attempts
		WHERE lead_id = ? AND (? = '' OR field = ?)
		ORDER BY rowid
	`, leadID, string(field), string(field))
	if err != nil {
		return nil, fmt.Errorf("list resolution attempts: %w", err)
	}
	return out, nil
}

type decisionRow struct {
	domain.DispatchDecision
	HoldsJSON string `db:"holds"`
}

func (r decisionRow) toDomain() (domain.DispatchDecision, error) {
	d := r.DispatchDecision
	if err := json.Unmarshal([]byte(r.HoldsJSON), &d.Holds); err != nil {
		return d, fmt.Errorf("decode holds for decision %s: %w", d.ID, err)
	}
	if len(d.Holds) == 0 {
		d.Holds = nil
	}
	return d, nil
}

const decisionColumns = `id, lead_id, client_id, channel, sequence_step, idempotency_key, outcome, reason,
	resource_id, provider_id, message_id, holds, retry_at, retryable, escalated, decided_at`

// AppendDecision records d. The unique partial index on sent decisions
// turns a second sent row for the same key into domain.ErrDuplicateSend.
func (s *Store) AppendDecision(ctx context.Context, d *domain.DispatchDecision) error {
	holds := []byte("[]")
	if len(d.Holds) > 0 {
		b, err := json.Marshal(d.Holds)
		if err != nil {
			return fmt.Errorf("encode holds: %w", err)
		}
		holds = b
	}
	row := decisionRow{DispatchDecision: *d, HoldsJSON: string(holds)}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO dispatch_decisions (`+decisionColumns+`)
		VALUES (:id, :lead_id, :client_id, :channel, :sequence_step, :idempotency_key, :outcome, :reason,
		        :resource_id, :provider_id, :message_id, :holds, :retry_at, :retryable, :escalated, :decided_at)
	`, row)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSend
	}
	if err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	d.ID = row.ID
	return nil
}

// FindSentDecision returns the sent decision for key, or nil if none exists.
func (s *Store) FindSentDecision(ctx context.Context, key string) (*domain.DispatchDecision, error) {
	var row decisionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+decisionColumns+` FROM dispatch_decisions
		WHERE idempotency_key = ? AND outcome = 'sent'
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find sent decision: %w", err)
	}
	d, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDecisions returns a lead's decisions oldest first.
func (s *Store) ListDecisions(ctx context.Context, leadID string) ([]domain.DispatchDecision, error) {
	var rows []decisionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+decisionColumns+` FROM dispatch_decisions
		WHERE lead_id = ?
		ORDER BY rowid
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	out := make([]domain.DispatchDecision, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) AppendComplianceEvent(ctx context.Context, e *domain.ComplianceEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO compliance_events
			(id, lead_id, client_id, action, channel, reason, actor, identifier, created_at)
		VALUES (:id, :lead_id, :client_id, :action, :channel, :reason, :actor, :identifier, :created_at)
	`, e)
	if err != nil {
		return fmt.Errorf("append compliance event: %w", err)
	}
	return nil
}

// ListComplianceEvents returns a lead's compliance events oldest first.
func (s *Store) ListComplianceEvents(ctx context.Context, leadID string) ([]domain.ComplianceEvent, error) {
	var out []domain.ComplianceEvent
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, lead_id, client_id, action, channel, reason, actor, identifier, created_at
		FROM compliance_events
		WHERE lead_id = ?
		ORDER BY rowid
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list compliance events: %w", err)
	}
	return out, nil
}
