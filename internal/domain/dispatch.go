package domain

import (
	"fmt"
	"time"
)

// Outcome is the terminal result of one dispatch decision.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeDeferred Outcome = "deferred"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeFailed   Outcome = "failed"
)

// Decision reasons surfaced to operators.
const (
	ReasonSuppression          = "suppression"
	ReasonDNCR                 = "dncr_registered"
	ReasonOutsideBusinessHours = "outside_business_hours"
	ReasonApprovalRequired     = "approval_required"
	ReasonNoCapacity           = "no_capacity"
	ReasonInProgress           = "dispatch_in_progress"
	ReasonUnresolvedContact    = "unresolved_contact"
	ReasonProviderRejected     = "provider_rejected"
	ReasonProviderError        = "provider_error"
	ReasonRateLimited          = "rate_limited"
	ReasonAlreadySent          = "already_sent"
)

// DispatchDecision is the unit of work the orchestrator produces. Decisions
// are append-only; one is written per attempted send.
type DispatchDecision struct {
	ID             string           `json:"id" db:"id"`
	LeadID         string           `json:"lead_id" db:"lead_id"`
	ClientID       string           `json:"client_id" db:"client_id"`
	Channel        Channel          `json:"channel" db:"channel"`
	SequenceStep   int              `json:"sequence_step" db:"sequence_step"`
	IdempotencyKey string           `json:"idempotency_key" db:"idempotency_key"`
	Outcome        Outcome          `json:"outcome" db:"outcome"`
	Reason         string           `json:"reason,omitempty" db:"reason"`
	ResourceID     string           `json:"resource_id,omitempty" db:"resource_id"`
	ProviderID     string           `json:"provider_id,omitempty" db:"provider_id"`
	MessageID      string           `json:"message_id,omitempty" db:"message_id"`
	Holds          []ComplianceHold `json:"holds,omitempty" db:"-"`
	RetryAt        *time.Time       `json:"retry_at,omitempty" db:"retry_at"`
	Retryable      bool             `json:"retryable" db:"retryable"`
	Escalated      bool             `json:"escalated" db:"escalated"`
	DecidedAt      time.Time        `json:"decided_at" db:"decided_at"`
}

// IdempotencyKey builds the (lead, channel, sequence-step) key that allows at
// most one successful send per logical action.
func IdempotencyKey(leadID string, ch Channel, step int) string {
	return fmt.Sprintf("%s:%s:%d", leadID, ch, step)
}
