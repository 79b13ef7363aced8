package domain

import "time"

// SuppressionReason enumerates why a lead was flagged do-not-contact.
type SuppressionReason string

const (
	ReasonUnsubscribe    SuppressionReason = "unsubscribe"
	ReasonHardBounce     SuppressionReason = "hard_bounce"
	ReasonComplaint      SuppressionReason = "spam_complaint"
	ReasonManualOptOut   SuppressionReason = "manual_opt_out"
	ReasonDNCRRegistered SuppressionReason = "dncr_registered"
)

// ComplianceAction names an audited compliance event.
type ComplianceAction string

const (
	ActionDNCRSuppressed     ComplianceAction = "dncr_suppressed"
	ActionSuppressionCleared ComplianceAction = "suppression_cleared"
	ActionForceUnblocked     ComplianceAction = "force_unblocked"
	ActionQueuedForReview    ComplianceAction = "queued_for_review"
	ActionApprovalGranted    ComplianceAction = "approval_granted"
)

// ComplianceEvent is an append-only audit record of a legal or policy action
// taken against a lead.
type ComplianceEvent struct {
	ID         string           `json:"id" db:"id"`
	LeadID     string           `json:"lead_id" db:"lead_id"`
	ClientID   string           `json:"client_id" db:"client_id"`
	Action     ComplianceAction `json:"action" db:"action"`
	Channel    Channel          `json:"channel,omitempty" db:"channel"`
	Reason     string           `json:"reason" db:"reason"`
	Actor      string           `json:"actor,omitempty" db:"actor"`
	Identifier string           `json:"identifier,omitempty" db:"identifier"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}
