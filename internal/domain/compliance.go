package domain

import "time"

// HoldKind names the policy check that produced a hold.
type HoldKind string

const (
	HoldSuppression      HoldKind = "suppression"
	HoldDNCR             HoldKind = "dncr"
	HoldBusinessHours    HoldKind = "business_hours"
	HoldApprovalRequired HoldKind = "approval_required"
)

// ComplianceHold is the result of one policy check for one lead/channel/time.
// Holds are computed fresh per decision and persisted only inside the
// decision log.
type ComplianceHold struct {
	Kind     HoldKind   `json:"kind"`
	Blocking bool       `json:"blocking"`
	Reason   string     `json:"reason"`
	RetryAt  *time.Time `json:"retry_at,omitempty"`
}

// PermissionMode controls how much human approval gates sends for a campaign.
type PermissionMode string

const (
	ModeAutopilot PermissionMode = "autopilot"
	ModeCoPilot   PermissionMode = "co_pilot"
	ModeManual    PermissionMode = "manual"
)

// Valid reports whether m is a known permission mode.
func (m PermissionMode) Valid() bool {
	return m == ModeAutopilot || m == ModeCoPilot || m == ModeManual
}

// ReviewItem is an outbound action parked for human approval.
type ReviewItem struct {
	LeadID         string         `json:"lead_id"`
	ClientID       string         `json:"client_id"`
	CampaignID     string         `json:"campaign_id,omitempty"`
	Channel        Channel        `json:"channel"`
	SequenceStep   int            `json:"sequence_step"`
	IdempotencyKey string         `json:"idempotency_key"`
	PermissionMode PermissionMode `json:"permission_mode"`
	Subject        string         `json:"subject,omitempty"`
	Body           string         `json:"body"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
}
