package domain

import "time"

// ResolutionResult classifies one tier's outcome.
type ResolutionResult string

const (
	ResultSuccess       ResolutionResult = "success"
	ResultNotFound      ResolutionResult = "not_found"
	ResultProviderError ResolutionResult = "provider_error"
	ResultRateLimited   ResolutionResult = "rate_limited"
)

// Transient reports whether the result is eligible for tier-level retry.
func (r ResolutionResult) Transient() bool {
	return r == ResultProviderError || r == ResultRateLimited
}

// ResolutionAttempt is one tier's outcome for one lead/field. Attempts are
// append-only and never mutated after creation.
type ResolutionAttempt struct {
	ID          string           `json:"id" db:"id"`
	LeadID      string           `json:"lead_id" db:"lead_id"`
	Field       ContactField     `json:"field" db:"field"`
	TierIndex   int              `json:"tier_index" db:"tier_index"`
	ProviderID  string           `json:"provider_id" db:"provider_id"`
	Result      ResolutionResult `json:"result" db:"result"`
	Cost        float64          `json:"cost" db:"cost"`
	Error       string           `json:"error,omitempty" db:"error"`
	AttemptedAt time.Time        `json:"attempted_at" db:"attempted_at"`
}
