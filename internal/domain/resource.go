package domain

import "time"

// ResourceKind identifies the type of finite sending unit.
type ResourceKind string

const (
	ResourcePhone      ResourceKind = "phone"
	ResourceMailbox    ResourceKind = "mailbox"
	ResourceSocialSeat ResourceKind = "social_seat"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	return k == ResourcePhone || k == ResourceMailbox || k == ResourceSocialSeat
}

// ResourceHealth tracks sender reputation state.
type ResourceHealth string

const (
	HealthWarming   ResourceHealth = "warming"
	HealthActive    ResourceHealth = "active"
	HealthDegraded  ResourceHealth = "degraded"
	HealthSuspended ResourceHealth = "suspended"
)

// Valid reports whether h is a known health state.
func (h ResourceHealth) Valid() bool {
	switch h {
	case HealthWarming, HealthActive, HealthDegraded, HealthSuspended:
		return true
	}
	return false
}

// Resource is a finite shared sending unit owned by a client: a phone
// number, a mailbox, or a social seat.
type Resource struct {
	ID         string         `json:"id" db:"id"`
	ClientID   string         `json:"client_id" db:"client_id"`
	Kind       ResourceKind   `json:"kind" db:"kind"`
	Identifier string         `json:"identifier" db:"identifier"`
	Health     ResourceHealth `json:"health" db:"health"`

	// Capacity is the maximum sends per rolling window once fully warmed.
	Capacity int `json:"capacity" db:"capacity"`
	// Usage is the live counter for the current window. Repositories store
	// the value last observed; the pool's counter store is authoritative.
	Usage       int       `json:"usage" db:"usage"`
	LastResetAt time.Time `json:"last_reset_at" db:"last_reset_at"`

	ConsecutiveFailures int        `json:"consecutive_failures" db:"consecutive_failures"`
	WarmingStartedAt    *time.Time `json:"warming_started_at,omitempty" db:"warming_started_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Acquirable reports whether the resource's health allows new sends.
func (r *Resource) Acquirable() bool {
	return r.Health == HealthActive || r.Health == HealthWarming
}

// ReleaseOutcome reports how the send that held a resource ended.
type ReleaseOutcome string

const (
	ReleaseSuccess ReleaseOutcome = "success"
	ReleaseFailure ReleaseOutcome = "failure"
)
