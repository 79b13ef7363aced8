package domain

import (
	"strings"
	"time"
)

// LeadState is the lifecycle position of a lead.
type LeadState string

const (
	LeadNew        LeadState = "new"
	LeadEnriching  LeadState = "enriching"
	LeadEnriched   LeadState = "enriched"
	LeadScored     LeadState = "scored"
	LeadInSequence LeadState = "in_sequence"
	LeadReplied    LeadState = "replied"
	LeadConverted  LeadState = "converted"
	LeadSuppressed LeadState = "suppressed"
)

// stateRank orders the linear part of the lifecycle. Replied and converted
// branch off in_sequence and share a rank.
var stateRank = map[LeadState]int{
	LeadNew:        0,
	LeadEnriching:  1,
	LeadEnriched:   2,
	LeadScored:     3,
	LeadInSequence: 4,
	LeadReplied:    5,
	LeadConverted:  5,
}

// Valid reports whether s is a known lifecycle state.
func (s LeadState) Valid() bool {
	if s == LeadSuppressed {
		return true
	}
	_, ok := stateRank[s]
	return ok
}

// CanTransition reports whether a lead may move from s to next. Transitions
// are monotonic: a lead only moves forward along the lifecycle, suppressed is
// reachable from anywhere, and nothing leaves suppressed except an explicit
// admin override (see Lead.ClearSuppression).
func (s LeadState) CanTransition(next LeadState) bool {
	if s == next {
		return true
	}
	if s == LeadSuppressed {
		return false
	}
	if next == LeadSuppressed {
		return true
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	if from == stateRank[LeadReplied] {
		return false
	}
	return to > from
}

// ContactField names a resolvable contact attribute of a lead.
type ContactField string

const (
	FieldEmail          ContactField = "email"
	FieldPhone          ContactField = "phone"
	FieldSocialHandle   ContactField = "social_handle"
	FieldMailingAddress ContactField = "mailing_address"
)

// Lead is a prospective contact owned by a client.
type Lead struct {
	ID         string `json:"id" db:"id"`
	ClientID   string `json:"client_id" db:"client_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Company   string `json:"company" db:"company"`
	Title     string `json:"title" db:"title"`
	Domain    string `json:"domain,omitempty" db:"domain"`

	Email          string `json:"email,omitempty" db:"email"`
	Phone          string `json:"phone,omitempty" db:"phone"`
	SocialHandle   string `json:"social_handle,omitempty" db:"social_handle"`
	MailingAddress string `json:"mailing_address,omitempty" db:"mailing_address"`

	Timezone string    `json:"timezone,omitempty" db:"timezone"`
	State    LeadState `json:"state" db:"state"`
	Score    float64   `json:"score" db:"score"`

	Suppressed          bool              `json:"suppressed" db:"suppressed"`
	SuppressionReason   SuppressionReason `json:"suppression_reason,omitempty" db:"suppression_reason"`
	PreSuppressionState LeadState         `json:"-" db:"pre_suppression_state"`

	LastContacted map[Channel]time.Time `json:"last_contacted,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contact returns the current value of a contact field ("" when unresolved).
func (l *Lead) Contact(f ContactField) string {
	switch f {
	case FieldEmail:
		return l.Email
	case FieldPhone:
		return l.Phone
	case FieldSocialHandle:
		return l.SocialHandle
	case FieldMailingAddress:
		return l.MailingAddress
	}
	return ""
}

// HasContact reports whether the field is populated.
func (l *Lead) HasContact(f ContactField) bool {
	return strings.TrimSpace(l.Contact(f)) != ""
}

// SetContact writes a contact field. Unknown fields are ignored.
func (l *Lead) SetContact(f ContactField, v string) {
	switch f {
	case FieldEmail:
		l.Email = v
	case FieldPhone:
		l.Phone = v
	case FieldSocialHandle:
		l.SocialHandle = v
	case FieldMailingAddress:
		l.MailingAddress = v
	}
}

// Advance moves the lead to next if the transition is allowed and reports
// whether the state changed.
func (l *Lead) Advance(next LeadState) bool {
	if l.State == next || !l.State.CanTransition(next) {
		return false
	}
	l.State = next
	return true
}

// Suppress flags the lead as do-not-contact. The first reason wins so the
// audit trail keeps the original cause.
func (l *Lead) Suppress(reason SuppressionReason) {
	if l.Suppressed {
		return
	}
	l.Suppressed = true
	l.SuppressionReason = reason
	if l.State != LeadSuppressed {
		l.PreSuppressionState = l.State
	}
	l.State = LeadSuppressed
}

// ClearSuppression lifts a suppression flag and restores the state the lead
// had before it was suppressed. DNCR registrations are never cleared here.
func (l *Lead) ClearSuppression() bool {
	if !l.Suppressed || l.SuppressionReason == ReasonDNCRRegistered {
		return false
	}
	l.Suppressed = false
	l.SuppressionReason = ""
	l.State = l.PreSuppressionState
	if !l.State.Valid() || l.State == LeadSuppressed {
		l.State = LeadNew
	}
	l.PreSuppressionState = ""
	return true
}

// FirstTouch reports whether the lead has never been contacted on any channel.
func (l *Lead) FirstTouch() bool {
	return len(l.LastContacted) == 0
}

// MarkContacted stamps the last-contacted time for a channel.
func (l *Lead) MarkContacted(ch Channel, at time.Time) {
	if l.LastContacted == nil {
		l.LastContacted = make(map[Channel]time.Time)
	}
	l.LastContacted[ch] = at
}

// TemplateVars exposes the lead to message templates.
func (l *Lead) TemplateVars() map[string]any {
	return map[string]any{
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"company":    l.Company,
		"title":      l.Title,
		"email":      l.Email,
		"phone":      l.Phone,
		"domain":     l.Domain,
	}
}

// Clone returns a deep copy safe to hand across goroutines.
func (l *Lead) Clone() *Lead {
	c := *l
	if l.LastContacted != nil {
		c.LastContacted = make(map[Channel]time.Time, len(l.LastContacted))
		for ch, at := range l.LastContacted {
			c.LastContacted[ch] = at
		}
	}
	return &c
}
