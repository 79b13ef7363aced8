// Package memory is an in-process repository for tests and single-node
// development. It satisfies the repository contracts of the waterfall,
// pool, compliance and dispatch packages.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Store keeps every record in maps guarded by one RWMutex. Values are copied
// in and out so callers never share memory with the store.
type Store struct {
	mu        sync.RWMutex
	leads     map[string]*domain.Lead
	resources map[string]domain.Resource
	attempts  []domain.ResolutionAttempt
	decisions []domain.DispatchDecision
	sentByKey map[string]int // idempotency key -> index into decisions
	events    []domain.ComplianceEvent
}

// New creates an empty store.
func New() *Store {
	return &Store{
		leads:     make(map[string]*domain.Lead),
		resources: make(map[string]domain.Resource),
		sentByKey: make(map[string]int),
	}
}

func (s *Store) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, domain.ErrLeadNotFound
	}
	return l.Clone(), nil
}

func (s *Store) SaveLead(_ context.Context, lead *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c := lead.Clone()
	if existing, ok := s.leads[lead.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.leads[lead.ID] = c
	return nil
}

// UpdateLead applies mutate to the stored lead while holding the store
// lock. Nothing is written when mutate returns an error.
func (s *Store) UpdateLead(_ context.Context, id string, mutate func(*domain.Lead) error) (*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.leads[id]
	if !ok {
		return nil, domain.ErrLeadNotFound
	}
	c := cur.Clone()
	if err := mutate(c); err != nil {
		return nil, err
	}
	c.ID = id
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.leads[id] = c
	return c.Clone(), nil
}

func (s *Store) ListResources(_ context.Context, clientID string, kind domain.ResourceKind) ([]domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Resource
	for _, r := range s.resources {
		if r.ClientID == clientID && (kind == "" || r.Kind == kind) {
			out = append(out, cloneResource(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetResource(_ context.Context, id string) (*domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, domain.ErrResourceNotFound
	}
	c := cloneResource(r)
	return &c, nil
}

func (s *Store) SaveResource(_ context.Context, r *domain.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneResource(*r)
	now := time.Now().UTC()
	if existing, ok := s.resources[r.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.resources[r.ID] = c
	return nil
}

// UpdateResource applies mutate to the stored resource while holding the
// store lock. Nothing is written when mutate returns an error.
func (s *Store) UpdateResource(_ context.Context, id string, mutate func(*domain.Resource) error) (*domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.resources[id]
	if !ok {
		return nil, domain.ErrResourceNotFound
	}
	c := cloneResource(cur)
	if err := mutate(&c); err != nil {
		return nil, err
	}
	c.ID = id
	c.CreatedAt = cur.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.resources[id] = c
	out := cloneResource(c)
	return &out, nil
}

func (s *Store) AppendResolutionAttempt(_ context.Context, a *domain.ResolutionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.attempts = append(s.attempts, *a)
	return nil
}

// ListResolutionAttempts returns attempts for a lead in the order they were
// recorded. An empty field returns attempts for every field.
func (s *Store) ListResolutionAttempts(_ context.Context, leadID string, field domain.ContactField) ([]domain.ResolutionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ResolutionAttempt
	for _, a := range s.attempts {
		if a.LeadID == leadID && (field == "" || a.Field == field) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) AppendDecision(_ context.Context, d *domain.DispatchDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Outcome == domain.OutcomeSent {
		if _, dup := s.sentByKey[d.IdempotencyKey]; dup {
			return domain.ErrDuplicateSend
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	c := *d
	c.Holds = append([]domain.ComplianceHold(nil), d.Holds...)
	s.decisions = append(s.decisions, c)
	if d.Outcome == domain.OutcomeSent {
		s.sentByKey[d.IdempotencyKey] = len(s.decisions) - 1
	}
	return nil
}

// FindSentDecision returns the sent decision for key, or nil if none exists.
func (s *Store) FindSentDecision(_ context.Context, key string) (*domain.DispatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.sentByKey[key]
	if !ok {
		return nil, nil
	}
	d := s.decisions[idx]
	return &d, nil
}

// ListDecisions returns a lead's decisions oldest first.
func (s *Store) ListDecisions(_ context.Context, leadID string) ([]domain.DispatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DispatchDecision
	for _, d := range s.decisions {
		if d.LeadID == leadID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) AppendComplianceEvent(_ context.Context, e *domain.ComplianceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.events = append(s.events, *e)
	return nil
}

// ListComplianceEvents returns a lead's compliance events oldest first.
func (s *Store) ListComplianceEvents(_ context.Context, leadID string) ([]domain.ComplianceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ComplianceEvent
	for _, e := range s.events {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}

func cloneResource(r domain.Resource) domain.Resource {
	if r.WarmingStartedAt != nil {
		t := *r.WarmingStartedAt
		r.WarmingStartedAt = &t
	}
	return r
}
