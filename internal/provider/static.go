package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/outreach-dispatch/internal/domain"
)

// Static is a deterministic in-process adapter. As an enricher it answers
// from a fixed field->value table; as a sender it records every message.
// FailWith forces every call to fail with that kind.
type Static struct {
	id       string
	cost     float64
	values   map[domain.ContactField]string
	failWith ErrorKind

	mu      sync.Mutex
	lookups int
	sent    []Message
	script  []ErrorKind
}

// NewStatic creates a static adapter.
func NewStatic(id string, values map[domain.ContactField]string, cost float64) *Static {
	if values == nil {
		values = make(map[domain.ContactField]string)
	}
	return &Static{id: id, values: values, cost: cost}
}

// FailWith makes every subsequent call fail with kind.
func (s *Static) FailWith(kind ErrorKind) *Static {
	s.mu.Lock()
	s.failWith = kind
	s.mu.Unlock()
	return s
}

// Script queues per-call outcomes consumed before the steady-state
// behavior. KindNone in the script means "behave normally".
func (s *Static) Script(kinds ...ErrorKind) *Static {
	s.mu.Lock()
	s.script = append(s.script, kinds...)
	s.mu.Unlock()
	return s
}

func (s *Static) ID() string { return s.id }

// Lookup answers from the value table.
func (s *Static) Lookup(_ context.Context, _ *domain.Lead, field domain.ContactField) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++

	if kind := s.nextFailure(); kind != KindNone {
		if kind == KindNotFound {
			return NotFound(s.cost)
		}
		return Failed(kind, fmt.Errorf("%s: scripted %s", s.id, kind), 0)
	}
	v, ok := s.values[field]
	if !ok || v == "" {
		return NotFound(s.cost)
	}
	return Found(v, s.cost)
}

// Send records msg.
func (s *Static) Send(_ context.Context, msg Message) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kind := s.nextFailure(); kind != KindNone {
		return Failed(kind, fmt.Errorf("%s: scripted %s", s.id, kind), 0)
	}
	if msg.To == "" {
		return Failed(KindRejected, errors.New("static: empty recipient"), 0)
	}
	s.sent = append(s.sent, msg)
	return Delivered(uuid.NewString(), s.cost)
}

func (s *Static) nextFailure() ErrorKind {
	if len(s.script) > 0 {
		kind := s.script[0]
		s.script = s.script[1:]
		return kind
	}
	return s.failWith
}

// Lookups returns how many lookups were made.
func (s *Static) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// Sent returns a copy of the recorded messages.
func (s *Static) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
