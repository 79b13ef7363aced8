package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-dispatch/internal/dispatch"
	"github.com/ignite/outreach-dispatch/internal/domain"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	seen  []string
	block chan struct{}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatch.Request) (*domain.DispatchDecision, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.seen = append(f.seen, req.LeadID)
	f.mu.Unlock()
	switch req.LeadID {
	case "err":
		return nil, errors.New("store down")
	case "blocked":
		return &domain.DispatchDecision{Outcome: domain.OutcomeBlocked}, nil
	case "deferred":
		return &domain.DispatchDecision{Outcome: domain.OutcomeDeferred}, nil
	}
	return &domain.DispatchDecision{Outcome: domain.OutcomeSent}, nil
}

func TestDispatchWorkerPool_DrainsOnStop(t *testing.T) {
	fd := &fakeDispatcher{}
	p := NewDispatchWorkerPool(fd, 4, 64)

	var mu sync.Mutex
	done := 0
	p.OnDecision(func(_ dispatch.Request, _ *domain.DispatchDecision, _ error) {
		mu.Lock()
		done++
		mu.Unlock()
	})
	p.Start()

	leads := []string{"a", "b", "c", "blocked", "deferred", "err"}
	for _, id := range leads {
		require.NoError(t, p.Submit(dispatch.Request{LeadID: id, Channel: domain.ChannelEmail}))
	}
	p.Stop()

	assert.Equal(t, len(leads), done)
	stats := p.Stats()
	assert.Equal(t, int64(3), stats["total_sent"])
	assert.Equal(t, int64(1), stats["total_blocked"])
	assert.Equal(t, int64(1), stats["total_deferred"])
	assert.Equal(t, int64(1), stats["total_errors"])
	assert.Equal(t, int64(0), stats["queued"])
}

func TestDispatchWorkerPool_SubmitWhenStopped(t *testing.T) {
	p := NewDispatchWorkerPool(&fakeDispatcher{}, 1, 1)
	assert.ErrorIs(t, p.Submit(dispatch.Request{LeadID: "a"}), ErrPoolStopped)

	p.Start()
	p.Stop()
	p.Stop()
	assert.ErrorIs(t, p.Submit(dispatch.Request{LeadID: "a"}), ErrPoolStopped)
}

func TestDispatchWorkerPool_QueueFull(t *testing.T) {
	fd := &fakeDispatcher{block: make(chan struct{})}
	p := NewDispatchWorkerPool(fd, 1, 1)
	p.Start()

	// One request occupies the worker, one fills the queue.
	require.NoError(t, p.Submit(dispatch.Request{LeadID: "a"}))
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = p.Submit(dispatch.Request{LeadID: "b"})
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(fd.block)
	p.Stop()
}
