package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ignite/outreach-dispatch/internal/dispatch"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

var (
	ErrPoolStopped = errors.New("worker pool is not running")
	ErrQueueFull   = errors.New("worker queue is full")
)

// Dispatcher runs one dispatch request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*domain.DispatchDecision, error)
}

// DecisionHandler is called with each finished request. err is non-nil
// only for infrastructure failures.
type DecisionHandler func(req dispatch.Request, d *domain.DispatchDecision, err error)

// DispatchWorkerPool drains a bounded queue of dispatch requests with a
// fixed number of goroutines. Requests for different leads run in
// parallel; the orchestrator serializes requests for the same key.
type DispatchWorkerPool struct {
	dispatcher Dispatcher
	workerID   string
	numWorkers int
	queue      chan dispatch.Request
	onDecision DecisionHandler

	// Stats
	totalSent     int64
	totalDeferred int64
	totalBlocked  int64
	totalFailed   int64
	totalErrors   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	log *logger.Scoped
}

// NewDispatchWorkerPool creates a pool. It does nothing until Start.
func NewDispatchWorkerPool(d Dispatcher, numWorkers, queueSize int) *DispatchWorkerPool {
	if numWorkers <= 0 {
		numWorkers = 8
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 32
	}
	return &DispatchWorkerPool{
		dispatcher: d,
		workerID:   fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		numWorkers: numWorkers,
		queue:      make(chan dispatch.Request, queueSize),
		log:        logger.Component("worker"),
	}
}

// OnDecision registers a callback for finished requests. Call before Start.
func (p *DispatchWorkerPool) OnDecision(h DecisionHandler) {
	p.onDecision = h
}

// Start launches the workers.
func (p *DispatchWorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.log.Info("starting workers", "worker_id", p.workerID, "workers", p.numWorkers, "queue", cap(p.queue))
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops accepting work, lets workers drain what is already queued,
// and waits for them to exit.
func (p *DispatchWorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()

	p.log.Info("workers stopped", "worker_id", p.workerID,
		"sent", atomic.LoadInt64(&p.totalSent), "deferred", atomic.LoadInt64(&p.totalDeferred),
		"blocked", atomic.LoadInt64(&p.totalBlocked), "failed", atomic.LoadInt64(&p.totalFailed),
		"errors", atomic.LoadInt64(&p.totalErrors))
}

// Submit queues req without blocking.
func (p *DispatchWorkerPool) Submit(req dispatch.Request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolStopped
	}
	select {
	case p.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns current statistics.
func (p *DispatchWorkerPool) Stats() map[string]int64 {
	return map[string]int64{
		"total_sent":     atomic.LoadInt64(&p.totalSent),
		"total_deferred": atomic.LoadInt64(&p.totalDeferred),
		"total_blocked":  atomic.LoadInt64(&p.totalBlocked),
		"total_failed":   atomic.LoadInt64(&p.totalFailed),
		"total_errors":   atomic.LoadInt64(&p.totalErrors),
		"queued":         int64(len(p.queue)),
	}
}

func (p *DispatchWorkerPool) worker(workerNum int) {
	defer p.wg.Done()
	for req := range p.queue {
		d, err := p.dispatcher.Dispatch(p.ctx, req)
		p.count(d, err)
		if err != nil {
			p.log.Error("dispatch failed", "worker", workerNum, "lead_id", req.LeadID,
				"channel", req.Channel, "error", err)
		}
		if p.onDecision != nil {
			p.onDecision(req, d, err)
		}
	}
}

func (p *DispatchWorkerPool) count(d *domain.DispatchDecision, err error) {
	if err != nil || d == nil {
		atomic.AddInt64(&p.totalErrors, 1)
		return
	}
	switch d.Outcome {
	case domain.OutcomeSent:
		atomic.AddInt64(&p.totalSent, 1)
	case domain.OutcomeDeferred:
		atomic.AddInt64(&p.totalDeferred, 1)
	case domain.OutcomeBlocked:
		atomic.AddInt64(&p.totalBlocked, 1)
	case domain.OutcomeFailed:
		atomic.AddInt64(&p.totalFailed, 1)
	}
}
