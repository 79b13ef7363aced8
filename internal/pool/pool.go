package pool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

// Config holds pool policy.
type Config struct {
	Window       time.Duration // counting window, aligned to UTC epoch multiples
	DegradeAfter int           // consecutive failures before active -> degraded
	SuspendAfter int           // consecutive failures before -> suspended
	Warmup       Schedule
}

// ConfigFrom maps the pool section of the service config.
func ConfigFrom(cfg config.PoolConfig) Config {
	steps := make([]WarmupStep, len(cfg.Warmup))
	for i, st := range cfg.Warmup {
		steps[i] = WarmupStep{Day: st.Day, Volume: st.Volume}
	}
	return Config{
		Window:       cfg.Window(),
		DegradeAfter: cfg.DegradeAfter,
		SuspendAfter: cfg.SuspendAfter,
		Warmup:       NewSchedule(steps),
	}
}

// Pool hands out capacity on shared sending resources. It is safe for
// concurrent use; atomicity comes from the CounterStore.
type Pool struct {
	repo     Repository
	counters CounterStore
	cfg      Config
	now      func() time.Time
	log      *logger.Scoped
}

// New creates a pool.
func New(repo Repository, counters CounterStore, cfg Config) *Pool {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.DegradeAfter <= 0 {
		cfg.DegradeAfter = 3
	}
	if cfg.SuspendAfter < cfg.DegradeAfter {
		cfg.SuspendAfter = cfg.DegradeAfter * 2
	}
	return &Pool{
		repo:     repo,
		counters: counters,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.Component("pool"),
	}
}

// WithClock overrides the time source.
func (p *Pool) WithClock(now func() time.Time) *Pool {
	p.now = now
	return p
}

// WindowStart returns the start of the counting window containing t.
func (p *Pool) WindowStart(t time.Time) time.Time {
	return t.UTC().Truncate(p.cfg.Window)
}

type candidate struct {
	res   domain.Resource
	limit int
	usage int
}

// Acquire reserves one slot on the least-used eligible resource of kind
// owned by clientID. Ties go to the lowest resource ID. It returns nil, nil
// when no resource has capacity left in the current window.
//
// The returned resource is a lease: pass it back to Release. Its Usage is
// the post-reservation count and LastResetAt is the window the slot was
// taken from.
func (p *Pool) Acquire(ctx context.Context, clientID string, kind domain.ResourceKind) (*domain.Resource, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	now := p.now()
	window := p.WindowStart(now)

	resources, err := p.repo.ListResources(ctx, clientID, kind)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	candidates := make([]candidate, 0, len(resources))
	for i := range resources {
		r := resources[i]
		if !r.Acquirable() {
			continue
		}
		limit, err := p.limitFor(ctx, &r, now)
		if err != nil {
			return nil, err
		}
		if limit <= 0 {
			continue
		}
		usage, err := p.counters.Usage(ctx, r.ID, window)
		if err != nil {
			return nil, err
		}
		if usage >= limit {
			continue
		}
		candidates = append(candidates, candidate{res: r, limit: limit, usage: usage})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].usage != candidates[j].usage {
			return candidates[i].usage < candidates[j].usage
		}
		return candidates[i].res.ID < candidates[j].res.ID
	})

	ttl := window.Add(p.cfg.Window).Sub(now) + time.Hour
	for _, c := range candidates {
		// The usage read above is advisory; Reserve re-checks atomically.
		used, ok, err := p.counters.Reserve(ctx, c.res.ID, window, c.limit, ttl)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		lease := c.res
		lease.Usage = used
		lease.LastResetAt = window
		p.log.Debug("resource acquired", "resource_id", lease.ID, "client_id", clientID,
			"kind", kind, "usage", used, "limit", c.limit)
		return &lease, nil
	}

	p.log.Info("no capacity", "client_id", clientID, "kind", kind, "resources", len(resources))
	return nil, nil
}

// limitFor returns the capacity r may use now. Warming resources follow the
// ramp and graduate to active when it reaches full capacity. r is refreshed
// from the store whenever it is written, so a resource suspended since the
// listing gets no capacity.
func (p *Pool) limitFor(ctx context.Context, r *domain.Resource, now time.Time) (int, error) {
	if r.Health != domain.HealthWarming {
		return r.Capacity, nil
	}
	if r.WarmingStartedAt == nil {
		fresh, err := p.repo.UpdateResource(ctx, r.ID, func(cur *domain.Resource) error {
			if cur.WarmingStartedAt == nil {
				started := now.UTC()
				cur.WarmingStartedAt = &started
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("update resource %s: %w", r.ID, err)
		}
		*r = *fresh
		if !r.Acquirable() {
			return 0, nil
		}
		if r.Health != domain.HealthWarming {
			return r.Capacity, nil
		}
	}
	limit, done := p.cfg.Warmup.effectiveCapacity(r.Capacity, *r.WarmingStartedAt, now)
	if !done {
		return limit, nil
	}
	graduated := false
	fresh, err := p.repo.UpdateResource(ctx, r.ID, func(cur *domain.Resource) error {
		if cur.Health == domain.HealthWarming {
			cur.Health = domain.HealthActive
			graduated = true
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update resource %s: %w", r.ID, err)
	}
	*r = *fresh
	if !r.Acquirable() {
		return 0, nil
	}
	if graduated {
		p.log.Info("resource graduated from warming", "resource_id", r.ID, "capacity", r.Capacity)
	}
	return r.Capacity, nil
}

// Release records how the send on lease ended. Success keeps the slot and
// clears the failure streak. Failure refunds the slot and may demote the
// resource. Health only ever moves down here.
func (p *Pool) Release(ctx context.Context, lease *domain.Resource, outcome domain.ReleaseOutcome) error {
	switch outcome {
	case domain.ReleaseSuccess:
		if err := p.counters.ResetFailures(ctx, lease.ID); err != nil {
			return err
		}
		if lease.ConsecutiveFailures == 0 {
			return nil
		}
		_, err := p.repo.UpdateResource(ctx, lease.ID, func(r *domain.Resource) error {
			r.ConsecutiveFailures = 0
			return nil
		})
		if err != nil {
			return fmt.Errorf("update resource %s: %w", lease.ID, err)
		}
		return nil

	case domain.ReleaseFailure:
		if err := p.counters.Refund(ctx, lease.ID, lease.LastResetAt); err != nil {
			return err
		}
		streak, err := p.counters.RecordFailure(ctx, lease.ID)
		if err != nil {
			return err
		}
		var prev domain.ResourceHealth
		r, err := p.repo.UpdateResource(ctx, lease.ID, func(r *domain.Resource) error {
			r.ConsecutiveFailures = streak
			prev = r.Health
			switch {
			case streak >= p.cfg.SuspendAfter:
				r.Health = domain.HealthSuspended
			case streak >= p.cfg.DegradeAfter && r.Acquirable():
				r.Health = domain.HealthDegraded
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("update resource %s: %w", lease.ID, err)
		}
		if r.Health != prev {
			p.log.Warn("resource demoted", "resource_id", r.ID, "from", prev, "to", r.Health, "failures", streak)
		}
		return nil
	}
	return fmt.Errorf("unknown release outcome %q", outcome)
}

// SetHealth changes a resource's health by hand. Moving back to active or
// warming clears the failure streak.
func (p *Pool) SetHealth(ctx context.Context, resourceID string, health domain.ResourceHealth) (*domain.Resource, error) {
	if !health.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHealth, health)
	}
	now := p.now().UTC()
	var prev domain.ResourceHealth
	r, err := p.repo.UpdateResource(ctx, resourceID, func(r *domain.Resource) error {
		prev = r.Health
		r.Health = health
		if r.Acquirable() {
			r.ConsecutiveFailures = 0
		}
		if health == domain.HealthWarming && prev != domain.HealthWarming {
			started := now
			r.WarmingStartedAt = &started
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.Acquirable() {
		if err := p.counters.ResetFailures(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	p.log.Info("resource health set", "resource_id", r.ID, "from", prev, "to", health)
	return r, nil
}

// Register validates and stores a resource definition.
func (p *Pool) Register(ctx context.Context, r *domain.Resource) error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	if r.Health == "" {
		r.Health = domain.HealthWarming
	}
	if !r.Health.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidHealth, r.Health)
	}
	if r.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}
	if r.Health == domain.HealthWarming && r.WarmingStartedAt == nil {
		started := p.now().UTC()
		r.WarmingStartedAt = &started
	}
	return p.repo.SaveResource(ctx, r)
}

// Status is a resource with its live usage for operators.
type Status struct {
	domain.Resource
	EffectiveCapacity int       `json:"effective_capacity"`
	WindowStart       time.Time `json:"window_start"`
}

// Snapshot returns every resource of kind for clientID with live usage.
// An empty kind lists all kinds.
func (p *Pool) Snapshot(ctx context.Context, clientID string, kind domain.ResourceKind) ([]Status, error) {
	now := p.now()
	window := p.WindowStart(now)
	resources, err := p.repo.ListResources(ctx, clientID, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(resources))
	for _, r := range resources {
		usage, err := p.counters.Usage(ctx, r.ID, window)
		if err != nil {
			return nil, err
		}
		r.Usage = usage
		r.LastResetAt = window
		eff := r.Capacity
		switch {
		case !r.Acquirable():
			eff = 0
		case r.Health == domain.HealthWarming && r.WarmingStartedAt != nil:
			eff, _ = p.cfg.Warmup.effectiveCapacity(r.Capacity, *r.WarmingStartedAt, now)
		}
		out = append(out, Status{Resource: r, EffectiveCapacity: eff, WindowStart: window})
	}
	return out, nil
}
