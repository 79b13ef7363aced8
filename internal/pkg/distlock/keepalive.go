package distlock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Refresher is implemented by locks that expire unless renewed.
type Refresher interface {
	// Refresh re-arms the lock. It reports false once the lock is no
	// longer ours.
	Refresh(ctx context.Context) (bool, error)
	TTL() time.Duration
}

// Keepalive renews an expiring lock in the background for as long as the
// holder works under it.
type Keepalive struct {
	refresher Refresher
	lost      atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
}

// KeepAlive starts renewing lock every interval, or every third of its TTL
// when interval is zero. Locks that never expire get a keepalive that only
// reports them held.
func KeepAlive(ctx context.Context, lock DistLock, interval time.Duration) *Keepalive {
	k := &Keepalive{stop: make(chan struct{}), done: make(chan struct{})}
	r, ok := lock.(Refresher)
	if !ok || r.TTL() <= 0 {
		close(k.done)
		return k
	}
	k.refresher = r
	if interval <= 0 {
		interval = r.TTL() / 3
	}
	go k.run(context.WithoutCancel(ctx), interval)
	return k
}

func (k *Keepalive) run(ctx context.Context, interval time.Duration) {
	defer close(k.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			held, err := k.refresher.Refresh(ctx)
			if err != nil {
				// Try again next tick; Held surfaces a lasting outage.
				continue
			}
			if !held {
				k.lost.Store(true)
				return
			}
		}
	}
}

// Held confirms the lock is still owned, renewing it on the way.
func (k *Keepalive) Held(ctx context.Context) (bool, error) {
	if k.lost.Load() {
		return false, nil
	}
	if k.refresher == nil {
		return true, nil
	}
	held, err := k.refresher.Refresh(ctx)
	if err != nil {
		return false, err
	}
	if !held {
		k.lost.Store(true)
	}
	return held, nil
}

// Stop ends the renewals and waits for the background goroutine.
func (k *Keepalive) Stop() {
	k.once.Do(func() { close(k.stop) })
	<-k.done
}
