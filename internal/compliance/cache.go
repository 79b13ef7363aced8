package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/ignite/outreach-dispatch/internal/config"
)

// Cache stores registry answers by E.164 number. Entries expire after the
// ttl given to Set.
type Cache interface {
	// Get returns the cached answer and whether one was present.
	Get(ctx context.Context, e164 string) (registered bool, ok bool, err error)
	Set(ctx context.Context, e164 string, registered bool, ttl time.Duration) error
}

type cacheEntry struct {
	registered bool
	expires    time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

// WithClock overrides the time source.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, e164 string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[e164]
	if !ok {
		return false, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, e164)
		return false, false, nil
	}
	return e.registered, true, nil
}

func (c *MemoryCache) Set(_ context.Context, e164 string, registered bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e164] = cacheEntry{registered: registered, expires: c.now().Add(ttl)}
	return nil
}

const dncrKeyPrefix = "dncr:"

// ValkeyCache shares registry answers across hosts through Valkey.
type ValkeyCache struct {
	client valkey.Client
}

// NewValkeyClient connects to Valkey and pings it.
func NewValkeyClient(cfg config.ValkeyConfig) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return client, nil
}

// NewValkeyCache wraps an open client.
func NewValkeyCache(client valkey.Client) *ValkeyCache {
	return &ValkeyCache{client: client}
}

func (c *ValkeyCache) Get(ctx context.Context, e164 string) (bool, bool, error) {
	result := c.client.Do(ctx, c.client.B().Get().Key(dncrKeyPrefix+e164).Build())
	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to get dncr entry: %w", err)
	}
	v, err := result.ToString()
	if err != nil {
		return false, false, fmt.Errorf("failed to read dncr entry: %w", err)
	}
	return v == "1", true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, e164 string, registered bool, ttl time.Duration) error {
	v := "0"
	if registered {
		v = "1"
	}
	err := c.client.Do(ctx, c.client.B().Set().Key(dncrKeyPrefix+e164).Value(v).Ex(ttl).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache dncr entry: %w", err)
	}
	return nil
}
