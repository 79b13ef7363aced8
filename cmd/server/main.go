package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"github.com/valkey-io/valkey-go"

	"github.com/ignite/outreach-dispatch/internal/api"
	"github.com/ignite/outreach-dispatch/internal/compliance"
	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/dispatch"
	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/pkg/distlock"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
	"github.com/ignite/outreach-dispatch/internal/pool"
	"github.com/ignite/outreach-dispatch/internal/provider"
	"github.com/ignite/outreach-dispatch/internal/repository/memory"
	"github.com/ignite/outreach-dispatch/internal/repository/postgres"
	"github.com/ignite/outreach-dispatch/internal/repository/sqlite"
	"github.com/ignite/outreach-dispatch/internal/waterfall"
	"github.com/ignite/outreach-dispatch/internal/worker"
)

// store is everything the engine and the API read and write.
type store interface {
	waterfall.Repository
	pool.Repository
	compliance.Repository
	dispatch.Repository
	api.AuditStore
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, db, closeRepo := openStore(ctx, cfg.Database)
	defer closeRepo()

	// Redis backs the pool counters and the per-key dispatch locks. Without
	// it both stay process-local, which is only safe on a single node.
	var redisClient *redis.Client
	var counters pool.CounterStore = pool.NewMemoryCounterStore()
	if cfg.Redis.URL != "" {
		redisClient = connectRedis(ctx, cfg.Redis.URL)
		if redisClient != nil {
			counters = pool.NewRedisCounterStore(redisClient)
			defer redisClient.Close()
		}
	}
	var lockDB *sql.DB
	if cfg.Database.Driver == "postgres" {
		lockDB = db
	}
	locks := distlock.NewFactory(redisClient, lockDB, cfg.Dispatch.LockTTL())

	var vk valkey.Client
	var dncrCache compliance.Cache
	if cfg.Valkey.Addr != "" {
		vk, err = compliance.NewValkeyClient(cfg.Valkey)
		if err != nil {
			logger.Warn("valkey unavailable, DNCR cache is process-local", "addr", cfg.Valkey.Addr, "error", err)
		} else {
			dncrCache = compliance.NewValkeyCache(vk)
			defer vk.Close()
		}
	}

	var registry compliance.Registry
	if cfg.Compliance.DNCR.BaseURL != "" {
		registry, err = compliance.NewDNCRClient(cfg.Compliance.DNCR)
		if err != nil {
			log.Fatalf("Failed to create DNCR client: %v", err)
		}
	} else {
		logger.Warn("no DNCR registry configured, sms and voice dispatches will be deferred")
	}

	var reviews compliance.ReviewQueue
	if cfg.Compliance.ReviewQueueURL != "" {
		reviews, err = compliance.NewSQSReviewQueue(ctx, cfg.Compliance.ReviewQueueURL, cfg.AWS)
		if err != nil {
			log.Fatalf("Failed to create review queue: %v", err)
		}
	}

	providers, err := provider.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build providers: %v", err)
	}
	tiers, err := providers.Tiers(cfg.Waterfall.Tiers)
	if err != nil {
		log.Fatalf("Failed to resolve waterfall tiers: %v", err)
	}
	senders, err := providers.Senders(cfg.Channels)
	if err != nil {
		log.Fatalf("Failed to resolve channel senders: %v", err)
	}
	logger.Info("providers ready", "providers", providers.IDs(), "channels", len(senders))

	gateCfg, err := compliance.ConfigFrom(cfg)
	if err != nil {
		log.Fatalf("Invalid compliance config: %v", err)
	}

	resolver := waterfall.NewResolver(repo, tiers, waterfall.ConfigFrom(cfg.Waterfall))
	gate := compliance.NewGate(repo, registry, dncrCache, reviews, gateCfg)
	resources := pool.New(repo, counters, pool.ConfigFrom(cfg.Pool))
	engine := dispatch.New(repo, locks, resolver, gate, resources, senders, dispatch.ConfigFrom(cfg.Dispatch))

	workers := worker.NewDispatchWorkerPool(engine, cfg.Worker.Concurrency, cfg.Worker.QueueSize)
	workers.OnDecision(func(req dispatch.Request, d *domain.DispatchDecision, err error) {
		if err == nil && d.Escalated {
			logger.Warn("dispatch escalated", "idempotency_key", req.Key(), "reason", d.Reason)
		}
	})
	workers.Start()

	var healthDB *sql.DB
	if cfg.Database.Driver != "memory" {
		healthDB = db
	}
	health := api.NewHealthChecker(healthDB, redisClient, vk, workers)
	handlers := api.NewHandlers(engine, resources, repo, workers)
	server := api.NewServer(cfg.Server, handlers, health)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	workers.Stop()
	cancel()
	logger.Info("server stopped")
}

// openStore selects the repository by driver. db is nil for the memory
// store.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, *sql.DB, func()) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.Open(cfg.URL, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		return postgres.NewStore(db), db, func() { db.Close() }
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			log.Fatalf("Failed to open sqlite: %v", err)
		}
		return s, s.DB().DB, func() { s.Close() }
	case "memory":
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.New(), nil, func() {}
	}
	log.Fatalf("Unknown database driver %q", cfg.Driver)
	return nil, nil, nil
}

func connectRedis(ctx context.Context, url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, counters and locks are process-local", "error", err)
		client.Close()
		return nil
	}
	return client
}
