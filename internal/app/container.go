package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-wms/internal/inbound"
	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
	"github.com/odyssey-erp/odyssey-wms/internal/masterdata"
	"github.com/odyssey-erp/odyssey-wms/internal/memstore"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/outbound"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/db"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/eventbus"
	"github.com/odyssey-erp/odyssey-wms/internal/reporting"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// IdempotencyStore is the key store shared by the document services and the
// cleanup job.
type IdempotencyStore interface {
	shared.IdempotencyGuard
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Container holds the wired services for one process.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Pool      *pgxpool.Pool
	Store     *memstore.Store
	Redis     *redis.Client
	Cache     *reporting.Cache
	Publisher *eventbus.Publisher

	Idempotency IdempotencyStore
	MasterData  *masterdata.Service
	Inventory   *inventory.Service
	Inbound     *inbound.Service
	Outbound    *outbound.Service
	Reporting   *reporting.Service

	closers []func()
}

// Options tweaks Build for tests and tools.
type Options struct {
	Clock func() time.Time
	// Redis overrides the client dialled from REDIS_ADDR.
	Redis *redis.Client
}

// Build connects the configured storage driver and optional infrastructure
// and wires every service on top of it. Redis and RabbitMQ are optional; when
// they are unreachable the process runs without dashboard caching or events.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: metrics}

	var (
		inventoryRepo  inventory.RepositoryPort
		inboundRepo    inbound.RepositoryPort
		outboundRepo   outbound.RepositoryPort
		reportingRepo  reporting.RepositoryPort
		masterdataRepo masterdata.Repository
		audit          shared.AuditRecorder
	)
	switch cfg.StoreDriver {
	case DriverMemory:
		store := memstore.New(clock)
		c.Store = store
		inventoryRepo, inboundRepo, outboundRepo = store.Inventory(), store.Inbound(), store.Outbound()
		reportingRepo, masterdataRepo, audit = store, store, store
		c.Idempotency = store
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		c.closers = append(c.closers, pool.Close)
		inventoryRepo = inventory.NewRepository(pool)
		inboundRepo = inbound.NewRepository(pool)
		outboundRepo = outbound.NewRepository(pool)
		reportingRepo = reporting.NewRepository(pool)
		masterdataRepo = masterdata.NewRepository(pool)
		audit = shared.NewAuditLogger(pool)
		c.Idempotency = shared.NewIdempotencyStore(pool)
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}

	c.Redis = opts.Redis
	if c.Redis == nil && cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, dashboard cache disabled", slog.Any("error", err))
		} else {
			c.Redis = client
			c.closers = append(c.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
		}
	}
	if c.Redis != nil {
		c.Cache = reporting.NewCache(c.Redis, cfg.DashboardCacheTTL).WithLogger(logger)
	}

	if cfg.AMQPURL != "" {
		publisher, err := eventbus.Dial(eventbus.Config{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange}, logger)
		if err != nil {
			logger.Warn("event bus unavailable, movement events disabled", slog.Any("error", err))
		} else {
			c.Publisher = publisher
			c.closers = append(c.closers, func() {
				if err := publisher.Close(); err != nil {
					logger.Warn("event bus close", slog.Any("error", err))
				}
			})
		}
	}

	hooks := c.hooks()
	var rejections inventory.RejectionObserver
	if metrics != nil {
		rejections = metrics
	}

	c.MasterData = masterdata.NewService(masterdataRepo, c.masterdataHooks()...)
	c.Inventory = inventory.NewService(inventoryRepo, inventory.ServiceConfig{
		Logger:     logger,
		Audit:      audit,
		Hooks:      hooks,
		Rejections: rejections,
		Clock:      clock,
	})
	c.Inbound = inbound.NewService(inboundRepo, inbound.ServiceConfig{
		Logger:      logger,
		Audit:       audit,
		Idempotency: c.Idempotency,
		Hooks:       hooks,
		Rejections:  rejections,
		Clock:       clock,
	})
	c.Outbound = outbound.NewService(outboundRepo, outbound.ServiceConfig{
		Logger:      logger,
		Audit:       audit,
		Idempotency: c.Idempotency,
		Hooks:       hooks,
		Rejections:  rejections,
		Clock:       clock,
	})
	c.Reporting = reporting.NewService(reportingRepo, c.Cache, logger, clock)

	if cfg.SeedFile != "" {
		if err := c.ApplySeedFile(ctx, cfg.SeedFile); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// ApplySeedFile loads master data and opening balances from a JSON file.
func (c *Container) ApplySeedFile(ctx context.Context, path string) error {
	seed, err := masterdata.LoadSeed(path)
	if err != nil {
		return err
	}
	if err := c.MasterData.ApplySeed(ctx, seed, c.Inventory); err != nil {
		return fmt.Errorf("app: apply seed %s: %w", path, err)
	}
	c.Logger.Info("seed applied",
		slog.String("file", path),
		slog.Int("locations", len(seed.Locations)),
		slog.Int("products", len(seed.Products)),
		slog.Int("stock", len(seed.Stock)))
	return nil
}

func (c *Container) hooks() inventory.Hooks {
	var hooks inventory.Hooks
	if c.Cache != nil {
		dashboard, logger := c.Cache, c.Logger
		hooks = append(hooks, inventory.HookFunc(func(ctx context.Context, _ []inventory.MovementRecord) {
			dashboard.BumpQuietly(ctx, logger)
		}))
	}
	if c.Publisher != nil {
		hooks = append(hooks, inventory.NewEventHook(c.Publisher, c.Logger))
	}
	if c.Metrics != nil {
		hooks = append(hooks, c.Metrics)
	}
	return hooks
}

// masterdataHooks invalidate the dashboard when locations or products are
// added, since totals and capacity change without any stock movement.
func (c *Container) masterdataHooks() []masterdata.ChangeHook {
	if c.Cache == nil {
		return nil
	}
	dashboard, logger := c.Cache, c.Logger
	return []masterdata.ChangeHook{func(ctx context.Context) {
		dashboard.BumpQuietly(ctx, logger)
	}}
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
