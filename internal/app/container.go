package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/printhub/printhub/internal/branches"
	"github.com/printhub/printhub/internal/inventory"
	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/observability"
	"github.com/printhub/printhub/internal/payments"
	"github.com/printhub/printhub/internal/platform/cache"
	"github.com/printhub/printhub/internal/platform/db"
	"github.com/printhub/printhub/internal/settlement"
	"github.com/printhub/printhub/internal/shared"
	"github.com/printhub/printhub/internal/tasks"
	"github.com/printhub/printhub/jobs"
)

type auditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Container holds the wired services shared by the API and worker binaries.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Store       ledger.Store
	Idempotency payments.IdempotencyPort

	Resolver   *inventory.Resolver
	Inventory  *inventory.Service
	Credits    *settlement.CreditLedger
	Clearance  *settlement.Clearance
	Engine     *payments.Engine
	Tasks      *tasks.Service
	Branches   *branches.Service
	JobsClient *jobs.Client

	inspector *asynq.Inspector
	closers   []func()
}

// Build connects the configured backends and wires every service.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: metrics}

	var (
		audit    auditRecorder = shared.SlogAuditor{Logger: logger}
		branchDB branches.Repository
	)
	switch cfg.StoreDriver {
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		c.closers = append(c.closers, pool.Close)
		c.Store = ledger.NewPostgresStore(pool)
		c.Idempotency = shared.NewIdempotencyStore(pool)
		audit = shared.NewAuditLogger(pool)
		branchDB = branches.NewRepository(pool)
	default:
		c.Store = ledger.NewMemoryStore()
		c.Idempotency = shared.NewMemoryIdempotency()
		static, err := branches.ParseStaticTokens(cfg.BranchTokens)
		if err != nil {
			c.Close()
			return nil, err
		}
		branchDB = static
	}

	if cfg.LockBackend == LockRedis || cfg.JobsEnabled {
		client, err := cache.New(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
		c.Redis = client
		c.closers = append(c.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	}

	var locker shared.Locker = shared.NewLocalLocker()
	if cfg.LockBackend == LockRedis {
		locker = shared.NewRedisLocker(c.Redis, cfg.LockTTL, cfg.LockWait)
	}

	var reporter inventory.MissReporter
	if cfg.JobsEnabled {
		redisOpts := cfg.Redis().AsynqOpt()
		c.JobsClient = jobs.NewClient(redisOpts)
		c.inspector = asynq.NewInspector(redisOpts)
		c.closers = append(c.closers, func() {
			if err := c.JobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
			if err := c.inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		})
		reporter = jobs.NewMissReporter(c.JobsClient)
	}

	c.Resolver = inventory.NewResolver(inventory.ResolverConfig{Logger: logger, Reporter: reporter, Metrics: metrics})
	c.Inventory = inventory.NewService(c.Store, c.Resolver, audit, logger)
	c.Credits = settlement.NewCreditLedger(c.Store, settlement.CreditConfig{
		Region: cfg.PhoneRegion,
		Logger: logger,
		Locker: locker,
		Audit:  audit,
	})
	c.Clearance = settlement.NewClearance(c.Store, settlement.ClearanceConfig{
		Logger:   logger,
		Locker:   locker,
		Audit:    audit,
		Metrics:  metrics,
		Resolver: c.Resolver,
	})
	c.Engine = payments.NewEngine(c.Store, c.Resolver, c.Credits, payments.Config{
		Logger:  logger,
		Locker:  locker,
		Audit:   audit,
		Metrics: metrics,
	})
	c.Tasks = tasks.NewService(c.Store, audit, logger, nil)
	c.Branches = branches.NewService(branchDB)
	return c, nil
}

// Router builds the HTTP API on top of the container's services.
func (c *Container) Router() http.Handler {
	var inspector jobs.QueueInspector
	if c.inspector != nil {
		inspector = c.inspector
	}
	return NewRouter(RouterParams{
		Logger:            c.Logger,
		Config:            c.Config,
		BranchAuth:        branches.Middleware(c.Branches, c.Logger),
		TaskHandler:       tasks.NewHandler(c.Logger, c.Tasks),
		PaymentHandler:    payments.NewHandler(c.Logger, c.Engine, c.Idempotency),
		SettlementHandler: settlement.NewHandler(c.Logger, c.Clearance, c.Credits),
		InventoryHandler:  inventory.NewHandler(c.Logger, c.Inventory),
		JobHandler:        jobs.NewHandler(inspector, c.Logger),
		Metrics:           c.Metrics,
	})
}

// Close releases backends in reverse order of acquisition.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// String summarises the wiring for startup logs.
func (c *Container) String() string {
	return fmt.Sprintf("store=%s locks=%s jobs=%t", c.Config.StoreDriver, c.Config.LockBackend, c.Config.JobsEnabled)
}
