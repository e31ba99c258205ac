// Package app assembles the services from configuration. The server, the
// worker and the resync command share it.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockpos/internal/config"
	"stockpos/internal/core/numerator"
	"stockpos/internal/core/tx"
	"stockpos/internal/domain/audit"
	"stockpos/internal/domain/catalog"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/domain/policy"
	"stockpos/internal/domain/settlement"
	"stockpos/internal/domain/transfer"
	"stockpos/internal/infrastructure/http/v1/handlers"
	"stockpos/internal/infrastructure/lock"
	"stockpos/internal/infrastructure/storage/memory"
	"stockpos/internal/infrastructure/storage/postgres"
	"stockpos/internal/infrastructure/storage/postgres/inventory_repo"
	pgnumerator "stockpos/pkg/numerator"
	"stockpos/pkg/logger"
)

// App holds the wired services and the connections they share.
type App struct {
	Ledger     *ledger.Service
	Settlement *settlement.Service
	Transfers  *transfer.Service
	Audit      audit.Recorder

	// Pool is nil in memory mode.
	Pool  *postgres.Pool
	Redis *redis.Client

	HealthChecks []handlers.Check
}

type stores struct {
	ledger       ledger.Repository
	transactions settlement.Repository
	catalog      interface {
		catalog.Reader
		catalog.SettingsReader
	}
	txManager tx.Manager
	numerator numerator.Generator
	audit     audit.Recorder
	events    ledger.EventPublisher
}

// New connects to the configured backends and builds the services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{}

	var (
		s   *stores
		err error
	)
	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		s = memoryStores()
	default:
		s, err = a.postgresStores(ctx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	negative, err := policy.NewNegativeStock(s.catalog)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("negative stock policy: %w", err)
	}

	opts := []ledger.Option{
		ledger.WithEvents(s.events),
		ledger.WithMaxRetries(cfg.LedgerMaxRetries),
	}
	if cfg.LockEnabled() {
		client, err := lock.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = client
		lockCfg := lock.DefaultConfig()
		lockCfg.TTL = cfg.LockTTL
		opts = append(opts, ledger.WithLocker(lock.NewRedisLocker(client, lockCfg)))
		a.HealthChecks = append(a.HealthChecks, handlers.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		log.Infow("record locking enabled", "redis_addr", cfg.RedisAddr, "ttl", lockCfg.TTL)
	}

	a.Ledger = ledger.NewService(s.ledger, s.txManager, s.catalog, negative, opts...)
	a.Settlement = settlement.NewService(s.transactions, a.Ledger, s.numerator, s.txManager, negative, s.audit)
	a.Transfers = transfer.NewService(a.Ledger, s.audit)
	a.Audit = s.audit
	return a, nil
}

func memoryStores() *stores {
	return &stores{
		ledger:       memory.NewLedgerRepo(),
		transactions: memory.NewTransactionRepo(),
		catalog:      memory.NewCatalog(),
		txManager:    memory.NewTxManager(),
		numerator:    memory.NewNumerator(),
		audit:        memory.NewDiscrepancyLog(),
		events:       memory.NewAlertLog(),
	}
}

func (a *App) postgresStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL, "stockpos")
	poolCfg.MaxConns = int32(cfg.DBMaxConns)

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.Pool = pool
	a.HealthChecks = append(a.HealthChecks, handlers.Check{Name: "postgres", Ping: pool.Ping})
	log.Infow("database connection established", "max_conns", poolCfg.MaxConns)

	txManager := postgres.NewTxManager(pool)
	auditLog, err := postgres.NewAuditLog(txManager)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}

	return &stores{
		ledger:       inventory_repo.NewLedgerRepo(txManager),
		transactions: inventory_repo.NewTransactionRepo(txManager),
		catalog:      inventory_repo.NewCatalogRepo(txManager),
		txManager:    txManager,
		numerator:    pgnumerator.New(pool.Pool),
		audit:        auditLog,
		events:       postgres.NewOutboxPublisher(txManager),
	}, nil
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
