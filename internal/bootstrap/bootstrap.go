// Package bootstrap is the composition root: it turns a loaded
// config.Config into a fully wired App (DB/cache/broker connections,
// every repository adapter, every service, the HTTP router, and the
// scheduler), the way the teacher's cmd/app bootstrap.NewConfig +
// Logger + Organization wiring assembles its server before Run() is
// called.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/gofiber/fiber/v2"

	ledgerpg "github.com/escrowcore/ledgercore/internal/adapters/postgres/ledger"
	walletpg "github.com/escrowcore/ledgercore/internal/adapters/postgres/wallet"
	escrowpg "github.com/escrowcore/ledgercore/internal/adapters/postgres/escrow"
	withdrawalpg "github.com/escrowcore/ledgercore/internal/adapters/postgres/withdrawal"
	webhookpg "github.com/escrowcore/ledgercore/internal/adapters/postgres/webhook"
	userpg "github.com/escrowcore/ledgercore/internal/adapters/postgres/user"
	"github.com/escrowcore/ledgercore/internal/adapters/rabbitmq"
	redisadapter "github.com/escrowcore/ledgercore/internal/adapters/redis"

	"github.com/escrowcore/ledgercore/internal/config"
	"github.com/escrowcore/ledgercore/internal/escrow"
	httpapi "github.com/escrowcore/ledgercore/internal/http"
	"github.com/escrowcore/ledgercore/internal/idempotency"
	"github.com/escrowcore/ledgercore/internal/ledger"
	"github.com/escrowcore/ledgercore/internal/mlog"
	"github.com/escrowcore/ledgercore/internal/mretry"
	"github.com/escrowcore/ledgercore/internal/scheduler"
	"github.com/escrowcore/ledgercore/internal/telemetry"
	"github.com/escrowcore/ledgercore/internal/wallet"
	"github.com/escrowcore/ledgercore/internal/webhook"
	"github.com/escrowcore/ledgercore/internal/withdrawal"
)

// migrationsPath mirrors the teacher's components/ledger/migrations
// convention, one level below the binary's working directory.
const migrationsPath = "file://migrations"

// ErrMigrationFailed wraps any non-ErrNoChange error from running the
// schema migration, so main can map it to spec §6's exit code 3
// without inspecting golang-migrate's error types itself.
type ErrMigrationFailed struct {
	Err error
}

func (e ErrMigrationFailed) Error() string {
	return fmt.Sprintf("bootstrap: migration failed: %v", e.Err)
}

func (e ErrMigrationFailed) Unwrap() error {
	return e.Err
}

// App is every long-lived component wired by New, ready for
// cmd/escrowd to start serving and to tear down on shutdown.
type App struct {
	Config *config.Config
	Logger mlog.Logger

	DB         *sql.DB
	RedisConn  *redisadapter.Connection
	RabbitConn *rabbitmq.Connection
	Telemetry  *telemetry.Provider

	Guard     *idempotency.Guard
	Scheduler *scheduler.Service
	Router    *fiber.App
}

// New connects to Postgres, runs pending migrations, connects to
// Redis and RabbitMQ, and wires every repository/service/handler the
// way the teacher's bootstrap package assembles its dependency graph
// by hand (no DI container).
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := mlog.NewZapLogger(cfg.Env)

	tel, err := telemetry.New(ctx, cfg.OTELExporterEndpoint, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telemetry: %w", err)
	}

	db, err := connectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	if err := migrateUp(db, logger); err != nil {
		return nil, err
	}

	redisConn := &redisadapter.Connection{
		ConnectionStringSource: fmt.Sprintf("redis://%s:%s/0", cfg.RedisHost, cfg.RedisPort),
		Logger:                 logger,
	}
	if err := redisConn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: redis connect: %w", err)
	}

	rabbitConn := &rabbitmq.Connection{
		ConnectionStringSource: cfg.RabbitMQURL,
		Logger:                 logger,
	}
	if err := rabbitConn.Connect(ctx); err != nil {
		logger.Warnf("bootstrap: rabbitmq unavailable, domain events will not publish: %v", err)
		rabbitConn = nil
	}

	// Repository adapters.
	accounts := ledgerpg.NewAccountRepository(db)
	journals := ledgerpg.NewJournalRepository(db)
	entries := ledgerpg.NewEntryRepository(db)

	wallets := walletpg.NewRepository(db)

	orders := escrowpg.NewOrderRepository(db)
	holds := escrowpg.NewEscrowHoldRepository(db)
	disputes := escrowpg.NewDisputeRepository(db)

	withdrawals := withdrawalpg.NewRepository(db)
	approvals := withdrawalpg.NewApprovalRepository(db)
	limits := withdrawalpg.NewLimitRepository(db)
	velocity := withdrawalpg.NewVelocityRepository(db)

	webhookEvents := webhookpg.NewEventRepository(db)
	statusHistory := webhookpg.NewHistoryRepository(db)

	users := userpg.NewRepository(db)
	bankAccounts := userpg.NewBankAccountRepository(db)

	// Domain services.
	ledgerUC := &ledger.UseCase{Accounts: accounts, Journals: journals, Entries: entries, Tracer: tel.Tracer("ledger")}
	walletSvc := wallet.NewService(wallets, ledgerUC)
	walletSvc.Tracer = tel.Tracer("wallet")

	var publisher *rabbitmq.Publisher
	if rabbitConn != nil {
		publisher = rabbitmq.NewPublisher(rabbitConn)
	}

	escrowSvc := &escrow.Service{
		Orders: orders, Escrows: holds, Disputes: disputes,
		Wallets: wallets, WalletSvc: walletSvc, Ledger: ledgerUC,
		Tracer: tel.Tracer("escrow"),
	}
	if publisher != nil {
		escrowSvc.Events = publisher
	}

	withdrawalSvc := &withdrawal.Service{
		Withdrawals: withdrawals, Approvals: approvals, Limits: limits, Velocity: velocity,
		Users: users, BankAccounts: bankAccounts, Wallets: wallets,
		WalletSvc: walletSvc, Ledger: ledgerUC,
		Tracer: tel.Tracer("withdrawal"),
	}

	webhookSvc := &webhook.Service{
		Events: webhookEvents, History: statusHistory,
		Orders: escrowSvc, Withdrawals: withdrawalSvc,
		RetryConfig: mretry.DefaultWebhookConfig(),
		Tracer:      tel.Tracer("webhook"),
	}
	if publisher != nil {
		webhookSvc.Publisher = publisher
	}

	locker, err := redisadapter.NewLocker(redisConn)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: redsync locker: %w", err)
	}

	schedulerSvc := &scheduler.Service{
		Locker: locker, Escrows: escrowSvc, Limits: limits,
		Wallets: walletSvc, WalletRepo: wallets, Webhooks: webhookSvc,
		Tracer: tel.Tracer("scheduler"),
	}

	guard := idempotency.NewGuard(redisadapter.NewStore(redisConn))

	router := httpapi.NewRouter(logger, cfg.JWTSecret, cfg.MFAEncryptionKey, guard, &httpapi.Handlers{
		Orders:      &httpapi.OrderHandlers{Escrow: escrowSvc},
		Withdrawals: &httpapi.WithdrawalHandlers{Withdrawals: withdrawalSvc},
		Webhooks: &httpapi.WebhookHandlers{
			Webhooks: webhookSvc, MidtransServerKey: cfg.MidtransServerKey, GenericHMACSecret: cfg.MFAEncryptionKey,
		},
		Wallets: &httpapi.WalletHandlers{Wallets: wallets},
		Users:   &httpapi.UserHandlers{Users: users, BankAccounts: bankAccounts, Wallets: wallets},
	})

	return &App{
		Config: cfg, Logger: logger,
		DB: db, RedisConn: redisConn, RabbitConn: rabbitConn, Telemetry: tel,
		Guard: guard, Scheduler: schedulerSvc, Router: router,
	}, nil
}

// Close tears down every long-lived connection, best-effort, logging
// (not returning) any individual failure — mirrors the teacher's
// defer-chain shutdown in cmd/app's main.
func (a *App) Close() {
	a.Telemetry.Shutdown(context.Background(), a.Logger)

	if a.RabbitConn != nil {
		if err := a.RabbitConn.Close(); err != nil {
			a.Logger.Warnf("bootstrap: rabbitmq close: %v", err)
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warnf("bootstrap: postgres close: %v", err)
		}
	}
}

func connectPostgres(ctx context.Context, dsn string, logger mlog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}

	logger.Info("connected to postgres")

	return db, nil
}

// migrateUp runs every pending migration under ./migrations, the
// teacher's migrate.NewWithDatabaseInstance + m.Up() pattern, treating
// ErrNoChange as success.
func migrateUp(db *sql.DB, logger mlog.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return ErrMigrationFailed{Err: err}
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return ErrMigrationFailed{Err: err}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return ErrMigrationFailed{Err: err}
	}

	logger.Info("migrations up to date")

	return nil
}
