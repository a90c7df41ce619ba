package main

import (
	"context"
	"fmt"

	"wallet-ledger/config"
	pgStorage "wallet-ledger/internal/adapter/storage/postgres"
	sqliteStorage "wallet-ledger/internal/adapter/storage/sqlite"
	"wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// storage bundles the ledger store and read repositories of one backend.
type storage struct {
	store    ports.LedgerStore
	accounts ports.AccountRepository
	wallets  ports.WalletRepository
	txns     ports.TransactionRepository
	audit    ports.AuditRepository
	health   ports.HealthChecker
	close    func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqliteStorage.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &storage{
			store:    sqliteStorage.NewLedgerStore(db, cfg.LockTimeout, log),
			accounts: sqliteStorage.NewAccountRepo(db),
			wallets:  sqliteStorage.NewWalletRepo(db),
			txns:     sqliteStorage.NewTransactionRepo(db),
			audit:    sqliteStorage.NewAuditRepo(db),
			health:   sqliteStorage.NewHealthCheck(db),
			close:    func() { _ = db.Close() },
		}, nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := pgStorage.Migrate(cfg.DSN(), log); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		pool, err := pgStorage.NewPool(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return &storage{
			store:    pgStorage.NewLedgerStore(pool, cfg.LockTimeout, log),
			accounts: pgStorage.NewAccountRepo(pool),
			wallets:  pgStorage.NewWalletRepo(pool),
			txns:     pgStorage.NewTransactionRepo(pool),
			audit:    pgStorage.NewAuditRepo(pool),
			health:   pgStorage.NewHealthCheck(pool),
			close:    pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
