package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerStore implements ports.LedgerStore on PostgreSQL transactions.
type LedgerStore struct {
	pool        Pool
	lockTimeout time.Duration
	log         zerolog.Logger
}

// NewLedgerStore creates a LedgerStore. lockTimeout bounds how long a unit
// of work waits on a row lock before failing with ports.ErrConflict.
func NewLedgerStore(pool Pool, lockTimeout time.Duration, log zerolog.Logger) *LedgerStore {
	return &LedgerStore{pool: pool, lockTimeout: lockTimeout, log: log}
}

// Atomically runs fn inside one database transaction.
func (s *LedgerStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// Runs on error, panic and cancellation alike.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Warn().Err(rbErr).Msg("Rollback failed")
		}
	}()

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", mapError(err))
		}
	}

	if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	committed = true
	return nil
}

// ledgerTx implements ports.LedgerTx on an open pgx.Tx.
type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return getAccount(ctx, t.tx, "id", id, true)
}

func (t *ledgerTx) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return getAccount(ctx, t.tx, "email", email, true)
}

func (t *ledgerTx) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return getAccount(ctx, t.tx, "phone", phone, true)
}

// LockWallets takes row locks in ascending owner order so two units of work
// touching the same pair of wallets cannot deadlock.
func (t *ledgerTx) LockWallets(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	ids := sortedUnique(ownerIDs)
	out := make(map[uuid.UUID]*domain.Wallet, len(ids))
	for _, id := range ids {
		w, err := getWalletByOwner(ctx, t.tx, id, true)
		if err != nil {
			return nil, err
		}
		if w != nil {
			out[id] = w
		}
	}
	return out, nil
}

func (t *ledgerTx) GetIdempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := t.tx.QueryRow(ctx,
		`SELECT key, transaction_id, response_json, created_at FROM idempotency_keys WHERE key = $1`,
		key,
	).Scan(&rec.Key, &rec.TransactionID, &rec.ResponseJSON, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &rec, nil
}

func (t *ledgerTx) Apply(ctx context.Context, cs domain.ChangeSet) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	for _, u := range cs.Wallets {
		tag, err := t.tx.Exec(ctx,
			`UPDATE wallets SET balance = $1, status = $2, version = version + 1, updated_at = $3
			WHERE id = $4 AND version = $5`,
			u.NewBalance, string(u.Status), now, u.WalletID, u.Version,
		)
		if err != nil {
			return fmt.Errorf("update wallet %s: %w", u.WalletID, mapError(err))
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update wallet %s: %w", u.WalletID, ports.ErrConflict)
		}
	}

	if cs.Transaction != nil {
		if err := insertTransaction(ctx, t.tx, cs.Transaction); err != nil {
			return err
		}
	}

	if rec := cs.Idempotency; rec != nil {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO idempotency_keys (key, transaction_id, response_json, created_at)
			VALUES ($1, $2, $3, $4)`,
			rec.Key, rec.TransactionID, rec.ResponseJSON, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert idempotency record: %w", mapError(err))
		}
	}
	return nil
}

func (t *ledgerTx) CreateAccount(ctx context.Context, account *domain.Account, wallet *domain.Wallet) error {
	if err := insertAccount(ctx, t.tx, account); err != nil {
		return err
	}
	return insertWallet(ctx, t.tx, wallet)
}

func (t *ledgerTx) UpdateAccount(ctx context.Context, account *domain.Account) error {
	return updateAccount(ctx, t.tx, account)
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return slices.Compact(out)
}
