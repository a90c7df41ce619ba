package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerStore implements ports.LedgerStore on SQLite. Units of work run one
// at a time on the single connection, which gives serializable isolation.
type LedgerStore struct {
	db          *sql.DB
	lockTimeout time.Duration
	log         zerolog.Logger
}

// NewLedgerStore creates a LedgerStore. lockTimeout bounds how long a unit
// of work waits for the connection before failing with ports.ErrConflict.
func NewLedgerStore(db *sql.DB, lockTimeout time.Duration, log zerolog.Logger) *LedgerStore {
	return &LedgerStore{db: db, lockTimeout: lockTimeout, log: log}
}

// Atomically runs fn inside one database transaction.
func (s *LedgerStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Warn().Err(rbErr).Msg("Rollback failed")
		}
	}()

	if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	committed = true
	return nil
}

// acquire waits for the connection, at most lockTimeout.
func (s *LedgerStore) acquire(ctx context.Context) (*sql.Conn, error) {
	acqCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	conn, err := s.db.Conn(acqCtx)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("acquire connection: %w", ports.ErrConflict)
	}
	return nil, fmt.Errorf("acquire connection: %w", err)
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return getAccount(ctx, t.tx, "id", id)
}

func (t *ledgerTx) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return getAccount(ctx, t.tx, "email", email)
}

func (t *ledgerTx) FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error) {
	return getAccount(ctx, t.tx, "phone", phone)
}

func (t *ledgerTx) LockWallets(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	ids := slices.Clone(ownerIDs)
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)

	out := make(map[uuid.UUID]*domain.Wallet, len(ids))
	for _, id := range ids {
		w, err := getWalletByOwner(ctx, t.tx, id)
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
	var created int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT key, transaction_id, response_json, created_at FROM idempotency_keys WHERE key = ?`,
		key,
	).Scan(&rec.Key, &rec.TransactionID, &rec.ResponseJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	rec.CreatedAt = fromUnixNano(created)
	return &rec, nil
}

func (t *ledgerTx) Apply(ctx context.Context, cs domain.ChangeSet) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC().UnixNano()

	for _, u := range cs.Wallets {
		res, err := t.tx.ExecContext(ctx,
			`UPDATE wallets SET balance = ?, status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			u.NewBalance, string(u.Status), now, u.WalletID, u.Version,
		)
		if err != nil {
			return fmt.Errorf("update wallet %s: %w", u.WalletID, mapError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update wallet %s: %w", u.WalletID, ports.ErrConflict)
		}
	}

	if cs.Transaction != nil {
		if err := insertTransaction(ctx, t.tx, cs.Transaction); err != nil {
			return err
		}
	}

	if rec := cs.Idempotency; rec != nil {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO idempotency_keys (key, transaction_id, response_json, created_at) VALUES (?, ?, ?, ?)`,
			rec.Key, rec.TransactionID, rec.ResponseJSON, rec.CreatedAt.UnixNano(),
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
