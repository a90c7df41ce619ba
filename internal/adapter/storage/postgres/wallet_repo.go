package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, owner_id, balance, status, version, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetByOwner fetches the wallet of an account (without locking).
func (r *WalletRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return getWalletByOwner(ctx, r.pool, ownerID, false)
}

// List returns a page of wallets, newest first, optionally filtered by status.
func (r *WalletRepo) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM wallets " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wallets: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM wallets %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		walletColumns, where, argIdx, argIdx+1,
	)
	args = append(args, params.PageSize, params.Offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, 0, err
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate wallets: %w", err)
	}
	return wallets, total, nil
}

// getWalletByOwner loads a wallet, optionally taking a row lock that blocks
// other writers until the enclosing transaction ends.
func getWalletByOwner(ctx context.Context, q Querier, ownerID uuid.UUID, forUpdate bool) (*domain.Wallet, error) {
	query := "SELECT " + walletColumns + " FROM wallets WHERE owner_id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	w, err := scanWallet(q.QueryRow(ctx, query, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet for owner %s: %w", ownerID, mapError(err))
	}
	return w, nil
}

func insertWallet(ctx context.Context, q Querier, w *domain.Wallet) error {
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.OwnerID, w.Balance, string(w.Status), w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", mapError(err))
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var status string
	err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &status, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WalletStatus(status)
	return &w, nil
}
