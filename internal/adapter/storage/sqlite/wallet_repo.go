package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

const walletColumns = `id, owner_id, balance, status, version, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	db *sql.DB
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// GetByOwner fetches the wallet of an account.
func (r *WalletRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	return getWalletByOwner(ctx, r.db, ownerID)
}

// List returns a page of wallets, newest first, optionally filtered by status.
func (r *WalletRepo) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	where := ""
	var args []any
	if params.Status != nil {
		where = "WHERE status = ?"
		args = append(args, string(*params.Status))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM wallets "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wallets: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+walletColumns+" FROM wallets "+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, params.PageSize, params.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate wallets: %w", err)
	}
	return wallets, total, nil
}

func getWalletByOwner(ctx context.Context, q querier, ownerID uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(q.QueryRowContext(ctx, "SELECT "+walletColumns+" FROM wallets WHERE owner_id = ?", ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet for owner %s: %w", ownerID, mapError(err))
	}
	return w, nil
}

func insertWallet(ctx context.Context, q querier, w *domain.Wallet) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO wallets (`+walletColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, w.Balance, string(w.Status), w.Version, w.CreatedAt.UnixNano(), w.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", mapError(err))
	}
	return nil
}

func scanWallet(row rowScanner) (*domain.Wallet, error) {
	var w domain.Wallet
	var status string
	var created, updated int64
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &status, &w.Version, &created, &updated); err != nil {
		return nil, err
	}
	w.Status = domain.WalletStatus(status)
	w.CreatedAt = fromUnixNano(created)
	w.UpdatedAt = fromUnixNano(updated)
	return &w, nil
}
