package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

const accountColumns = `id, name, email, phone, password_hash, role, approved, status, deleted, created_at, updated_at`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// GetByID fetches an account by its UUID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return getAccount(ctx, r.db, "id", id)
}

// GetByEmail fetches an account by its (lowercased) email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return getAccount(ctx, r.db, "email", email)
}

// List returns a page of accounts, newest first, optionally filtered by role.
func (r *AccountRepo) List(ctx context.Context, params ports.AccountListParams) ([]domain.Account, int64, error) {
	where := "WHERE deleted = 0"
	var args []any
	if params.Role != nil {
		where += " AND role = ?"
		args = append(args, string(*params.Role))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts "+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, params.PageSize, params.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, total, nil
}

func getAccount(ctx context.Context, q querier, column string, value any) (*domain.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE %s = ?", accountColumns, column)
	a, err := scanAccount(q.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by %s: %w", column, err)
	}
	return a, nil
}

func insertAccount(ctx context.Context, q querier, a *domain.Account) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Email, a.Phone, a.PasswordHash, string(a.Role),
		a.Approved, string(a.Status), a.Deleted, a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", mapError(err))
	}
	return nil
}

func updateAccount(ctx context.Context, q querier, a *domain.Account) error {
	res, err := q.ExecContext(ctx,
		`UPDATE accounts SET name = ?, phone = ?, approved = ?, status = ?, deleted = ?, updated_at = ? WHERE id = ?`,
		a.Name, a.Phone, a.Approved, string(a.Status), a.Deleted, a.UpdatedAt.UnixNano(), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update account %s: %w", a.ID, sql.ErrNoRows)
	}
	return nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var a domain.Account
	var role, status string
	var created, updated int64
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &role,
		&a.Approved, &status, &a.Deleted, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.Status = domain.AccountStatus(status)
	a.CreatedAt = fromUnixNano(created)
	a.UpdatedAt = fromUnixNano(updated)
	return &a, nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
