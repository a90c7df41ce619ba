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

const accountColumns = `id, name, email, phone, password_hash, role, approved, status, deleted, created_at, updated_at`

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// GetByID fetches an account by its UUID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return getAccount(ctx, r.pool, "id", id, false)
}

// GetByEmail fetches an account by its (lowercased) email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return getAccount(ctx, r.pool, "email", email, false)
}

// List returns a page of accounts, newest first, optionally filtered by role.
func (r *AccountRepo) List(ctx context.Context, params ports.AccountListParams) ([]domain.Account, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, string(*params.Role))
		argIdx++
	}
	conditions = append(conditions, "deleted = FALSE")
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM accounts " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM accounts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		accountColumns, where, argIdx, argIdx+1,
	)
	args = append(args, params.PageSize, params.Offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, total, nil
}

// getAccount loads one account by a unique column. forShare holds a share
// lock on the row until the enclosing transaction ends.
func getAccount(ctx context.Context, q Querier, column string, value any, forShare bool) (*domain.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE %s = $1", accountColumns, column)
	if forShare {
		query += " FOR SHARE"
	}
	a, err := scanAccount(q.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by %s: %w", column, err)
	}
	return a, nil
}

func insertAccount(ctx context.Context, q Querier, a *domain.Account) error {
	_, err := q.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Name, a.Email, a.Phone, a.PasswordHash, string(a.Role),
		a.Approved, string(a.Status), a.Deleted, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", mapError(err))
	}
	return nil
}

func updateAccount(ctx context.Context, q Querier, a *domain.Account) error {
	tag, err := q.Exec(ctx,
		`UPDATE accounts SET name = $1, phone = $2, approved = $3, status = $4, deleted = $5, updated_at = $6
		WHERE id = $7`,
		a.Name, a.Phone, a.Approved, string(a.Status), a.Deleted, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update account %s: %w", a.ID, pgx.ErrNoRows)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var role, status string
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.PasswordHash, &role,
		&a.Approved, &status, &a.Deleted, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.Status = domain.AccountStatus(status)
	return &a, nil
}
