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

const transactionColumns = `id, tx_type, amount, from_account, to_account, fee, commission, status, initiator_role, initiated_by, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// GetByID fetches a transaction by its UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE id = $1"
	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// List returns a page of transactions matching params, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	conditions, args := transactionFilter(params, true)
	where := whereClause(conditions)
	argIdx := len(args) + 1

	var total int64
	countQuery := "SELECT COUNT(*) FROM transactions " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		transactionColumns, where, argIdx, argIdx+1,
	)
	args = append(args, params.PageSize, params.Offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, total, nil
}

// Summarize returns count and volume of COMPLETED transactions per type.
func (r *TransactionRepo) Summarize(ctx context.Context, params ports.TransactionListParams) ([]ports.TransactionSummary, error) {
	conditions, args := transactionFilter(params, false)
	conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
	args = append(args, string(domain.TransactionStatusCompleted))

	query := fmt.Sprintf(
		"SELECT tx_type, COUNT(*), COALESCE(SUM(amount), 0) FROM transactions %s GROUP BY tx_type ORDER BY tx_type",
		whereClause(conditions),
	)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}
	defer rows.Close()

	var out []ports.TransactionSummary
	for rows.Next() {
		var s ports.TransactionSummary
		var txType string
		if err := rows.Scan(&txType, &s.Count, &s.Volume); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Type = domain.TransactionType(txType)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}

// transactionFilter builds positional WHERE conditions for params.
func transactionFilter(params ports.TransactionListParams, withStatus bool) ([]string, []any) {
	var conditions []string
	var args []any
	add := func(expr string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, strings.ReplaceAll(expr, "?", fmt.Sprintf("$%d", len(args))))
	}

	if params.AccountID != nil {
		add("(from_account = ? OR to_account = ?)", *params.AccountID)
	}
	if params.Type != nil {
		add("tx_type = ?", string(*params.Type))
	}
	if withStatus && params.Status != nil {
		add("status = ?", string(*params.Status))
	}
	if params.From != nil {
		add("created_at >= ?", *params.From)
	}
	if params.To != nil {
		add("created_at < ?", *params.To)
	}
	if params.MinAmount != nil {
		add("amount >= ?", *params.MinAmount)
	}
	if params.MaxAmount != nil {
		add("amount <= ?", *params.MaxAmount)
	}
	return conditions, args
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

func insertTransaction(ctx context.Context, q Querier, t *domain.Transaction) error {
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, string(t.Type), t.Amount, t.From, t.To, t.Fee, t.Commission,
		string(t.Status), string(t.InitiatorRole), t.InitiatedBy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapError(err))
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var txType, status, role string
	err := row.Scan(
		&t.ID, &txType, &t.Amount, &t.From, &t.To, &t.Fee, &t.Commission,
		&status, &role, &t.InitiatedBy, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	t.InitiatorRole = domain.Role(role)
	return &t, nil
}
