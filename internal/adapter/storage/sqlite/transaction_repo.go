package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
)

const transactionColumns = `id, tx_type, amount, from_account, to_account, fee, commission, status, initiator_role, initiated_by, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// GetByID fetches a transaction by its UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// List returns a page of transactions matching params, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	where, args := transactionFilter(params, true)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions "+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, params.PageSize, params.Offset())...,
	)
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
	params.Status = nil
	where, args := transactionFilter(params, false)
	if where == "" {
		where = "WHERE status = ?"
	} else {
		where += " AND status = ?"
	}
	args = append(args, string(domain.TransactionStatusCompleted))

	rows, err := r.db.QueryContext(ctx,
		"SELECT tx_type, COUNT(*), COALESCE(SUM(amount), 0) FROM transactions "+where+" GROUP BY tx_type ORDER BY tx_type",
		args...,
	)
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

func transactionFilter(params ports.TransactionListParams, withStatus bool) (string, []any) {
	var conditions []string
	var args []any

	if params.AccountID != nil {
		conditions = append(conditions, "(from_account = ? OR to_account = ?)")
		args = append(args, *params.AccountID, *params.AccountID)
	}
	if params.Type != nil {
		conditions = append(conditions, "tx_type = ?")
		args = append(args, string(*params.Type))
	}
	if withStatus && params.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*params.Status))
	}
	if params.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, params.From.UnixNano())
	}
	if params.To != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, params.To.UnixNano())
	}
	if params.MinAmount != nil {
		conditions = append(conditions, "amount >= ?")
		args = append(args, *params.MinAmount)
	}
	if params.MaxAmount != nil {
		conditions = append(conditions, "amount <= ?")
		args = append(args, *params.MaxAmount)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func insertTransaction(ctx context.Context, q querier, t *domain.Transaction) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.Amount, t.From, t.To, t.Fee, t.Commission,
		string(t.Status), string(t.InitiatorRole), t.InitiatedBy, t.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapError(err))
	}
	return nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var txType, status, role string
	var created int64
	err := row.Scan(
		&t.ID, &txType, &t.Amount, &t.From, &t.To, &t.Fee, &t.Commission,
		&status, &role, &t.InitiatedBy, &created,
	)
	if err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	t.InitiatorRole = domain.Role(role)
	t.CreatedAt = fromUnixNano(created)
	return &t, nil
}
