package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// Store-level sentinels. Adapters wrap driver errors with these so services
// can branch with errors.Is without knowing the backend.
var (
	// ErrConflict marks a concurrent modification: serialization failure,
	// deadlock, lock wait timeout or a stale wallet version. Retrying the
	// whole unit of work may succeed.
	ErrConflict = errors.New("ledger write conflict")
	// ErrAlreadyExists marks a unique violation on an account's email or phone.
	ErrAlreadyExists = errors.New("record already exists")
)

// AccountFinder looks up accounts. Lookups return (nil, nil) when nothing matches.
type AccountFinder interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error)
}

// LedgerTx is one isolated unit of work. Account reads are share-locked and
// wallet reads are exclusive-locked until the unit commits or rolls back.
type LedgerTx interface {
	AccountFinder
	// LockWallets locks the wallets owned by ownerIDs in a deterministic order
	// and returns them keyed by owner. Owners without a wallet are absent.
	LockWallets(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID]*domain.Wallet, error)
	GetIdempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// Apply writes every wallet update, the transaction and the idempotency
	// record. A wallet whose version moved returns ErrConflict.
	Apply(ctx context.Context, cs domain.ChangeSet) error
	CreateAccount(ctx context.Context, account *domain.Account, wallet *domain.Wallet) error
	UpdateAccount(ctx context.Context, account *domain.Account) error
}

// LedgerStore runs units of work. fn's writes are committed only if fn
// returns nil; any error, panic or context cancellation rolls them back.
type LedgerStore interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// AccountRepository provides non-locking account reads.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context, params AccountListParams) ([]domain.Account, int64, error)
}

// WalletRepository provides non-locking wallet reads.
type WalletRepository interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	List(ctx context.Context, params WalletListParams) ([]domain.Wallet, int64, error)
}

// TransactionRepository is the read side of the ledger. Writes only happen
// through LedgerTx.Apply.
type TransactionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	Summarize(ctx context.Context, params TransactionListParams) ([]TransactionSummary, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// AccountListParams holds filter + pagination for listing accounts.
type AccountListParams struct {
	Role     *domain.Role
	Page     int
	PageSize int
}

// WalletListParams holds filter + pagination for listing wallets.
type WalletListParams struct {
	Status   *domain.WalletStatus
	Page     int
	PageSize int
}

// TransactionListParams holds filter + pagination for listing transactions.
// Page and PageSize are ignored by Summarize.
type TransactionListParams struct {
	AccountID *uuid.UUID // Source or destination
	Type      *domain.TransactionType
	Status    *domain.TransactionStatus
	From      *time.Time
	To        *time.Time
	MinAmount *int64
	MaxAmount *int64
	Page      int
	PageSize  int
}

// Offset returns the row offset of the requested page.
func (p TransactionListParams) Offset() int {
	return offset(p.Page, p.PageSize)
}

// Offset returns the row offset of the requested page.
func (p AccountListParams) Offset() int {
	return offset(p.Page, p.PageSize)
}

// Offset returns the row offset of the requested page.
func (p WalletListParams) Offset() int {
	return offset(p.Page, p.PageSize)
}

func offset(page, size int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * size
}

// TransactionSummary aggregates COMPLETED transactions of one type.
type TransactionSummary struct {
	Type   domain.TransactionType `json:"type"`
	Count  int64                  `json:"count"`
	Volume int64                  `json:"volume"`
}
