package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Role      domain.Role
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EventPublisher announces committed transactions to other systems.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, txn *domain.Transaction) error
}

// TransferMetrics records engine outcomes.
type TransferMetrics interface {
	ObserveTransfer(txType, outcome string, d time.Duration)
	IncConflictRetry(txType string)
}

// AuditService records security-relevant actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// IdentityResolver maps an email or phone identifier to an account using
// finder, so the lookup joins the caller's unit of work.
// Returns (nil, nil) when nothing matches.
type IdentityResolver interface {
	Resolve(ctx context.Context, finder AccountFinder, identifier string) (*domain.Account, error)
}

// --- Service Ports (Business Logic) ---

// TransferService moves funds between exactly two wallets.
type TransferService interface {
	CashIn(ctx context.Context, req CashInRequest) (*TransferResult, error)
	CashOut(ctx context.Context, req CashOutRequest) (*TransferResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// CashInRequest credits a user's wallet on behalf of an agent.
type CashInRequest struct {
	AgentID        uuid.UUID
	UserIdentifier string
	Amount         int64
	IdempotencyKey string // Optional
}

// CashOutRequest moves funds from a user to an agent.
type CashOutRequest struct {
	UserID          uuid.UUID
	AgentIdentifier string
	Amount          int64
	IdempotencyKey  string // Optional
}

// TransferRequest moves funds between two users.
type TransferRequest struct {
	SenderID            uuid.UUID
	RecipientIdentifier string
	Amount              int64
	IdempotencyKey      string // Optional
}

// Party is one side of a money movement after it committed.
type Party struct {
	ID         uuid.UUID `json:"id"` // Account ID
	NewBalance int64     `json:"newBalance"`
}

// TransferResult is returned by every TransferService operation.
type TransferResult struct {
	From        Party               `json:"from"`
	To          Party               `json:"to"`
	Amount      int64               `json:"amount"`
	Wallet      *domain.Wallet      `json:"wallet,omitempty"` // Credited wallet, cash-in only
	Transaction *domain.Transaction `json:"transaction"`
}

// AccountService covers registration, login and admin account actions.
type AccountService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error) // token, expiry, error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, req ProfileUpdate) (*domain.Account, error)
	ListAccounts(ctx context.Context, params AccountListParams) ([]domain.Account, int64, error)
	SetAgentApproval(ctx context.Context, agentID uuid.UUID, approved bool) (*domain.Account, error)
	SetWalletStatus(ctx context.Context, ownerID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error)
	EnsureAdmin(ctx context.Context, req RegisterRequest) (*domain.Account, error)
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     domain.Role // USER or AGENT; ADMIN only through EnsureAdmin
}

// ProfileUpdate holds the self-service fields of an account. Nil means unchanged.
type ProfileUpdate struct {
	Name  *string
	Phone *string
}

// RegisterResult holds the created account and its funded wallet.
type RegisterResult struct {
	Account *domain.Account `json:"account"`
	Wallet  *domain.Wallet  `json:"wallet"`
}

// ReportingService defines read-only wallet and history queries.
type ReportingService interface {
	GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error)
	ListWallets(ctx context.Context, params WalletListParams) ([]domain.Wallet, int64, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	Summarize(ctx context.Context, params TransactionListParams) ([]TransactionSummary, error)
}
