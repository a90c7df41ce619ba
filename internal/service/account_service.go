package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/phone"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountConfig tunes registration.
type AccountConfig struct {
	// StartingBalance is credited to every new USER and AGENT wallet and
	// recorded as a CASH_IN_BONUS transaction.
	StartingBalance int64
	Region          string
}

// AccountServiceImpl implements ports.AccountService.
type AccountServiceImpl struct {
	store    ports.LedgerStore
	accounts ports.AccountRepository
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	cfg      AccountConfig
	log      zerolog.Logger
}

// NewAccountService creates a new AccountServiceImpl.
func NewAccountService(
	store ports.LedgerStore,
	accounts ports.AccountRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	cfg AccountConfig,
	log zerolog.Logger,
) *AccountServiceImpl {
	if cfg.Region == "" {
		cfg.Region = phone.DefaultRegion
	}
	return &AccountServiceImpl{
		store:    store,
		accounts: accounts,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		cfg:      cfg,
		log:      log,
	}
}

// Register creates a USER or AGENT account together with its wallet.
// Agents start unapproved.
func (s *AccountServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResult, error) {
	if req.Role != domain.RoleUser && req.Role != domain.RoleAgent {
		return nil, apperror.Validation("Role must be USER or AGENT")
	}
	return s.create(ctx, req, s.cfg.StartingBalance)
}

// EnsureAdmin creates the admin account described by req unless an account
// with that email already exists.
func (s *AccountServiceImpl) EnsureAdmin(ctx context.Context, req ports.RegisterRequest) (*domain.Account, error) {
	existing, err := s.accounts.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find admin: %w", err))
	}
	if existing != nil {
		if existing.Role != domain.RoleAdmin {
			return nil, apperror.InvalidState("Seed email belongs to a non-admin account")
		}
		return existing, nil
	}

	req.Role = domain.RoleAdmin
	res, err := s.create(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("account_id", res.Account.ID.String()).Msg("Admin account seeded")
	return res.Account, nil
}

func (s *AccountServiceImpl) create(ctx context.Context, req ports.RegisterRequest, bonus int64) (*ports.RegisterResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("Name is required")
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, apperror.Validation("Email is required")
	}
	if !phone.IsValid(req.Phone, s.cfg.Region) {
		return nil, apperror.Validation("Phone number is invalid")
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Phone:        phone.Normalize(req.Phone, s.cfg.Region),
		PasswordHash: passwordHash,
		Role:         req.Role,
		Approved:     req.Role != domain.RoleAgent,
		Status:       domain.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	wallet := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   account.ID,
		Balance:   bonus,
		Status:    domain.WalletStatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.Atomically(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		if err := tx.CreateAccount(ctx, account, wallet); err != nil {
			return err
		}
		if bonus <= 0 {
			return nil
		}
		to := account.ID
		return tx.Apply(ctx, domain.ChangeSet{Transaction: &domain.Transaction{
			ID:            uuid.New(),
			Type:          domain.TransactionTypeCashInBonus,
			Amount:        bonus,
			To:            &to,
			Status:        domain.TransactionStatusCompleted,
			InitiatorRole: account.Role,
			InitiatedBy:   account.ID,
			CreatedAt:     now,
		}})
	})
	if errors.Is(err, ports.ErrAlreadyExists) {
		return nil, apperror.ErrAccountExists()
	}
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("create account: %w", err))
	}

	s.log.Info().
		Str("account_id", account.ID.String()).
		Str("role", string(account.Role)).
		Msg("Account registered")
	return &ports.RegisterResult{Account: account, Wallet: wallet}, nil
}

// Login validates credentials and returns a JWT token.
func (s *AccountServiceImpl) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find account: %w", err))
	}
	if account == nil || account.Deleted {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, account.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}
	if !account.IsActive() {
		return "", time.Time{}, apperror.ErrForbidden()
	}

	token, expiry, err := s.tokenSvc.Generate(account.ID, account.Role)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	return token, expiry, nil
}

// GetAccount returns an account by ID.
func (s *AccountServiceImpl) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if account == nil || account.Deleted {
		return nil, apperror.ErrNotFound("Account")
	}
	return account, nil
}

// UpdateProfile changes the caller's name and/or phone.
func (s *AccountServiceImpl) UpdateProfile(ctx context.Context, id uuid.UUID, req ports.ProfileUpdate) (*domain.Account, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, apperror.Validation("Name cannot be empty")
	}
	if req.Phone != nil && !phone.IsValid(*req.Phone, s.cfg.Region) {
		return nil, apperror.Validation("Phone number is invalid")
	}

	return s.updateAccount(ctx, id, "Account", func(a *domain.Account) error {
		if req.Name != nil {
			a.Name = strings.TrimSpace(*req.Name)
		}
		if req.Phone != nil {
			a.Phone = phone.Normalize(*req.Phone, s.cfg.Region)
		}
		return nil
	})
}

// SetAgentApproval approves or revokes an agent.
func (s *AccountServiceImpl) SetAgentApproval(ctx context.Context, agentID uuid.UUID, approved bool) (*domain.Account, error) {
	return s.updateAccount(ctx, agentID, "Agent", func(a *domain.Account) error {
		if a.Role != domain.RoleAgent {
			return apperror.InvalidState("Account is not an agent")
		}
		a.Approved = approved
		return nil
	})
}

// updateAccount reads, mutates and writes an account in one unit of work.
func (s *AccountServiceImpl) updateAccount(ctx context.Context, id uuid.UUID, label string, mutate func(*domain.Account) error) (*domain.Account, error) {
	var updated *domain.Account
	err := s.store.Atomically(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		account, err := tx.GetAccountByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil || account.Deleted {
			return apperror.ErrNotFound(label)
		}
		if err := mutate(account); err != nil {
			return err
		}
		account.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if errors.Is(err, ports.ErrAlreadyExists) {
		return nil, apperror.ErrAccountExists()
	}
	if err != nil {
		return nil, classify(ctx, err)
	}
	return updated, nil
}

// ListAccounts returns a page of accounts.
func (s *AccountServiceImpl) ListAccounts(ctx context.Context, params ports.AccountListParams) ([]domain.Account, int64, error) {
	if params.Role != nil && !params.Role.Valid() {
		return nil, 0, apperror.Validation("Invalid role filter")
	}
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	accounts, total, err := s.accounts.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return accounts, total, nil
}

// SetWalletStatus blocks or unblocks the wallet owned by ownerID. A blocked
// wallet can neither send nor receive.
func (s *AccountServiceImpl) SetWalletStatus(ctx context.Context, ownerID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error) {
	if !status.Valid() {
		return nil, apperror.Validation("Status must be ACTIVE or BLOCKED")
	}

	var updated *domain.Wallet
	err := s.store.Atomically(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		wallets, err := tx.LockWallets(ctx, []uuid.UUID{ownerID})
		if err != nil {
			return err
		}
		w := wallets[ownerID]
		if w == nil {
			return apperror.ErrNotFound("Wallet")
		}
		if w.Status == status {
			updated = w
			return nil
		}
		if err := tx.Apply(ctx, domain.ChangeSet{Wallets: []domain.WalletUpdate{{
			WalletID:   w.ID,
			Version:    w.Version,
			NewBalance: w.Balance,
			Status:     status,
		}}}); err != nil {
			return err
		}
		w.Status = status
		w.Version++
		w.UpdatedAt = time.Now().UTC()
		updated = w
		return nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	s.log.Info().
		Str("owner_id", ownerID.String()).
		Str("status", string(status)).
		Msg("Wallet status changed")
	return updated, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
