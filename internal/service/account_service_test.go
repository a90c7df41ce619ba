package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type accountTestDeps struct {
	svc      *AccountServiceImpl
	store    *mocks.MockLedgerStore
	tx       *mocks.MockLedgerTx
	accounts *mocks.MockAccountRepository
	hashSvc  *mocks.MockHashService
	tokenSvc *mocks.MockTokenService
}

func setupAccountService(t *testing.T, startingBalance int64) *accountTestDeps {
	ctrl := gomock.NewController(t)
	d := &accountTestDeps{
		store:    mocks.NewMockLedgerStore(ctrl),
		tx:       mocks.NewMockLedgerTx(ctrl),
		accounts: mocks.NewMockAccountRepository(ctrl),
		hashSvc:  mocks.NewMockHashService(ctrl),
		tokenSvc: mocks.NewMockTokenService(ctrl),
	}
	d.svc = NewAccountService(d.store, d.accounts, d.hashSvc, d.tokenSvc,
		AccountConfig{StartingBalance: startingBalance}, zerolog.Nop())
	return d
}

func (d *accountTestDeps) runInTx() {
	d.store.EXPECT().Atomically(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, ports.LedgerTx) error) error {
			return fn(ctx, d.tx)
		})
}

func validRegistration(role domain.Role) ports.RegisterRequest {
	return ports.RegisterRequest{
		Name:     "  Rahim  ",
		Email:    "Rahim@Example.COM",
		Phone:    "01712345678",
		Password: "s3cret-pass",
		Role:     role,
	}
}

// ==================== Register ====================

func TestAccountService_Register_UserGetsBonus(t *testing.T) {
	d := setupAccountService(t, 40)

	d.hashSvc.EXPECT().Hash("s3cret-pass").Return("hashed", nil)
	d.runInTx()

	var created *domain.Account
	d.tx.EXPECT().CreateAccount(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *domain.Account, w *domain.Wallet) error {
			created = a
			assert.Equal(t, "Rahim", a.Name)
			assert.Equal(t, "rahim@example.com", a.Email)
			assert.Equal(t, "+8801712345678", a.Phone)
			assert.Equal(t, "hashed", a.PasswordHash)
			assert.True(t, a.Approved)
			assert.Equal(t, domain.AccountStatusActive, a.Status)
			assert.Equal(t, a.ID, w.OwnerID)
			assert.Equal(t, int64(40), w.Balance)
			assert.Equal(t, domain.WalletStatusActive, w.Status)
			return nil
		})
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cs domain.ChangeSet) error {
		assert.Empty(t, cs.Wallets)
		require.NotNil(t, cs.Transaction)
		assert.Equal(t, domain.TransactionTypeCashInBonus, cs.Transaction.Type)
		assert.Equal(t, int64(40), cs.Transaction.Amount)
		assert.Nil(t, cs.Transaction.From)
		require.NotNil(t, cs.Transaction.To)
		assert.Equal(t, created.ID, *cs.Transaction.To)
		return nil
	})

	res, err := d.svc.Register(context.Background(), validRegistration(domain.RoleUser))
	require.NoError(t, err)
	assert.Equal(t, created, res.Account)
	assert.Equal(t, int64(40), res.Wallet.Balance)
}

func TestAccountService_Register_AgentStartsUnapproved(t *testing.T) {
	d := setupAccountService(t, 0)

	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
	d.runInTx()
	d.tx.EXPECT().CreateAccount(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	// Zero starting balance records no bonus.

	res, err := d.svc.Register(context.Background(), validRegistration(domain.RoleAgent))
	require.NoError(t, err)
	assert.False(t, res.Account.Approved)
	assert.Equal(t, int64(0), res.Wallet.Balance)
}

func TestAccountService_Register_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ports.RegisterRequest)
	}{
		{"admin role", func(r *ports.RegisterRequest) { r.Role = domain.RoleAdmin }},
		{"unknown role", func(r *ports.RegisterRequest) { r.Role = "OWNER" }},
		{"blank name", func(r *ports.RegisterRequest) { r.Name = "  " }},
		{"blank email", func(r *ports.RegisterRequest) { r.Email = "" }},
		{"bad phone", func(r *ports.RegisterRequest) { r.Phone = "12" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupAccountService(t, 40)
			req := validRegistration(domain.RoleUser)
			tt.mutate(&req)

			res, err := d.svc.Register(context.Background(), req)
			assert.Nil(t, res)
			assertAppError(t, err, apperror.CodeValidation)
		})
	}
}

func TestAccountService_Register_Duplicate(t *testing.T) {
	d := setupAccountService(t, 40)

	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
	d.runInTx()
	d.tx.EXPECT().CreateAccount(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.Join(ports.ErrAlreadyExists, errors.New("accounts_email_key")))

	res, err := d.svc.Register(context.Background(), validRegistration(domain.RoleUser))
	assert.Nil(t, res)
	assertAppError(t, err, apperror.CodeAccountExists)
}

func TestAccountService_Register_HashFailure(t *testing.T) {
	d := setupAccountService(t, 40)
	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("", errors.New("rng exhausted"))

	_, err := d.svc.Register(context.Background(), validRegistration(domain.RoleUser))
	assertAppError(t, err, apperror.CodeInternal)
}

// ==================== EnsureAdmin ====================

func TestAccountService_EnsureAdmin_Creates(t *testing.T) {
	d := setupAccountService(t, 40)

	d.accounts.EXPECT().GetByEmail(gomock.Any(), "admin@example.com").Return(nil, nil)
	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
	d.runInTx()
	d.tx.EXPECT().CreateAccount(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a *domain.Account, w *domain.Wallet) error {
			assert.Equal(t, domain.RoleAdmin, a.Role)
			assert.Equal(t, int64(0), w.Balance)
			return nil
		})

	admin, err := d.svc.EnsureAdmin(context.Background(), ports.RegisterRequest{
		Name: "Admin", Email: "ADMIN@example.com", Phone: "01812345678", Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
}

func TestAccountService_EnsureAdmin_Existing(t *testing.T) {
	d := setupAccountService(t, 40)
	existing := &domain.Account{ID: uuid.New(), Email: "admin@example.com", Role: domain.RoleAdmin}

	d.accounts.EXPECT().GetByEmail(gomock.Any(), "admin@example.com").Return(existing, nil)

	admin, err := d.svc.EnsureAdmin(context.Background(), ports.RegisterRequest{Email: "admin@example.com"})
	require.NoError(t, err)
	assert.Same(t, existing, admin)
}

func TestAccountService_EnsureAdmin_EmailTakenByUser(t *testing.T) {
	d := setupAccountService(t, 40)
	d.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(newUser("admin"), nil)

	_, err := d.svc.EnsureAdmin(context.Background(), ports.RegisterRequest{Email: "admin@example.com"})
	assertAppError(t, err, apperror.CodeInvalidState)
}

// ==================== Login ====================

func TestAccountService_Login_Success(t *testing.T) {
	d := setupAccountService(t, 0)
	user := newUser("alice")
	user.PasswordHash = "hashed"
	expiry := time.Now().Add(time.Hour)

	d.accounts.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(user, nil)
	d.hashSvc.EXPECT().Verify("pw", "hashed").Return(true, nil)
	d.tokenSvc.EXPECT().Generate(user.ID, domain.RoleUser).Return("jwt", expiry, nil)

	token, exp, err := d.svc.Login(context.Background(), " Alice@Example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)
	assert.Equal(t, expiry, exp)
}

func TestAccountService_Login_Rejections(t *testing.T) {
	inactive := newUser("bob")
	inactive.Status = domain.AccountStatusBlocked

	tests := []struct {
		name    string
		account *domain.Account
		valid   bool
		code    string
	}{
		{"unknown email", nil, false, apperror.CodeInvalidCredentials},
		{"wrong password", newUser("alice"), false, apperror.CodeInvalidCredentials},
		{"blocked account", inactive, true, apperror.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupAccountService(t, 0)
			d.accounts.EXPECT().GetByEmail(gomock.Any(), gomock.Any()).Return(tt.account, nil)
			if tt.account != nil {
				d.hashSvc.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(tt.valid, nil)
			}

			token, _, err := d.svc.Login(context.Background(), "x@example.com", "pw")
			assert.Empty(t, token)
			assertAppError(t, err, tt.code)
		})
	}
}

// ==================== Profile / Admin actions ====================

func TestAccountService_GetAccount_NotFound(t *testing.T) {
	d := setupAccountService(t, 0)
	id := uuid.New()
	d.accounts.EXPECT().GetByID(gomock.Any(), id).Return(nil, nil)

	_, err := d.svc.GetAccount(context.Background(), id)
	assertAppError(t, err, apperror.CodeNotFound)
}

func TestAccountService_UpdateProfile(t *testing.T) {
	d := setupAccountService(t, 0)
	user := newUser("alice")
	name, phoneNo := "Alice B", "01912345678"

	d.runInTx()
	d.tx.EXPECT().GetAccountByID(gomock.Any(), user.ID).Return(user, nil)
	d.tx.EXPECT().UpdateAccount(gomock.Any(), user).Return(nil)

	updated, err := d.svc.UpdateProfile(context.Background(), user.ID, ports.ProfileUpdate{Name: &name, Phone: &phoneNo})
	require.NoError(t, err)
	assert.Equal(t, "Alice B", updated.Name)
	assert.Equal(t, "+8801912345678", updated.Phone)
}

func TestAccountService_UpdateProfile_PhoneTaken(t *testing.T) {
	d := setupAccountService(t, 0)
	user := newUser("alice")
	phoneNo := "01912345678"

	d.runInTx()
	d.tx.EXPECT().GetAccountByID(gomock.Any(), user.ID).Return(user, nil)
	d.tx.EXPECT().UpdateAccount(gomock.Any(), user).Return(ports.ErrAlreadyExists)

	_, err := d.svc.UpdateProfile(context.Background(), user.ID, ports.ProfileUpdate{Phone: &phoneNo})
	assertAppError(t, err, apperror.CodeAccountExists)
}

func TestAccountService_UpdateProfile_BlankName(t *testing.T) {
	d := setupAccountService(t, 0)
	blank := " "

	_, err := d.svc.UpdateProfile(context.Background(), uuid.New(), ports.ProfileUpdate{Name: &blank})
	assertAppError(t, err, apperror.CodeValidation)
}

func TestAccountService_SetAgentApproval(t *testing.T) {
	t.Run("approves agent", func(t *testing.T) {
		d := setupAccountService(t, 0)
		agent := newAgent("agent", false)

		d.runInTx()
		d.tx.EXPECT().GetAccountByID(gomock.Any(), agent.ID).Return(agent, nil)
		d.tx.EXPECT().UpdateAccount(gomock.Any(), agent).Return(nil)

		updated, err := d.svc.SetAgentApproval(context.Background(), agent.ID, true)
		require.NoError(t, err)
		assert.True(t, updated.Approved)
	})

	t.Run("rejects non-agent", func(t *testing.T) {
		d := setupAccountService(t, 0)
		user := newUser("alice")

		d.runInTx()
		d.tx.EXPECT().GetAccountByID(gomock.Any(), user.ID).Return(user, nil)

		_, err := d.svc.SetAgentApproval(context.Background(), user.ID, true)
		assertAppError(t, err, apperror.CodeInvalidState)
	})

	t.Run("missing agent", func(t *testing.T) {
		d := setupAccountService(t, 0)
		id := uuid.New()

		d.runInTx()
		d.tx.EXPECT().GetAccountByID(gomock.Any(), id).Return(nil, nil)

		_, err := d.svc.SetAgentApproval(context.Background(), id, true)
		assertAppError(t, err, apperror.CodeNotFound)
	})
}

func TestAccountService_SetWalletStatus(t *testing.T) {
	d := setupAccountService(t, 0)
	user := newUser("alice")
	w := walletFor(user, 75)

	d.runInTx()
	d.tx.EXPECT().LockWallets(gomock.Any(), []uuid.UUID{user.ID}).Return(map[uuid.UUID]*domain.Wallet{user.ID: w}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), domain.ChangeSet{Wallets: []domain.WalletUpdate{{
		WalletID: w.ID, Version: 1, NewBalance: 75, Status: domain.WalletStatusBlocked,
	}}}).Return(nil)

	updated, err := d.svc.SetWalletStatus(context.Background(), user.ID, domain.WalletStatusBlocked)
	require.NoError(t, err)
	assert.Equal(t, domain.WalletStatusBlocked, updated.Status)
	assert.Equal(t, int64(75), updated.Balance)
	assert.Equal(t, int64(2), updated.Version)
}

func TestAccountService_SetWalletStatus_Unchanged(t *testing.T) {
	d := setupAccountService(t, 0)
	user := newUser("alice")
	w := walletFor(user, 75)

	d.runInTx()
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).Return(map[uuid.UUID]*domain.Wallet{user.ID: w}, nil)
	// Already active, nothing to apply.

	updated, err := d.svc.SetWalletStatus(context.Background(), user.ID, domain.WalletStatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
}

func TestAccountService_SetWalletStatus_Errors(t *testing.T) {
	t.Run("invalid status", func(t *testing.T) {
		d := setupAccountService(t, 0)
		_, err := d.svc.SetWalletStatus(context.Background(), uuid.New(), "FROZEN")
		assertAppError(t, err, apperror.CodeValidation)
	})

	t.Run("missing wallet", func(t *testing.T) {
		d := setupAccountService(t, 0)
		d.runInTx()
		d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).Return(map[uuid.UUID]*domain.Wallet{}, nil)

		_, err := d.svc.SetWalletStatus(context.Background(), uuid.New(), domain.WalletStatusBlocked)
		assertAppError(t, err, apperror.CodeNotFound)
	})

	t.Run("conflict is retryable", func(t *testing.T) {
		d := setupAccountService(t, 0)
		d.store.EXPECT().Atomically(gomock.Any(), gomock.Any()).Return(ports.ErrConflict)

		_, err := d.svc.SetWalletStatus(context.Background(), uuid.New(), domain.WalletStatusBlocked)
		assertAppError(t, err, apperror.CodeRetryable)
	})
}

func TestAccountService_ListAccounts_NormalizesPage(t *testing.T) {
	d := setupAccountService(t, 0)
	role := domain.RoleAgent

	d.accounts.EXPECT().List(gomock.Any(), ports.AccountListParams{Role: &role, Page: 1, PageSize: 100}).
		Return([]domain.Account{*newAgent("a", true)}, int64(1), nil)

	accounts, total, err := d.svc.ListAccounts(context.Background(), ports.AccountListParams{Role: &role, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, int64(1), total)
}
