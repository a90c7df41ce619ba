package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
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

type transferTestDeps struct {
	svc        *TransferServiceImpl
	store      *mocks.MockLedgerStore
	tx         *mocks.MockLedgerTx
	resolver   *mocks.MockIdentityResolver
	idempCache *mocks.MockIdempotencyCache
	events     *mocks.MockEventPublisher
	metrics    *mocks.MockTransferMetrics
	ctrl       *gomock.Controller
}

func setupTransferService(t *testing.T, cfg TransferConfig) *transferTestDeps {
	ctrl := gomock.NewController(t)
	d := &transferTestDeps{
		store:      mocks.NewMockLedgerStore(ctrl),
		tx:         mocks.NewMockLedgerTx(ctrl),
		resolver:   mocks.NewMockIdentityResolver(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		events:     mocks.NewMockEventPublisher(ctrl),
		metrics:    mocks.NewMockTransferMetrics(ctrl),
		ctrl:       ctrl,
	}
	if cfg.MinCashIn == 0 {
		cfg.MinCashIn = 10
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	d.svc = NewTransferService(d.store, d.resolver, d.idempCache, d.events, d.metrics, cfg, zerolog.Nop())
	// Metrics are observed on every call; individual tests assert on them where relevant.
	d.metrics.EXPECT().ObserveTransfer(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	return d
}

// runInTx makes the mocked store hand fn the mocked unit of work.
func (d *transferTestDeps) runInTx(times int) {
	d.store.EXPECT().Atomically(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, ports.LedgerTx) error) error {
			return fn(ctx, d.tx)
		}).Times(times)
}

func newUser(name string) *domain.Account {
	return &domain.Account{
		ID:     uuid.New(),
		Name:   name,
		Email:  name + "@example.com",
		Role:   domain.RoleUser,
		Status: domain.AccountStatusActive,
	}
}

func newAgent(name string, approved bool) *domain.Account {
	return &domain.Account{
		ID:       uuid.New(),
		Name:     name,
		Email:    name + "@example.com",
		Role:     domain.RoleAgent,
		Approved: approved,
		Status:   domain.AccountStatusActive,
	}
}

func walletFor(owner *domain.Account, balance int64) *domain.Wallet {
	return &domain.Wallet{
		ID:      uuid.New(),
		OwnerID: owner.ID,
		Balance: balance,
		Status:  domain.WalletStatusActive,
		Version: 1,
	}
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected *apperror.AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// ==================== Transfer Tests ====================

func TestTransferService_Transfer_Success(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	ctx := context.Background()

	alice, bob := newUser("alice"), newUser("bob")
	aliceW, bobW := walletFor(alice, 100), walletFor(bob, 50)

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), alice.ID).Return(alice, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "bob@example.com").Return(bob, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), []uuid.UUID{alice.ID, bob.ID}).
		Return(map[uuid.UUID]*domain.Wallet{alice.ID: aliceW, bob.ID: bobW}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cs domain.ChangeSet) error {
		require.Len(t, cs.Wallets, 2)
		assert.Equal(t, domain.WalletUpdate{WalletID: aliceW.ID, Version: 1, NewBalance: 70, Status: domain.WalletStatusActive}, cs.Wallets[0])
		assert.Equal(t, domain.WalletUpdate{WalletID: bobW.ID, Version: 1, NewBalance: 80, Status: domain.WalletStatusActive}, cs.Wallets[1])
		require.NotNil(t, cs.Transaction)
		assert.Equal(t, domain.TransactionTypeSend, cs.Transaction.Type)
		assert.Equal(t, domain.TransactionStatusCompleted, cs.Transaction.Status)
		assert.Equal(t, int64(30), cs.Transaction.Amount)
		assert.Equal(t, alice.ID, *cs.Transaction.From)
		assert.Equal(t, bob.ID, *cs.Transaction.To)
		assert.Equal(t, domain.RoleUser, cs.Transaction.InitiatorRole)
		assert.Nil(t, cs.Idempotency)
		return nil
	})
	d.events.EXPECT().PublishTransaction(gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.svc.Transfer(ctx, ports.TransferRequest{SenderID: alice.ID, RecipientIdentifier: "bob@example.com", Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, ports.Party{ID: alice.ID, NewBalance: 70}, res.From)
	assert.Equal(t, ports.Party{ID: bob.ID, NewBalance: 80}, res.To)
	assert.Equal(t, int64(30), res.Amount)

	// Conservation
	assert.Equal(t, aliceW.Balance+bobW.Balance, res.From.NewBalance+res.To.NewBalance)
}

func TestTransferService_Transfer_InsufficientFunds(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	alice, bob := newUser("alice"), newUser("bob")

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), alice.ID).Return(alice, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "bob@example.com").Return(bob, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*domain.Wallet{alice.ID: walletFor(alice, 10), bob.ID: walletFor(bob, 50)}, nil)
	// No Apply, no event.

	res, err := d.svc.Transfer(context.Background(), ports.TransferRequest{SenderID: alice.ID, RecipientIdentifier: "bob@example.com", Amount: 30})
	assert.Nil(t, res)
	assertAppError(t, err, apperror.CodeInsufficientFunds)
}

func TestTransferService_Transfer_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  ports.TransferRequest
	}{
		{"zero amount", ports.TransferRequest{SenderID: uuid.New(), RecipientIdentifier: "bob@example.com", Amount: 0}},
		{"negative amount", ports.TransferRequest{SenderID: uuid.New(), RecipientIdentifier: "bob@example.com", Amount: -5}},
		{"blank identifier", ports.TransferRequest{SenderID: uuid.New(), RecipientIdentifier: "   ", Amount: 5}},
		{"identifier too long", ports.TransferRequest{SenderID: uuid.New(), RecipientIdentifier: string(make([]byte, 300)) + "x", Amount: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupTransferService(t, TransferConfig{})
			// Store must not be touched.
			res, err := d.svc.Transfer(context.Background(), tt.req)
			assert.Nil(t, res)
			assertAppError(t, err, apperror.CodeValidation)
		})
	}
}

func TestTransferService_Transfer_RejectedStates(t *testing.T) {
	alice := newUser("alice")
	agent := newAgent("agent", true)
	blockedW := func(a *domain.Account, bal int64) *domain.Wallet {
		w := walletFor(a, bal)
		w.Status = domain.WalletStatusBlocked
		return w
	}

	tests := []struct {
		name      string
		sender    *domain.Account
		recipient *domain.Account
		wallets   func(s, r *domain.Account) map[uuid.UUID]*domain.Wallet
		code      string
	}{
		{
			name:      "sender missing",
			sender:    nil,
			recipient: newUser("bob"),
			code:      apperror.CodeNotFound,
		},
		{
			name:      "sender is agent",
			sender:    newAgent("sender", true),
			recipient: newUser("bob"),
			code:      apperror.CodeInvalidState,
		},
		{
			name:      "recipient missing",
			sender:    alice,
			recipient: nil,
			code:      apperror.CodeNotFound,
		},
		{
			name:      "recipient is agent",
			sender:    alice,
			recipient: agent,
			code:      apperror.CodeInvalidState,
		},
		{
			name:      "self transfer",
			sender:    alice,
			recipient: alice,
			code:      apperror.CodeInvalidState,
		},
		{
			name:      "recipient deleted",
			sender:    alice,
			recipient: &domain.Account{ID: uuid.New(), Role: domain.RoleUser, Status: domain.AccountStatusActive, Deleted: true},
			code:      apperror.CodeNotFound,
		},
		{
			name:      "sender wallet blocked",
			sender:    alice,
			recipient: newUser("bob"),
			wallets: func(s, r *domain.Account) map[uuid.UUID]*domain.Wallet {
				return map[uuid.UUID]*domain.Wallet{s.ID: blockedW(s, 100), r.ID: walletFor(r, 0)}
			},
			code: apperror.CodeInvalidState,
		},
		{
			name:      "sender wallet missing",
			sender:    alice,
			recipient: newUser("bob"),
			wallets: func(s, r *domain.Account) map[uuid.UUID]*domain.Wallet {
				return map[uuid.UUID]*domain.Wallet{r.ID: walletFor(r, 0)}
			},
			code: apperror.CodeNotFound,
		},
		{
			name:      "recipient wallet missing",
			sender:    alice,
			recipient: newUser("bob"),
			wallets: func(s, r *domain.Account) map[uuid.UUID]*domain.Wallet {
				return map[uuid.UUID]*domain.Wallet{s.ID: walletFor(s, 100)}
			},
			code: apperror.CodeNotFound,
		},
		{
			name:      "recipient wallet blocked",
			sender:    alice,
			recipient: newUser("bob"),
			wallets: func(s, r *domain.Account) map[uuid.UUID]*domain.Wallet {
				return map[uuid.UUID]*domain.Wallet{s.ID: walletFor(s, 100), r.ID: blockedW(r, 0)}
			},
			code: apperror.CodeInvalidState,
		},
		{
			name:      "recipient balance would overflow",
			sender:    alice,
			recipient: newUser("bob"),
			wallets: func(s, r *domain.Account) map[uuid.UUID]*domain.Wallet {
				return map[uuid.UUID]*domain.Wallet{s.ID: walletFor(s, 100), r.ID: walletFor(r, math.MaxInt64-5)}
			},
			code: apperror.CodeInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupTransferService(t, TransferConfig{})
			senderID := uuid.New()
			if tt.sender != nil {
				senderID = tt.sender.ID
			}

			d.runInTx(1)
			d.tx.EXPECT().GetAccountByID(gomock.Any(), senderID).Return(tt.sender, nil)
			if tt.sender != nil && tt.sender.Role == domain.RoleUser {
				d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "target").Return(tt.recipient, nil)
			}
			if tt.wallets != nil {
				d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).Return(tt.wallets(tt.sender, tt.recipient), nil)
			}

			res, err := d.svc.Transfer(context.Background(), ports.TransferRequest{SenderID: senderID, RecipientIdentifier: "target", Amount: 30})
			assert.Nil(t, res)
			assertAppError(t, err, tt.code)
		})
	}
}

// ==================== CashOut Tests ====================

func TestTransferService_CashOut_Success(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	user, agent := newUser("alice"), newAgent("agent", true)
	userW, agentW := walletFor(user, 100), walletFor(agent, 500)

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), user.ID).Return(user, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "01712345678").Return(agent, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), []uuid.UUID{user.ID, agent.ID}).
		Return(map[uuid.UUID]*domain.Wallet{user.ID: userW, agent.ID: agentW}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cs domain.ChangeSet) error {
		assert.Equal(t, int64(40), cs.Wallets[0].NewBalance)
		assert.Equal(t, int64(560), cs.Wallets[1].NewBalance)
		assert.Equal(t, domain.TransactionTypeCashOut, cs.Transaction.Type)
		assert.Equal(t, user.ID, *cs.Transaction.From)
		assert.Equal(t, agent.ID, *cs.Transaction.To)
		return nil
	})
	d.events.EXPECT().PublishTransaction(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	res, err := d.svc.CashOut(context.Background(), ports.CashOutRequest{UserID: user.ID, AgentIdentifier: "01712345678", Amount: 60})
	require.NoError(t, err, "publish failure must not fail a committed movement")
	assert.Equal(t, int64(40), res.From.NewBalance)
	assert.Equal(t, int64(560), res.To.NewBalance)
}

func TestTransferService_CashOut_AgentHasUserRole(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	user, notAgent := newUser("alice"), newUser("bob")

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), user.ID).Return(user, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "bob@example.com").Return(notAgent, nil)

	res, err := d.svc.CashOut(context.Background(), ports.CashOutRequest{UserID: user.ID, AgentIdentifier: "bob@example.com", Amount: 10})
	assert.Nil(t, res)
	assertAppError(t, err, apperror.CodeInvalidState)
	assert.Contains(t, err.Error(), "Invalid agent")
}

func TestTransferService_CashOut_UnapprovedAgent(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	user, agent := newUser("alice"), newAgent("agent", false)

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), user.ID).Return(user, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "agent@example.com").Return(agent, nil)

	_, err := d.svc.CashOut(context.Background(), ports.CashOutRequest{UserID: user.ID, AgentIdentifier: "agent@example.com", Amount: 10})
	assertAppError(t, err, apperror.CodeInvalidState)
}

func TestTransferService_CashOut_AgentWalletMissing(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	user, agent := newUser("alice"), newAgent("agent", true)

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), user.ID).Return(user, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "agent@example.com").Return(agent, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*domain.Wallet{user.ID: walletFor(user, 100)}, nil)

	_, err := d.svc.CashOut(context.Background(), ports.CashOutRequest{UserID: user.ID, AgentIdentifier: "agent@example.com", Amount: 10})
	assertAppError(t, err, apperror.CodeNotFound)
}

// ==================== CashIn Tests ====================

func TestTransferService_CashIn_FloatDebitsAgent(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	agent, user := newAgent("agent", true), newUser("alice")
	agentW, userW := walletFor(agent, 1000), walletFor(user, 50)

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), agent.ID).Return(agent, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "alice@example.com").Return(user, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), []uuid.UUID{user.ID, agent.ID}).
		Return(map[uuid.UUID]*domain.Wallet{agent.ID: agentW, user.ID: userW}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cs domain.ChangeSet) error {
		require.Len(t, cs.Wallets, 2)
		assert.Equal(t, userW.ID, cs.Wallets[0].WalletID)
		assert.Equal(t, int64(150), cs.Wallets[0].NewBalance)
		assert.Equal(t, agentW.ID, cs.Wallets[1].WalletID)
		assert.Equal(t, int64(900), cs.Wallets[1].NewBalance)
		assert.Equal(t, domain.TransactionTypeCashIn, cs.Transaction.Type)
		assert.Equal(t, domain.RoleAgent, cs.Transaction.InitiatorRole)
		return nil
	})
	d.events.EXPECT().PublishTransaction(gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.svc.CashIn(context.Background(), ports.CashInRequest{AgentID: agent.ID, UserIdentifier: "alice@example.com", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, ports.Party{ID: agent.ID, NewBalance: 900}, res.From)
	assert.Equal(t, ports.Party{ID: user.ID, NewBalance: 150}, res.To)
	require.NotNil(t, res.Wallet)
	assert.Equal(t, int64(150), res.Wallet.Balance)
	assert.Equal(t, userW.ID, res.Wallet.ID)
}

func TestTransferService_CashIn_MintLeavesAgentWallet(t *testing.T) {
	d := setupTransferService(t, TransferConfig{MintCashIn: true})
	agent, user := newAgent("agent", true), newUser("alice")
	userW := walletFor(user, 50)

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), agent.ID).Return(agent, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "alice@example.com").Return(user, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), []uuid.UUID{user.ID}).
		Return(map[uuid.UUID]*domain.Wallet{user.ID: userW}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cs domain.ChangeSet) error {
		require.Len(t, cs.Wallets, 1)
		assert.Equal(t, int64(150), cs.Wallets[0].NewBalance)
		assert.Equal(t, agent.ID, *cs.Transaction.From)
		return nil
	})
	d.events.EXPECT().PublishTransaction(gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.svc.CashIn(context.Background(), ports.CashInRequest{AgentID: agent.ID, UserIdentifier: "alice@example.com", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(150), res.To.NewBalance)
}

func TestTransferService_CashIn_UnapprovedAgent(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	agent := newAgent("agent", false)

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), agent.ID).Return(agent, nil)
	// Rejected before the counterparty is resolved or any wallet is locked.

	res, err := d.svc.CashIn(context.Background(), ports.CashInRequest{AgentID: agent.ID, UserIdentifier: "alice@example.com", Amount: 100})
	assert.Nil(t, res)
	assertAppError(t, err, apperror.CodeInvalidState)
}

func TestTransferService_CashIn_BelowMinimum(t *testing.T) {
	d := setupTransferService(t, TransferConfig{MinCashIn: 10})

	_, err := d.svc.CashIn(context.Background(), ports.CashInRequest{AgentID: uuid.New(), UserIdentifier: "alice@example.com", Amount: 9})
	assertAppError(t, err, apperror.CodeValidation)
}

func TestTransferService_CashIn_AgentFloatTooLow(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	agent, user := newAgent("agent", true), newUser("alice")

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), agent.ID).Return(agent, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "alice@example.com").Return(user, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*domain.Wallet{agent.ID: walletFor(agent, 20), user.ID: walletFor(user, 0)}, nil)

	_, err := d.svc.CashIn(context.Background(), ports.CashInRequest{AgentID: agent.ID, UserIdentifier: "alice@example.com", Amount: 100})
	assertAppError(t, err, apperror.CodeInsufficientFunds)
}

func TestTransferService_CashIn_TargetWalletBlocked(t *testing.T) {
	d := setupTransferService(t, TransferConfig{MintCashIn: true})
	agent, user := newAgent("agent", true), newUser("alice")
	userW := walletFor(user, 0)
	userW.Status = domain.WalletStatusBlocked

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), agent.ID).Return(agent, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "alice@example.com").Return(user, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).Return(map[uuid.UUID]*domain.Wallet{user.ID: userW}, nil)

	_, err := d.svc.CashIn(context.Background(), ports.CashInRequest{AgentID: agent.ID, UserIdentifier: "alice@example.com", Amount: 100})
	assertAppError(t, err, apperror.CodeInvalidState)
}

// ==================== Retry & Failure Tests ====================

func TestTransferService_RetriesConflictThenSucceeds(t *testing.T) {
	d := setupTransferService(t, TransferConfig{MaxAttempts: 3})
	alice, bob := newUser("alice"), newUser("bob")

	gomock.InOrder(
		d.store.EXPECT().Atomically(gomock.Any(), gomock.Any()).Return(fmt.Errorf("commit: %w", ports.ErrConflict)),
		d.store.EXPECT().Atomically(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, fn func(context.Context, ports.LedgerTx) error) error {
				return fn(ctx, d.tx)
			}),
	)
	d.metrics.EXPECT().IncConflictRetry("SEND").Times(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), alice.ID).Return(alice, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "bob").Return(bob, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*domain.Wallet{alice.ID: walletFor(alice, 100), bob.ID: walletFor(bob, 0)}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil)
	d.events.EXPECT().PublishTransaction(gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.svc.Transfer(context.Background(), ports.TransferRequest{SenderID: alice.ID, RecipientIdentifier: "bob", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(90), res.From.NewBalance)
}

func TestTransferService_ConflictExhaustsAttempts(t *testing.T) {
	d := setupTransferService(t, TransferConfig{MaxAttempts: 3})

	d.store.EXPECT().Atomically(gomock.Any(), gomock.Any()).Return(ports.ErrConflict).Times(3)
	d.metrics.EXPECT().IncConflictRetry("SEND").Times(2)

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{SenderID: uuid.New(), RecipientIdentifier: "bob", Amount: 10})
	assertAppError(t, err, apperror.CodeRetryable)
	assert.ErrorIs(t, err, ports.ErrConflict)
}

func TestTransferService_StoreFailureIsInternal(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})

	d.store.EXPECT().Atomically(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{SenderID: uuid.New(), RecipientIdentifier: "bob", Amount: 10})
	assertAppError(t, err, apperror.CodeInternal)
}

func TestTransferService_CanceledContext(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{SenderID: uuid.New(), RecipientIdentifier: "bob", Amount: 10})
	assertAppError(t, err, apperror.CodeCanceled)
}

func TestTransferService_ApplyErrorSurfacesInternal(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	alice, bob := newUser("alice"), newUser("bob")

	d.runInTx(1)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), alice.ID).Return(alice, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "bob").Return(bob, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*domain.Wallet{alice.ID: walletFor(alice, 100), bob.ID: walletFor(bob, 0)}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	// No publish after a failed unit of work.

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{SenderID: alice.ID, RecipientIdentifier: "bob", Amount: 10})
	assertAppError(t, err, apperror.CodeInternal)
}

// ==================== Idempotency Tests ====================

func TestTransferService_Idempotency_StoresRecordAndCaches(t *testing.T) {
	d := setupTransferService(t, TransferConfig{IdempotencyTTL: time.Hour})
	alice, bob := newUser("alice"), newUser("bob")
	key := domain.BuildIdempotencyKey(alice.ID, "req-1")

	d.idempCache.EXPECT().Get(gomock.Any(), key).Return(nil, nil)
	d.runInTx(1)
	d.tx.EXPECT().GetIdempotency(gomock.Any(), key).Return(nil, nil)
	d.tx.EXPECT().GetAccountByID(gomock.Any(), alice.ID).Return(alice, nil)
	d.resolver.EXPECT().Resolve(gomock.Any(), d.tx, "bob").Return(bob, nil)
	d.tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*domain.Wallet{alice.ID: walletFor(alice, 100), bob.ID: walletFor(bob, 0)}, nil)
	d.tx.EXPECT().Apply(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cs domain.ChangeSet) error {
		require.NotNil(t, cs.Idempotency)
		assert.Equal(t, key, cs.Idempotency.Key)
		assert.Equal(t, cs.Transaction.ID, cs.Idempotency.TransactionID)
		assert.NotEmpty(t, cs.Idempotency.ResponseJSON)
		return nil
	})
	d.idempCache.EXPECT().Set(gomock.Any(), key, gomock.Any(), time.Hour).Return(nil)
	d.events.EXPECT().PublishTransaction(gomock.Any(), gomock.Any()).Return(nil)

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderID: alice.ID, RecipientIdentifier: "bob", Amount: 10, IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
}

func TestTransferService_Idempotency_RedisHit(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	senderID := uuid.New()
	key := domain.BuildIdempotencyKey(senderID, "req-1")

	stored := &ports.TransferResult{
		From:        ports.Party{ID: senderID, NewBalance: 90},
		Amount:      10,
		Transaction: &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeSend, Amount: 10, From: &senderID, Status: domain.TransactionStatusCompleted},
	}
	data, _ := json.Marshal(stored)
	d.idempCache.EXPECT().Get(gomock.Any(), key).Return(data, nil)

	res, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderID: senderID, RecipientIdentifier: "bob", Amount: 10, IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, stored.Transaction.ID, res.Transaction.ID)
	assert.Equal(t, int64(90), res.From.NewBalance)
}

func TestTransferService_Idempotency_DBHitSkipsMutation(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	senderID := uuid.New()
	key := domain.BuildIdempotencyKey(senderID, "req-1")

	stored := &ports.TransferResult{
		Amount:      10,
		Transaction: &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeSend, Amount: 10, From: &senderID, Status: domain.TransactionStatusCompleted},
	}
	data, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(gomock.Any(), key).Return(nil, errors.New("redis down"))
	d.runInTx(1)
	d.tx.EXPECT().GetIdempotency(gomock.Any(), key).Return(&domain.IdempotencyRecord{Key: key, ResponseJSON: data}, nil)

	res, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderID: senderID, RecipientIdentifier: "bob", Amount: 10, IdempotencyKey: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, stored.Transaction.ID, res.Transaction.ID)
}

func TestTransferService_Idempotency_KeyReusedForDifferentRequest(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	senderID := uuid.New()
	key := domain.BuildIdempotencyKey(senderID, "req-1")

	stored := &ports.TransferResult{
		Amount:      10,
		Transaction: &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeSend, Amount: 10, From: &senderID, Status: domain.TransactionStatusCompleted},
	}
	data, _ := json.Marshal(stored)
	d.idempCache.EXPECT().Get(gomock.Any(), key).Return(data, nil)

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderID: senderID, RecipientIdentifier: "bob", Amount: 99, IdempotencyKey: "req-1",
	})
	assertAppError(t, err, apperror.CodeValidation)
}

func TestTransferService_Idempotency_IncompleteStoredResult(t *testing.T) {
	d := setupTransferService(t, TransferConfig{})
	senderID := uuid.New()
	key := domain.BuildIdempotencyKey(senderID, "req-1")

	// a pending record belonging to someone else is never replayed
	other := uuid.New()
	stored := &ports.TransferResult{
		Amount:      10,
		Transaction: &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeSend, Amount: 10, From: &other, Status: domain.TransactionStatusPending},
	}
	data, _ := json.Marshal(stored)
	d.idempCache.EXPECT().Get(gomock.Any(), key).Return(data, nil)

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderID: senderID, RecipientIdentifier: "bob", Amount: 10, IdempotencyKey: "req-1",
	})
	assertAppError(t, err, apperror.CodeInternal)
}

func TestTransferService_NilOptionalCollaborators(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockLedgerStore(ctrl)
	tx := mocks.NewMockLedgerTx(ctrl)
	resolver := mocks.NewMockIdentityResolver(ctrl)
	svc := NewTransferService(store, resolver, nil, nil, nil, TransferConfig{MinCashIn: 10}, zerolog.Nop())

	alice, bob := newUser("alice"), newUser("bob")
	store.EXPECT().Atomically(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, ports.LedgerTx) error) error {
			return fn(ctx, tx)
		})
	tx.EXPECT().GetIdempotency(gomock.Any(), gomock.Any()).Return(nil, nil)
	tx.EXPECT().GetAccountByID(gomock.Any(), alice.ID).Return(alice, nil)
	resolver.EXPECT().Resolve(gomock.Any(), tx, "bob").Return(bob, nil)
	tx.EXPECT().LockWallets(gomock.Any(), gomock.Any()).
		Return(map[uuid.UUID]*domain.Wallet{alice.ID: walletFor(alice, 100), bob.ID: walletFor(bob, 0)}, nil)
	tx.EXPECT().Apply(gomock.Any(), gomock.Any()).Return(nil)

	_, err := svc.Transfer(context.Background(), ports.TransferRequest{
		SenderID: alice.ID, RecipientIdentifier: "bob", Amount: 10, IdempotencyKey: "k",
	})
	require.NoError(t, err)
}

func TestTransferService_MetricsOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mocks.NewMockTransferMetrics(ctrl)
	store := mocks.NewMockLedgerStore(ctrl)
	svc := NewTransferService(store, mocks.NewMockIdentityResolver(ctrl), nil, nil, metrics, TransferConfig{}, zerolog.Nop())

	store.EXPECT().Atomically(gomock.Any(), gomock.Any()).Return(errors.New("boom"))
	metrics.EXPECT().ObserveTransfer("CASH_OUT", apperror.CodeInternal, gomock.Any())

	_, err := svc.CashOut(context.Background(), ports.CashOutRequest{UserID: uuid.New(), AgentIdentifier: "agent", Amount: 10})
	require.Error(t, err)
}
