package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	maxIdentifierLen      = 254
)

// TransferConfig tunes the transfer engine.
type TransferConfig struct {
	MinCashIn int64
	// MintCashIn makes cash-in single entry: the agent wallet is neither
	// locked nor debited and the agent settles out of band.
	MintCashIn     bool
	MaxAttempts    int
	RetryBackoff   time.Duration
	IdempotencyTTL time.Duration
}

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	store      ports.LedgerStore
	resolver   ports.IdentityResolver
	idempCache ports.IdempotencyCache // optional
	events     ports.EventPublisher   // optional
	metrics    ports.TransferMetrics  // optional
	cfg        TransferConfig
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
// idempCache, events and metrics may be nil.
func NewTransferService(
	store ports.LedgerStore,
	resolver ports.IdentityResolver,
	idempCache ports.IdempotencyCache,
	events ports.EventPublisher,
	metrics ports.TransferMetrics,
	cfg TransferConfig,
	log zerolog.Logger,
) *TransferServiceImpl {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &TransferServiceImpl{
		store:      store,
		resolver:   resolver,
		idempCache: idempCache,
		events:     events,
		metrics:    metrics,
		cfg:        cfg,
		log:        log,
	}
}

// movement identifies one requested money movement for idempotency,
// metrics and logging.
type movement struct {
	txType         domain.TransactionType
	initiatorID    uuid.UUID
	amount         int64
	idempotencyKey string
}

// planFunc runs inside the unit of work. It performs every read and check and
// returns the result together with the change set that produces it.
type planFunc func(ctx context.Context, tx ports.LedgerTx) (*ports.TransferResult, domain.ChangeSet, error)

// CashIn credits a user's wallet on behalf of an approved agent.
func (s *TransferServiceImpl) CashIn(ctx context.Context, req ports.CashInRequest) (*ports.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Amount < s.cfg.MinCashIn {
		return nil, apperror.Validation(fmt.Sprintf("Minimum cash-in amount is %d", s.cfg.MinCashIn))
	}
	if err := validateIdentifier(req.UserIdentifier); err != nil {
		return nil, err
	}

	mv := movement{
		txType:         domain.TransactionTypeCashIn,
		initiatorID:    req.AgentID,
		amount:         req.Amount,
		idempotencyKey: req.IdempotencyKey,
	}
	return s.execute(ctx, mv, func(ctx context.Context, tx ports.LedgerTx) (*ports.TransferResult, domain.ChangeSet, error) {
		agent, err := s.initiator(ctx, tx, req.AgentID, domain.RoleAgent)
		if err != nil {
			return nil, domain.ChangeSet{}, err
		}
		if !agent.IsApprovedAgent() {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Agent is not approved")
		}

		user, err := s.counterparty(ctx, tx, req.UserIdentifier, "User")
		if err != nil {
			return nil, domain.ChangeSet{}, err
		}
		if user.ID == agent.ID {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Cannot cash in to your own account")
		}
		if user.Role != domain.RoleUser {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Cash-in target must be a user")
		}
		if !user.IsActive() {
			return nil, domain.ChangeSet{}, apperror.InvalidState("User account is not active")
		}

		owners := []uuid.UUID{user.ID}
		if !s.cfg.MintCashIn {
			owners = append(owners, agent.ID)
		}
		wallets, err := tx.LockWallets(ctx, owners)
		if err != nil {
			return nil, domain.ChangeSet{}, fmt.Errorf("lock wallets: %w", err)
		}

		userWallet := wallets[user.ID]
		if userWallet == nil {
			return nil, domain.ChangeSet{}, apperror.ErrNotFound("Wallet")
		}
		if !userWallet.IsActive() {
			return nil, domain.ChangeSet{}, apperror.InvalidState("User's wallet is blocked")
		}
		userUpdate, err := credit(userWallet, req.Amount)
		if err != nil {
			return nil, domain.ChangeSet{}, err
		}

		updates := []domain.WalletUpdate{userUpdate}
		var agentBalance int64
		if !s.cfg.MintCashIn {
			agentWallet := wallets[agent.ID]
			if agentWallet == nil {
				return nil, domain.ChangeSet{}, apperror.ErrNotFound("Agent wallet")
			}
			if !agentWallet.IsActive() {
				return nil, domain.ChangeSet{}, apperror.InvalidState("Agent's wallet is blocked")
			}
			if agentWallet.Balance < req.Amount {
				return nil, domain.ChangeSet{}, apperror.ErrInsufficientFunds()
			}
			debit := domain.Debit(agentWallet, req.Amount)
			updates = append(updates, debit)
			agentBalance = debit.NewBalance
		}

		txn := newTransaction(domain.TransactionTypeCashIn, agent, agent.ID, user.ID, req.Amount)
		credited := *userWallet
		credited.Balance = userUpdate.NewBalance
		credited.Version++
		credited.UpdatedAt = txn.CreatedAt

		res := &ports.TransferResult{
			From:        ports.Party{ID: agent.ID, NewBalance: agentBalance},
			To:          ports.Party{ID: user.ID, NewBalance: userUpdate.NewBalance},
			Amount:      req.Amount,
			Wallet:      &credited,
			Transaction: txn,
		}
		return res, domain.ChangeSet{Wallets: updates, Transaction: txn}, nil
	})
}

// CashOut moves funds from a user's wallet to an approved agent's wallet.
func (s *TransferServiceImpl) CashOut(ctx context.Context, req ports.CashOutRequest) (*ports.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := validateIdentifier(req.AgentIdentifier); err != nil {
		return nil, err
	}

	mv := movement{
		txType:         domain.TransactionTypeCashOut,
		initiatorID:    req.UserID,
		amount:         req.Amount,
		idempotencyKey: req.IdempotencyKey,
	}
	return s.execute(ctx, mv, func(ctx context.Context, tx ports.LedgerTx) (*ports.TransferResult, domain.ChangeSet, error) {
		user, err := s.initiator(ctx, tx, req.UserID, domain.RoleUser)
		if err != nil {
			return nil, domain.ChangeSet{}, err
		}

		agent, err := s.counterparty(ctx, tx, req.AgentIdentifier, "Agent")
		if err != nil {
			return nil, domain.ChangeSet{}, err
		}
		if agent.Role != domain.RoleAgent {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Invalid agent")
		}
		if !agent.IsApprovedAgent() {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Agent is not approved")
		}
		if !agent.IsActive() {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Agent account is not active")
		}

		wallets, err := tx.LockWallets(ctx, []uuid.UUID{user.ID, agent.ID})
		if err != nil {
			return nil, domain.ChangeSet{}, fmt.Errorf("lock wallets: %w", err)
		}
		return s.move(domain.TransactionTypeCashOut, user, agent, wallets, req.Amount, "Agent")
	})
}

// Transfer moves funds between two users.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := validateIdentifier(req.RecipientIdentifier); err != nil {
		return nil, err
	}

	mv := movement{
		txType:         domain.TransactionTypeSend,
		initiatorID:    req.SenderID,
		amount:         req.Amount,
		idempotencyKey: req.IdempotencyKey,
	}
	return s.execute(ctx, mv, func(ctx context.Context, tx ports.LedgerTx) (*ports.TransferResult, domain.ChangeSet, error) {
		sender, err := s.initiator(ctx, tx, req.SenderID, domain.RoleUser)
		if err != nil {
			return nil, domain.ChangeSet{}, err
		}

		recipient, err := s.counterparty(ctx, tx, req.RecipientIdentifier, "Recipient")
		if err != nil {
			return nil, domain.ChangeSet{}, err
		}
		if recipient.ID == sender.ID {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Cannot send money to yourself")
		}
		if recipient.Role != domain.RoleUser {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Recipient must be a user")
		}
		if !recipient.IsActive() {
			return nil, domain.ChangeSet{}, apperror.InvalidState("Recipient account is not active")
		}

		wallets, err := tx.LockWallets(ctx, []uuid.UUID{sender.ID, recipient.ID})
		if err != nil {
			return nil, domain.ChangeSet{}, fmt.Errorf("lock wallets: %w", err)
		}
		return s.move(domain.TransactionTypeSend, sender, recipient, wallets, req.Amount, "Recipient")
	})
}

// move is the double-entry tail shared by CashOut and Transfer. Checks run in
// order: payer wallet exists and is active, payer balance covers amount,
// payee wallet exists and is active.
func (s *TransferServiceImpl) move(
	txType domain.TransactionType,
	payer, payee *domain.Account,
	wallets map[uuid.UUID]*domain.Wallet,
	amount int64,
	payeeLabel string,
) (*ports.TransferResult, domain.ChangeSet, error) {
	payerWallet := wallets[payer.ID]
	if payerWallet == nil {
		return nil, domain.ChangeSet{}, apperror.ErrNotFound("Wallet")
	}
	if !payerWallet.IsActive() {
		return nil, domain.ChangeSet{}, apperror.InvalidState("Your wallet is blocked")
	}
	if payerWallet.Balance < amount {
		return nil, domain.ChangeSet{}, apperror.ErrInsufficientFunds()
	}

	payeeWallet := wallets[payee.ID]
	if payeeWallet == nil {
		return nil, domain.ChangeSet{}, apperror.ErrNotFound(payeeLabel + " wallet")
	}
	if !payeeWallet.IsActive() {
		return nil, domain.ChangeSet{}, apperror.InvalidState(payeeLabel + "'s wallet is blocked")
	}

	debit := domain.Debit(payerWallet, amount)
	creditUpdate, err := credit(payeeWallet, amount)
	if err != nil {
		return nil, domain.ChangeSet{}, err
	}

	txn := newTransaction(txType, payer, payer.ID, payee.ID, amount)
	res := &ports.TransferResult{
		From:        ports.Party{ID: payer.ID, NewBalance: debit.NewBalance},
		To:          ports.Party{ID: payee.ID, NewBalance: creditUpdate.NewBalance},
		Amount:      amount,
		Transaction: txn,
	}
	return res, domain.ChangeSet{Wallets: []domain.WalletUpdate{debit, creditUpdate}, Transaction: txn}, nil
}

// initiator loads the authenticated caller and checks its role.
func (s *TransferServiceImpl) initiator(ctx context.Context, tx ports.LedgerTx, id uuid.UUID, role domain.Role) (*domain.Account, error) {
	label := roleLabel(role)
	acct, err := tx.GetAccountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", strings.ToLower(label), err)
	}
	if acct == nil || acct.Deleted {
		return nil, apperror.ErrNotFound(label)
	}
	if acct.Role != role {
		return nil, apperror.InvalidState(fmt.Sprintf("Only %s accounts can perform this operation", role))
	}
	if !acct.IsActive() {
		return nil, apperror.InvalidState(label + " account is not active")
	}
	return acct, nil
}

// counterparty resolves identifier inside the unit of work.
func (s *TransferServiceImpl) counterparty(ctx context.Context, tx ports.LedgerTx, identifier, label string) (*domain.Account, error) {
	acct, err := s.resolver.Resolve(ctx, tx, identifier)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", strings.ToLower(label), err)
	}
	if acct == nil || acct.Deleted {
		return nil, apperror.ErrNotFound(label)
	}
	return acct, nil
}

// execute runs plan with idempotency and bounded conflict retries, then does
// best-effort post-commit work.
func (s *TransferServiceImpl) execute(ctx context.Context, mv movement, plan planFunc) (*ports.TransferResult, error) {
	start := time.Now()
	res, err := s.run(ctx, mv, plan)

	outcome := "ok"
	if err != nil {
		outcome = apperror.CodeOf(err)
		if outcome == apperror.CodeInternal {
			s.log.Error().Err(err).
				Str("type", string(mv.txType)).
				Str("initiator_id", mv.initiatorID.String()).
				Msg("transfer failed")
		} else {
			s.log.Debug().Err(err).
				Str("type", string(mv.txType)).
				Str("initiator_id", mv.initiatorID.String()).
				Msg("transfer rejected")
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveTransfer(string(mv.txType), outcome, time.Since(start))
	}
	return res, err
}

func (s *TransferServiceImpl) run(ctx context.Context, mv movement, plan planFunc) (*ports.TransferResult, error) {
	var idempKey string
	if mv.idempotencyKey != "" {
		idempKey = domain.BuildIdempotencyKey(mv.initiatorID, mv.idempotencyKey)

		// Layer 1: Redis idempotency check
		if s.idempCache != nil {
			cached, err := s.idempCache.Get(ctx, idempKey)
			if err != nil {
				s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
			}
			if cached != nil {
				return replay(cached, mv)
			}
		}
	}

	var (
		result   *ports.TransferResult
		respJSON []byte
		replayed bool
	)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperror.ErrCanceled(err)
		}

		result, respJSON, replayed = nil, nil, false
		err := s.store.Atomically(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
			// Layer 2: idempotency record committed with an earlier movement
			if idempKey != "" {
				rec, err := tx.GetIdempotency(ctx, idempKey)
				if err != nil {
					return fmt.Errorf("idempotency lookup: %w", err)
				}
				if rec != nil {
					r, err := replay(rec.ResponseJSON, mv)
					if err != nil {
						return err
					}
					result, replayed = r, true
					return nil
				}
			}

			r, cs, err := plan(ctx, tx)
			if err != nil {
				return err
			}
			if idempKey != "" {
				respJSON, err = json.Marshal(r)
				if err != nil {
					return fmt.Errorf("marshal result: %w", err)
				}
				cs.Idempotency = &domain.IdempotencyRecord{
					Key:           idempKey,
					TransactionID: r.Transaction.ID,
					ResponseJSON:  respJSON,
					CreatedAt:     r.Transaction.CreatedAt,
				}
			}
			if err := cs.Validate(); err != nil {
				return fmt.Errorf("invalid change set: %w", err)
			}
			if err := tx.Apply(ctx, cs); err != nil {
				return fmt.Errorf("apply change set: %w", err)
			}
			result = r
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ports.ErrConflict) || attempt >= s.cfg.MaxAttempts {
			return nil, classify(ctx, err)
		}

		if s.metrics != nil {
			s.metrics.IncConflictRetry(string(mv.txType))
		}
		s.log.Debug().Err(err).
			Str("type", string(mv.txType)).
			Int("attempt", attempt).
			Msg("write conflict, retrying")
		if err := sleepCtx(ctx, s.backoff(attempt)); err != nil {
			return nil, apperror.ErrCanceled(err)
		}
	}

	if replayed {
		return result, nil
	}

	s.afterCommit(ctx, idempKey, respJSON, result)
	return result, nil
}

// afterCommit never fails the request: the movement is already durable.
func (s *TransferServiceImpl) afterCommit(ctx context.Context, idempKey string, respJSON []byte, res *ports.TransferResult) {
	if idempKey != "" && s.idempCache != nil {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, s.cfg.IdempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}
	if s.events != nil {
		if err := s.events.PublishTransaction(ctx, res.Transaction); err != nil {
			s.log.Warn().Err(err).Str("tx_id", res.Transaction.ID.String()).Msg("failed to publish transaction event")
		}
	}

	s.log.Info().
		Str("tx_id", res.Transaction.ID.String()).
		Str("type", string(res.Transaction.Type)).
		Str("from", res.From.ID.String()).
		Str("to", res.To.ID.String()).
		Int64("amount", res.Amount).
		Msg("transfer committed")
}

func (s *TransferServiceImpl) backoff(attempt int) time.Duration {
	base := s.cfg.RetryBackoff
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	return d + rand.N(base)
}

// replay decodes a stored result and checks that it answers the same request.
func replay(data []byte, mv movement) (*ports.TransferResult, error) {
	var res ports.TransferResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal stored result: %w", err))
	}
	if res.Transaction == nil || !res.Transaction.IsTerminal() || !res.Transaction.Involves(mv.initiatorID) {
		return nil, apperror.InternalError(errors.New("stored idempotent result is incomplete"))
	}
	if res.Transaction.Type != mv.txType || res.Amount != mv.amount {
		return nil, apperror.Validation("Idempotency key was already used for a different request")
	}
	return &res, nil
}

// classify maps whatever escaped the unit of work onto the public taxonomy.
func classify(ctx context.Context, err error) error {
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ports.ErrConflict):
		return apperror.ErrRetryable(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return apperror.ErrCanceled(err)
	default:
		return apperror.InternalError(err)
	}
}

func validateIdentifier(identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return apperror.Validation("Identifier is required")
	}
	if len(identifier) > maxIdentifierLen {
		return apperror.Validation("Identifier is too long")
	}
	return nil
}

// credit guards against int64 overflow on the receiving wallet.
func credit(w *domain.Wallet, amount int64) (domain.WalletUpdate, error) {
	if w.Balance > math.MaxInt64-amount {
		return domain.WalletUpdate{}, apperror.InvalidState("Wallet balance limit exceeded")
	}
	return domain.Credit(w, amount), nil
}

func newTransaction(txType domain.TransactionType, initiator *domain.Account, from, to uuid.UUID, amount int64) *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.New(),
		Type:          txType,
		Amount:        amount,
		From:          &from,
		To:            &to,
		Status:        domain.TransactionStatusCompleted,
		InitiatorRole: initiator.Role,
		InitiatedBy:   initiator.ID,
		CreatedAt:     time.Now().UTC(),
	}
}

func roleLabel(role domain.Role) string {
	switch role {
	case domain.RoleAgent:
		return "Agent"
	case domain.RoleAdmin:
		return "Admin"
	default:
		return "User"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
