package service

import (
	"context"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(txRepo ports.TransactionRepository, walletRepo ports.WalletRepository) ports.ReportingService {
	return &reportingService{
		txRepo:     txRepo,
		walletRepo: walletRepo,
	}
}

// GetWallet returns the wallet owned by ownerID.
func (s *reportingService) GetWallet(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return wallet, nil
}

// ListWallets returns a paginated list of wallets.
func (s *reportingService) ListWallets(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, 0, apperror.Validation("Invalid wallet status filter")
	}
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	wallets, total, err := s.walletRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return wallets, total, nil
}

// ListTransactions returns a paginated list of transactions, newest first.
func (s *reportingService) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if err := validateTransactionFilter(params); err != nil {
		return nil, 0, err
	}
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return txns, total, nil
}

// Summarize returns count and volume of completed transactions per type.
func (s *reportingService) Summarize(ctx context.Context, params ports.TransactionListParams) ([]ports.TransactionSummary, error) {
	if err := validateTransactionFilter(params); err != nil {
		return nil, err
	}
	summary, err := s.txRepo.Summarize(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return summary, nil
}

func validateTransactionFilter(p ports.TransactionListParams) error {
	if p.Type != nil && !p.Type.Valid() {
		return apperror.Validation("Invalid transaction type filter")
	}
	if p.Status != nil && !p.Status.Valid() {
		return apperror.Validation("Invalid transaction status filter")
	}
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return apperror.Validation("from must not be after to")
	}
	if p.MinAmount != nil && p.MaxAmount != nil && *p.MinAmount > *p.MaxAmount {
		return apperror.Validation("minAmount must not exceed maxAmount")
	}
	return nil
}

// normalizePage applies the default page size and clamps it to maxPageSize.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
