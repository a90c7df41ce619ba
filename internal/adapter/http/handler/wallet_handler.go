package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey makes a money movement safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// WalletHandler handles money movements and wallet queries.
type WalletHandler struct {
	transferSvc  ports.TransferService
	reportingSvc ports.ReportingService
	accountSvc   ports.AccountService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(transferSvc ports.TransferService, reportingSvc ports.ReportingService, accountSvc ports.AccountService) *WalletHandler {
	return &WalletHandler{
		transferSvc:  transferSvc,
		reportingSvc: reportingSvc,
		accountSvc:   accountSvc,
	}
}

// CashIn handles POST /api/v1/wallets/cash-in.
func (h *WalletHandler) CashIn(c *gin.Context) {
	agentID, key, ok := moneyRequestContext(c)
	if !ok {
		return
	}

	var req dto.CashInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.CashIn(c.Request.Context(), ports.CashInRequest{
		AgentID:        agentID,
		UserIdentifier: req.UserIdentifier,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// CashOut handles POST /api/v1/wallets/cash-out.
func (h *WalletHandler) CashOut(c *gin.Context) {
	userID, key, ok := moneyRequestContext(c)
	if !ok {
		return
	}

	var req dto.CashOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.CashOut(c.Request.Context(), ports.CashOutRequest{
		UserID:          userID,
		AgentIdentifier: req.AgentIdentifier,
		Amount:          req.Amount,
		IdempotencyKey:  key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Send handles POST /api/v1/wallets/send.
func (h *WalletHandler) Send(c *gin.Context) {
	senderID, key, ok := moneyRequestContext(c)
	if !ok {
		return
	}

	var req dto.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.transferSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		SenderID:            senderID,
		RecipientIdentifier: req.RecipientIdentifier,
		Amount:              req.Amount,
		IdempotencyKey:      key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Me handles GET /api/v1/wallets/me.
func (h *WalletHandler) Me(c *gin.Context) {
	accountID, ok := middleware.AccountIDFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	wallet, err := h.reportingSvc.GetWallet(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// List handles GET /api/v1/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	var q dto.WalletQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	page, limit := q.Values()

	params := ports.WalletListParams{Page: page, PageSize: limit}
	if q.Status != "" {
		status := domain.WalletStatus(q.Status)
		params.Status = &status
	}

	wallets, total, err := h.reportingSvc.ListWallets(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, wallets, page, limit, total)
}

// SetStatus handles PATCH /api/v1/wallets/:ownerId.
func (h *WalletHandler) SetStatus(c *gin.Context) {
	ownerID, err := uuid.Parse(c.Param("ownerId"))
	if err != nil {
		response.Error(c, apperror.Validation("Invalid owner id"))
		return
	}

	var req dto.WalletStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wallet, err := h.accountSvc.SetWalletStatus(c.Request.Context(), ownerID, domain.WalletStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// moneyRequestContext extracts the caller and the optional Idempotency-Key.
// It writes the error response itself and returns ok=false on failure.
func moneyRequestContext(c *gin.Context) (uuid.UUID, string, bool) {
	accountID, ok := middleware.AccountIDFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, "", false
	}
	key := c.GetHeader(HeaderIdempotencyKey)
	if !dto.ValidIdempotencyKey(key) {
		response.Error(c, apperror.Validation("Invalid Idempotency-Key header"))
		return uuid.Nil, "", false
	}
	return accountID, key, true
}
