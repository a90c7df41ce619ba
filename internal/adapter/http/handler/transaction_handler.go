package handler

import (
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// TransactionHandler handles transaction history endpoints.
type TransactionHandler struct {
	reportingSvc ports.ReportingService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(reportingSvc ports.ReportingService) *TransactionHandler {
	return &TransactionHandler{reportingSvc: reportingSvc}
}

// Mine handles GET /api/v1/transactions/me.
func (h *TransactionHandler) Mine(c *gin.Context) {
	accountID, ok := middleware.AccountIDFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	h.list(c, &accountID)
}

// List handles GET /api/v1/transactions.
func (h *TransactionHandler) List(c *gin.Context) {
	var accountID *uuid.UUID
	if raw := c.Query("accountId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("Invalid accountId"))
			return
		}
		accountID = &id
	}
	h.list(c, accountID)
}

func (h *TransactionHandler) list(c *gin.Context, accountID *uuid.UUID) {
	params, q, err := bindTransactionQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	params.AccountID = accountID
	page, limit := q.Values()
	params.Page, params.PageSize = page, limit

	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	response.Page(c, txns, page, limit, total)
}

// Summary handles GET /api/v1/transactions/summary.
func (h *TransactionHandler) Summary(c *gin.Context) {
	params, _, err := bindTransactionQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	summary, err := h.reportingSvc.Summarize(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	if summary == nil {
		summary = []ports.TransactionSummary{}
	}
	response.OK(c, summary)
}

func bindTransactionQuery(c *gin.Context) (ports.TransactionListParams, dto.TransactionQuery, error) {
	var q dto.TransactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return ports.TransactionListParams{}, q, apperror.Validation(err.Error())
	}

	params := ports.TransactionListParams{
		MinAmount: q.MinAmount,
		MaxAmount: q.MaxAmount,
	}
	if q.Type != "" {
		txType := domain.TransactionType(q.Type)
		params.Type = &txType
	}
	if q.Status != "" {
		status := domain.TransactionStatus(q.Status)
		params.Status = &status
	}

	var err error
	if params.From, err = parseTimeBound(q.From, false); err != nil {
		return params, q, apperror.Validation("Invalid from: " + err.Error())
	}
	if params.To, err = parseTimeBound(q.To, true); err != nil {
		return params, q, apperror.Validation("Invalid to: " + err.Error())
	}
	return params, q, nil
}

// parseTimeBound accepts RFC 3339 or a plain date. A plain upper bound
// covers the whole day.
func parseTimeBound(raw string, upper bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
