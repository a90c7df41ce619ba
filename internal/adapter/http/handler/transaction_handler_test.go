package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func getContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestTransactionsMine_AppliesFilters(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewTransactionHandler(mockReporting)

	accountID := uuid.New()
	txns := []domain.Transaction{{ID: uuid.New(), Type: domain.TransactionTypeCashOut, Amount: 20, Status: domain.TransactionStatusCompleted}}

	mockReporting.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			require.NotNil(t, p.AccountID)
			assert.Equal(t, accountID, *p.AccountID)
			require.NotNil(t, p.Type)
			assert.Equal(t, domain.TransactionTypeCashOut, *p.Type)
			require.NotNil(t, p.From)
			assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *p.From)
			require.NotNil(t, p.To)
			assert.Equal(t, time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC), *p.To)
			require.NotNil(t, p.MinAmount)
			assert.Equal(t, int64(10), *p.MinAmount)
			assert.Equal(t, 2, p.Page)
			assert.Equal(t, 5, p.PageSize)
			return txns, 6, nil
		})

	c, w := getContext("/api/v1/transactions/me?type=CASH_OUT&from=2026-01-01&to=2026-01-31&minAmount=10&page=2&limit=5")
	c.Set(middleware.CtxAccountID, accountID)

	h.Mine(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []domain.Transaction `json:"data"`
		Meta struct {
			Page       int   `json:"page"`
			Limit      int   `json:"limit"`
			Total      int64 `json:"total"`
			TotalPages int64 `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, int64(6), resp.Meta.Total)
	assert.Equal(t, int64(2), resp.Meta.TotalPages)
}

func TestTransactionsMine_EmptyIsArray(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewTransactionHandler(mockReporting)

	mockReporting.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).Return(nil, int64(0), nil)

	c, w := getContext("/api/v1/transactions/me")
	c.Set(middleware.CtxAccountID, uuid.New())

	h.Mine(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestTransactionsList_InvalidQuery(t *testing.T) {
	targets := []string{
		"/api/v1/transactions?type=REFUND",
		"/api/v1/transactions?limit=1000",
		"/api/v1/transactions?from=yesterday",
		"/api/v1/transactions?accountId=not-a-uuid",
	}

	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			h := NewTransactionHandler(mocks.NewMockReportingService(ctrl))

			c, w := getContext(target)
			h.List(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestTransactionsList_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewTransactionHandler(mockReporting)

	mockReporting.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).Return(nil, int64(0), errors.New("db down"))

	c, w := getContext("/api/v1/transactions")
	h.List(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTransactionsSummary(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockReporting := mocks.NewMockReportingService(ctrl)
	h := NewTransactionHandler(mockReporting)

	mockReporting.EXPECT().Summarize(gomock.Any(), gomock.Any()).Return([]ports.TransactionSummary{
		{Type: domain.TransactionTypeSend, Count: 3, Volume: 90},
	}, nil)

	c, w := getContext("/api/v1/transactions/summary")
	h.Summary(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []ports.TransactionSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []ports.TransactionSummary{{Type: domain.TransactionTypeSend, Count: 3, Volume: 90}}, resp.Data)
}

func TestParseTimeBound(t *testing.T) {
	got, err := parseTimeBound("2026-03-04T05:06:07Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), *got)

	got, err = parseTimeBound("2026-03-04", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseTimeBound("", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseTimeBound("03/04/2026", false)
	assert.Error(t, err)
}
