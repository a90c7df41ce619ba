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

// UserHandler handles account endpoints.
type UserHandler struct {
	accountSvc ports.AccountService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(accountSvc ports.AccountService) *UserHandler {
	return &UserHandler{accountSvc: accountSvc}
}

// Me handles GET /api/v1/users/me.
func (h *UserHandler) Me(c *gin.Context) {
	accountID, ok := middleware.AccountIDFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	account, err := h.accountSvc.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toAccountResponse(account))
}

// UpdateMe handles PATCH /api/v1/users/me.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	accountID, ok := middleware.AccountIDFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	account, err := h.accountSvc.UpdateProfile(c.Request.Context(), accountID, ports.ProfileUpdate{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toAccountResponse(account))
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(c *gin.Context) {
	var q dto.AccountQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	page, limit := q.Values()

	params := ports.AccountListParams{Page: page, PageSize: limit}
	if q.Role != "" {
		role := domain.Role(q.Role)
		params.Role = &role
	}

	accounts, total, err := h.accountSvc.ListAccounts(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AccountResponse, 0, len(accounts))
	for i := range accounts {
		items = append(items, toAccountResponse(&accounts[i]))
	}
	response.Page(c, items, page, limit, total)
}

// SetAgentApproval handles PATCH /api/v1/users/agents/:id.
func (h *UserHandler) SetAgentApproval(c *gin.Context) {
	agentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("Invalid agent id"))
		return
	}

	var req dto.AgentApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	account, err := h.accountSvc.SetAgentApproval(c.Request.Context(), agentID, *req.Approved)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toAccountResponse(account))
}
