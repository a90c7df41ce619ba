package middleware

import (
	"encoding/json"
	"net/http"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write
// operations, keyed by the matched route template.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var accountID *uuid.UUID
		if id, ok := AccountIDFrom(c); ok {
			accountID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			AccountID:    accountID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID(c),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}

func resourceID(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return c.Param("ownerId")
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/auth/register" && method == http.MethodPost:
		return domain.AuditActionRegister, "account"
	case route == "/api/v1/auth/login" && method == http.MethodPost:
		return domain.AuditActionLogin, "session"
	case route == "/api/v1/wallets/cash-in" && method == http.MethodPost:
		return domain.AuditActionCashIn, "transaction"
	case route == "/api/v1/wallets/cash-out" && method == http.MethodPost:
		return domain.AuditActionCashOut, "transaction"
	case route == "/api/v1/wallets/send" && method == http.MethodPost:
		return domain.AuditActionSend, "transaction"
	case route == "/api/v1/users/agents/:id" && method == http.MethodPatch:
		return domain.AuditActionApproveAgent, "account"
	case route == "/api/v1/wallets/:ownerId" && method == http.MethodPatch:
		return domain.AuditActionWalletStatus, "wallet"
	}
	return "", ""
}
