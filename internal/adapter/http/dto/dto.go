package dto

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=100"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Phone    string `json:"phone" binding:"required,phone"`
	Password string `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	Role     string `json:"role" binding:"required,oneof=USER AGENT"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// UpdateProfileRequest is the request body for PATCH /users/me.
type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty" binding:"omitempty,min=1,max=100"`
	Phone *string `json:"phone,omitempty" binding:"omitempty,phone"`
}

// CashInRequest is the request body for an agent cash-in.
type CashInRequest struct {
	UserIdentifier string `json:"userIdentifier" binding:"required,max=254"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
}

// CashOutRequest is the request body for a user cash-out.
type CashOutRequest struct {
	AgentIdentifier string `json:"agentIdentifier" binding:"required,max=254"`
	Amount          int64  `json:"amount" binding:"required,gt=0"`
}

// SendRequest is the request body for a peer transfer.
type SendRequest struct {
	RecipientIdentifier string `json:"recipientIdentifier" binding:"required,max=254"`
	Amount              int64  `json:"amount" binding:"required,gt=0"`
}

// AgentApprovalRequest is the request body for PATCH /users/agents/:id.
type AgentApprovalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// WalletStatusRequest is the request body for PATCH /wallets/:ownerId.
type WalletStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=ACTIVE BLOCKED"`
}

// PageQuery holds the common pagination query parameters.
type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// AccountQuery filters GET /users.
type AccountQuery struct {
	PageQuery
	Role string `form:"role" binding:"omitempty,oneof=USER AGENT ADMIN"`
}

// WalletQuery filters GET /wallets.
type WalletQuery struct {
	PageQuery
	Status string `form:"status" binding:"omitempty,oneof=ACTIVE BLOCKED"`
}

// TransactionQuery filters transaction history. From and To accept RFC 3339
// timestamps or plain dates.
type TransactionQuery struct {
	PageQuery
	Type      string `form:"type" binding:"omitempty,oneof=ADD SEND CASH_IN CASH_IN_BONUS CASH_OUT"`
	Status    string `form:"status" binding:"omitempty,oneof=PENDING COMPLETED FAILED"`
	From      string `form:"from"`
	To        string `form:"to"`
	MinAmount *int64 `form:"minAmount" binding:"omitempty,gt=0"`
	MaxAmount *int64 `form:"maxAmount" binding:"omitempty,gt=0"`
}

// AccountResponse is the public view of an account. The password hash never
// leaves the service.
type AccountResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Approved  bool   `json:"approved"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	Account AccountResponse `json:"account"`
	Balance int64           `json:"balance"`
}

// Values returns the requested page and limit with defaults applied.
func (q PageQuery) Values() (page, limit int) {
	page, limit = q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}
