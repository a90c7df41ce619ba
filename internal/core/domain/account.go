package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// AccountStatus represents whether an account may act.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusBlocked  AccountStatus = "BLOCKED"
)

// Account is a registered identity. One account owns exactly one wallet.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"` // E.164
	PasswordHash string        `json:"-"`     // Never expose
	Role         Role          `json:"role"`
	Approved     bool          `json:"approved"`
	Status       AccountStatus `json:"status"`
	Deleted      bool          `json:"deleted"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsActive returns true if the account is not deleted and in ACTIVE status.
func (a *Account) IsActive() bool {
	return !a.Deleted && a.Status == AccountStatusActive
}

// IsApprovedAgent returns true for an agent cleared by an admin.
func (a *Account) IsApprovedAgent() bool {
	return a.Role == RoleAgent && a.Approved
}
