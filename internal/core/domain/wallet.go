package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletStatus represents whether a wallet may move funds.
type WalletStatus string

const (
	WalletStatusActive  WalletStatus = "ACTIVE"
	WalletStatusBlocked WalletStatus = "BLOCKED"
)

// Valid reports whether s is a known wallet status.
func (s WalletStatus) Valid() bool {
	return s == WalletStatusActive || s == WalletStatusBlocked
}

// Wallet holds the balance of a single account, in whole currency units.
type Wallet struct {
	ID        uuid.UUID    `json:"id"`
	OwnerID   uuid.UUID    `json:"owner_id"`
	Balance   int64        `json:"balance"`
	Status    WalletStatus `json:"status"`
	Version   int64        `json:"-"` // Bumped on every write
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// IsActive returns true if the wallet is not blocked.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}
