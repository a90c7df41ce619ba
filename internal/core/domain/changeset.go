package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// WalletUpdate sets a wallet's balance and status, provided the stored
// version still equals Version.
type WalletUpdate struct {
	WalletID   uuid.UUID
	Version    int64
	NewBalance int64
	Status     WalletStatus
}

// ChangeSet is the declarative batch a ledger store applies all-or-nothing.
type ChangeSet struct {
	Wallets     []WalletUpdate
	Transaction *Transaction
	Idempotency *IdempotencyRecord
}

// Validate rejects change sets that would break a ledger invariant.
func (c ChangeSet) Validate() error {
	if len(c.Wallets) == 0 && c.Transaction == nil {
		return errors.New("empty change set")
	}
	seen := make(map[uuid.UUID]struct{}, len(c.Wallets))
	for _, w := range c.Wallets {
		if w.NewBalance < 0 {
			return fmt.Errorf("wallet %s: negative balance %d", w.WalletID, w.NewBalance)
		}
		if !w.Status.Valid() {
			return fmt.Errorf("wallet %s: invalid status %q", w.WalletID, w.Status)
		}
		if _, dup := seen[w.WalletID]; dup {
			return fmt.Errorf("wallet %s: updated twice", w.WalletID)
		}
		seen[w.WalletID] = struct{}{}
	}
	if c.Transaction != nil && c.Transaction.Amount <= 0 {
		return fmt.Errorf("transaction amount must be positive, got %d", c.Transaction.Amount)
	}
	if c.Idempotency != nil && c.Transaction == nil {
		return errors.New("idempotency record without transaction")
	}
	return nil
}

// Credit returns the update that adds amount to w.
func Credit(w *Wallet, amount int64) WalletUpdate {
	return WalletUpdate{WalletID: w.ID, Version: w.Version, NewBalance: w.Balance + amount, Status: w.Status}
}

// Debit returns the update that subtracts amount from w.
func Debit(w *Wallet, amount int64) WalletUpdate {
	return WalletUpdate{WalletID: w.ID, Version: w.Version, NewBalance: w.Balance - amount, Status: w.Status}
}
