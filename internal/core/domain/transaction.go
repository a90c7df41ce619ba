package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
// The string values are persisted and must not change.
type TransactionType string

const (
	TransactionTypeAdd         TransactionType = "ADD"
	TransactionTypeSend        TransactionType = "SEND"
	TransactionTypeCashIn      TransactionType = "CASH_IN"
	TransactionTypeCashInBonus TransactionType = "CASH_IN_BONUS"
	TransactionTypeCashOut     TransactionType = "CASH_OUT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeAdd, TransactionTypeSend, TransactionTypeCashIn,
		TransactionTypeCashInBonus, TransactionTypeCashOut:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry for one money movement.
// From and To are account IDs for every transaction type.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	Type          TransactionType   `json:"type"`
	Amount        int64             `json:"amount"`
	From          *uuid.UUID        `json:"from,omitempty"`
	To            *uuid.UUID        `json:"to,omitempty"`
	Fee           int64             `json:"fee"`
	Commission    int64             `json:"commission"`
	Status        TransactionStatus `json:"status"`
	InitiatorRole Role              `json:"initiator_role"`
	InitiatedBy   uuid.UUID         `json:"initiated_by"`
	CreatedAt     time.Time         `json:"created_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// Involves returns true if the account is the source or destination.
func (t *Transaction) Involves(accountID uuid.UUID) bool {
	return (t.From != nil && *t.From == accountID) || (t.To != nil && *t.To == accountID)
}
