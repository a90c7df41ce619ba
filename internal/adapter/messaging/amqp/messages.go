package amqp

import (
	"encoding/json"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
)

const eventTransactionCompleted = "transaction.completed"

// TransactionEvent announces a committed ledger transaction.
type TransactionEvent struct {
	Event       string             `json:"event"`
	Transaction domain.Transaction `json:"transaction"`
	PublishedAt time.Time          `json:"published_at"`
}

// NewTransactionEvent builds the event for txn.
func NewTransactionEvent(txn *domain.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Event:       eventTransactionCompleted,
		Transaction: *txn,
		PublishedAt: time.Now().UTC(),
	}
}

// RoutingKey is "transaction.<type>" in lower case, e.g. transaction.cash_out.
func (e *TransactionEvent) RoutingKey() string {
	return "transaction." + strings.ToLower(string(e.Transaction.Type))
}

// ToJSON converts the event to JSON bytes.
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes an event published by Publisher.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
