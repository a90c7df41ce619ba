package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord stores the result of a committed money movement so a
// replayed request returns it instead of moving funds twice.
type IdempotencyRecord struct {
	Key           string    `json:"key"` // Format: "initiator_id:client_key"
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildIdempotencyKey constructs the standard key format.
func BuildIdempotencyKey(initiatorID uuid.UUID, clientKey string) string {
	return initiatorID.String() + ":" + clientKey
}
