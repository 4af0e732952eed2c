package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord marks one gateway notification as processed.
// Primary key is (gateway, gateway_reference); the first admission wins
// and every later delivery of the same notification is rejected before
// it can touch the ledger.
type IdempotencyRecord struct {
	Gateway          Gateway   `json:"gateway"`
	GatewayReference string    `json:"gateway_reference"`
	TransactionID    uuid.UUID `json:"transaction_id"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// BuildAdmissionKey constructs the cache key for the fast-path dedupe gate.
func BuildAdmissionKey(gateway Gateway, gatewayReference string) string {
	return string(gateway) + ":" + gatewayReference
}
