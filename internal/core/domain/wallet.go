package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a read-only projection: the signed sum of completed
// transactions attributable to a user. It is never persisted as a
// writable balance, so it cannot drift from the ledger.
type Wallet struct {
	UserID     uuid.UUID `json:"user_id"`
	Balance    int64     `json:"balance"`
	ComputedAt time.Time `json:"computed_at"`
}
