package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EscrowState represents the lifecycle of a per-class escrow hold.
type EscrowState string

const (
	EscrowOpen              EscrowState = "open"
	EscrowPartiallyReleased EscrowState = "partially_released"
	EscrowReleased          EscrowState = "released"
	EscrowForfeited         EscrowState = "forfeited"
)

// EscrowHold tracks the amount withheld from a tutor for one class
// enrollment. Invariant: ReleasedAmount <= HeldAmount at all times, and
// State == EscrowReleased iff ReleasedAmount == HeldAmount.
type EscrowHold struct {
	ClassID           uuid.UUID   `json:"class_id"`
	TutorID           uuid.UUID   `json:"tutor_id"`
	HoldTransactionID uuid.UUID   `json:"hold_transaction_id"`
	HeldAmount        int64       `json:"held_amount"`
	ReleasedAmount    int64       `json:"released_amount"`
	State             EscrowState `json:"state"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// CanAccrue reports whether additional held amount may be added
// (a second qualifying payment completing on the same class).
func (h *EscrowHold) CanAccrue() bool {
	return h.State == EscrowOpen || h.State == EscrowPartiallyReleased
}

// CheckRelease validates a release of amount against the hold without
// applying it. The check runs before the ledger commits the
// escrow_release row, so an illegal release never reaches the ledger.
func (h *EscrowHold) CheckRelease(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("release amount must be positive, got %d", amount)
	}
	switch h.State {
	case EscrowOpen, EscrowPartiallyReleased:
	case EscrowReleased:
		return fmt.Errorf("escrow for class %s already fully released", h.ClassID)
	case EscrowForfeited:
		return fmt.Errorf("escrow for class %s was forfeited", h.ClassID)
	default:
		return fmt.Errorf("escrow for class %s in unknown state %q", h.ClassID, h.State)
	}
	if h.ReleasedAmount+amount > h.HeldAmount {
		return fmt.Errorf("release of %d exceeds remaining escrow %d for class %s",
			amount, h.HeldAmount-h.ReleasedAmount, h.ClassID)
	}
	return nil
}

// ApplyRelease increases ReleasedAmount and advances the state.
// Callers must run CheckRelease first.
func (h *EscrowHold) ApplyRelease(amount int64) {
	h.ReleasedAmount += amount
	if h.ReleasedAmount == h.HeldAmount {
		h.State = EscrowReleased
	} else {
		h.State = EscrowPartiallyReleased
	}
}

// CheckForfeit validates a forfeiture (class cancelled before any
// release; the held amount converts to a cancellation fee).
func (h *EscrowHold) CheckForfeit() error {
	if h.State != EscrowOpen {
		return fmt.Errorf("escrow for class %s cannot be forfeited from state %q", h.ClassID, h.State)
	}
	if h.ReleasedAmount != 0 {
		return fmt.Errorf("escrow for class %s already partially released", h.ClassID)
	}
	return nil
}

// ApplyForfeit marks the hold forfeited. Callers must run CheckForfeit first.
func (h *EscrowHold) ApplyForfeit() {
	h.State = EscrowForfeited
}

// Remaining returns the amount still held.
func (h *EscrowHold) Remaining() int64 {
	if h.State == EscrowForfeited {
		return 0
	}
	return h.HeldAmount - h.ReleasedAmount
}

// EscrowCarveOut computes the held portion of a payment: amount scaled
// by the policy percentage, rounded half up so the carve plus the
// remainder always sums back to the original amount.
func EscrowCarveOut(amount int64, percent int) int64 {
	return (amount*int64(percent) + 50) / 100
}
