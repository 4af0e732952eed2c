package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TypeClassRegistrationFee    TransactionType = "class_registration_fee"
	TypeStudentPayment          TransactionType = "student_payment"
	TypeStudentPaymentRemaining TransactionType = "student_payment_remaining"
	TypeTutorPayout             TransactionType = "tutor_payout"
	TypeEscrowHold              TransactionType = "escrow_hold"
	TypeEscrowRelease           TransactionType = "escrow_release"
	TypeCancellationFee         TransactionType = "cancellation_fee"
	TypeTestFee                 TransactionType = "test_fee"
	TypeRefund                  TransactionType = "refund"
)

// TransactionStatus represents the lifecycle state of a transaction.
// pending is the only non-terminal state.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// PaymentMethod identifies how money moved. internal means the engine
// itself generated the row (payout, escrow carve-out, release, fee).
type PaymentMethod string

const (
	MethodMoMo     PaymentMethod = "momo"
	MethodVNPay    PaymentMethod = "vnpay"
	MethodInternal PaymentMethod = "internal"
)

// Transaction is an immutable ledger entry for one money movement.
// Once committed, only status ever changed it, and status is terminal
// after completed/failed. Economic reversal happens through a new
// compensating row (refund), never in place.
type Transaction struct {
	ID                   uuid.UUID       `json:"id"`
	Type                 TransactionType `json:"type"`
	Amount               int64           `json:"amount"` // VND face value, never negative
	UserID               uuid.UUID       `json:"user_id"`
	TutorID              *uuid.UUID      `json:"tutor_id,omitempty"`
	RelatedClassID       *uuid.UUID      `json:"related_class_id,omitempty"`
	RelatedTransactionID *uuid.UUID      `json:"related_transaction_id,omitempty"`
	PaymentMethod        PaymentMethod   `json:"payment_method"`
	Status               TransactionStatus `json:"status"`
	GatewayReference     *string         `json:"gateway_reference,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the transaction reached a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// IsRefundable reports whether a compensating refund may reference this row.
func (t *Transaction) IsRefundable() bool {
	switch t.Type {
	case TypeClassRegistrationFee, TypeStudentPayment, TypeStudentPaymentRemaining, TypeTestFee:
		return t.Status == StatusCompleted
	default:
		return false
	}
}

// FeedsEscrow reports whether completion of this transaction carves an
// escrow hold against the tutor's earnings. test_fee and
// student_payment_remaining are plain revenue and stay out of escrow.
func (t TransactionType) FeedsEscrow() bool {
	return t == TypeClassRegistrationFee || t == TypeStudentPayment
}

// IsGatewayPayable reports whether this type may be initiated through a
// payment gateway. The remaining types are system-generated only.
func (t TransactionType) IsGatewayPayable() bool {
	switch t {
	case TypeClassRegistrationFee, TypeStudentPayment, TypeStudentPaymentRemaining, TypeTestFee:
		return true
	default:
		return false
	}
}

// ParseTransactionType validates a string against the closed type set.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch TransactionType(s) {
	case TypeClassRegistrationFee, TypeStudentPayment, TypeStudentPaymentRemaining,
		TypeTutorPayout, TypeEscrowHold, TypeEscrowRelease,
		TypeCancellationFee, TypeTestFee, TypeRefund:
		return TransactionType(s), true
	}
	return "", false
}

// SignedContribution returns this transaction's contribution to the
// owning user's wallet balance. Only completed rows contribute; pending
// and failed rows are invisible to projections. cancellation_fee is
// neutral for the owner: the escrow hold already debited the amount.
func (t *Transaction) SignedContribution() int64 {
	if t.Status != StatusCompleted {
		return 0
	}
	switch t.Type {
	case TypeClassRegistrationFee, TypeStudentPayment, TypeStudentPaymentRemaining,
		TypeTestFee, TypeEscrowHold:
		return -t.Amount
	case TypeRefund, TypeTutorPayout, TypeEscrowRelease:
		return t.Amount
	case TypeCancellationFee:
		return 0
	}
	return 0
}
