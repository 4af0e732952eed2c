package ports

import (
	"context"
	"time"

	"tutor-payment-engine/internal/core/domain"

	"github.com/google/uuid"
)

// GatewayAdapter verifies and normalizes one gateway's callbacks and
// builds its payment URLs. Two implementations exist (MoMo, VNPay);
// nothing downstream of the adapter branches on gateway identity.
type GatewayAdapter interface {
	Gateway() domain.Gateway
	// CreatePayment initiates a payment at the gateway for the given
	// intent and returns the redirect/pay URL.
	CreatePayment(ctx context.Context, intent PaymentIntent) (string, error)
	// VerifyIPN reconstructs the gateway signing string from the raw
	// field set, checks the keyed-hash signature in constant time, and
	// maps the gateway result code onto the canonical outcome set.
	// It is pure: no side effects, no I/O.
	VerifyIPN(fields map[string]string) (*domain.GatewayNotification, error)
}

// PaymentIntent describes a payment to initiate at a gateway.
type PaymentIntent struct {
	Reference string // our gateway reference, echoed back in the IPN
	Amount    int64
	OrderInfo string
	ClientIP  string
}

// PaymentService turns gateway notifications into ledger state.
type PaymentService interface {
	// CreatePayment appends a pending transaction and returns the
	// gateway pay URL for the user to complete it.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentInitiation, error)
	// HandleNotification applies a verified notification: admission
	// through the idempotency ledger, then exactly one terminal commit,
	// then the escrow carve-out when the type qualifies.
	HandleNotification(ctx context.Context, notif *domain.GatewayNotification) (*NotificationResult, error)
	// ProcessRefund commits a compensating refund transaction
	// referencing a completed original payment.
	ProcessRefund(ctx context.Context, req RefundRequest) (*domain.Transaction, error)
}

// CreatePaymentRequest holds validated input for payment initiation.
type CreatePaymentRequest struct {
	Gateway   domain.Gateway
	Type      domain.TransactionType
	Amount    int64
	UserID    uuid.UUID
	TutorID   *uuid.UUID
	ClassID   *uuid.UUID
	OrderInfo string
	ClientIP  string
}

// PaymentInitiation is the result of CreatePayment.
type PaymentInitiation struct {
	Transaction *domain.Transaction
	PayURL      string
}

// RefundRequest holds validated input for refund processing.
type RefundRequest struct {
	OriginalTransactionID uuid.UUID
	Amount                *int64 // nil = full refund
	Reason                string
}

// NotificationResult reports how a notification was applied.
// AlreadyProcessed and PendingRetry are not errors: the boundary still
// acknowledges the delivery so the gateway stops (or continues,
// for PendingRetry) retrying as its protocol expects.
type NotificationResult struct {
	Transaction      *domain.Transaction
	AlreadyProcessed bool
	PendingRetry     bool
}

// EscrowService governs the escrow hold lifecycle. Legality is checked
// before the ledger commit; an illegal transition commits nothing.
type EscrowService interface {
	Release(ctx context.Context, classID uuid.UUID, amount int64) (*domain.Transaction, error)
	Forfeit(ctx context.Context, classID uuid.UUID) (*domain.Transaction, error)
	GetByClassID(ctx context.Context, classID uuid.UUID) (*domain.EscrowHold, error)
}

// PayoutService batches escrow-cleared earnings into payout transactions.
type PayoutService interface {
	ComputeEligiblePayout(ctx context.Context, tutorID uuid.UUID) (int64, error)
	ProcessPayout(ctx context.Context, tutorID uuid.UUID) (*domain.Transaction, error)
}

// ReportingService is the read-only dashboard surface.
type ReportingService interface {
	GetReconciliationReport(ctx context.Context) (*ReconciliationReport, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetWalletBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
}

// SweeperService fails gateway transactions stuck pending past the
// configured callback window. The policy is explicit and testable,
// never a silent default.
type SweeperService interface {
	ExpireStalePending(ctx context.Context) (int64, error)
}

// AuditService records IPN deliveries (fire-and-forget).
type AuditService interface {
	Record(ctx context.Context, entry *domain.IPNAudit)
}

// IdempotencyCache is the Redis fast path in front of the authoritative
// Postgres admission record. Best effort: a cache miss or error always
// falls through to the database.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // cached transaction id, or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HashService verifies the operator credential (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService issues and validates operator dashboard tokens.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (string, error) // returns subject
}

// AuthService authenticates the dashboard operator.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// HealthChecker verifies one backing dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
