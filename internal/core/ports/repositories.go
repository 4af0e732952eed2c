package ports

import (
	"context"
	"errors"
	"time"

	"tutor-payment-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrTransactionFinal reports that a status update found the row
// already in a terminal state. Terminal rows are never reopened; the
// caller decides whether the collision is an error or a duplicate.
var ErrTransactionFinal = errors.New("transaction already in terminal state")

// TransactionRepository defines persistence operations for the
// transaction ledger. Methods accepting pgx.Tx run inside a database
// transaction so that ledger writes, escrow transitions, and
// idempotency admission commit or roll back as one unit.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByGatewayReference(ctx context.Context, gateway domain.Gateway, reference string) (*domain.Transaction, error)
	// UpdateStatus finalizes a pending transaction. A row already in a
	// terminal state is left untouched and ErrTransactionFinal returned.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, completedAt time.Time) error
	CheckRefundExists(ctx context.Context, originalTxID uuid.UUID) (bool, error)
	// Payout support. LockTutorPayout serializes concurrent payout runs
	// for one tutor; SumEligiblePayout reads a consistent snapshot
	// inside the same database transaction.
	LockTutorPayout(ctx context.Context, tx pgx.Tx, tutorID uuid.UUID) error
	SumEligiblePayout(ctx context.Context, tx pgx.Tx, tutorID uuid.UUID) (int64, error)
	// ListPayableTutors returns the tutors whose eligible balance is
	// currently positive, for scheduled payout runs.
	ListPayableTutors(ctx context.Context) ([]uuid.UUID, error)
	// Sweeper: fail gateway transactions stuck pending past the cutoff.
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error)
	// Reporting queries
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetReport(ctx context.Context) (*ReconciliationReport, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID   *uuid.UUID
	TutorID  *uuid.UUID
	ClassID  *uuid.UUID
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	From     *int64 // Unix timestamp
	To       *int64 // Unix timestamp
	Page     int
	PageSize int
}

// ReconciliationReport holds the aggregated figures consumed by
// dashboards. It is produced from a single-query snapshot so that it
// never shows a half-applied escrow transition.
type ReconciliationReport struct {
	TotalRevenue        int64
	TotalPayouts        int64
	EscrowBalance       int64
	PendingTransactions int64
	PendingPayouts      int64
}

// EscrowRepository defines persistence for per-class escrow holds.
// GetByClassIDForUpdate takes a row lock so concurrent transitions on
// the same class serialize.
type EscrowRepository interface {
	Create(ctx context.Context, tx pgx.Tx, h *domain.EscrowHold) error
	GetByClassID(ctx context.Context, classID uuid.UUID) (*domain.EscrowHold, error)
	GetByClassIDForUpdate(ctx context.Context, tx pgx.Tx, classID uuid.UUID) (*domain.EscrowHold, error)
	Update(ctx context.Context, tx pgx.Tx, h *domain.EscrowHold) error
}

// IdempotencyRepository is the authoritative admission gate.
// Admit inserts the record and reports false when the
// (gateway, gateway_reference) key was already taken; exactly one of
// two concurrent admissions for the same key succeeds.
type IdempotencyRepository interface {
	Admit(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) (bool, error)
	Get(ctx context.Context, gateway domain.Gateway, reference string) (*domain.IdempotencyRecord, error)
}

// WalletRepository computes wallet projections from the ledger.
type WalletRepository interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
}

// AuditRepository persists the IPN delivery trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.IPNAudit) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
