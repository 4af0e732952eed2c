package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, transaction_type, amount, user_id, tutor_id, related_class_id,
	related_transaction_id, payment_method, status, gateway_reference, created_at, completed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new ledger row within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, transaction_type, amount, user_id, tutor_id, related_class_id,
		related_transaction_id, payment_method, status, gateway_reference, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.Type, t.Amount, t.UserID, t.TutorID, t.RelatedClassID,
		t.RelatedTransactionID, t.PaymentMethod, t.Status, t.GatewayReference,
		t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns)
	return r.scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByGatewayReference fetches a transaction by gateway and order reference.
func (r *TransactionRepo) GetByGatewayReference(ctx context.Context, gateway domain.Gateway, reference string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE payment_method = $1 AND gateway_reference = $2`, transactionColumns)
	return r.scanTransaction(r.pool.QueryRow(ctx, query, domain.PaymentMethodFor(gateway), reference))
}

// UpdateStatus finalizes a transaction's status within a database
// transaction. The pending-only predicate makes the terminal rule hold
// at the database: a row another writer already finalized is never
// flipped, and the caller gets ports.ErrTransactionFinal instead.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, completedAt time.Time) error {
	query := `UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query, status, completedAt, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current domain.TransactionStatus
		err := tx.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction not found: %s", id)
		}
		if err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
		return fmt.Errorf("transaction %s is already %s: %w", id, current, ports.ErrTransactionFinal)
	}
	return nil
}

// CheckRefundExists checks if a non-failed refund already exists for an original transaction.
func (r *TransactionRepo) CheckRefundExists(ctx context.Context, originalTxID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions
		WHERE related_transaction_id = $1 AND transaction_type = 'refund' AND status != 'failed')`

	var exists bool
	err := r.pool.QueryRow(ctx, query, originalTxID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check refund exists: %w", err)
	}
	return exists, nil
}

// LockTutorPayout serializes payout runs for one tutor for the duration
// of the surrounding database transaction.
func (r *TransactionRepo) LockTutorPayout(ctx context.Context, tx pgx.Tx, tutorID uuid.UUID) error {
	// Advisory lock keyed on the tutor UUID's low 64 bits; released at
	// commit or rollback.
	query := `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`

	if _, err := tx.Exec(ctx, query, tutorID); err != nil {
		return fmt.Errorf("lock tutor payout: %w", err)
	}
	return nil
}

// SumEligiblePayout computes the amount currently owed to a tutor:
// completed earnings minus what escrow still holds and what has already
// been paid out. Must run inside the same transaction as the lock so
// the snapshot and the payout write cannot interleave with another run.
func (r *TransactionRepo) SumEligiblePayout(ctx context.Context, tx pgx.Tx, tutorID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(CASE transaction_type
			WHEN 'student_payment' THEN amount
			WHEN 'student_payment_remaining' THEN amount
			WHEN 'escrow_release' THEN amount
			WHEN 'escrow_hold' THEN -amount
			WHEN 'tutor_payout' THEN -amount
			ELSE 0 END), 0)
		FROM transactions
		WHERE tutor_id = $1 AND status = 'completed'`

	var eligible int64
	if err := tx.QueryRow(ctx, query, tutorID).Scan(&eligible); err != nil {
		return 0, fmt.Errorf("sum eligible payout: %w", err)
	}
	return eligible, nil
}

// ListPayableTutors returns the tutors currently owed a positive
// balance, for scheduled payout runs. The per-tutor advisory lock in
// ProcessPayout still guards against the snapshot going stale.
func (r *TransactionRepo) ListPayableTutors(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT tutor_id FROM transactions
		WHERE tutor_id IS NOT NULL AND status = 'completed'
		GROUP BY tutor_id
		HAVING SUM(CASE transaction_type
			WHEN 'student_payment' THEN amount
			WHEN 'student_payment_remaining' THEN amount
			WHEN 'escrow_release' THEN amount
			WHEN 'escrow_hold' THEN -amount
			WHEN 'tutor_payout' THEN -amount
			ELSE 0 END) > 0`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list payable tutors: %w", err)
	}
	defer rows.Close()

	var tutors []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list payable tutors: %w", err)
		}
		tutors = append(tutors, id)
	}
	return tutors, rows.Err()
}

// ExpireStalePending fails gateway-bound transactions still pending past
// the cutoff. Returns the number of transactions expired.
func (r *TransactionRepo) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE transactions SET status = 'failed', completed_at = NOW()
		WHERE status = 'pending' AND payment_method IN ('momo', 'vnpay') AND created_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire stale pending: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List fetches transactions with filtering and pagination.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *params.UserID)
		argIdx++
	}
	if params.TutorID != nil {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", argIdx))
		args = append(args, *params.TutorID)
		argIdx++
	}
	if params.ClassID != nil {
		conditions = append(conditions, fmt.Sprintf("related_class_id = $%d", argIdx))
		args = append(args, *params.ClassID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		err := rows.Scan(
			&t.ID, &t.Type, &t.Amount, &t.UserID, &t.TutorID, &t.RelatedClassID,
			&t.RelatedTransactionID, &t.PaymentMethod, &t.Status, &t.GatewayReference,
			&t.CreatedAt, &t.CompletedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetReport produces the reconciliation snapshot in a single query, so
// revenue, payouts, and escrow figures come from one consistent read.
func (r *TransactionRepo) GetReport(ctx context.Context) (*ports.ReconciliationReport, error) {
	query := `SELECT
		COALESCE(SUM(amount) FILTER (WHERE status = 'completed' AND transaction_type IN
			('class_registration_fee', 'student_payment', 'student_payment_remaining', 'test_fee', 'cancellation_fee')), 0)
		- COALESCE(SUM(amount) FILTER (WHERE status = 'completed' AND transaction_type = 'refund'), 0) AS total_revenue,
		COALESCE(SUM(amount) FILTER (WHERE status = 'completed' AND transaction_type = 'tutor_payout'), 0) AS total_payouts,
		(SELECT COALESCE(SUM(held_amount - released_amount), 0) FROM escrow_holds
			WHERE state IN ('open', 'partially_released')) AS escrow_balance,
		COUNT(*) FILTER (WHERE status = 'pending') AS pending_transactions,
		COUNT(*) FILTER (WHERE status = 'pending' AND transaction_type = 'tutor_payout') AS pending_payouts
		FROM transactions`

	report := &ports.ReconciliationReport{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&report.TotalRevenue, &report.TotalPayouts, &report.EscrowBalance,
		&report.PendingTransactions, &report.PendingPayouts,
	)
	if err != nil {
		return nil, fmt.Errorf("get reconciliation report: %w", err)
	}
	return report, nil
}

// scanTransaction is a helper to scan a single row into a Transaction.
func (r *TransactionRepo) scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.Type, &t.Amount, &t.UserID, &t.TutorID, &t.RelatedClassID,
		&t.RelatedTransactionID, &t.PaymentMethod, &t.Status, &t.GatewayReference,
		&t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
