package postgres

import (
	"context"
	"errors"
	"fmt"

	"tutor-payment-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository. The
// (gateway, gateway_reference) primary key is the admission gate: the
// insert either takes the key or reports it already taken, inside the
// same database transaction as the ledger write it guards.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Admit claims the idempotency key for this notification. Returns false
// when an earlier delivery already holds the key.
func (r *IdempotencyRepo) Admit(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) (bool, error) {
	query := `INSERT INTO idempotency_records (gateway, gateway_reference, transaction_id, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (gateway, gateway_reference) DO NOTHING`

	tag, err := tx.Exec(ctx, query, rec.Gateway, rec.GatewayReference, rec.TransactionID, rec.ProcessedAt)
	if err != nil {
		return false, fmt.Errorf("admit idempotency record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get fetches a processed record by gateway and reference.
func (r *IdempotencyRepo) Get(ctx context.Context, gateway domain.Gateway, reference string) (*domain.IdempotencyRecord, error) {
	query := `SELECT gateway, gateway_reference, transaction_id, processed_at
		FROM idempotency_records WHERE gateway = $1 AND gateway_reference = $2`

	rec := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx, query, gateway, reference).Scan(
		&rec.Gateway, &rec.GatewayReference, &rec.TransactionID, &rec.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}
