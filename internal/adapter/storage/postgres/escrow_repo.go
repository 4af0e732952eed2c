package postgres

import (
	"context"
	"errors"
	"fmt"

	"tutor-payment-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const escrowColumns = `class_id, tutor_id, hold_transaction_id, held_amount, released_amount, state, created_at, updated_at`

// EscrowRepo implements ports.EscrowRepository.
type EscrowRepo struct {
	pool Pool
}

// NewEscrowRepo creates a new EscrowRepo.
func NewEscrowRepo(pool Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

// Create inserts a new escrow hold within a database transaction.
func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, h *domain.EscrowHold) error {
	query := `INSERT INTO escrow_holds (class_id, tutor_id, hold_transaction_id, held_amount, released_amount, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		h.ClassID, h.TutorID, h.HoldTransactionID, h.HeldAmount,
		h.ReleasedAmount, h.State, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escrow hold: %w", err)
	}
	return nil
}

// GetByClassID fetches the escrow hold for a class, without locking.
func (r *EscrowRepo) GetByClassID(ctx context.Context, classID uuid.UUID) (*domain.EscrowHold, error) {
	query := fmt.Sprintf(`SELECT %s FROM escrow_holds WHERE class_id = $1`, escrowColumns)
	return r.scanHold(r.pool.QueryRow(ctx, query, classID))
}

// GetByClassIDForUpdate fetches the hold with a row lock, serializing
// concurrent transitions on the same class.
func (r *EscrowRepo) GetByClassIDForUpdate(ctx context.Context, tx pgx.Tx, classID uuid.UUID) (*domain.EscrowHold, error) {
	query := fmt.Sprintf(`SELECT %s FROM escrow_holds WHERE class_id = $1 FOR UPDATE`, escrowColumns)
	return r.scanHold(tx.QueryRow(ctx, query, classID))
}

// Update persists an escrow transition within a database transaction.
func (r *EscrowRepo) Update(ctx context.Context, tx pgx.Tx, h *domain.EscrowHold) error {
	query := `UPDATE escrow_holds SET held_amount = $1, released_amount = $2, state = $3, updated_at = $4
		WHERE class_id = $5`

	tag, err := tx.Exec(ctx, query, h.HeldAmount, h.ReleasedAmount, h.State, h.UpdatedAt, h.ClassID)
	if err != nil {
		return fmt.Errorf("update escrow hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escrow hold not found: %s", h.ClassID)
	}
	return nil
}

func (r *EscrowRepo) scanHold(row pgx.Row) (*domain.EscrowHold, error) {
	h := &domain.EscrowHold{}
	err := row.Scan(
		&h.ClassID, &h.TutorID, &h.HoldTransactionID, &h.HeldAmount,
		&h.ReleasedAmount, &h.State, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan escrow hold: %w", err)
	}
	return h, nil
}
