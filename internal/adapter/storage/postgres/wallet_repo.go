package postgres

import (
	"context"
	"fmt"
	"time"

	"tutor-payment-engine/internal/core/domain"

	"github.com/google/uuid"
)

// WalletRepo implements ports.WalletRepository. Balances are never
// stored: each read is a signed sum over the completed ledger rows for
// the user, mirroring domain.SignedContribution.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetBalance computes the wallet projection for a user.
func (r *WalletRepo) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT COALESCE(SUM(CASE transaction_type
			WHEN 'refund' THEN amount
			WHEN 'tutor_payout' THEN amount
			WHEN 'escrow_release' THEN amount
			WHEN 'class_registration_fee' THEN -amount
			WHEN 'student_payment' THEN -amount
			WHEN 'student_payment_remaining' THEN -amount
			WHEN 'test_fee' THEN -amount
			WHEN 'escrow_hold' THEN -amount
			ELSE 0 END), 0)
		FROM transactions
		WHERE user_id = $1 AND status = 'completed'`

	var balance int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		return nil, fmt.Errorf("compute wallet balance: %w", err)
	}

	return &domain.Wallet{
		UserID:     userID,
		Balance:    balance,
		ComputedAt: time.Now(),
	}, nil
}
