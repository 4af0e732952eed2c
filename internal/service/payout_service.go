package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PayoutServiceImpl implements ports.PayoutService. A payout run takes
// a per-tutor advisory lock, reads the eligible balance inside the same
// database transaction, and writes the payout row against that
// snapshot. Running it twice pays the second time against a balance the
// first run already drained, so the run is idempotent by construction.
type PayoutServiceImpl struct {
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	cfg        config.PayoutConfig
	log        zerolog.Logger
}

// NewPayoutService creates a new payout service.
func NewPayoutService(
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	cfg config.PayoutConfig,
	log zerolog.Logger,
) *PayoutServiceImpl {
	return &PayoutServiceImpl{
		txRepo:     txRepo,
		transactor: transactor,
		cfg:        cfg,
		log:        log,
	}
}

// ComputeEligiblePayout returns what a payout run would pay, without
// paying it.
func (s *PayoutServiceImpl) ComputeEligiblePayout(ctx context.Context, tutorID uuid.UUID) (int64, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	eligible, err := s.txRepo.SumEligiblePayout(ctx, dbTx, tutorID)
	if err != nil {
		return 0, apperror.InternalError(err)
	}
	return eligible, nil
}

// ProcessPayout pays the tutor's full eligible balance.
func (s *PayoutServiceImpl) ProcessPayout(ctx context.Context, tutorID uuid.UUID) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.LockTutorPayout(ctx, dbTx, tutorID); err != nil {
		return nil, apperror.InternalError(err)
	}

	eligible, err := s.txRepo.SumEligiblePayout(ctx, dbTx, tutorID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if eligible <= 0 {
		return nil, apperror.ErrNoEligibleBalance()
	}

	now := time.Now().UTC()
	payout := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TypeTutorPayout,
		Amount:        eligible,
		UserID:        tutorID,
		TutorID:       &tutorID,
		PaymentMethod: domain.MethodInternal,
		Status:        domain.StatusCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	}
	if err := s.txRepo.Create(ctx, dbTx, payout); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payout: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payout_id", payout.ID.String()).
		Str("tutor_id", tutorID.String()).
		Int64("amount", eligible).
		Msg("payout processed")

	return payout, nil
}

// runScheduled pays every tutor with a positive balance. One tutor's
// failure does not stop the batch; the advisory lock inside
// ProcessPayout keeps the listed snapshot from being paid twice if a
// manual run races the batch.
func (s *PayoutServiceImpl) runScheduled(ctx context.Context) {
	tutors, err := s.txRepo.ListPayableTutors(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled payout: listing payable tutors failed")
		return
	}

	var paid int
	for _, tutorID := range tutors {
		if _, err := s.ProcessPayout(ctx, tutorID); err != nil {
			// The balance can drain between the listing and the lock.
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code == "PAYOUT_001" {
				continue
			}
			s.log.Error().Err(err).Str("tutor_id", tutorID.String()).Msg("scheduled payout failed")
			continue
		}
		paid++
	}

	if paid > 0 {
		s.log.Info().Int("tutors_paid", paid).Msg("scheduled payout run complete")
	}
}

// Run drives scheduled payout batches on the configured period until
// ctx is done.
func (s *PayoutServiceImpl) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}
