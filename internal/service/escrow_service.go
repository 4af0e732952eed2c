package service

import (
	"context"
	"fmt"
	"time"

	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// escrowService implements ports.EscrowService. Transitions lock the
// hold row, validate against the domain state machine, and only then
// touch the ledger, so an illegal transition commits nothing.
type escrowService struct {
	txRepo     ports.TransactionRepository
	escrowRepo ports.EscrowRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewEscrowService creates a new escrow service.
func NewEscrowService(
	txRepo ports.TransactionRepository,
	escrowRepo ports.EscrowRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) ports.EscrowService {
	return &escrowService{
		txRepo:     txRepo,
		escrowRepo: escrowRepo,
		transactor: transactor,
		log:        log,
	}
}

// Release pays out amount from the hold to the tutor.
func (s *escrowService) Release(ctx context.Context, classID uuid.UUID, amount int64) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	hold, err := s.escrowRepo.GetByClassIDForUpdate(ctx, dbTx, classID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock escrow hold: %w", err))
	}
	if hold == nil {
		return nil, apperror.ErrNotFound("escrow hold")
	}
	if err := hold.CheckRelease(amount); err != nil {
		return nil, apperror.ErrEscrowViolation(err)
	}

	now := time.Now().UTC()
	hold.ApplyRelease(amount)
	hold.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, hold); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update escrow hold: %w", err))
	}

	release := &domain.Transaction{
		ID:                   uuid.New(),
		Type:                 domain.TypeEscrowRelease,
		Amount:               amount,
		UserID:               hold.TutorID,
		TutorID:              &hold.TutorID,
		RelatedClassID:       &hold.ClassID,
		RelatedTransactionID: &hold.HoldTransactionID,
		PaymentMethod:        domain.MethodInternal,
		Status:               domain.StatusCompleted,
		CreatedAt:            now,
		CompletedAt:          &now,
	}
	if err := s.txRepo.Create(ctx, dbTx, release); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create escrow release: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("class_id", classID.String()).
		Str("tutor_id", hold.TutorID.String()).
		Int64("amount", amount).
		Str("state", string(hold.State)).
		Msg("escrow released")

	return release, nil
}

// Forfeit converts a fully held escrow to a cancellation fee. Only
// legal before any release.
func (s *escrowService) Forfeit(ctx context.Context, classID uuid.UUID) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	hold, err := s.escrowRepo.GetByClassIDForUpdate(ctx, dbTx, classID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock escrow hold: %w", err))
	}
	if hold == nil {
		return nil, apperror.ErrNotFound("escrow hold")
	}
	if err := hold.CheckForfeit(); err != nil {
		return nil, apperror.ErrEscrowViolation(err)
	}

	now := time.Now().UTC()
	forfeited := hold.HeldAmount
	hold.ApplyForfeit()
	hold.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, hold); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update escrow hold: %w", err))
	}

	fee := &domain.Transaction{
		ID:                   uuid.New(),
		Type:                 domain.TypeCancellationFee,
		Amount:               forfeited,
		UserID:               hold.TutorID,
		TutorID:              &hold.TutorID,
		RelatedClassID:       &hold.ClassID,
		RelatedTransactionID: &hold.HoldTransactionID,
		PaymentMethod:        domain.MethodInternal,
		Status:               domain.StatusCompleted,
		CreatedAt:            now,
		CompletedAt:          &now,
	}
	if err := s.txRepo.Create(ctx, dbTx, fee); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create cancellation fee: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("class_id", classID.String()).
		Str("tutor_id", hold.TutorID.String()).
		Int64("amount", forfeited).
		Msg("escrow forfeited")

	return fee, nil
}

// GetByClassID returns the hold for a class, or a not-found error.
func (s *escrowService) GetByClassID(ctx context.Context, classID uuid.UUID) (*domain.EscrowHold, error) {
	hold, err := s.escrowRepo.GetByClassID(ctx, classID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if hold == nil {
		return nil, apperror.ErrNotFound("escrow hold")
	}
	return hold, nil
}
