package service

import (
	"context"
	"testing"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports/mocks"
	"tutor-payment-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type payoutTestDeps struct {
	svc        *PayoutServiceImpl
	txRepo     *mocks.MockTransactionRepository
	transactor *mocks.MockDBTransactor
}

func setupPayoutService(t *testing.T) *payoutTestDeps {
	ctrl := gomock.NewController(t)
	d := &payoutTestDeps{
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
	}
	d.svc = NewPayoutService(d.txRepo, d.transactor, config.PayoutConfig{Period: time.Hour}, zerolog.Nop())
	return d
}

func TestPayoutService_ProcessPayout_Success(t *testing.T) {
	d := setupPayoutService(t)
	ctx := context.Background()
	tx := &mockTx{}
	tutorID := uuid.New()

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().LockTutorPayout(ctx, tx, tutorID).Return(nil)
	d.txRepo.EXPECT().SumEligiblePayout(ctx, tx, tutorID).Return(int64(420000), nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, payout *domain.Transaction) error {
			assert.Equal(t, domain.TypeTutorPayout, payout.Type)
			assert.Equal(t, int64(420000), payout.Amount)
			assert.Equal(t, tutorID, payout.UserID)
			assert.Equal(t, domain.MethodInternal, payout.PaymentMethod)
			assert.Equal(t, domain.StatusCompleted, payout.Status)
			return nil
		})

	payout, err := d.svc.ProcessPayout(ctx, tutorID)
	require.NoError(t, err)
	assert.Equal(t, int64(420000), payout.Amount)
}

func TestPayoutService_ProcessPayout_NoEligibleBalance(t *testing.T) {
	d := setupPayoutService(t)
	ctx := context.Background()
	tx := &mockTx{}
	tutorID := uuid.New()

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().LockTutorPayout(ctx, tx, tutorID).Return(nil)
	d.txRepo.EXPECT().SumEligiblePayout(ctx, tx, tutorID).Return(int64(0), nil)
	// No Create: a drained balance pays nothing.

	_, err := d.svc.ProcessPayout(ctx, tutorID)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAYOUT_001", appErr.Code)
}

func TestPayoutService_ComputeEligiblePayout(t *testing.T) {
	d := setupPayoutService(t)
	ctx := context.Background()
	tx := &mockTx{}
	tutorID := uuid.New()

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().SumEligiblePayout(ctx, tx, tutorID).Return(int64(150000), nil)

	eligible, err := d.svc.ComputeEligiblePayout(ctx, tutorID)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), eligible)
}

func TestPayoutService_RunScheduled_PaysEachListedTutor(t *testing.T) {
	d := setupPayoutService(t)
	ctx := context.Background()
	tutorA := uuid.New()
	tutorB := uuid.New()

	d.txRepo.EXPECT().ListPayableTutors(ctx).Return([]uuid.UUID{tutorA, tutorB}, nil)
	for _, id := range []uuid.UUID{tutorA, tutorB} {
		tx := &mockTx{}
		d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
		d.txRepo.EXPECT().LockTutorPayout(ctx, tx, id).Return(nil)
		d.txRepo.EXPECT().SumEligiblePayout(ctx, tx, id).Return(int64(250000), nil)
		d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	}

	d.svc.runScheduled(ctx)
}

func TestPayoutService_RunScheduled_SkipsDrainedBalance(t *testing.T) {
	d := setupPayoutService(t)
	ctx := context.Background()
	tutorA := uuid.New()
	tutorB := uuid.New()
	txA := &mockTx{}
	txB := &mockTx{}

	// tutorA's balance drained between the listing and the lock; tutorB
	// still gets paid.
	d.txRepo.EXPECT().ListPayableTutors(ctx).Return([]uuid.UUID{tutorA, tutorB}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(txA, nil)
	d.txRepo.EXPECT().LockTutorPayout(ctx, txA, tutorA).Return(nil)
	d.txRepo.EXPECT().SumEligiblePayout(ctx, txA, tutorA).Return(int64(0), nil)
	d.transactor.EXPECT().Begin(ctx).Return(txB, nil)
	d.txRepo.EXPECT().LockTutorPayout(ctx, txB, tutorB).Return(nil)
	d.txRepo.EXPECT().SumEligiblePayout(ctx, txB, tutorB).Return(int64(80000), nil)
	d.txRepo.EXPECT().Create(ctx, txB, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, payout *domain.Transaction) error {
			assert.Equal(t, int64(80000), payout.Amount)
			assert.Equal(t, tutorB, *payout.TutorID)
			return nil
		})

	d.svc.runScheduled(ctx)
}
