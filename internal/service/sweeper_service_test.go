package service

import (
	"context"
	"testing"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSweeperService_ExpireStalePending(t *testing.T) {
	ctrl := gomock.NewController(t)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	svc := NewSweeperService(txRepo, config.SweeperConfig{
		PendingTimeout: 30 * time.Minute,
		Interval:       5 * time.Minute,
	}, zerolog.Nop())

	txRepo.EXPECT().ExpireStalePending(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cutoff time.Time) (int64, error) {
			assert.WithinDuration(t, time.Now().UTC().Add(-30*time.Minute), cutoff, 5*time.Second)
			return 2, nil
		})

	expired, err := svc.ExpireStalePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), expired)
}
