package service

import (
	"context"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// SweeperServiceImpl implements ports.SweeperService. Gateway transactions
// that never receive a callback would otherwise stay pending forever;
// the sweeper fails them after the configured window. A late success
// callback for a swept transaction is surfaced for reconciliation, not
// applied.
type SweeperServiceImpl struct {
	txRepo ports.TransactionRepository
	cfg    config.SweeperConfig
	log    zerolog.Logger
}

// NewSweeperService creates a new sweeper service.
func NewSweeperService(txRepo ports.TransactionRepository, cfg config.SweeperConfig, log zerolog.Logger) *SweeperServiceImpl {
	return &SweeperServiceImpl{txRepo: txRepo, cfg: cfg, log: log}
}

// ExpireStalePending fails pending gateway transactions older than the
// configured timeout and returns the count.
func (s *SweeperServiceImpl) ExpireStalePending(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.PendingTimeout)

	expired, err := s.txRepo.ExpireStalePending(ctx, cutoff)
	if err != nil {
		return 0, apperror.InternalError(err)
	}
	if expired > 0 {
		s.log.Info().
			Int64("expired", expired).
			Time("cutoff", cutoff).
			Msg("stale pending transactions expired")
	}
	return expired, nil
}

// Run drives the sweeper on its configured interval until ctx is done.
func (s *SweeperServiceImpl) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStalePending(ctx); err != nil {
				s.log.Error().Err(err).Msg("sweeper run failed")
			}
		}
	}
}
