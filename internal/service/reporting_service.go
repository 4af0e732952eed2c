package service

import (
	"context"

	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"

	"github.com/google/uuid"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(txRepo ports.TransactionRepository, walletRepo ports.WalletRepository) ports.ReportingService {
	return &reportingService{txRepo: txRepo, walletRepo: walletRepo}
}

// GetReconciliationReport returns the aggregated ledger snapshot.
func (s *reportingService) GetReconciliationReport(ctx context.Context) (*ports.ReconciliationReport, error) {
	report, err := s.txRepo.GetReport(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return report, nil
}

// ListTransactions returns a paginated, filtered list of transactions.
func (s *reportingService) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return txns, total, nil
}

// GetWalletBalance computes the wallet projection for a user.
func (s *reportingService) GetWalletBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetBalance(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return wallet, nil
}
