package service

import (
	"context"

	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, IPN deliveries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Record logs an IPN delivery asynchronously (fire-and-forget).
func (s *auditService) Record(ctx context.Context, entry *domain.IPNAudit) {
	go func() {
		s.log.Info().
			Str("gateway", string(entry.Gateway)).
			Str("reference", entry.GatewayReference).
			Str("result_code", entry.ResultCode).
			Bool("signature_valid", entry.SignatureValid).
			Str("outcome", entry.Outcome).
			Str("ip", entry.ClientIP).
			Msg("ipn received")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("reference", entry.GatewayReference).Msg("failed to persist ipn audit")
			}
		}
	}()
}
