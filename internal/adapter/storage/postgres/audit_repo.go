package postgres

import (
	"context"
	"fmt"

	"tutor-payment-engine/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Create appends an IPN audit entry. Audit rows are written outside the
// ledger transaction: a rejected or failed delivery still leaves a trail.
func (r *AuditRepo) Create(ctx context.Context, entry *domain.IPNAudit) error {
	query := `INSERT INTO ipn_audits (id, gateway, gateway_reference, result_code, signature_valid, outcome, client_ip, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.Gateway, entry.GatewayReference, entry.ResultCode,
		entry.SignatureValid, entry.Outcome, entry.ClientIP, entry.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ipn audit: %w", err)
	}
	return nil
}
