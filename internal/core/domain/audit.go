package domain

import (
	"time"

	"github.com/google/uuid"
)

// IPNAudit records a single inbound gateway notification delivery,
// valid or not. The trail is for operators reconciling against the
// gateway dashboard; it carries no business state.
type IPNAudit struct {
	ID               uuid.UUID `json:"id"`
	Gateway          Gateway   `json:"gateway"`
	GatewayReference string    `json:"gateway_reference"`
	ResultCode       string    `json:"result_code"`
	SignatureValid   bool      `json:"signature_valid"`
	Outcome          string    `json:"outcome"` // processed, already_processed, pending, rejected, error
	ClientIP         string    `json:"client_ip"`
	ReceivedAt       time.Time `json:"received_at"`
}

// IPN audit outcomes.
const (
	IPNOutcomeProcessed        = "processed"
	IPNOutcomeAlreadyProcessed = "already_processed"
	IPNOutcomePending          = "pending" // verified but not applied; gateway asked to redeliver
	IPNOutcomeRejected         = "rejected"
	IPNOutcomeError            = "error"
)
