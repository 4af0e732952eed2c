package handler

import (
	"tutor-payment-engine/internal/adapter/http/dto"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"
	"tutor-payment-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler handles tutor payout endpoints.
type PayoutHandler struct {
	payoutSvc ports.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(payoutSvc ports.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

// GetEligible handles GET /api/v1/payouts/:tutor_id/eligible.
func (h *PayoutHandler) GetEligible(c *gin.Context) {
	tutorID, err := uuid.Parse(c.Param("tutor_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid tutor_id"))
		return
	}

	amount, err := h.payoutSvc.ComputeEligiblePayout(c.Request.Context(), tutorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.EligiblePayoutResponse{
		TutorID:        tutorID.String(),
		EligibleAmount: amount,
	})
}

// Process handles POST /api/v1/payouts/:tutor_id.
func (h *PayoutHandler) Process(c *gin.Context) {
	tutorID, err := uuid.Parse(c.Param("tutor_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid tutor_id"))
		return
	}

	txn, err := h.payoutSvc.ProcessPayout(c.Request.Context(), tutorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}
