package handler

import (
	"time"

	"tutor-payment-engine/internal/adapter/http/dto"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"
	"tutor-payment-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EscrowHandler handles escrow hold lifecycle endpoints.
type EscrowHandler struct {
	escrowSvc ports.EscrowService
}

// NewEscrowHandler creates a new EscrowHandler.
func NewEscrowHandler(escrowSvc ports.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrowSvc: escrowSvc}
}

// Release handles POST /api/v1/escrow/:class_id/release.
func (h *EscrowHandler) Release(c *gin.Context) {
	classID, err := uuid.Parse(c.Param("class_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid class_id"))
		return
	}

	var req dto.EscrowReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.escrowSvc.Release(c.Request.Context(), classID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}

// Forfeit handles POST /api/v1/escrow/:class_id/forfeit.
func (h *EscrowHandler) Forfeit(c *gin.Context) {
	classID, err := uuid.Parse(c.Param("class_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid class_id"))
		return
	}

	txn, err := h.escrowSvc.Forfeit(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}

// Get handles GET /api/v1/escrow/:class_id.
func (h *EscrowHandler) Get(c *gin.Context) {
	classID, err := uuid.Parse(c.Param("class_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid class_id"))
		return
	}

	hold, err := h.escrowSvc.GetByClassID(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toEscrowHoldResponse(hold))
}

func toEscrowHoldResponse(hold *domain.EscrowHold) dto.EscrowHoldResponse {
	return dto.EscrowHoldResponse{
		ClassID:           hold.ClassID.String(),
		TutorID:           hold.TutorID.String(),
		HoldTransactionID: hold.HoldTransactionID.String(),
		HeldAmount:        hold.HeldAmount,
		ReleasedAmount:    hold.ReleasedAmount,
		Remaining:         hold.Remaining(),
		State:             string(hold.State),
		CreatedAt:         hold.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         hold.UpdatedAt.Format(time.RFC3339),
	}
}
