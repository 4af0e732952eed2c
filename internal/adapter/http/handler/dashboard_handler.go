package handler

import (
	"math"
	"strconv"
	"time"

	"tutor-payment-engine/internal/adapter/http/dto"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"
	"tutor-payment-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DashboardHandler handles the read-only reconciliation surface.
type DashboardHandler struct {
	reportingSvc ports.ReportingService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(reportingSvc ports.ReportingService) *DashboardHandler {
	return &DashboardHandler{reportingSvc: reportingSvc}
}

// GetReport handles GET /api/v1/dashboard/report.
func (h *DashboardHandler) GetReport(c *gin.Context) {
	report, err := h.reportingSvc.GetReconciliationReport(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ReconciliationReportResponse{
		TotalRevenue:        report.TotalRevenue,
		TotalPayouts:        report.TotalPayouts,
		EscrowBalance:       report.EscrowBalance,
		PendingTransactions: report.PendingTransactions,
		PendingPayouts:      report.PendingPayouts,
	})
}

// ListTransactions handles GET /api/v1/transactions.
func (h *DashboardHandler) ListTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := ports.TransactionListParams{
		Page:     page,
		PageSize: pageSize,
	}

	if s := c.Query("user_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid user_id"))
			return
		}
		params.UserID = &id
	}
	if s := c.Query("tutor_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid tutor_id"))
			return
		}
		params.TutorID = &id
	}
	if s := c.Query("class_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid class_id"))
			return
		}
		params.ClassID = &id
	}
	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		params.Status = &status
	}
	if s := c.Query("type"); s != "" {
		txType, ok := domain.ParseTransactionType(s)
		if !ok {
			response.Error(c, apperror.ErrInvalidTransactionType())
			return
		}
		params.Type = &txType
	}
	if f := c.Query("from"); f != "" {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			params.From = &v
		}
	}
	if t := c.Query("to"); t != "" {
		if v, err := strconv.ParseInt(t, 10, 64); err == nil {
			params.To = &v
		}
	}

	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResponse(&txns[i]))
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// GetWalletBalance handles GET /api/v1/wallets/:user_id/balance.
func (h *DashboardHandler) GetWalletBalance(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid user_id"))
		return
	}

	wallet, err := h.reportingSvc.GetWalletBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletResponse{
		UserID:     wallet.UserID.String(),
		Balance:    wallet.Balance,
		ComputedAt: wallet.ComputedAt.Format(time.RFC3339),
	})
}
