package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tutor-payment-engine/internal/adapter/http/dto"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"
	"tutor-payment-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentHandler handles payment initiation, gateway callbacks and refunds.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
	adapters   map[domain.Gateway]ports.GatewayAdapter
	auditSvc   ports.AuditService // nil = audit logging disabled
	log        zerolog.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService, adapters []ports.GatewayAdapter, auditSvc ports.AuditService, log zerolog.Logger) *PaymentHandler {
	m := make(map[domain.Gateway]ports.GatewayAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Gateway()] = a
	}
	return &PaymentHandler{paymentSvc: paymentSvc, adapters: m, auditSvc: auditSvc, log: log}
}

// CreateMoMoPayment handles POST /api/payment/momo/create.
func (h *PaymentHandler) CreateMoMoPayment(c *gin.Context) {
	h.createPayment(c, domain.GatewayMoMo)
}

// CreateVNPayPayment handles POST /api/payment/vnpay/create.
func (h *PaymentHandler) CreateVNPayPayment(c *gin.Context) {
	h.createPayment(c, domain.GatewayVNPay)
}

func (h *PaymentHandler) createPayment(c *gin.Context, gateway domain.Gateway) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txType, ok := domain.ParseTransactionType(req.TransactionType)
	if !ok {
		response.Error(c, apperror.ErrInvalidTransactionType())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid user_id"))
		return
	}

	svcReq := ports.CreatePaymentRequest{
		Gateway:   gateway,
		Type:      txType,
		Amount:    req.Amount,
		UserID:    userID,
		OrderInfo: req.OrderInfo,
		ClientIP:  c.ClientIP(),
	}
	if req.TutorID != nil {
		id, err := uuid.Parse(*req.TutorID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid tutor_id"))
			return
		}
		svcReq.TutorID = &id
	}
	if req.ClassID != nil {
		id, err := uuid.Parse(*req.ClassID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid class_id"))
			return
		}
		svcReq.ClassID = &id
	}

	result, err := h.paymentSvc.CreatePayment(c.Request.Context(), svcReq)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreatePaymentResponse{
		Transaction: toTransactionResponse(result.Transaction),
		PayURL:      result.PayURL,
	})
}

// MoMoIPN handles POST /api/payment/momo/ipn. MoMo expects
// 204 No Content as the acknowledgment; anything else triggers
// redelivery on MoMo's schedule.
func (h *PaymentHandler) MoMoIPN(c *gin.Context) {
	fields, err := flattenJSONBody(c)
	if err != nil {
		h.audit(c, domain.GatewayMoMo, fields, false, domain.IPNOutcomeRejected)
		c.Status(http.StatusBadRequest)
		return
	}

	notif, err := h.adapters[domain.GatewayMoMo].VerifyIPN(fields)
	if err != nil {
		h.audit(c, domain.GatewayMoMo, fields, false, domain.IPNOutcomeRejected)
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			c.Status(appErr.HTTPStatus)
			return
		}
		c.Status(http.StatusBadRequest)
		return
	}

	result, err := h.paymentSvc.HandleNotification(c.Request.Context(), notif)
	if err != nil {
		outcome := domain.IPNOutcomeError
		status := http.StatusInternalServerError
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
			outcome = domain.IPNOutcomeRejected
			status = appErr.HTTPStatus
		}
		h.audit(c, domain.GatewayMoMo, fields, true, outcome)
		c.Status(status)
		return
	}

	switch {
	case result.PendingRetry:
		// A non-2xx keeps MoMo redelivering until the outcome settles.
		h.audit(c, domain.GatewayMoMo, fields, true, domain.IPNOutcomePending)
		c.Status(http.StatusInternalServerError)
	case result.AlreadyProcessed:
		h.audit(c, domain.GatewayMoMo, fields, true, domain.IPNOutcomeAlreadyProcessed)
		c.Status(http.StatusNoContent)
	default:
		h.audit(c, domain.GatewayMoMo, fields, true, domain.IPNOutcomeProcessed)
		c.Status(http.StatusNoContent)
	}
}

// VNPayIPN handles GET|POST /api/payment/vnpay/ipn. VNPay expects a
// JSON body with RspCode; "00" stops redelivery, any other code makes
// VNPay retry.
func (h *PaymentHandler) VNPayIPN(c *gin.Context) {
	fields := formFields(c)

	notif, err := h.adapters[domain.GatewayVNPay].VerifyIPN(fields)
	if err != nil {
		h.audit(c, domain.GatewayVNPay, fields, false, domain.IPNOutcomeRejected)
		c.JSON(http.StatusOK, vnpayAckForError(err))
		return
	}

	result, err := h.paymentSvc.HandleNotification(c.Request.Context(), notif)
	if err != nil {
		outcome := domain.IPNOutcomeError
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
			outcome = domain.IPNOutcomeRejected
		}
		h.audit(c, domain.GatewayVNPay, fields, true, outcome)
		c.JSON(http.StatusOK, vnpayAckForError(err))
		return
	}

	switch {
	case result.PendingRetry:
		h.audit(c, domain.GatewayVNPay, fields, true, domain.IPNOutcomePending)
		c.JSON(http.StatusOK, dto.VNPayIPNAck{RspCode: "99", Message: "Unknown error"})
	case result.AlreadyProcessed:
		h.audit(c, domain.GatewayVNPay, fields, true, domain.IPNOutcomeAlreadyProcessed)
		c.JSON(http.StatusOK, dto.VNPayIPNAck{RspCode: "02", Message: "Order already confirmed"})
	default:
		h.audit(c, domain.GatewayVNPay, fields, true, domain.IPNOutcomeProcessed)
		c.JSON(http.StatusOK, dto.VNPayIPNAck{RspCode: "00", Message: "Confirm Success"})
	}
}

// VNPayReturn handles GET /api/payment/vnpay/return. The redirect only
// informs the browser; it never commits ledger state. The IPN channel
// is the authoritative completion signal.
func (h *PaymentHandler) VNPayReturn(c *gin.Context) {
	fields := formFields(c)

	notif, err := h.adapters[domain.GatewayVNPay].VerifyIPN(fields)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.VNPayReturnResponse{
		Reference: notif.GatewayReference,
		Amount:    notif.Amount,
		Outcome:   string(notif.Outcome),
		Final:     false,
	})
}

// ProcessRefund handles POST /api/v1/payments/refund.
func (h *PaymentHandler) ProcessRefund(c *gin.Context) {
	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	origID, err := uuid.Parse(req.OriginalTransactionID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid original_transaction_id"))
		return
	}

	result, err := h.paymentSvc.ProcessRefund(c.Request.Context(), ports.RefundRequest{
		OriginalTransactionID: origID,
		Amount:                req.Amount,
		Reason:                req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(result))
}

// vnpayAckForError maps a verification or processing error onto the
// VNPay response-code protocol.
func vnpayAckForError(err error) dto.VNPayIPNAck {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case "VER_001":
			return dto.VNPayIPNAck{RspCode: "97", Message: "Invalid Checksum"}
		case "VER_003":
			return dto.VNPayIPNAck{RspCode: "04", Message: "Invalid amount"}
		case "PAY_003":
			return dto.VNPayIPNAck{RspCode: "01", Message: "Order not found"}
		}
	}
	return dto.VNPayIPNAck{RspCode: "99", Message: "Unknown error"}
}

// audit records the delivery, fire-and-forget.
func (h *PaymentHandler) audit(c *gin.Context, gateway domain.Gateway, fields map[string]string, sigValid bool, outcome string) {
	if h.auditSvc == nil {
		return
	}
	ref := fields["orderId"]
	if ref == "" {
		ref = fields["vnp_TxnRef"]
	}
	code := fields["resultCode"]
	if code == "" {
		code = fields["vnp_ResponseCode"]
	}
	h.auditSvc.Record(c.Request.Context(), &domain.IPNAudit{
		ID:               uuid.New(),
		Gateway:          gateway,
		GatewayReference: ref,
		ResultCode:       code,
		SignatureValid:   sigValid,
		Outcome:          outcome,
		ClientIP:         c.ClientIP(),
		ReceivedAt:       time.Now().UTC(),
	})
}

// flattenJSONBody decodes a JSON object body into a flat string map.
// MoMo sends amount, transId and resultCode as JSON numbers; UseNumber
// keeps their exact decimal form for signature reconstruction.
func flattenJSONBody(c *gin.Context) (map[string]string, error) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ipn body: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			if val {
				fields[k] = "true"
			} else {
				fields[k] = "false"
			}
		case nil:
			fields[k] = ""
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return fields, nil
}

// formFields collects query and form parameters into a flat string map.
// VNPay delivers the IPN as query parameters on GET and as form fields
// on POST; both channels end up here.
func formFields(c *gin.Context) map[string]string {
	_ = c.Request.ParseForm()
	fields := make(map[string]string, len(c.Request.Form))
	for k, vs := range c.Request.Form {
		if len(vs) > 0 {
			fields[k] = vs[0]
		}
	}
	return fields
}

// toTransactionResponse converts domain.Transaction to DTO.
func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:              tx.ID.String(),
		TransactionType: string(tx.Type),
		Amount:          tx.Amount,
		UserID:          tx.UserID.String(),
		PaymentMethod:   string(tx.PaymentMethod),
		Status:          string(tx.Status),
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.TutorID != nil {
		s := tx.TutorID.String()
		resp.TutorID = &s
	}
	if tx.RelatedClassID != nil {
		s := tx.RelatedClassID.String()
		resp.RelatedClassID = &s
	}
	if tx.RelatedTransactionID != nil {
		s := tx.RelatedTransactionID.String()
		resp.RelatedTransactionID = &s
	}
	resp.GatewayReference = tx.GatewayReference
	if tx.CompletedAt != nil {
		s := tx.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}
