package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Gateway Verification (VER) ----

func ErrInvalidSignature() *AppError {
	return New("VER_001", "Invalid gateway signature", http.StatusUnauthorized)
}

func ErrMalformedPayload(detail string) *AppError {
	return New("VER_002", fmt.Sprintf("Malformed gateway payload: %s", detail), http.StatusBadRequest)
}

func ErrAmountMismatch() *AppError {
	return New("VER_003", "Notification amount does not match the payment intent", http.StatusBadRequest)
}

// ---- Ledger & Payment (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_001", "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidTransactionType() *AppError {
	return New("PAY_002", "Transaction type cannot be initiated through a gateway", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_003", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidRefund() *AppError {
	return New("PAY_004", "Original transaction not eligible for refund", http.StatusBadRequest)
}

func ErrRefundAmountExceedsOriginal() *AppError {
	return New("PAY_005", "Refund amount exceeds original transaction amount", http.StatusBadRequest)
}

func ErrDuplicateRefund() *AppError {
	return New("PAY_006", "A refund already exists for this transaction", http.StatusConflict)
}

// ---- Escrow (ESC) ----

// ErrEscrowViolation marks an illegal escrow transition. The triggering
// transaction is rejected before it reaches the ledger.
func ErrEscrowViolation(err error) *AppError {
	return Wrap("ESC_001", "Escrow state violation", http.StatusConflict, err)
}

// ---- Payout (PAYOUT) ----

// ErrNoEligibleBalance is the benign outcome of a payout run with
// nothing to pay. Reported, not retried.
func ErrNoEligibleBalance() *AppError {
	return New("PAYOUT_001", "No eligible balance to pay out", http.StatusUnprocessableEntity)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
