package dto

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response body for a successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreatePaymentRequest is the request body for payment initiation.
// The gateway is fixed by the route, not the body.
type CreatePaymentRequest struct {
	TransactionType string  `json:"transaction_type" binding:"required"`
	Amount          int64   `json:"amount" binding:"required,gt=0"`
	UserID          string  `json:"user_id" binding:"required,uuid"`
	TutorID         *string `json:"tutor_id,omitempty" binding:"omitempty,uuid"`
	ClassID         *string `json:"class_id,omitempty" binding:"omitempty,uuid"`
	OrderInfo       string  `json:"order_info" binding:"omitempty,max=255"`
}

// CreatePaymentResponse is the response body for payment initiation.
type CreatePaymentResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	PayURL      string              `json:"pay_url"`
}

// RefundRequest is the request body for refund processing.
type RefundRequest struct {
	OriginalTransactionID string `json:"original_transaction_id" binding:"required,uuid"`
	Amount                *int64 `json:"amount,omitempty" binding:"omitempty,gt=0"`
	Reason                string `json:"reason" binding:"required,max=255"`
}

// EscrowReleaseRequest is the request body for releasing held funds.
type EscrowReleaseRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// EscrowHoldResponse is the response body for escrow hold state.
type EscrowHoldResponse struct {
	ClassID           string `json:"class_id"`
	TutorID           string `json:"tutor_id"`
	HoldTransactionID string `json:"hold_transaction_id"`
	HeldAmount        int64  `json:"held_amount"`
	ReleasedAmount    int64  `json:"released_amount"`
	Remaining         int64  `json:"remaining"`
	State             string `json:"state"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// EligiblePayoutResponse is the response body for the payout preview.
type EligiblePayoutResponse struct {
	TutorID        string `json:"tutor_id"`
	EligibleAmount int64  `json:"eligible_amount"`
}

// TransactionResponse is the response body for transaction results.
type TransactionResponse struct {
	ID                   string  `json:"id"`
	TransactionType      string  `json:"transaction_type"`
	Amount               int64   `json:"amount"`
	UserID               string  `json:"user_id"`
	TutorID              *string `json:"tutor_id,omitempty"`
	RelatedClassID       *string `json:"related_class_id,omitempty"`
	RelatedTransactionID *string `json:"related_transaction_id,omitempty"`
	PaymentMethod        string  `json:"payment_method"`
	Status               string  `json:"status"`
	GatewayReference     *string `json:"gateway_reference,omitempty"`
	CreatedAt            string  `json:"created_at"`
	CompletedAt          *string `json:"completed_at,omitempty"`
}

// TransactionListResponse is the paginated transaction listing.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// ReconciliationReportResponse is the dashboard report body.
type ReconciliationReportResponse struct {
	TotalRevenue        int64 `json:"total_revenue"`
	TotalPayouts        int64 `json:"total_payouts"`
	EscrowBalance       int64 `json:"escrow_balance"`
	PendingTransactions int64 `json:"pending_transactions"`
	PendingPayouts      int64 `json:"pending_payouts"`
}

// WalletResponse is the per-user balance projection body.
type WalletResponse struct {
	UserID     string `json:"user_id"`
	Balance    int64  `json:"balance"`
	ComputedAt string `json:"computed_at"`
}

// VNPayIPNAck is the acknowledgment body VNPay expects from the IPN
// endpoint. RspCode "00" stops redelivery; any other code makes VNPay
// retry on its own schedule.
type VNPayIPNAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// VNPayReturnResponse informs the browser after the gateway redirect.
// It is never the authoritative completion signal; the IPN channel is.
type VNPayReturnResponse struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Outcome   string `json:"outcome"`
	Final     bool   `json:"final"` // always false; final state arrives via IPN
}
