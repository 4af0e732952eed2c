package domain

// Gateway identifies a supported payment gateway.
type Gateway string

const (
	GatewayMoMo  Gateway = "momo"
	GatewayVNPay Gateway = "vnpay"
)

// PaymentMethodFor maps a gateway to the payment method recorded on the
// transactions it settles.
func PaymentMethodFor(g Gateway) PaymentMethod {
	if g == GatewayVNPay {
		return MethodVNPay
	}
	return MethodMoMo
}

// Outcome is the canonical result of a gateway notification. Each
// gateway's numeric code vocabulary maps onto this set inside its
// adapter; nothing downstream branches on gateway identity.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeFailed       Outcome = "failed"
	OutcomePendingRetry Outcome = "pending_retry"
)

// GatewayNotification is a verified, normalized gateway callback.
// It is transient: nothing beyond the idempotency record persists it.
type GatewayNotification struct {
	Gateway          Gateway
	GatewayReference string
	Amount           int64
	ResultCode       string
	Outcome          Outcome
	Signature        string
	RawPayload       map[string]string
}
