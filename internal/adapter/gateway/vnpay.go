package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// VNPayAdapter implements ports.GatewayAdapter for VNPay.
// VNPay carries everything in query parameters: the payment is a signed
// redirect URL and the IPN is a signed GET callback. Signatures are
// HMAC-SHA512 over the sorted, url-encoded vnp_ parameter string.
type VNPayAdapter struct {
	cfg config.VNPayConfig
	log zerolog.Logger
	now func() time.Time
}

// NewVNPayAdapter creates a VNPay gateway adapter.
func NewVNPayAdapter(cfg config.VNPayConfig, log zerolog.Logger) *VNPayAdapter {
	return &VNPayAdapter{cfg: cfg, log: log, now: time.Now}
}

// Gateway returns the gateway identity.
func (a *VNPayAdapter) Gateway() domain.Gateway {
	return domain.GatewayVNPay
}

// CreatePayment builds the signed VNPay redirect URL. VNPay has no
// server-to-server create call; the signed URL is the payment.
func (a *VNPayAdapter) CreatePayment(_ context.Context, intent ports.PaymentIntent) (string, error) {
	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    a.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(intent.Amount*100, 10),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     intent.Reference,
		"vnp_OrderInfo":  intent.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_IpAddr":     intent.ClientIP,
		"vnp_ReturnUrl":  a.cfg.ReturnURL,
		"vnp_CreateDate": a.now().Format("20060102150405"),
	}

	query := canonicalQuery(params)
	signature := signHMACSHA512(a.cfg.HashSecret, query)

	a.log.Debug().
		Str("txn_ref", intent.Reference).
		Int64("amount", intent.Amount).
		Msg("vnpay payment url built")

	return a.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + signature, nil
}

// VerifyIPN validates a VNPay callback parameter set and normalizes it.
func (a *VNPayAdapter) VerifyIPN(fields map[string]string) (*domain.GatewayNotification, error) {
	for _, required := range []string{"vnp_TxnRef", "vnp_Amount", "vnp_ResponseCode"} {
		if fields[required] == "" {
			return nil, apperror.ErrMalformedPayload("missing field " + required)
		}
	}
	supplied := fields["vnp_SecureHash"]
	if supplied == "" {
		return nil, apperror.ErrMalformedPayload("missing field vnp_SecureHash")
	}

	signable := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if strings.HasPrefix(k, "vnp_") {
			signable[k] = v
		}
	}

	if !signaturesEqual(signHMACSHA512(a.cfg.HashSecret, canonicalQuery(signable)), supplied) {
		return nil, apperror.ErrInvalidSignature()
	}

	// vnp_Amount carries the face amount multiplied by 100.
	rawAmount, err := strconv.ParseInt(fields["vnp_Amount"], 10, 64)
	if err != nil || rawAmount < 0 || rawAmount%100 != 0 {
		return nil, apperror.ErrMalformedPayload("invalid vnp_Amount " + fields["vnp_Amount"])
	}

	return &domain.GatewayNotification{
		Gateway:          domain.GatewayVNPay,
		GatewayReference: fields["vnp_TxnRef"],
		Amount:           rawAmount / 100,
		ResultCode:       fields["vnp_ResponseCode"],
		Outcome:          vnpayOutcome(fields["vnp_ResponseCode"]),
		Signature:        supplied,
		RawPayload:       fields,
	}, nil
}

// canonicalQuery sorts keys and url-encodes values the way VNPay signs:
// spaces become '+', keys in byte order.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%s", url.QueryEscape(k), url.QueryEscape(params[k]))
	}
	return b.String()
}

// vnpayOutcome maps VNPay response codes onto the canonical outcome set.
// 00 is the only success code; 07 flags a suspicious-but-held payment
// that VNPay finalizes in a later notification.
func vnpayOutcome(responseCode string) domain.Outcome {
	switch responseCode {
	case "00":
		return domain.OutcomeSuccess
	case "07":
		return domain.OutcomePendingRetry
	default:
		return domain.OutcomeFailed
	}
}
