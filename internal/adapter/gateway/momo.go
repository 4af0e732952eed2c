package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// momoRequestType is the MoMo v2 capture-wallet flow.
const momoRequestType = "captureWallet"

// MoMoAdapter implements ports.GatewayAdapter for MoMo.
// IPNs arrive as JSON bodies signed with HMAC-SHA256 over a fixed,
// alphabetically ordered field set.
type MoMoAdapter struct {
	cfg        config.MoMoConfig
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewMoMoAdapter creates a MoMo gateway adapter.
func NewMoMoAdapter(cfg config.MoMoConfig, httpClient HTTPClient, log zerolog.Logger) *MoMoAdapter {
	return &MoMoAdapter{cfg: cfg, httpClient: httpClient, log: log}
}

// Gateway returns the gateway identity.
func (a *MoMoAdapter) Gateway() domain.Gateway {
	return domain.GatewayMoMo
}

// momoCreateResponse is the subset of MoMo's create response we consume.
type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
}

// CreatePayment calls MoMo's create API and returns the pay URL.
func (a *MoMoAdapter) CreatePayment(ctx context.Context, intent ports.PaymentIntent) (string, error) {
	requestID := uuid.NewString()

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		a.cfg.AccessKey, intent.Amount, "", a.cfg.IPNURL, intent.Reference, intent.OrderInfo,
		a.cfg.PartnerCode, a.cfg.RedirectURL, requestID, momoRequestType,
	)

	body := map[string]any{
		"partnerCode": a.cfg.PartnerCode,
		"requestId":   requestID,
		"amount":      intent.Amount,
		"orderId":     intent.Reference,
		"orderInfo":   intent.OrderInfo,
		"redirectUrl": a.cfg.RedirectURL,
		"ipnUrl":      a.cfg.IPNURL,
		"requestType": momoRequestType,
		"extraData":   "",
		"lang":        "vi",
		"signature":   signHMACSHA256(a.cfg.SecretKey, raw),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("marshal momo create request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("build momo create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("call momo create: %w", err))
	}
	defer resp.Body.Close()

	var result momoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperror.InternalError(fmt.Errorf("decode momo create response: %w", err))
	}
	if result.ResultCode != 0 || result.PayURL == "" {
		return "", apperror.InternalError(fmt.Errorf("momo create rejected: code=%d message=%s", result.ResultCode, result.Message))
	}

	a.log.Debug().
		Str("order_id", intent.Reference).
		Int64("amount", intent.Amount).
		Msg("momo payment created")

	return result.PayURL, nil
}

// momoIPNSignedFields is the exact ordered field set MoMo signs in IPNs.
var momoIPNSignedFields = []string{
	"amount", "extraData", "message", "orderId", "orderInfo", "orderType",
	"partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId",
}

// VerifyIPN validates a MoMo IPN field set and normalizes it.
func (a *MoMoAdapter) VerifyIPN(fields map[string]string) (*domain.GatewayNotification, error) {
	for _, required := range []string{"orderId", "amount", "resultCode"} {
		if fields[required] == "" {
			return nil, apperror.ErrMalformedPayload("missing field " + required)
		}
	}
	supplied := fields["signature"]
	if supplied == "" {
		return nil, apperror.ErrMalformedPayload("missing field signature")
	}

	raw := "accessKey=" + a.cfg.AccessKey
	for _, f := range momoIPNSignedFields {
		raw += "&" + f + "=" + fields[f]
	}

	if !signaturesEqual(signHMACSHA256(a.cfg.SecretKey, raw), supplied) {
		return nil, apperror.ErrInvalidSignature()
	}

	amount, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil || amount < 0 {
		return nil, apperror.ErrMalformedPayload("invalid amount " + fields["amount"])
	}

	return &domain.GatewayNotification{
		Gateway:          domain.GatewayMoMo,
		GatewayReference: fields["orderId"],
		Amount:           amount,
		ResultCode:       fields["resultCode"],
		Outcome:          momoOutcome(fields["resultCode"]),
		Signature:        supplied,
		RawPayload:       fields,
	}, nil
}

// momoOutcome maps MoMo result codes onto the canonical outcome set.
// The mapping is a table, not inferred: 0 is the only success code,
// 9000 is authorized-awaiting-capture and 7000/7002 are in-flight,
// all of which MoMo re-notifies with a terminal code later.
func momoOutcome(resultCode string) domain.Outcome {
	switch resultCode {
	case "0":
		return domain.OutcomeSuccess
	case "7000", "7002", "9000":
		return domain.OutcomePendingRetry
	default:
		return domain.OutcomeFailed
	}
}
