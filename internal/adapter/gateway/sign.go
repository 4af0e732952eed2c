package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
)

// HTTPClient interface for testability of gateway create calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// signHMACSHA256 computes HMAC-SHA256 of payload, lowercase hex.
// MoMo signs its create requests and IPNs this way.
func signHMACSHA256(secretKey, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// signHMACSHA512 computes HMAC-SHA512 of payload, lowercase hex.
// VNPay signs its pay URLs and IPNs this way.
func signHMACSHA512(secretKey, payload string) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// signaturesEqual compares hex signatures in constant time.
func signaturesEqual(expected, supplied string) bool {
	return hmac.Equal([]byte(expected), []byte(supplied))
}
