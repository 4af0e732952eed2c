package integration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/adapter/gateway"
	httpHandler "tutor-payment-engine/internal/adapter/http/handler"
	redisStorage "tutor-payment-engine/internal/adapter/storage/redis"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/internal/service"
	"tutor-payment-engine/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	momoPartnerCode = "TUTORPAY"
	momoAccessKey   = "test-access-key"
	momoSecretKey   = "test-momo-secret"
	vnpTmnCode      = "TUTORPAY"
	vnpHashSecret   = "test-vnpay-secret"

	operatorUser     = "admin"
	operatorPassword = "correct-horse-battery"
)

// momoStubClient answers MoMo create calls without the network.
type momoStubClient struct{}

func (momoStubClient) Do(req *http.Request) (*http.Response, error) {
	body := `{"resultCode":0,"message":"Success","payUrl":"https://test-payment.momo.vn/pay/abc"}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

// testApp wires the real HTTP layer, middleware, services, gateway
// adapters, and Redis stores over in-memory repositories.
type testApp struct {
	server     *httptest.Server
	redis      *miniredis.Miniredis
	txRepo     *inMemoryTransactionRepo
	escrowRepo *inMemoryEscrowRepo
	auditRepo  *inMemoryAuditRepo
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	escrowRepo := newInMemoryEscrowRepo()
	txRepo := newInMemoryTransactionRepo(escrowRepo)
	idempotencyRepo := newInMemoryIdempotencyRepo()
	walletRepo := newInMemoryWalletRepo(txRepo)
	auditRepo := newInMemoryAuditRepo()
	transactor := newInMemoryTransactor()

	log := logger.New("debug", false)

	hashSvc := service.NewArgon2HashService()
	passwordHash, err := hashSvc.Hash(operatorPassword)
	require.NoError(t, err)
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")
	authSvc := service.NewAuthService(config.DashboardConfig{
		Username:     operatorUser,
		PasswordHash: passwordHash,
	}, hashSvc, tokenSvc)

	momoAdapter := gateway.NewMoMoAdapter(config.MoMoConfig{
		PartnerCode: momoPartnerCode,
		AccessKey:   momoAccessKey,
		SecretKey:   momoSecretKey,
		Endpoint:    "https://test-payment.momo.vn/v2/gateway/api/create",
		RedirectURL: "https://app.test/payment/result",
		IPNURL:      "https://app.test/api/payment/momo/ipn",
	}, momoStubClient{}, log)
	vnpayAdapter := gateway.NewVNPayAdapter(config.VNPayConfig{
		TmnCode:    vnpTmnCode,
		HashSecret: vnpHashSecret,
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://app.test/api/payment/vnpay/return",
	}, log)
	adapters := []ports.GatewayAdapter{momoAdapter, vnpayAdapter}

	paymentSvc := service.NewPaymentService(
		txRepo, escrowRepo, idempotencyRepo, idempotencyCache,
		adapters, transactor, config.EscrowConfig{Percent: 20}, log,
	)
	escrowSvc := service.NewEscrowService(txRepo, escrowRepo, transactor, log)
	payoutSvc := service.NewPayoutService(txRepo, transactor, config.PayoutConfig{Period: 7 * 24 * time.Hour}, log)
	reportingSvc := service.NewReportingService(txRepo, walletRepo)
	auditSvc := service.NewAuditService(auditRepo, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		PaymentSvc:     paymentSvc,
		EscrowSvc:      escrowSvc,
		PayoutSvc:      payoutSvc,
		ReportingSvc:   reportingSvc,
		AuditSvc:       auditSvc,
		TokenSvc:       tokenSvc,
		Adapters:       adapters,
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:     server,
		redis:      mr,
		txRepo:     txRepo,
		escrowRepo: escrowRepo,
		auditRepo:  auditRepo,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// --- Request helpers ---

func postJSON(t *testing.T, url string, payload interface{}, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func login(t *testing.T, app *testApp) string {
	t.Helper()
	resp, body := postJSON(t, app.server.URL+"/api/v1/auth/login", map[string]string{
		"username": operatorUser,
		"password": operatorPassword,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["data"].(map[string]interface{})["token"].(string)
}

// createPayment initiates a payment through the API and returns the
// gateway reference of the pending transaction.
func createPayment(t *testing.T, app *testApp, gatewayPath string, txType string, amount int64, userID, tutorID, classID uuid.UUID) string {
	t.Helper()
	tutorStr := tutorID.String()
	classStr := classID.String()
	resp, body := postJSON(t, app.server.URL+"/api/payment/"+gatewayPath+"/create", map[string]interface{}{
		"transaction_type": txType,
		"amount":           amount,
		"user_id":          userID.String(),
		"tutor_id":         tutorStr,
		"class_id":         classStr,
		"order_info":       "tutor class payment",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	txn := data["transaction"].(map[string]interface{})
	require.NotEmpty(t, data["pay_url"])
	require.Equal(t, "pending", txn["status"])
	return txn["gateway_reference"].(string)
}

var momoSignedFields = []string{
	"amount", "extraData", "message", "orderId", "orderInfo", "orderType",
	"partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId",
}

// momoSignedIPN builds a MoMo IPN body signed with the test secret.
func momoSignedIPN(ref string, amount int64, resultCode string) map[string]interface{} {
	fields := map[string]string{
		"amount":       strconv.FormatInt(amount, 10),
		"extraData":    "",
		"message":      "Successful.",
		"orderId":      ref,
		"orderInfo":    "tutor class payment",
		"orderType":    "momo_wallet",
		"partnerCode":  momoPartnerCode,
		"payType":      "qr",
		"requestId":    ref,
		"responseTime": "1716105300000",
		"resultCode":   resultCode,
		"transId":      "4088878653",
	}

	raw := "accessKey=" + momoAccessKey
	for _, f := range momoSignedFields {
		raw += "&" + f + "=" + fields[f]
	}
	mac := hmac.New(sha256.New, []byte(momoSecretKey))
	mac.Write([]byte(raw))

	body := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["amount"] = amount
	body["signature"] = hex.EncodeToString(mac.Sum(nil))
	return body
}

// vnpaySignedQuery builds a signed VNPay IPN query string.
// vnp_Amount carries the face amount multiplied by 100.
func vnpaySignedQuery(secret, ref string, amount int64, responseCode string) string {
	params := map[string]string{
		"vnp_TmnCode":       vnpTmnCode,
		"vnp_Amount":        strconv.FormatInt(amount*100, 10),
		"vnp_TxnRef":        ref,
		"vnp_ResponseCode":  responseCode,
		"vnp_TransactionNo": "14226112",
		"vnp_BankCode":      "NCB",
		"vnp_PayDate":       "20260830101530",
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var signable strings.Builder
	for i, k := range keys {
		if i > 0 {
			signable.WriteByte('&')
		}
		signable.WriteString(url.QueryEscape(k) + "=" + url.QueryEscape(params[k]))
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(signable.String()))

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("vnp_SecureHash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_LoginAndDashboardAccess(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	// Wrong password is rejected
	resp, _ := postJSON(t, app.server.URL+"/api/v1/auth/login", map[string]string{
		"username": operatorUser,
		"password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Dashboard requires a token
	resp, _ = getJSON(t, app.server.URL+"/api/v1/dashboard/report", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid login grants access
	token := login(t, app)
	resp, body := getJSON(t, app.server.URL+"/api/v1/dashboard/report", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["total_revenue"])
}

func TestIntegration_MoMoPaymentEndToEnd(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()
	classID := uuid.New()

	ref := createPayment(t, app, "momo", "class_registration_fee", 500000, userID, tutorID, classID)

	// Gateway confirms the payment
	resp, _ := postJSON(t, app.server.URL+"/api/payment/momo/ipn", momoSignedIPN(ref, 500000, "0"), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Ledger committed exactly once
	txn, err := app.txRepo.GetByGatewayReference(t.Context(), domain.GatewayMoMo, ref)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, domain.StatusCompleted, txn.Status)

	// 20% of the payment was carved into escrow
	hold, err := app.escrowRepo.GetByClassID(t.Context(), classID)
	require.NoError(t, err)
	require.NotNil(t, hold)
	assert.Equal(t, int64(100000), hold.HeldAmount)
	assert.Equal(t, domain.EscrowOpen, hold.State)

	// Redelivery is acknowledged without a second commit
	resp, _ = postJSON(t, app.server.URL+"/api/payment/momo/ipn", momoSignedIPN(ref, 500000, "0"), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	hold, err = app.escrowRepo.GetByClassID(t.Context(), classID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), hold.HeldAmount)

	// Report reflects the single commit
	token := login(t, app)
	resp, body := getJSON(t, app.server.URL+"/api/v1/dashboard/report", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(500000), data["total_revenue"])
	assert.Equal(t, float64(100000), data["escrow_balance"])

	// Both deliveries left an audit trail (written asynchronously)
	require.Eventually(t, func() bool {
		app.auditRepo.mu.Lock()
		defer app.auditRepo.mu.Unlock()
		return len(app.auditRepo.entries) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIntegration_VNPayTamperedIPNCommitsNothing(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()
	classID := uuid.New()

	ref := createPayment(t, app, "vnpay", "student_payment", 300000, userID, tutorID, classID)

	// Signed with the wrong secret
	query := vnpaySignedQuery("attacker-secret", ref, 300000, "00")
	resp, body := getJSON(t, app.server.URL+"/api/payment/vnpay/ipn?"+query, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "97", body["RspCode"])

	// Nothing committed
	txn, err := app.txRepo.GetByGatewayReference(t.Context(), domain.GatewayVNPay, ref)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, domain.StatusPending, txn.Status)

	hold, err := app.escrowRepo.GetByClassID(t.Context(), classID)
	require.NoError(t, err)
	assert.Nil(t, hold)
}

func TestIntegration_VNPayIPNConfirmAndReplay(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()
	classID := uuid.New()

	ref := createPayment(t, app, "vnpay", "student_payment", 300000, userID, tutorID, classID)

	query := vnpaySignedQuery(vnpHashSecret, ref, 300000, "00")
	resp, body := getJSON(t, app.server.URL+"/api/payment/vnpay/ipn?"+query, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "00", body["RspCode"])

	// Replay gets the already-confirmed acknowledgment
	resp, body = getJSON(t, app.server.URL+"/api/payment/vnpay/ipn?"+query, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "02", body["RspCode"])

	// The return redirect informs without committing anything new
	resp, body = getJSON(t, app.server.URL+"/api/payment/vnpay/return?"+query, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, ref, data["reference"])
	assert.Equal(t, false, data["final"])
}

func TestIntegration_EscrowLifecycleAndPayout(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()
	classID := uuid.New()

	ref := createPayment(t, app, "momo", "student_payment", 500000, userID, tutorID, classID)
	resp, _ := postJSON(t, app.server.URL+"/api/payment/momo/ipn", momoSignedIPN(ref, 500000, "0"), "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	token := login(t, app)

	// Release part of the hold
	resp, body := postJSON(t, app.server.URL+"/api/v1/escrow/"+classID.String()+"/release",
		map[string]int64{"amount": 40000}, token)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = getJSON(t, app.server.URL+"/api/v1/escrow/"+classID.String(), token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "partially_released", data["state"])
	assert.Equal(t, float64(60000), data["remaining"])

	// Forfeit after a release is illegal
	resp, body = postJSON(t, app.server.URL+"/api/v1/escrow/"+classID.String()+"/forfeit", nil, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ESC_001", body["error_code"])

	// Eligible payout: 500000 earned - 100000 held + 40000 released
	resp, body = getJSON(t, app.server.URL+"/api/v1/payouts/"+tutorID.String()+"/eligible", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, float64(440000), data["eligible_amount"])

	// Payout commits the full eligible amount
	resp, body = postJSON(t, app.server.URL+"/api/v1/payouts/"+tutorID.String(), nil, token)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, float64(440000), data["amount"])
	assert.Equal(t, "tutor_payout", data["transaction_type"])

	// A second run finds nothing left to pay
	resp, body = postJSON(t, app.server.URL+"/api/v1/payouts/"+tutorID.String(), nil, token)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "PAYOUT_001", body["error_code"])

	// A remaining payment accrues to the tutor in full: no new escrow
	// carve, so the whole amount becomes payable.
	ref = createPayment(t, app, "momo", "student_payment_remaining", 150000, userID, tutorID, classID)
	resp, _ = postJSON(t, app.server.URL+"/api/payment/momo/ipn", momoSignedIPN(ref, 150000, "0"), "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = getJSON(t, app.server.URL+"/api/v1/payouts/"+tutorID.String()+"/eligible", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, float64(150000), data["eligible_amount"])

	resp, body = postJSON(t, app.server.URL+"/api/v1/payouts/"+tutorID.String(), nil, token)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, float64(150000), data["amount"])
}

func TestIntegration_LateSuccessAfterSweepStaysFailed(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()
	classID := uuid.New()

	ref := createPayment(t, app, "momo", "class_registration_fee", 500000, userID, tutorID, classID)

	// The sweeper gives up on the pending row before the gateway answers
	expired, err := app.txRepo.ExpireStalePending(t.Context(), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	// The gateway's success arrives late: acknowledged, never applied
	resp, _ := postJSON(t, app.server.URL+"/api/payment/momo/ipn", momoSignedIPN(ref, 500000, "0"), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	txn, err := app.txRepo.GetByGatewayReference(t.Context(), domain.GatewayMoMo, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, txn.Status)

	hold, err := app.escrowRepo.GetByClassID(t.Context(), classID)
	require.NoError(t, err)
	assert.Nil(t, hold)
}

func TestIntegration_RefundOnceOnly(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()
	classID := uuid.New()

	ref := createPayment(t, app, "momo", "class_registration_fee", 200000, userID, tutorID, classID)
	resp, _ := postJSON(t, app.server.URL+"/api/payment/momo/ipn", momoSignedIPN(ref, 200000, "0"), "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	txn, err := app.txRepo.GetByGatewayReference(t.Context(), domain.GatewayMoMo, ref)
	require.NoError(t, err)

	token := login(t, app)

	resp, body := postJSON(t, app.server.URL+"/api/v1/payments/refund", map[string]interface{}{
		"original_transaction_id": txn.ID.String(),
		"reason":                  "class cancelled by platform",
	}, token)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "refund", data["transaction_type"])
	assert.Equal(t, float64(200000), data["amount"])

	// Second refund of the same original is rejected
	resp, body = postJSON(t, app.server.URL+"/api/v1/payments/refund", map[string]interface{}{
		"original_transaction_id": txn.ID.String(),
		"reason":                  "duplicate request",
	}, token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "PAY_006", body["error_code"])

	// Wallet projection nets the payment against the refund
	resp, body = getJSON(t, app.server.URL+"/api/v1/wallets/"+userID.String()+"/balance", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["balance"])
}

func TestIntegration_ListTransactionsFilters(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()

	for i := 0; i < 3; i++ {
		classID := uuid.New()
		ref := createPayment(t, app, "momo", "class_registration_fee", 100000, userID, tutorID, classID)
		resp, _ := postJSON(t, app.server.URL+"/api/payment/momo/ipn", momoSignedIPN(ref, 100000, "0"), "")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	token := login(t, app)

	resp, body := getJSON(t, app.server.URL+"/api/v1/transactions?user_id="+userID.String()+
		"&type=class_registration_fee&status=completed", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])
	assert.Len(t, data["items"], 3)
}
