package integration

import (
	"net/http"
	"sync"
	"testing"

	"tutor-payment-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The gateway may deliver the same IPN many times in parallel. Exactly
// one delivery may commit the transaction and carve escrow; every
// delivery must still be acknowledged.
func TestIntegration_ConcurrentDuplicateIPNDeliveries(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	userID := uuid.New()
	tutorID := uuid.New()
	classID := uuid.New()

	ref := createPayment(t, app, "momo", "class_registration_fee", 500000, userID, tutorID, classID)
	ipn := momoSignedIPN(ref, 500000, "0")

	const deliveries = 16
	statuses := make([]int, deliveries)
	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func(i int) {
			defer wg.Done()
			resp, _ := postJSON(t, app.server.URL+"/api/payment/momo/ipn", ipn, "")
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, code := range statuses {
		assert.Equal(t, http.StatusNoContent, code, "delivery %d", i)
	}

	// Exactly one commit and one carve
	txn, err := app.txRepo.GetByGatewayReference(t.Context(), domain.GatewayMoMo, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, txn.Status)

	hold, err := app.escrowRepo.GetByClassID(t.Context(), classID)
	require.NoError(t, err)
	require.NotNil(t, hold)
	assert.Equal(t, int64(100000), hold.HeldAmount)

	app.txRepo.mu.RLock()
	holdCount := 0
	for _, row := range app.txRepo.transactions {
		if row.Type == domain.TypeEscrowHold {
			holdCount++
		}
	}
	app.txRepo.mu.RUnlock()
	assert.Equal(t, 1, holdCount)
}
