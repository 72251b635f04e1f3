package http_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/payments"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

type reconcileCall struct {
	provider  string
	invoiceID string
}

// channelReconciler lets tests await the async reconciliation kicked
// off by a webhook handler.
type channelReconciler struct {
	calls chan reconcileCall
}

func newChannelReconciler() *channelReconciler {
	return &channelReconciler{calls: make(chan reconcileCall, 8)}
}

func (r *channelReconciler) HandlePaid(_ context.Context, provider, invoiceID string) error {
	r.calls <- reconcileCall{provider: provider, invoiceID: invoiceID}
	return nil
}

func (r *channelReconciler) await(t *testing.T) reconcileCall {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("reconciliation was not triggered")
		return reconcileCall{}
	}
}

func (r *channelReconciler) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case call := <-r.calls:
		t.Fatalf("unexpected reconciliation of %s/%s", call.provider, call.invoiceID)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestServer(t *testing.T) (*HTTPServer, *channelReconciler, *payments.Merchant) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := newChannelReconciler()
	merchant := payments.NewMerchant("https://merchant.example", "shop-1", "secret", logger.NewNop())
	return NewHTTPServer(rec, merchant, 0, logger.NewNop()), rec, merchant
}

func postBody(t *testing.T, server *HTTPServer, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestCryptoPayWebhookPaid(t *testing.T) {
	server, rec, _ := newTestServer(t)

	w := postBody(t, server, "/webhook/cryptopay", map[string]interface{}{
		"update_type": "invoice_paid",
		"payload":     map[string]interface{}{"invoice_id": 12345, "status": "paid"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	call := rec.await(t)
	assert.Equal(t, payments.ProviderCryptoPay, call.provider)
	assert.Equal(t, "12345", call.invoiceID)
}

func TestCryptoPayWebhookIgnoresNonPaid(t *testing.T) {
	server, rec, _ := newTestServer(t)

	w := postBody(t, server, "/webhook/cryptopay", map[string]interface{}{
		"update_type": "invoice_paid",
		"payload":     map[string]interface{}{"invoice_id": 12345, "status": "active"},
	})
	// Acknowledged so the provider stops retrying, but nothing runs.
	assert.Equal(t, http.StatusOK, w.Code)
	rec.assertQuiet(t)
}

func TestCryptoPayWebhookBadBody(t *testing.T) {
	server, rec, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/cryptopay", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	rec.assertQuiet(t)
}

func TestMerchantWebhookValidSignature(t *testing.T) {
	server, rec, merchant := newTestServer(t)

	w := postBody(t, server, "/webhook/merchant", map[string]interface{}{
		"order_id": "order-1",
		"amount":   "449.00",
		"status":   "success",
		"sign":     merchant.Sign("order-1", "449.00"),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	call := rec.await(t)
	assert.Equal(t, payments.ProviderMerchant, call.provider)
	assert.Equal(t, "order-1", call.invoiceID)
}

func TestMerchantWebhookRejectsBadSignature(t *testing.T) {
	server, rec, merchant := newTestServer(t)

	// Signed for a different amount: a tampered callback.
	w := postBody(t, server, "/webhook/merchant", map[string]interface{}{
		"order_id": "order-1",
		"amount":   "1.00",
		"status":   "success",
		"sign":     merchant.Sign("order-1", "449.00"),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	rec.assertQuiet(t)
}

func TestMerchantWebhookIgnoresNonTerminalStatus(t *testing.T) {
	server, rec, merchant := newTestServer(t)

	w := postBody(t, server, "/webhook/merchant", map[string]interface{}{
		"order_id": "order-1",
		"amount":   "449.00",
		"status":   "process",
		"sign":     merchant.Sign("order-1", "449.00"),
	})
	assert.Equal(t, http.StatusOK, w.Code)
	rec.assertQuiet(t)
}

func TestStatusEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
