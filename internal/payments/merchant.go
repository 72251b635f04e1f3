package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

const ProviderMerchant = "merchant"

// Merchant is the webhook-driven merchant gateway adapter. Payments are
// normally confirmed by signed webhook callbacks; CheckStatus exists so
// the poller can still pick up invoices whose callbacks were lost.
type Merchant struct {
	logger *logger.Logger

	baseURL    string
	merchantID string
	secretKey  string

	http *http.Client
}

func NewMerchant(baseURL, merchantID, secretKey string, logger *logger.Logger) *Merchant {
	return &Merchant{
		baseURL:    baseURL,
		merchantID: merchantID,
		secretKey:  secretKey,
		logger:     logger,
		http:       &http.Client{Timeout: requestTimeout},
	}
}

func (m *Merchant) Name() string { return ProviderMerchant }

func (m *Merchant) CreateIntent(ctx context.Context, tgID int64, amount decimal.Decimal, description string) (*models.PaymentIntent, error) {
	orderID := uuid.NewString()
	body := map[string]interface{}{
		"merchant_id": m.merchantID,
		"order_id":    orderID,
		"amount":      amount.StringFixed(2),
		"description": description,
		"sign":        m.Sign(orderID, amount.StringFixed(2)),
	}

	var out struct {
		OrderID string `json:"order_id"`
		PayURL  string `json:"pay_url"`
	}
	if err := postJSON(ctx, m.http, m.baseURL+"/api/order/create", body, &out, nil); err != nil {
		return nil, fmt.Errorf("failed to create merchant order: %s", err)
	}
	if out.OrderID == "" {
		out.OrderID = orderID
	}

	return &models.PaymentIntent{InvoiceID: out.OrderID, PayURL: out.PayURL}, nil
}

func (m *Merchant) CheckStatus(ctx context.Context, invoiceID string) (models.IntentStatus, error) {
	body := map[string]interface{}{
		"merchant_id": m.merchantID,
		"order_id":    invoiceID,
		"sign":        m.Sign(invoiceID, ""),
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := postJSON(ctx, m.http, m.baseURL+"/api/order/status", body, &out, nil); err != nil {
		return "", fmt.Errorf("failed to get merchant order: %s", err)
	}

	switch out.Status {
	case "success", "paid":
		return models.IntentPaid, nil
	case "created", "process":
		return models.IntentPending, nil
	case "fail", "expired":
		return models.IntentFailed, nil
	default:
		m.logger.Warn("Unknown merchant order status ", "order ", invoiceID, " status ", out.Status)
		return models.IntentPending, nil
	}
}

// Sign computes the HMAC-SHA256 callback signature over
// merchant_id:order_id:amount. Webhook handlers verify it before
// trusting a callback body.
func (m *Merchant) Sign(orderID, amount string) string {
	mac := hmac.New(sha256.New, []byte(m.secretKey))
	fmt.Fprintf(mac, "%s:%s:%s", m.merchantID, orderID, amount)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySign checks a callback signature in constant time.
func (m *Merchant) VerifySign(orderID, amount, sign string) bool {
	expected := m.Sign(orderID, amount)
	return hmac.Equal([]byte(expected), []byte(sign))
}
