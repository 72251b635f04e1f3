package payments

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

const ProviderCardGate = "cardgate"

// CardGate is the card/SBP payment gateway adapter.
type CardGate struct {
	logger *logger.Logger

	baseURL   string
	shopID    string
	secretKey string
	returnURL string

	http *http.Client
}

func NewCardGate(baseURL, shopID, secretKey, returnURL string, logger *logger.Logger) *CardGate {
	return &CardGate{
		baseURL:   baseURL,
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		logger:    logger,
		http:      &http.Client{Timeout: requestTimeout},
	}
}

func (c *CardGate) Name() string { return ProviderCardGate }

func (c *CardGate) auth(req *http.Request) {
	creds := fmt.Sprintf("%s:%s", c.shopID, c.secretKey)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
}

type cardPayment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

func (c *CardGate) CreateIntent(ctx context.Context, tgID int64, amount decimal.Decimal, description string) (*models.PaymentIntent, error) {
	body := map[string]interface{}{
		"amount": map[string]string{
			"value":    amount.StringFixed(2),
			"currency": "RUB",
		},
		"capture": true,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": c.returnURL,
		},
		"description": description,
		"metadata": map[string]interface{}{
			"tg_id": tgID,
		},
	}

	var out cardPayment
	if err := postJSON(ctx, c.http, c.baseURL+"/v3/payments", body, &out, func(req *http.Request) {
		c.auth(req)
		// One intent per request; a provider-side retry of the same
		// request must not create a second payment.
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}); err != nil {
		return nil, fmt.Errorf("failed to create card payment: %s", err)
	}

	return &models.PaymentIntent{
		InvoiceID: out.ID,
		PayURL:    out.Confirmation.ConfirmationURL,
	}, nil
}

func (c *CardGate) CheckStatus(ctx context.Context, invoiceID string) (models.IntentStatus, error) {
	var out cardPayment
	if err := getJSON(ctx, c.http, c.baseURL+"/v3/payments/"+invoiceID, &out, c.auth); err != nil {
		return "", fmt.Errorf("failed to get card payment: %s", err)
	}

	switch out.Status {
	case "succeeded":
		return models.IntentPaid, nil
	case "pending", "waiting_for_capture":
		return models.IntentPending, nil
	case "canceled":
		return models.IntentFailed, nil
	default:
		c.logger.Warn("Unknown card payment status ", "invoice ", invoiceID, " status ", out.Status)
		return models.IntentPending, nil
	}
}
