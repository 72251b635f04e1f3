// Package payments holds the payment provider adapters and the pending
// invoice poller. Each adapter normalizes its provider's wire format to
// the PaymentProvider capability; reconciliation never sees
// provider-specific shapes.
package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

const ProviderCryptoPay = "cryptopay"

// CryptoPay is the crypto-invoice provider adapter.
type CryptoPay struct {
	logger *logger.Logger

	baseURL string
	token   string
	asset   string

	http *http.Client
}

func NewCryptoPay(baseURL, token, asset string, logger *logger.Logger) *CryptoPay {
	return &CryptoPay{
		baseURL: baseURL,
		token:   token,
		asset:   asset,
		logger:  logger,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

func (c *CryptoPay) Name() string { return ProviderCryptoPay }

type cryptoInvoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
	PayURL    string `json:"pay_url"`
}

func (c *CryptoPay) CreateIntent(ctx context.Context, tgID int64, amount decimal.Decimal, description string) (*models.PaymentIntent, error) {
	body := map[string]interface{}{
		"asset":       c.asset,
		"amount":      amount.String(),
		"description": description,
		"payload":     fmt.Sprintf("%d", tgID),
	}

	var out struct {
		Ok     bool          `json:"ok"`
		Result cryptoInvoice `json:"result"`
	}
	if err := postJSON(ctx, c.http, c.baseURL+"/api/createInvoice", body, &out, func(req *http.Request) {
		req.Header.Set("Crypto-Pay-API-Token", c.token)
	}); err != nil {
		return nil, fmt.Errorf("failed to create crypto invoice: %s", err)
	}
	if !out.Ok {
		return nil, fmt.Errorf("crypto pay rejected invoice creation")
	}

	return &models.PaymentIntent{
		InvoiceID: fmt.Sprintf("%d", out.Result.InvoiceID),
		PayURL:    out.Result.PayURL,
	}, nil
}

func (c *CryptoPay) CheckStatus(ctx context.Context, invoiceID string) (models.IntentStatus, error) {
	endpoint := c.baseURL + "/api/getInvoices?" + url.Values{"invoice_ids": {invoiceID}}.Encode()

	var out struct {
		Ok     bool `json:"ok"`
		Result struct {
			Items []cryptoInvoice `json:"items"`
		} `json:"result"`
	}
	if err := getJSON(ctx, c.http, endpoint, &out, func(req *http.Request) {
		req.Header.Set("Crypto-Pay-API-Token", c.token)
	}); err != nil {
		return "", fmt.Errorf("failed to get crypto invoice: %s", err)
	}
	if !out.Ok || len(out.Result.Items) == 0 {
		return "", fmt.Errorf("crypto invoice %s not found", invoiceID)
	}

	switch out.Result.Items[0].Status {
	case "paid":
		return models.IntentPaid, nil
	case "active":
		return models.IntentPending, nil
	case "expired":
		return models.IntentFailed, nil
	default:
		c.logger.Warn("Unknown crypto invoice status ", "invoice ", invoiceID, " status ", out.Result.Items[0].Status)
		return models.IntentPending, nil
	}
}

const requestTimeout = 15 * time.Second
