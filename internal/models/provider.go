package models

import (
	"context"

	"github.com/shopspring/decimal"
)

// IntentStatus is the normalized status of a provider invoice.
type IntentStatus string

const (
	IntentPaid    IntentStatus = "paid"
	IntentPending IntentStatus = "pending"
	IntentFailed  IntentStatus = "failed"
)

// PaymentIntent is the normalized result of creating a provider invoice.
type PaymentIntent struct {
	// InvoiceID is the provider-assigned identifier.
	InvoiceID string `json:"invoice_id"`
	// PayURL is where the user completes the payment.
	PayURL string `json:"pay_url"`
}

// PaymentProvider is the capability every payment backend implements:
// create an invoice and check its status. Provider-specific wire formats
// stay inside the adapters; the engine only sees the normalized shapes.
type PaymentProvider interface {
	// Name identifies the provider in Payment rows and poller logs.
	Name() string
	CreateIntent(ctx context.Context, tgID int64, amount decimal.Decimal, description string) (*PaymentIntent, error)
	CheckStatus(ctx context.Context, invoiceID string) (IntentStatus, error)
}

// NotificationService delivers outbound user messages. Fire and forget:
// failures are logged by implementations and never roll back a committed
// activation.
type NotificationService interface {
	SendMessage(tgID int64, text string)
}

// Reconciler converts observed "paid" signals into applied entitlement
// changes exactly once. Implemented by the reconciliation engine and
// consumed by webhook handlers and pollers.
type Reconciler interface {
	HandlePaid(ctx context.Context, provider, invoiceID string) error
}
