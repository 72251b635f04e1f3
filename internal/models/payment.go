package models

import "github.com/shopspring/decimal"

// PaymentStatus is the lifecycle state of a payment attempt.
type PaymentStatus string

const (
	// PaymentPending means a provider intent was issued and not yet resolved.
	PaymentPending PaymentStatus = "pending"
	// PaymentPaid means the payment was confirmed and fully applied.
	PaymentPaid PaymentStatus = "paid"
	// PaymentPaidPendingProvisioning means the ledger transitioned to paid
	// but the remote provisioning step failed afterwards. This state is
	// never retried automatically and requires operator attention.
	PaymentPaidPendingProvisioning PaymentStatus = "paid_pending_provisioning"
	// PaymentFailed means the provider reported a terminal failure.
	PaymentFailed PaymentStatus = "failed"
	// PaymentCancelled means the invoice was cancelled or expired.
	PaymentCancelled PaymentStatus = "cancelled"
)

// Payment records a payment attempt against an external provider.
// (provider, invoice_id) is unique and is the idempotency anchor: the
// pending -> paid transition happens at most once per invoice.
type Payment struct {
	// ID is the internal identifier for the payment.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// TgID is the user that initiated the payment.
	TgID int64 `json:"tg_id" gorm:"column:tg_id;index"`
	// Provider is the name of the payment provider that issued the invoice.
	Provider string `json:"provider" gorm:"column:provider;uniqueIndex:idx_provider_invoice"`
	// InvoiceID is the provider-assigned identifier of the invoice.
	InvoiceID string `json:"invoice_id" gorm:"column:invoice_id;uniqueIndex:idx_provider_invoice"`
	// TariffCode is the purchased tariff, or TariffTopup for balance top-ups.
	TariffCode string `json:"tariff_code" gorm:"column:tariff_code"`
	// Amount is the invoice amount.
	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric"`
	// Status is the lifecycle state. Transitions are monotonic:
	// pending -> paid | failed | cancelled, nothing after paid.
	Status PaymentStatus `json:"status" gorm:"column:status;index"`
	// CreatedAt is the Unix timestamp the intent was issued.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}

// PartnerTariffStat counts purchases per tariff made by a partner's
// referred users. Shown on the partner dashboard.
type PartnerTariffStat struct {
	ID         int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PartnerID  int64  `json:"partner_id" gorm:"column:partner_id;uniqueIndex:idx_partner_tariff"`
	TariffCode string `json:"tariff_code" gorm:"column:tariff_code;uniqueIndex:idx_partner_tariff"`
	Purchases  int64  `json:"purchases" gorm:"column:purchases"`
}
