package models

import "github.com/shopspring/decimal"

// Repository is the persistence boundary for users, payments and the
// affiliate ledgers. All entitlement mutations go through lock-guarded
// callers; the repository itself only provides the atomic primitives.
type Repository interface {
	// EnsureUser inserts the user on first contact, recording the
	// referrer if given. Existing rows are returned unchanged; a
	// referrer is never overwritten.
	EnsureUser(tgID int64, referrerID *int64) (*User, error)
	GetUser(tgID int64) (*User, error)
	SaveUser(user *User) error

	// AcquireUserLock attempts the single atomic lock=false->true
	// update with a lease of leaseSeconds. Returns a holder token and
	// whether the caller now owns the lock. Never blocks.
	AcquireUserLock(tgID int64, leaseSeconds int64) (string, bool, error)
	// ReleaseUserLock frees the lock if token still identifies the
	// holder. A stale token (the lease ran out, the reaper freed the
	// lock and somebody else took it) releases nothing.
	ReleaseUserLock(tgID int64, token string) error
	// ReapExpiredLocks force-releases locks whose lease ran out before
	// now and returns how many were released.
	ReapExpiredLocks(now int64) (int64, error)

	CreatePayment(payment *Payment) error
	GetPayment(provider, invoiceID string) (*Payment, error)
	// MarkPaymentPaid performs the conditional pending->paid update and
	// reports whether the row actually transitioned. A false return
	// means the invoice was already processed and the caller must not
	// run provisioning again.
	MarkPaymentPaid(provider, invoiceID string) (bool, error)
	SetPaymentStatus(provider, invoiceID string, status PaymentStatus) error
	PendingPayments(provider string) ([]*Payment, error)
	// DeleteStalePending removes payments still pending past the
	// abandoned-checkout TTL.
	DeleteStalePending(olderThan int64) (int64, error)

	// UpdateEntitlement persists the expiry together with the
	// provisioning identifiers in one update.
	UpdateEntitlement(tgID int64, until int64, accountID *int64, username *string, groupID *int64) error
	// SetFirstPaymentMade performs the conditional false->true flip and
	// reports whether it happened. Guards the one-time referral bonus.
	SetFirstPaymentMade(tgID int64) (bool, error)
	IncrementActiveReferrals(tgID int64) error
	CreditMainBalance(tgID int64, amount decimal.Decimal) error

	PartnerLinkFor(tgID int64) (*PartnerReferralLink, error)
	CreatePartnerLink(partnerID, referredTgID int64) error
	CreditPartner(partnerID int64, amount decimal.Decimal) error
	IncrementTariffPurchases(partnerID int64, tariffCode string) error
	CreateWithdrawal(request *WithdrawalRequest) error
	// DebitPartnerBalance conditionally moves amount from the partner
	// balance to the withdrawn total, reporting whether the balance
	// covered it.
	DebitPartnerBalance(partnerID int64, amount decimal.Decimal) (bool, error)

	// ConsumePromoCode atomically takes one use of the code for the
	// user. Reports the code and whether the redemption was granted
	// (false when exhausted, unknown, or already redeemed by the user).
	ConsumePromoCode(code string, tgID int64) (*PromoCode, bool, error)
	CreatePromoCode(promo *PromoCode) error
	// ClaimGift atomically flips the gift to claimed for the recipient
	// and reports whether this call did the flip.
	ClaimGift(giftID, toTgID int64) (*Gift, bool, error)
	CreateGift(gift *Gift) error
}
