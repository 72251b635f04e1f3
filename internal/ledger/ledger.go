// Package ledger owns the entitlement arithmetic: additive extension of
// subscription expiries and the revoke floor. All mutations flow through
// the per-user lock held by the caller.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

const (
	daySeconds = 24 * 60 * 60

	// revokeFloorSeconds is where a revoke that exceeds the remaining
	// time lands: one minute from now, so downstream checks see "about
	// to expire" rather than "never subscribed".
	revokeFloorSeconds = 60
)

// NewExpiry computes the additive extension: a future expiry gets days
// added on top, anything else starts a fresh grant from now. Every
// activation path (payment, promo, gift, admin grant) uses this policy.
func NewExpiry(current, now, days int64) int64 {
	if current > now {
		return current + days*daySeconds
	}
	return now + days*daySeconds
}

// RevokedExpiry subtracts days from the current expiry, collapsing to
// the one minute floor when more is revoked than remains.
func RevokedExpiry(current, now, days int64) int64 {
	revoked := current - days*daySeconds
	if current <= now || revoked <= now {
		return now + revokeFloorSeconds
	}
	return revoked
}

type Ledger struct {
	logger *logger.Logger

	repo models.Repository
}

func New(repo models.Repository, logger *logger.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// RecordIntent inserts the pending payment row for a freshly created
// provider invoice. No side effect beyond persistence.
func (l *Ledger) RecordIntent(tgID int64, tariffCode string, amount decimal.Decimal, provider, invoiceID string) error {
	return l.repo.CreatePayment(&models.Payment{
		TgID:       tgID,
		Provider:   provider,
		InvoiceID:  invoiceID,
		TariffCode: tariffCode,
		Amount:     amount,
		Status:     models.PaymentPending,
		CreatedAt:  time.Now().Unix(),
	})
}

// ApplyEntitlement extends (or freshly sets) the user's entitlement by
// days and persists it together with the provisioning identifiers in one
// update. Returns the new expiry.
func (l *Ledger) ApplyEntitlement(user *models.User, days int64, account *models.VpnAccount, groupID *int64) (int64, error) {
	now := time.Now().Unix()
	until := NewExpiry(user.SubscriptionUntil, now, days)

	var accountID *int64
	var username *string
	if account != nil {
		accountID = &account.ID
		username = &account.Username
	}
	if err := l.repo.UpdateEntitlement(user.TgID, until, accountID, username, groupID); err != nil {
		return 0, err
	}
	user.SubscriptionUntil = until
	return until, nil
}

// Revoke shortens the entitlement by days, never below the one minute
// floor, and persists the result.
func (l *Ledger) Revoke(user *models.User, days int64) (int64, error) {
	now := time.Now().Unix()
	until := RevokedExpiry(user.SubscriptionUntil, now, days)
	if err := l.repo.UpdateEntitlement(user.TgID, until, nil, nil, nil); err != nil {
		return 0, err
	}
	user.SubscriptionUntil = until
	return until, nil
}
