package models

import "github.com/shopspring/decimal"

// User represents a bot user and its VPN entitlement state.
type User struct {
	// TgID is the Telegram account identifier, the primary identity.
	TgID int64 `json:"tg_id" gorm:"column:tg_id;primaryKey"`
	// VpnAccountID is the identifier of the remote VPN account, nil until first provisioning.
	VpnAccountID *int64 `json:"vpn_account_id" gorm:"column:vpn_account_id"`
	// VpnUsername is the username of the remote VPN account, derived from TgID.
	VpnUsername *string `json:"vpn_username" gorm:"column:vpn_username"`
	// AccessGroupID is the remote access group the account belongs to, nil until added.
	AccessGroupID *int64 `json:"access_group_id" gorm:"column:access_group_id"`
	// SubscriptionUntil is the Unix timestamp the entitlement runs to.
	// Zero or a past value means no active entitlement.
	SubscriptionUntil int64 `json:"subscription_until" gorm:"column:subscription_until;index"`

	// ReferrerID is the user that referred this one. Immutable after first set.
	ReferrerID *int64 `json:"referrer_id" gorm:"column:referrer_id;index"`
	// FirstPaymentMade guards the one-time referral bonus. Set at most once.
	FirstPaymentMade bool `json:"first_payment_made" gorm:"column:first_payment_made"`
	// TotalReferrals counts users that arrived via this user's referral link.
	TotalReferrals int64 `json:"total_referrals" gorm:"column:total_referrals"`
	// ActiveReferrals counts referred users that made at least one payment.
	ActiveReferrals int64 `json:"active_referrals" gorm:"column:active_referrals"`

	// IsPartner indicates the user has a partner (commission) agreement.
	IsPartner bool `json:"is_partner" gorm:"column:is_partner"`
	// PartnershipPercent is the commission rate, one of 15, 20, 25, 30.
	PartnershipPercent int64 `json:"partnership_percent" gorm:"column:partnership_percent"`
	// PartnershipAccepted indicates the agreement was accepted by the admin.
	PartnershipAccepted bool `json:"partnership_accepted" gorm:"column:partnership_accepted"`
	// PartnershipUntil is the Unix timestamp the agreement runs to.
	PartnershipUntil int64 `json:"partnership_until" gorm:"column:partnership_until"`
	// PartnerBalance is the withdrawable commission balance.
	PartnerBalance decimal.Decimal `json:"partner_balance" gorm:"column:partner_balance;type:numeric"`
	// PartnerEarnedTotal is the lifetime commission total.
	PartnerEarnedTotal decimal.Decimal `json:"partner_earned_total" gorm:"column:partner_earned_total;type:numeric"`
	// PartnerWithdrawnTotal is the total moved out via withdrawal requests.
	PartnerWithdrawnTotal decimal.Decimal `json:"partner_withdrawn_total" gorm:"column:partner_withdrawn_total;type:numeric"`

	// MainBalance is the top-up balance, independent of subscription tariffs.
	MainBalance decimal.Decimal `json:"main_balance" gorm:"column:main_balance;type:numeric"`

	// ActionLock is the single-writer flag serializing mutations of this row.
	ActionLock bool `json:"-" gorm:"column:action_lock;default:false"`
	// LockToken identifies the current lock holder. Release requires the
	// matching token, so a holder that was reaped and superseded cannot
	// free the new holder's lock.
	LockToken string `json:"-" gorm:"column:lock_token"`
	// LockAcquiredAt is the Unix timestamp the current lock was taken at.
	LockAcquiredAt int64 `json:"-" gorm:"column:lock_acquired_at"`
	// LockExpiresAt is the Unix timestamp the lock lease runs out and the
	// reaper may force-release it.
	LockExpiresAt int64 `json:"-" gorm:"column:lock_expires_at;index"`

	// CreatedAt is the Unix timestamp the user first contacted the bot.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
}

// HasEntitlement reports whether the user is entitled at the given moment.
func (u *User) HasEntitlement(now int64) bool {
	return u.SubscriptionUntil > now
}

// PartnershipActive reports whether partner commissions may be credited.
func (u *User) PartnershipActive(now int64) bool {
	return u.IsPartner && u.PartnershipAccepted && u.PartnershipUntil > now
}
