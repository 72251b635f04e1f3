package models

import "github.com/shopspring/decimal"

// PartnerReferralLink binds a referred user to the partner whose link
// brought them in. A user can be bound to at most one partner.
type PartnerReferralLink struct {
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// PartnerID is the partner that owns the referral link.
	PartnerID int64 `json:"partner_id" gorm:"column:partner_id;index"`
	// ReferredTgID is the user that arrived via the link.
	ReferredTgID int64 `json:"referred_tg_id" gorm:"column:referred_tg_id;unique"`
	// CreatedAt is the Unix timestamp the link was recorded.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
}

// Withdrawal methods a partner can request a payout through.
const (
	WithdrawalMethodBank   = "bank-transfer"
	WithdrawalMethodCrypto = "crypto-address"
)

// WithdrawalStatusPending means the request awaits admin review.
// There is no automated processing of withdrawals.
const WithdrawalStatusPending = "pending"

// WithdrawalRequest is a partner's request to pay out commission balance.
type WithdrawalRequest struct {
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// PartnerID is the requesting partner.
	PartnerID int64 `json:"partner_id" gorm:"column:partner_id;index"`
	// Amount is the requested payout.
	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric"`
	// Method is one of the Withdrawal* method constants.
	Method string `json:"method" gorm:"column:method"`
	// Destination is the bank details or crypto address for the method.
	Destination string `json:"destination" gorm:"column:destination"`
	// Status is the review state of the request.
	Status string `json:"status" gorm:"column:status"`
	// CreatedAt is the Unix timestamp the request was filed.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
}

// PromoCode grants a fixed number of subscription days, redeemable a
// limited number of times and at most once per user.
type PromoCode struct {
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// Code is the redeemable token.
	Code string `json:"code" gorm:"column:code;unique"`
	// Days is the entitlement period granted on redemption.
	Days int64 `json:"days" gorm:"column:days"`
	// MaxUses caps total redemptions; zero means unlimited.
	MaxUses int64 `json:"max_uses" gorm:"column:max_uses"`
	// Used counts redemptions so far.
	Used int64 `json:"used" gorm:"column:used"`
}

// PromoRedemption records that a user redeemed a promo code, enforcing
// the once-per-user rule.
type PromoRedemption struct {
	ID          int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PromoCodeID int64 `json:"promo_code_id" gorm:"column:promo_code_id;uniqueIndex:idx_promo_user"`
	TgID        int64 `json:"tg_id" gorm:"column:tg_id;uniqueIndex:idx_promo_user"`
	CreatedAt   int64 `json:"created_at" gorm:"column:created_at"`
}

// Gift is a subscription period one user buys for another. Claimed at
// most once by the recipient.
type Gift struct {
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// FromTgID is the buyer.
	FromTgID int64 `json:"from_tg_id" gorm:"column:from_tg_id;index"`
	// ToTgID is the recipient.
	ToTgID int64 `json:"to_tg_id" gorm:"column:to_tg_id;index"`
	// Days is the entitlement period granted on claim.
	Days int64 `json:"days" gorm:"column:days"`
	// Claimed flips once when the recipient claims the gift.
	Claimed   bool  `json:"claimed" gorm:"column:claimed"`
	CreatedAt int64 `json:"created_at" gorm:"column:created_at"`
}
