// Package reconciler drives the activation workflow: it converts a
// "payment observed paid" signal into exactly one entitlement extension
// and exactly one referral/partner credit, no matter how many times and
// through which path (webhook or poller) the signal arrives.
package reconciler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/ledger"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

// Config carries the engine knobs.
type Config struct {
	// AccessGroupID is the remote group every activated account joins.
	AccessGroupID int64
	// ReferralBonusDays is granted to the referrer on the referred
	// user's first payment.
	ReferralBonusDays int64
	// LockLeaseSeconds bounds how long a crashed holder can keep a user
	// locked before the reaper frees it.
	LockLeaseSeconds int64
}

// Engine is the reconciliation engine. All entitlement mutations —
// payment activation, admin grant/revoke, promo, gift, withdrawal — go
// through its per-user lock discipline.
type Engine struct {
	logger *logger.Logger

	repo        models.Repository
	ledger      *ledger.Ledger
	provisioner models.Provisioner
	notificator models.NotificationService

	cfg Config
}

func NewEngine(
	repo models.Repository,
	ldg *ledger.Ledger,
	provisioner models.Provisioner,
	notificator models.NotificationService,
	logger *logger.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		repo:        repo,
		ledger:      ldg,
		provisioner: provisioner,
		notificator: notificator,
		logger:      logger,
		cfg:         cfg,
	}
}

// withUserLock runs fn inside the user's critical section. Release is
// guaranteed on every exit path, including panics past the acquire.
func (e *Engine) withUserLock(tgID int64, fn func() error) error {
	token, ok, err := e.repo.AcquireUserLock(tgID, e.cfg.LockLeaseSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for %d: %s", tgID, err)
	}
	if !ok {
		return ErrLockBusy
	}
	defer func() {
		if err := e.repo.ReleaseUserLock(tgID, token); err != nil {
			e.logger.Error("Failed to release user lock ", "tg_id ", tgID, " error ", err)
		}
	}()
	return fn()
}

// HandlePaid applies a confirmed payment exactly once. Duplicate
// deliveries and webhook/poller races short-circuit at the conditional
// pending->paid transition.
func (e *Engine) HandlePaid(ctx context.Context, provider, invoiceID string) error {
	payment, err := e.repo.GetPayment(provider, invoiceID)
	if err != nil {
		return fmt.Errorf("unknown invoice %s/%s: %s", provider, invoiceID, err)
	}

	// Validate the tariff before touching the ledger: an invalid code is
	// permanent and must never leave the payment half-applied.
	if payment.TariffCode != models.TariffTopup {
		if _, ok := models.TariffByCode(payment.TariffCode); !ok {
			e.logger.Error("Invoice carries unknown tariff ", "provider ", provider, " invoice ", invoiceID, " tariff ", payment.TariffCode)
			if err := e.repo.SetPaymentStatus(provider, invoiceID, models.PaymentFailed); err != nil {
				e.logger.Error("Failed to fail invalid-tariff invoice ", "invoice ", invoiceID, " error ", err)
			}
			return ErrUnknownTariff
		}
	}

	return e.withUserLock(payment.TgID, func() error {
		transitioned, err := e.repo.MarkPaymentPaid(provider, invoiceID)
		if err != nil {
			return err
		}
		if !transitioned {
			// Already processed: duplicate webhook delivery or the
			// poller racing a webhook. Success, nothing more to do.
			e.logger.Debug("Invoice already processed ", "provider ", provider, " invoice ", invoiceID)
			return nil
		}
		return e.activate(ctx, payment)
	})
}

// activate runs the post-markPaid steps. The payment row is already
// paid at this point; any failure here leaves the explicit
// paid_pending_provisioning state for the operator, since a blind retry
// would double-grant.
func (e *Engine) activate(ctx context.Context, payment *models.Payment) error {
	user, err := e.repo.EnsureUser(payment.TgID, nil)
	if err != nil {
		return e.partial(payment, fmt.Errorf("failed to load user: %s", err))
	}

	if payment.TariffCode == models.TariffTopup {
		if err := e.repo.CreditMainBalance(payment.TgID, payment.Amount); err != nil {
			return e.partial(payment, fmt.Errorf("failed to credit balance: %s", err))
		}
		e.notify(payment.TgID, fmt.Sprintf("Balance topped up by %s.", payment.Amount.StringFixed(2)))
		return nil
	}

	tariff, _ := models.TariffByCode(payment.TariffCode)

	account, err := e.provisionLocked(ctx, user, tariff.Days)
	if err != nil {
		return e.partial(payment, err)
	}

	groupID := e.cfg.AccessGroupID
	until, err := e.ledger.ApplyEntitlement(user, tariff.Days, account, &groupID)
	if err != nil {
		return e.partial(payment, fmt.Errorf("failed to persist entitlement: %s", err))
	}

	e.applyReferralBonus(ctx, user)
	e.applyPartnerCommission(payment)

	e.logger.Info("Payment activated ", "provider ", payment.Provider, " invoice ", payment.InvoiceID,
		" tg_id ", payment.TgID, " tariff ", payment.TariffCode, " until ", until)

	text := fmt.Sprintf("Subscription active until %s.", time.Unix(until, 0).UTC().Format("02.01.2006"))
	if link, err := e.provisioner.ShareLink(ctx, account.ID); err == nil && link != "" {
		text += "\nYour access link: " + link
	} else if err != nil {
		// Degrades the confirmation message only, never the activation.
		e.logger.Warn("Failed to fetch share link ", "tg_id ", payment.TgID, " error ", err)
	}
	e.notify(payment.TgID, text)
	return nil
}

// provisionLocked drives the remote account calls for a user whose lock
// is held: get-or-create, extend when it already existed, best-effort
// group membership.
func (e *Engine) provisionLocked(ctx context.Context, user *models.User, days int64) (*models.VpnAccount, error) {
	account, err := e.provisioner.GetOrCreateAccount(ctx, user.TgID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to provision account: %s", err)
	}
	if !account.Created {
		if err := e.provisioner.Extend(ctx, account.ID, days); err != nil {
			return nil, fmt.Errorf("failed to extend account: %s", err)
		}
	}
	if err := e.provisioner.AddToGroup(ctx, account.ID, e.cfg.AccessGroupID); err != nil {
		e.logger.Warn("Failed to add account to access group ", "tg_id ", user.TgID, " error ", err)
	}
	return account, nil
}

// partial records the one state that cannot be safely auto-retried:
// ledger says paid, a later step failed. Loudly, for the operator.
func (e *Engine) partial(payment *models.Payment, cause error) error {
	e.logger.Error("ALERT: activation incomplete after payment marked paid ",
		"provider ", payment.Provider, " invoice ", payment.InvoiceID, " tg_id ", payment.TgID, " cause ", cause)
	if err := e.repo.SetPaymentStatus(payment.Provider, payment.InvoiceID, models.PaymentPaidPendingProvisioning); err != nil {
		e.logger.Error("Failed to flag partial activation ", "invoice ", payment.InvoiceID, " error ", err)
	}
	return fmt.Errorf("%w: %s", ErrPartialActivation, cause)
}

// applyReferralBonus grants the referrer a one-time bonus on the user's
// first payment. The first_payment_made flag, flipped conditionally, is
// the only guard — payment counts are never re-checked.
func (e *Engine) applyReferralBonus(ctx context.Context, user *models.User) {
	if user.ReferrerID == nil {
		return
	}
	flipped, err := e.repo.SetFirstPaymentMade(user.TgID)
	if err != nil {
		e.logger.Error("Failed to flip first-payment flag ", "tg_id ", user.TgID, " error ", err)
		return
	}
	if !flipped {
		return
	}

	referrerID := *user.ReferrerID
	if err := e.repo.IncrementActiveReferrals(referrerID); err != nil {
		e.logger.Error("Failed to increment active referrals ", "referrer ", referrerID, " error ", err)
	}
	if _, err := e.GrantDays(ctx, referrerID, e.cfg.ReferralBonusDays); err != nil {
		// The flag is already flipped, so this bonus will not be
		// retried; surface it instead of double-granting later.
		e.logger.Error("ALERT: referral bonus not applied ", "referrer ", referrerID, " tg_id ", user.TgID, " error ", err)
		return
	}
	e.logger.Info("Referral bonus granted ", "referrer ", referrerID, " days ", e.cfg.ReferralBonusDays)
}

// applyPartnerCommission credits the partner bound to the paying user,
// when the partnership is accepted and unexpired.
func (e *Engine) applyPartnerCommission(payment *models.Payment) {
	link, err := e.repo.PartnerLinkFor(payment.TgID)
	if err != nil {
		e.logger.Error("Failed to look up partner link ", "tg_id ", payment.TgID, " error ", err)
		return
	}
	if link == nil {
		return
	}
	partner, err := e.repo.GetUser(link.PartnerID)
	if err != nil {
		e.logger.Error("Failed to load partner ", "partner ", link.PartnerID, " error ", err)
		return
	}
	if !partner.PartnershipActive(time.Now().Unix()) {
		return
	}

	commission := payment.Amount.
		Mul(decimal.NewFromInt(partner.PartnershipPercent)).
		Div(decimal.NewFromInt(100))
	if err := e.repo.CreditPartner(link.PartnerID, commission); err != nil {
		e.logger.Error("ALERT: partner commission not credited ", "partner ", link.PartnerID, " invoice ", payment.InvoiceID, " error ", err)
		return
	}
	if err := e.repo.IncrementTariffPurchases(link.PartnerID, payment.TariffCode); err != nil {
		e.logger.Error("Failed to increment tariff purchases ", "partner ", link.PartnerID, " error ", err)
	}
	e.logger.Info("Partner commission credited ", "partner ", link.PartnerID, " amount ", commission.String())
}

// CreateInvoice issues a provider invoice for a tariff and records the
// pending payment row.
func (e *Engine) CreateInvoice(ctx context.Context, tgID int64, tariffCode string, provider models.PaymentProvider) (*models.PaymentIntent, error) {
	tariff, ok := models.TariffByCode(tariffCode)
	if !ok {
		return nil, ErrUnknownTariff
	}
	if _, err := e.repo.EnsureUser(tgID, nil); err != nil {
		return nil, err
	}

	intent, err := provider.CreateIntent(ctx, tgID, tariff.Price, "VPN subscription: "+tariff.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %s", err)
	}
	if err := e.ledger.RecordIntent(tgID, tariffCode, tariff.Price, provider.Name(), intent.InvoiceID); err != nil {
		return nil, err
	}
	return intent, nil
}

// CreateTopupInvoice issues an invoice that credits the main balance
// instead of the entitlement.
func (e *Engine) CreateTopupInvoice(ctx context.Context, tgID int64, amount decimal.Decimal, provider models.PaymentProvider) (*models.PaymentIntent, error) {
	if _, err := e.repo.EnsureUser(tgID, nil); err != nil {
		return nil, err
	}
	intent, err := provider.CreateIntent(ctx, tgID, amount, "Balance top-up")
	if err != nil {
		return nil, fmt.Errorf("failed to create top-up invoice: %s", err)
	}
	if err := e.ledger.RecordIntent(tgID, models.TariffTopup, amount, provider.Name(), intent.InvoiceID); err != nil {
		return nil, err
	}
	return intent, nil
}

// GrantDays is the admin/referral path: additive entitlement extension
// with provisioning, under the user lock.
func (e *Engine) GrantDays(ctx context.Context, tgID int64, days int64) (int64, error) {
	var until int64
	err := e.withUserLock(tgID, func() error {
		user, err := e.repo.EnsureUser(tgID, nil)
		if err != nil {
			return err
		}
		account, err := e.provisionLocked(ctx, user, days)
		if err != nil {
			return err
		}
		groupID := e.cfg.AccessGroupID
		until, err = e.ledger.ApplyEntitlement(user, days, account, &groupID)
		return err
	})
	return until, err
}

// RevokeDays shortens the entitlement, never below the one minute
// floor, and pushes the recomputed expiry to the remote side so the two
// ledgers cannot diverge.
func (e *Engine) RevokeDays(ctx context.Context, tgID int64, days int64) (int64, error) {
	var until int64
	err := e.withUserLock(tgID, func() error {
		user, err := e.repo.GetUser(tgID)
		if err != nil {
			return err
		}
		until, err = e.ledger.Revoke(user, days)
		if err != nil {
			return err
		}
		if user.VpnAccountID != nil {
			if err := e.provisioner.SetExpiry(ctx, *user.VpnAccountID, until); err != nil {
				return fmt.Errorf("local expiry updated but remote push failed: %s", err)
			}
		}
		return nil
	})
	return until, err
}

// RedeemPromo grants a promo code's days, at most once per user and
// within the code's use cap.
func (e *Engine) RedeemPromo(ctx context.Context, tgID int64, code string) (int64, error) {
	var until int64
	err := e.withUserLock(tgID, func() error {
		user, err := e.repo.EnsureUser(tgID, nil)
		if err != nil {
			return err
		}
		promo, ok, err := e.repo.ConsumePromoCode(code, tgID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPromoInvalid
		}
		account, err := e.provisionLocked(ctx, user, promo.Days)
		if err != nil {
			return err
		}
		groupID := e.cfg.AccessGroupID
		until, err = e.ledger.ApplyEntitlement(user, promo.Days, account, &groupID)
		return err
	})
	if err == nil {
		e.notify(tgID, fmt.Sprintf("Promo code applied: +%s.", time.Unix(until, 0).UTC().Format("02.01.2006")))
	}
	return until, err
}

// ClaimGift applies a gifted period to the recipient, at most once.
func (e *Engine) ClaimGift(ctx context.Context, tgID int64, giftID int64) (int64, error) {
	var until int64
	err := e.withUserLock(tgID, func() error {
		user, err := e.repo.EnsureUser(tgID, nil)
		if err != nil {
			return err
		}
		gift, ok, err := e.repo.ClaimGift(giftID, tgID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrGiftInvalid
		}
		account, err := e.provisionLocked(ctx, user, gift.Days)
		if err != nil {
			return err
		}
		groupID := e.cfg.AccessGroupID
		until, err = e.ledger.ApplyEntitlement(user, gift.Days, account, &groupID)
		return err
	})
	return until, err
}

// RequestWithdrawal files a partner payout for admin review, moving the
// amount out of the withdrawable balance first.
func (e *Engine) RequestWithdrawal(ctx context.Context, partnerID int64, amount decimal.Decimal, method, destination string) error {
	return e.withUserLock(partnerID, func() error {
		ok, err := e.repo.DebitPartnerBalance(partnerID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		return e.repo.CreateWithdrawal(&models.WithdrawalRequest{
			PartnerID:   partnerID,
			Amount:      amount,
			Method:      method,
			Destination: destination,
			Status:      models.WithdrawalStatusPending,
			CreatedAt:   time.Now().Unix(),
		})
	})
}

// notify delivers a user message best-effort. A panic or failure in the
// sink never reaches the caller.
func (e *Engine) notify(tgID int64, text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Notification sink panicked ", "tg_id ", tgID, " panic ", r, " stack ", string(debug.Stack()))
		}
	}()
	e.notificator.SendMessage(tgID, text)
}
