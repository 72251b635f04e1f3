package repository

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

type DB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

// New wraps an open gorm connection, migrating the schema. Tests use it
// directly with a sqlite connection.
func New(conn *gorm.DB, logger *logger.Logger) (*DB, error) {
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&models.PartnerReferralLink{},
		&models.PartnerTariffStat{},
		&models.WithdrawalRequest{},
		&models.PromoCode{},
		&models.PromoRedemption{},
		&models.Gift{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	return &DB{Conn: conn, logger: logger}, nil
}

func NewPostgresDB(user, password, dbname, host string, port int, lg *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gl := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	db, err := New(conn, lg)
	if err != nil {
		return nil, err
	}
	lg.Info("Successfully connected to PostgreSQL!")
	return db, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (db *DB) EnsureUser(tgID int64, referrerID *int64) (*models.User, error) {
	user := models.User{
		TgID:       tgID,
		ReferrerID: referrerID,
		CreatedAt:  time.Now().Unix(),
	}
	res := db.Conn.Where("tg_id = ?", tgID).FirstOrCreate(&user)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to ensure user: %s", res.Error)
	}
	// Count the referral only when the insert actually happened.
	if res.RowsAffected == 1 && referrerID != nil {
		if err := db.Conn.Model(&models.User{}).Where("tg_id = ?", *referrerID).
			Update("total_referrals", gorm.Expr("total_referrals + 1")).Error; err != nil {
			db.logger.Error("Failed to increment total referrals ", "referrer ", *referrerID, " error ", err)
		}
	}
	return &user, nil
}

func (db *DB) GetUser(tgID int64) (*models.User, error) {
	var user models.User
	if err := db.Conn.Where("tg_id = ?", tgID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %s", err)
	}
	return &user, nil
}

func (db *DB) SaveUser(user *models.User) error {
	if err := db.Conn.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %s", err)
	}
	return nil
}

// AcquireUserLock performs the single conditional update that takes the
// per-user lock. Zero rows affected means somebody else holds it. The
// returned token identifies this holder and is required to release.
func (db *DB) AcquireUserLock(tgID int64, leaseSeconds int64) (string, bool, error) {
	now := time.Now().Unix()
	token := uuid.NewString()
	res := db.Conn.Model(&models.User{}).
		Where("tg_id = ? AND action_lock = ?", tgID, false).
		Updates(map[string]interface{}{
			"action_lock":      true,
			"lock_token":       token,
			"lock_acquired_at": now,
			"lock_expires_at":  now + leaseSeconds,
		})
	if res.Error != nil {
		return "", false, fmt.Errorf("failed to acquire user lock: %s", res.Error)
	}
	if res.RowsAffected != 1 {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseUserLock frees the lock only for the holder identified by
// token. A holder whose lease was reaped and whose lock was re-acquired
// by somebody else holds a stale token and releases nothing.
func (db *DB) ReleaseUserLock(tgID int64, token string) error {
	if err := db.Conn.Model(&models.User{}).
		Where("tg_id = ? AND lock_token = ?", tgID, token).
		Updates(map[string]interface{}{
			"action_lock":      false,
			"lock_token":       "",
			"lock_acquired_at": 0,
			"lock_expires_at":  0,
		}).Error; err != nil {
		return fmt.Errorf("failed to release user lock: %s", err)
	}
	return nil
}

func (db *DB) ReapExpiredLocks(now int64) (int64, error) {
	res := db.Conn.Model(&models.User{}).
		Where("action_lock = ? AND lock_expires_at > 0 AND lock_expires_at < ?", true, now).
		Updates(map[string]interface{}{
			"action_lock":      false,
			"lock_token":       "",
			"lock_acquired_at": 0,
			"lock_expires_at":  0,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reap expired locks: %s", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *DB) CreatePayment(payment *models.Payment) error {
	if err := db.Conn.Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %s", err)
	}
	return nil
}

func (db *DB) GetPayment(provider, invoiceID string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Conn.Where("provider = ? AND invoice_id = ?", provider, invoiceID).
		First(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment: %s", err)
	}
	return &payment, nil
}

// MarkPaymentPaid is the idempotency gate: the conditional pending->paid
// update transitions at most once per invoice. Callers treat a false
// return as "already processed".
func (db *DB) MarkPaymentPaid(provider, invoiceID string) (bool, error) {
	res := db.Conn.Model(&models.Payment{}).
		Where("provider = ? AND invoice_id = ? AND status = ?", provider, invoiceID, models.PaymentPending).
		Update("status", models.PaymentPaid)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark payment paid: %s", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetPaymentStatus records a status change. failed and cancelled only
// ever replace a still-pending invoice; a poller observing a terminal
// provider state after a webhook already paid the row must not undo it.
func (db *DB) SetPaymentStatus(provider, invoiceID string, status models.PaymentStatus) error {
	q := db.Conn.Model(&models.Payment{}).
		Where("provider = ? AND invoice_id = ?", provider, invoiceID)
	if status == models.PaymentFailed || status == models.PaymentCancelled {
		q = q.Where("status = ?", models.PaymentPending)
	}
	if err := q.Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to set payment status: %s", err)
	}
	return nil
}

func (db *DB) PendingPayments(provider string) ([]*models.Payment, error) {
	var payments []*models.Payment
	if err := db.Conn.Where("provider = ? AND status = ?", provider, models.PaymentPending).
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to get pending payments: %s", err)
	}
	return payments, nil
}

func (db *DB) DeleteStalePending(olderThan int64) (int64, error) {
	res := db.Conn.Where("status = ? AND created_at < ?", models.PaymentPending, olderThan).
		Delete(&models.Payment{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete stale pending payments: %s", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *DB) UpdateEntitlement(tgID int64, until int64, accountID *int64, username *string, groupID *int64) error {
	updates := map[string]interface{}{"subscription_until": until}
	if accountID != nil {
		updates["vpn_account_id"] = *accountID
	}
	if username != nil {
		updates["vpn_username"] = *username
	}
	if groupID != nil {
		updates["access_group_id"] = *groupID
	}
	if err := db.Conn.Model(&models.User{}).Where("tg_id = ?", tgID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update entitlement: %s", err)
	}
	return nil
}

// SetFirstPaymentMade flips the referral-bonus guard at most once.
func (db *DB) SetFirstPaymentMade(tgID int64) (bool, error) {
	res := db.Conn.Model(&models.User{}).
		Where("tg_id = ? AND first_payment_made = ?", tgID, false).
		Update("first_payment_made", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to set first payment made: %s", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *DB) IncrementActiveReferrals(tgID int64) error {
	if err := db.Conn.Model(&models.User{}).Where("tg_id = ?", tgID).
		Update("active_referrals", gorm.Expr("active_referrals + 1")).Error; err != nil {
		return fmt.Errorf("failed to increment active referrals: %s", err)
	}
	return nil
}

func (db *DB) CreditMainBalance(tgID int64, amount decimal.Decimal) error {
	user, err := db.GetUser(tgID)
	if err != nil {
		return err
	}
	user.MainBalance = user.MainBalance.Add(amount)
	return db.SaveUser(user)
}

func (db *DB) PartnerLinkFor(tgID int64) (*models.PartnerReferralLink, error) {
	var link models.PartnerReferralLink
	if err := db.Conn.Where("referred_tg_id = ?", tgID).First(&link).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get partner link: %s", err)
	}
	return &link, nil
}

func (db *DB) CreatePartnerLink(partnerID, referredTgID int64) error {
	link := models.PartnerReferralLink{
		PartnerID:    partnerID,
		ReferredTgID: referredTgID,
		CreatedAt:    time.Now().Unix(),
	}
	// The unique index on referred_tg_id keeps a user bound to one partner.
	if err := db.Conn.Where("referred_tg_id = ?", referredTgID).FirstOrCreate(&link).Error; err != nil {
		return fmt.Errorf("failed to create partner link: %s", err)
	}
	return nil
}

// CreditPartner adds a commission in one atomic update. Two payments by
// different referred users of the same partner hold different user
// locks, so only the database can serialize the credit.
func (db *DB) CreditPartner(partnerID int64, amount decimal.Decimal) error {
	if err := db.Conn.Model(&models.User{}).Where("tg_id = ?", partnerID).
		Updates(map[string]interface{}{
			"partner_balance":      gorm.Expr("partner_balance + ?", amount),
			"partner_earned_total": gorm.Expr("partner_earned_total + ?", amount),
		}).Error; err != nil {
		return fmt.Errorf("failed to credit partner: %s", err)
	}
	return nil
}

func (db *DB) IncrementTariffPurchases(partnerID int64, tariffCode string) error {
	stat := models.PartnerTariffStat{PartnerID: partnerID, TariffCode: tariffCode}
	if err := db.Conn.Where("partner_id = ? AND tariff_code = ?", partnerID, tariffCode).
		FirstOrCreate(&stat).Error; err != nil {
		return fmt.Errorf("failed to get tariff stat: %s", err)
	}
	if err := db.Conn.Model(&models.PartnerTariffStat{}).Where("id = ?", stat.ID).
		Update("purchases", gorm.Expr("purchases + 1")).Error; err != nil {
		return fmt.Errorf("failed to increment tariff purchases: %s", err)
	}
	return nil
}

func (db *DB) CreateWithdrawal(request *models.WithdrawalRequest) error {
	if err := db.Conn.Create(request).Error; err != nil {
		return fmt.Errorf("failed to create withdrawal request: %s", err)
	}
	return nil
}

// DebitPartnerBalance moves amount from balance to withdrawn total only
// when the balance covers it. The conditional WHERE keeps the balance
// from going negative under concurrent requests.
func (db *DB) DebitPartnerBalance(partnerID int64, amount decimal.Decimal) (bool, error) {
	res := db.Conn.Model(&models.User{}).
		Where("tg_id = ? AND partner_balance >= ?", partnerID, amount).
		Updates(map[string]interface{}{
			"partner_balance":         gorm.Expr("partner_balance - ?", amount),
			"partner_withdrawn_total": gorm.Expr("partner_withdrawn_total + ?", amount),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to debit partner balance: %s", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *DB) ConsumePromoCode(code string, tgID int64) (*models.PromoCode, bool, error) {
	var promo models.PromoCode
	if err := db.Conn.Where("code = ?", code).First(&promo).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get promo code: %s", err)
	}

	// Once per user: a second redemption finds the existing marker row.
	redemption := models.PromoRedemption{
		PromoCodeID: promo.ID,
		TgID:        tgID,
		CreatedAt:   time.Now().Unix(),
	}
	res := db.Conn.Where("promo_code_id = ? AND tg_id = ?", promo.ID, tgID).FirstOrCreate(&redemption)
	if res.Error != nil {
		return &promo, false, fmt.Errorf("failed to record promo redemption: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		return &promo, false, nil
	}

	q := db.Conn.Model(&models.PromoCode{}).Where("id = ?", promo.ID)
	if promo.MaxUses > 0 {
		q = q.Where("used < max_uses")
	}
	take := q.Update("used", gorm.Expr("used + 1"))
	if take.Error != nil {
		return &promo, false, fmt.Errorf("failed to consume promo code: %s", take.Error)
	}
	if take.RowsAffected == 0 {
		// Exhausted between lookup and take; undo the redemption marker.
		db.Conn.Delete(&redemption)
		return &promo, false, nil
	}
	return &promo, true, nil
}

func (db *DB) CreatePromoCode(promo *models.PromoCode) error {
	if err := db.Conn.Create(promo).Error; err != nil {
		return fmt.Errorf("failed to create promo code: %s", err)
	}
	return nil
}

func (db *DB) ClaimGift(giftID, toTgID int64) (*models.Gift, bool, error) {
	var gift models.Gift
	if err := db.Conn.Where("id = ? AND to_tg_id = ?", giftID, toTgID).First(&gift).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get gift: %s", err)
	}
	res := db.Conn.Model(&models.Gift{}).
		Where("id = ? AND claimed = ?", giftID, false).
		Update("claimed", true)
	if res.Error != nil {
		return &gift, false, fmt.Errorf("failed to claim gift: %s", res.Error)
	}
	return &gift, res.RowsAffected == 1, nil
}

func (db *DB) CreateGift(gift *models.Gift) error {
	if err := db.Conn.Create(gift).Error; err != nil {
		return fmt.Errorf("failed to create gift: %s", err)
	}
	return nil
}
