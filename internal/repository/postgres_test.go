package repository

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/models"
	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	// One connection: sqlite's shared-cache table locks would otherwise
	// error out concurrent writers instead of queueing them.
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db, err := New(conn, logger.NewNop())
	require.NoError(t, err)
	return db
}

func TestEnsureUserIdempotent(t *testing.T) {
	db := newTestDB(t)

	referrer, err := db.EnsureUser(7, nil)
	require.NoError(t, err)

	ref := referrer.TgID
	first, err := db.EnsureUser(42, &ref)
	require.NoError(t, err)
	require.NotNil(t, first.ReferrerID)

	// A second contact neither duplicates the row nor re-counts the referral.
	second, err := db.EnsureUser(42, &ref)
	require.NoError(t, err)
	assert.Equal(t, first.TgID, second.TgID)

	referrer, err = db.GetUser(7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), referrer.TotalReferrals)
}

func TestAcquireUserLockExclusive(t *testing.T) {
	db := newTestDB(t)
	_, err := db.EnsureUser(42, nil)
	require.NoError(t, err)

	token, ok, err := db.AcquireUserLock(42, 300)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = db.AcquireUserLock(42, 300)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lock is held")

	require.NoError(t, db.ReleaseUserLock(42, token))

	_, ok, err = db.AcquireUserLock(42, 300)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be acquirable again after release")
}

func TestAcquireUserLockConcurrent(t *testing.T) {
	db := newTestDB(t)
	_, err := db.EnsureUser(42, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := db.AcquireUserLock(42, 300)
			if err == nil && ok {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired, "exactly one contender may win the lock")
}

func TestReapExpiredLocks(t *testing.T) {
	db := newTestDB(t)
	_, err := db.EnsureUser(42, nil)
	require.NoError(t, err)

	_, ok, err := db.AcquireUserLock(42, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Not expired yet.
	reaped, err := db.ReapExpiredLocks(time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, int64(0), reaped)

	// Pretend the lease ran out.
	reaped, err = db.ReapExpiredLocks(time.Now().Unix() + 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)

	_, ok, err = db.AcquireUserLock(42, 300)
	require.NoError(t, err)
	assert.True(t, ok, "reaped lock must be acquirable")
}

func TestReleaseUserLockRequiresToken(t *testing.T) {
	db := newTestDB(t)
	_, err := db.EnsureUser(42, nil)
	require.NoError(t, err)

	// First holder overruns its lease and gets reaped.
	staleToken, ok, err := db.AcquireUserLock(42, 1)
	require.NoError(t, err)
	require.True(t, ok)
	reaped, err := db.ReapExpiredLocks(time.Now().Unix() + 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), reaped)

	// Second holder legitimately takes the lock.
	_, ok, err = db.AcquireUserLock(42, 300)
	require.NoError(t, err)
	require.True(t, ok)

	// The reaped holder finishes and releases with its stale token.
	// That must not free the second holder's lock.
	require.NoError(t, db.ReleaseUserLock(42, staleToken))

	_, ok, err = db.AcquireUserLock(42, 300)
	require.NoError(t, err)
	assert.False(t, ok, "a stale release must not break exclusivity")
}

func TestMarkPaymentPaidOnce(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreatePayment(&models.Payment{
		TgID:       42,
		Provider:   "cryptopay",
		InvoiceID:  "abc",
		TariffCode: "3m",
		Amount:     decimal.NewFromInt(449),
		Status:     models.PaymentPending,
		CreatedAt:  time.Now().Unix(),
	}))

	transitioned, err := db.MarkPaymentPaid("cryptopay", "abc")
	require.NoError(t, err)
	assert.True(t, transitioned)

	transitioned, err = db.MarkPaymentPaid("cryptopay", "abc")
	require.NoError(t, err)
	assert.False(t, transitioned, "paid is terminal, the second call must not transition")

	payment, err := db.GetPayment("cryptopay", "abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, payment.Status)
}

func TestDeleteStalePending(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().Unix()
	require.NoError(t, db.CreatePayment(&models.Payment{
		TgID: 42, Provider: "cardgate", InvoiceID: "old",
		Status: models.PaymentPending, CreatedAt: now - 90000,
	}))
	require.NoError(t, db.CreatePayment(&models.Payment{
		TgID: 42, Provider: "cardgate", InvoiceID: "fresh",
		Status: models.PaymentPending, CreatedAt: now,
	}))
	require.NoError(t, db.CreatePayment(&models.Payment{
		TgID: 42, Provider: "cardgate", InvoiceID: "oldpaid",
		Status: models.PaymentPaid, CreatedAt: now - 90000,
	}))

	removed, err := db.DeleteStalePending(now - 86400)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed, "only stale pending rows are garbage-collected")

	pending, err := db.PendingPayments("cardgate")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "fresh", pending[0].InvoiceID)
}

func TestSetFirstPaymentMadeOnce(t *testing.T) {
	db := newTestDB(t)
	_, err := db.EnsureUser(42, nil)
	require.NoError(t, err)

	flipped, err := db.SetFirstPaymentMade(42)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = db.SetFirstPaymentMade(42)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestCreditPartnerConcurrent(t *testing.T) {
	db := newTestDB(t)
	_, err := db.EnsureUser(9, nil)
	require.NoError(t, err)

	// Commissions arrive under different payers' locks, never the
	// partner's; only the atomic update keeps concurrent credits whole.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := db.CreditPartner(9, decimal.NewFromInt(5)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	partner, err := db.GetUser(9)
	require.NoError(t, err)
	assert.True(t, partner.PartnerBalance.Equal(decimal.NewFromInt(400)), "balance %s", partner.PartnerBalance)
	assert.True(t, partner.PartnerEarnedTotal.Equal(decimal.NewFromInt(400)), "earned %s", partner.PartnerEarnedTotal)
}

func TestSetPaymentStatusKeepsPaidTerminal(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreatePayment(&models.Payment{
		TgID: 42, Provider: "cryptopay", InvoiceID: "abc", TariffCode: "1m",
		Amount: decimal.NewFromInt(199), Status: models.PaymentPending, CreatedAt: time.Now().Unix(),
	}))

	transitioned, err := db.MarkPaymentPaid("cryptopay", "abc")
	require.NoError(t, err)
	require.True(t, transitioned)

	// A poller observing a terminal provider state after the webhook
	// already paid the row must not undo it.
	require.NoError(t, db.SetPaymentStatus("cryptopay", "abc", models.PaymentFailed))
	payment, err := db.GetPayment("cryptopay", "abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, payment.Status)

	require.NoError(t, db.SetPaymentStatus("cryptopay", "abc", models.PaymentCancelled))
	payment, err = db.GetPayment("cryptopay", "abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, payment.Status)

	// The partial-activation tag still applies on top of paid.
	require.NoError(t, db.SetPaymentStatus("cryptopay", "abc", models.PaymentPaidPendingProvisioning))
	payment, err = db.GetPayment("cryptopay", "abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaidPendingProvisioning, payment.Status)
}

func TestDebitPartnerBalance(t *testing.T) {
	db := newTestDB(t)
	partner, err := db.EnsureUser(9, nil)
	require.NoError(t, err)
	partner.PartnerBalance = decimal.NewFromInt(100)
	require.NoError(t, db.SaveUser(partner))

	ok, err := db.DebitPartnerBalance(9, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.False(t, ok, "balance must cover the debit")

	ok, err = db.DebitPartnerBalance(9, decimal.NewFromInt(80))
	require.NoError(t, err)
	assert.True(t, ok)

	partner, err = db.GetUser(9)
	require.NoError(t, err)
	assert.True(t, partner.PartnerBalance.Equal(decimal.NewFromInt(20)), "balance %s", partner.PartnerBalance)
	assert.True(t, partner.PartnerWithdrawnTotal.Equal(decimal.NewFromInt(80)), "withdrawn %s", partner.PartnerWithdrawnTotal)
}

func TestConsumePromoCode(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreatePromoCode(&models.PromoCode{Code: "WELCOME", Days: 5, MaxUses: 2}))

	_, ok, err := db.ConsumePromoCode("WELCOME", 42)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same user again: rejected.
	_, ok, err = db.ConsumePromoCode("WELCOME", 42)
	require.NoError(t, err)
	assert.False(t, ok)

	// Second user takes the last use.
	_, ok, err = db.ConsumePromoCode("WELCOME", 43)
	require.NoError(t, err)
	assert.True(t, ok)

	// Exhausted.
	_, ok, err = db.ConsumePromoCode("WELCOME", 44)
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown code.
	promo, ok, err := db.ConsumePromoCode("NOPE", 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, promo)
}

func TestClaimGiftOnce(t *testing.T) {
	db := newTestDB(t)
	gift := &models.Gift{FromTgID: 7, ToTgID: 42, Days: 30, CreatedAt: time.Now().Unix()}
	require.NoError(t, db.CreateGift(gift))

	// Wrong recipient.
	_, ok, err := db.ClaimGift(gift.ID, 43)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = db.ClaimGift(gift.ID, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = db.ClaimGift(gift.ID, 42)
	require.NoError(t, err)
	assert.False(t, ok, "a gift is claimable once")
}

func TestPartnerLinkBindsOnce(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreatePartnerLink(9, 42))
	require.NoError(t, db.CreatePartnerLink(10, 42))

	link, err := db.PartnerLinkFor(42)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, int64(9), link.PartnerID, "the first partner keeps the user")
}
