package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffByCode(t *testing.T) {
	tariff, ok := TariffByCode("3m")
	require.True(t, ok)
	assert.Equal(t, int64(90), tariff.Days)
	assert.True(t, tariff.Price.Equal(decimal.NewFromInt(449)))

	_, ok = TariffByCode("99m")
	assert.False(t, ok)

	// The top-up pseudo-tariff is not in the sale catalog.
	_, ok = TariffByCode(TariffTopup)
	assert.False(t, ok)
}

func TestTariffsOrder(t *testing.T) {
	codes := make([]string, 0, 4)
	for _, tariff := range Tariffs() {
		codes = append(codes, tariff.Code)
	}
	assert.Equal(t, []string{"1m", "3m", "6m", "1y"}, codes)
}

func TestHasEntitlement(t *testing.T) {
	now := int64(1_700_000_000)
	assert.False(t, (&User{}).HasEntitlement(now))
	assert.False(t, (&User{SubscriptionUntil: now}).HasEntitlement(now))
	assert.True(t, (&User{SubscriptionUntil: now + 1}).HasEntitlement(now))
}

func TestPartnershipActive(t *testing.T) {
	now := int64(1_700_000_000)
	active := &User{IsPartner: true, PartnershipAccepted: true, PartnershipUntil: now + 1}
	assert.True(t, active.PartnershipActive(now))

	cases := map[string]*User{
		"not a partner": {PartnershipAccepted: true, PartnershipUntil: now + 1},
		"not accepted":  {IsPartner: true, PartnershipUntil: now + 1},
		"expired":       {IsPartner: true, PartnershipAccepted: true, PartnershipUntil: now},
	}
	for name, user := range cases {
		assert.False(t, user.PartnershipActive(now), name)
	}
}
