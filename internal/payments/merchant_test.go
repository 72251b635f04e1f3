package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/pkg/logger"
)

func TestMerchantSign(t *testing.T) {
	m := NewMerchant("https://merchant.example", "shop-1", "secret", logger.NewNop())

	sign := m.Sign("order-1", "449.00")
	assert.Len(t, sign, 64, "hex encoded sha256")
	assert.Equal(t, sign, m.Sign("order-1", "449.00"), "deterministic")

	assert.True(t, m.VerifySign("order-1", "449.00", sign))
	assert.False(t, m.VerifySign("order-1", "450.00", sign), "amount is covered by the signature")
	assert.False(t, m.VerifySign("order-2", "449.00", sign), "order id is covered by the signature")
	assert.False(t, m.VerifySign("order-1", "449.00", ""))

	other := NewMerchant("https://merchant.example", "shop-1", "other-secret", logger.NewNop())
	assert.False(t, other.VerifySign("order-1", "449.00", sign), "key rotation invalidates old signatures")
}
