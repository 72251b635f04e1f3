package reconciler

import "errors"

var (
	// ErrLockBusy means another mutation holds the user lock. Not a
	// failure: webhook callers ack without side effects and pollers
	// retry next cycle.
	ErrLockBusy = errors.New("user lock busy")

	// ErrPartialActivation means the payment ledger already says paid
	// but a later step failed. Retrying automatically would double
	// side effects; the state is flagged for the operator instead.
	ErrPartialActivation = errors.New("partial activation")

	// ErrUnknownTariff is a permanent validation failure, never retried.
	ErrUnknownTariff = errors.New("unknown tariff code")

	// ErrInsufficientBalance rejects a withdrawal bigger than the
	// partner's balance.
	ErrInsufficientBalance = errors.New("insufficient partner balance")

	// ErrPromoInvalid covers unknown, exhausted and already redeemed
	// promo codes.
	ErrPromoInvalid = errors.New("promo code invalid")

	// ErrGiftInvalid covers unknown and already claimed gifts.
	ErrGiftInvalid = errors.New("gift invalid")
)
