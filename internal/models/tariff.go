package models

import "github.com/shopspring/decimal"

// TariffTopup is the pseudo-tariff used for main-balance top-ups.
// A payment carrying it credits the balance instead of the entitlement.
const TariffTopup = "topup"

// Tariff is a purchasable subscription period.
type Tariff struct {
	// Code identifies the tariff in payments and callbacks.
	Code string
	// Title is the human-readable tariff name.
	Title string
	// Days is the entitlement period granted on activation.
	Days int64
	// Price is the tariff price.
	Price decimal.Decimal
}

// tariffs is the sale catalog, keyed by code.
var tariffs = map[string]Tariff{
	"1m": {Code: "1m", Title: "1 month", Days: 30, Price: decimal.NewFromInt(199)},
	"3m": {Code: "3m", Title: "3 months", Days: 90, Price: decimal.NewFromInt(449)},
	"6m": {Code: "6m", Title: "6 months", Days: 180, Price: decimal.NewFromInt(799)},
	"1y": {Code: "1y", Title: "1 year", Days: 365, Price: decimal.NewFromInt(1399)},
}

// TariffByCode looks up a tariff in the catalog.
func TariffByCode(code string) (Tariff, bool) {
	t, ok := tariffs[code]
	return t, ok
}

// Tariffs returns the full sale catalog.
func Tariffs() []Tariff {
	out := make([]Tariff, 0, len(tariffs))
	for _, code := range []string{"1m", "3m", "6m", "1y"} {
		out = append(out, tariffs[code])
	}
	return out
}
