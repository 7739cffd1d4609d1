package http

import (
	"github.com/shopspring/decimal"

	"github.com/escrowcore/ledgercore/internal/money"
)

// minorScale is spec §3's fixed 1 IDR = 100 minor relationship.
const minorScale = 100

// parseAmountMinor converts a decimal currency string (e.g. "15000.00")
// from the HTTP boundary into money.Minor. Decimal math never touches a
// stored balance — it is confined to this one conversion, per
// SPEC_FULL's domain-stack note on shopspring/decimal.
func parseAmountMinor(s string) (money.Minor, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errValidation("amount is not a valid decimal: " + err.Error())
	}

	minor := d.Mul(decimal.NewFromInt(minorScale))
	if !minor.IsInteger() {
		return 0, errValidation("amount has more precision than the currency's minor unit allows")
	}

	return money.Minor(minor.IntPart()), nil
}

// parseOptionalAmountMinor treats an empty string as a zero fee/amount,
// for request fields spec.md allows the caller to omit.
func parseOptionalAmountMinor(s string) (money.Minor, error) {
	if s == "" {
		return 0, nil
	}

	return parseAmountMinor(s)
}
