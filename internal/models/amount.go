package models

import "github.com/shopspring/decimal"

// MaxAmount is the largest money value the NUMERIC(12, 2) columns hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// AmountFits reports whether d, rounded to cents, fits a NUMERIC(12, 2) column.
func AmountFits(d decimal.Decimal) bool {
	return d.Round(2).Abs().LessThanOrEqual(MaxAmount)
}
