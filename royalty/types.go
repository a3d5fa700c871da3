/*
Package royalty provides the core royalty calculation and reconciliation engine.

PURPOSE:
  This package contains the pure calculation logic for licensing royalties:
  parsing heterogeneous rate structures, computing royalties owed (flat,
  marginal-tiered, or per-category), matching reported category labels to
  contract categories, applying minimum-guarantee and advance-payment
  adjustments, and classifying discrepancies between calculated and
  licensee-reported figures.

KEY CONCEPTS IN THIS FILE (types.go):
  - Decimal helpers: exact arithmetic via decimal.Decimal, currency rounding

DESIGN PRINCIPLES:
  1. Precision: all money math uses decimal.Decimal; intermediate values are
     never rounded. RoundCurrency is for display boundaries only.
  2. Purity: every function in this package operates on values passed in and
     returns new values. No I/O, no shared state, no clocks.
  3. Determinism: identical inputs always produce identical outputs, so a
     disputed royalty figure can be reproduced exactly.
  4. Closed variants: loosely-typed rate input is resolved once at the parse
     boundary; everything downstream operates on the RoyaltyRate union.

SEE ALSO:
  - rate.go:       RoyaltyRate union and the rate parser
  - calculator.go: Royalty calculation
  - guarantee.go:  Minimum guarantee and advance adjustments
  - reconcile.go:  Discrepancy classification
*/
package royalty

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustDecimal parses a decimal string, returning zero on failure.
// Intended for literals in code and tests, not for untrusted input.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundCurrency rounds to 2 decimal places (half up). Callers apply this at
// display and serialization boundaries only; the calculator never rounds.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CentTolerance is the threshold under which two currency amounts are
// considered equal (one cent), used by the reconciler and by the ingestion
// layer's breakdown-sum check.
var CentTolerance = MustDecimal("0.01")

func min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
