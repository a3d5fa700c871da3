/*
guarantee.go - Minimum guarantee and advance payment adjustments

PURPOSE:
  Applies the two contract-level payment adjustments that sit on top of the
  period royalty calculation:

  Minimum Guarantee (MG): a floor payment owed regardless of calculated
  royalties. Applied against the SUM of calculated royalties across all
  periods inside the guarantee window (annual/quarterly/monthly). If the
  window total falls short, the shortfall is owed.

  Advance Payment: an upfront payment credited against royalties as they
  accrue, until exhausted. The remaining balance only ever decreases.

STATELESSNESS:
  Both operations are pure: the caller reads the current window total and the
  remaining advance balance from persistence, passes them in, and persists
  whatever comes back. The engine holds no running totals and assumes no
  consistency model - it just requires an up-to-date snapshot at call time.

RECOUPMENT:
  Whether an MG shortfall is recoupable against future periods is a known
  product ambiguity. This engine tracks the shortfall only; recoupment
  carry-forward is a separate, unimplemented feature.
*/
package royalty

import "github.com/shopspring/decimal"

// =============================================================================
// MINIMUM GUARANTEE
// =============================================================================

// GuaranteePeriod is the window the guarantee amount applies to.
type GuaranteePeriod string

const (
	GuaranteeAnnual    GuaranteePeriod = "annual"
	GuaranteeQuarterly GuaranteePeriod = "quarterly"
	GuaranteeMonthly   GuaranteePeriod = "monthly"
)

// MinimumGuarantee is a contract-level floor payment.
type MinimumGuarantee struct {
	Amount decimal.Decimal
	Period GuaranteePeriod
}

// MinimumResult reports whether the guarantee bites for a window.
type MinimumResult struct {
	Shortfall decimal.Decimal
	Applied   bool
}

// ApplyMinimum compares the calculated royalty total for the guarantee window
// against the guaranteed amount.
//
//	Shortfall = max(0, mg.Amount - windowTotal)
//	Applied   = Shortfall > 0
func ApplyMinimum(windowTotal decimal.Decimal, mg MinimumGuarantee) MinimumResult {
	shortfall := max(decimal.Zero, mg.Amount.Sub(windowTotal))
	return MinimumResult{
		Shortfall: shortfall,
		Applied:   shortfall.IsPositive(),
	}
}

// =============================================================================
// ADVANCE PAYMENT
// =============================================================================

// AdvanceResult is the outcome of crediting an advance against one period's
// royalty.
type AdvanceResult struct {
	NetDue         decimal.Decimal
	CreditUsed     decimal.Decimal
	RemainingAfter decimal.Decimal
}

// ApplyAdvance credits the remaining advance balance against a period royalty.
//
//	CreditUsed     = min(royalty, remaining)
//	NetDue         = royalty - CreditUsed
//	RemainingAfter = remaining - CreditUsed
//
// A negative royalty (returns-heavy period) uses no credit: the remaining
// balance must never increase.
func ApplyAdvance(royalty, remaining decimal.Decimal) AdvanceResult {
	creditUsed := min(max(royalty, decimal.Zero), max(remaining, decimal.Zero))
	return AdvanceResult{
		NetDue:         royalty.Sub(creditUsed),
		CreditUsed:     creditUsed,
		RemainingAfter: remaining.Sub(creditUsed),
	}
}
