/*
reconcile.go - Discrepancy classification

PURPOSE:
  Compares the engine's calculated royalty against the figure the licensee
  self-reported for the same period and classifies the result. This is the
  number that drives the audit conversation: an under-report is revenue the
  licensor may be owed; an over-report usually signals a rate or breakdown
  mismatch worth investigating.

CLASSIFICATION:
  not_reported    reported is nil (no self-reported figure on the upload)
  match           |reported - calculated| <= $0.01 (cent tolerance)
  under_reported  reported < calculated; Amount = calculated - reported
  over_reported   reported > calculated; Amount = reported - calculated

  Amount is always the positive magnitude; Status carries the direction.
  Percentage = Amount / calculated * 100 when calculated > 0, else nil
  (rendered as a dash rather than dividing by zero).
*/
package royalty

import "github.com/shopspring/decimal"

// =============================================================================
// DISCREPANCY
// =============================================================================

type DiscrepancyStatus string

const (
	StatusMatch         DiscrepancyStatus = "match"
	StatusUnderReported DiscrepancyStatus = "under_reported"
	StatusOverReported  DiscrepancyStatus = "over_reported"
	StatusNotReported   DiscrepancyStatus = "not_reported"
)

// Discrepancy is the reconciliation outcome for one period.
type Discrepancy struct {
	Status DiscrepancyStatus

	// Positive magnitude of the difference; nil when not_reported.
	Amount *decimal.Decimal

	// Amount as a percentage of the calculated royalty; nil when
	// not_reported or when calculated <= 0.
	Percentage *decimal.Decimal
}

// Reconcile classifies the licensee-reported royalty against the calculated
// one. reported == nil means no figure was reported.
func Reconcile(calculated decimal.Decimal, reported *decimal.Decimal) Discrepancy {
	if reported == nil {
		return Discrepancy{Status: StatusNotReported}
	}

	diff := reported.Sub(calculated)
	amount := diff.Abs()

	status := StatusMatch
	switch {
	case amount.LessThanOrEqual(CentTolerance):
		status = StatusMatch
	case diff.IsNegative():
		status = StatusUnderReported
	default:
		status = StatusOverReported
	}

	d := Discrepancy{Status: status, Amount: &amount}
	if calculated.IsPositive() {
		pct := amount.Div(calculated).Mul(decimal.NewFromInt(100))
		d.Percentage = &pct
	}
	return d
}
