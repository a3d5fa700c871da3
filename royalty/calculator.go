/*
calculator.go - Royalty calculation

PURPOSE:
  Computes the exact royalty owed for a reporting period from a contract's
  rate structure and the period's sales figures. This is the central
  calculation that answers "how much does this licensee owe?"

CALCULATION MODES (dispatched on RoyaltyRate.Kind):
  Flat:     royalty = net_sales * percent
  Tiered:   marginal brackets, like progressive tax - each bracket's slice of
            sales is charged at that bracket's rate
  Category: per-category amounts charged at per-category rates, with fuzzy
            label matching (see category.go)

TIER BOUNDARY RULE:
  A sales figure exactly equal to a bracket boundary belongs to the LOWER
  bracket: the bracket below fills to capacity and the boundary value does
  not spill into the next bracket. Exactly $2,000,000 against
  [$0-$2M @6%, $2M-$5M @8%] yields $2M * 6% + $0 * 8%.

NEGATIVE SALES:
  Negative net sales (a returns-heavy period) flow through the flat path and
  may produce a negative royalty. This is an intentional pass-through; whether
  it should instead carry forward as a credit is an unresolved product
  question. The marginal tiered formula clamps per-bracket amounts at zero,
  so tiered royalties bottom out at 0.

PRECISION:
  No rounding anywhere in this file. The returned royalty is exact; callers
  apply RoundCurrency at display boundaries.

SEE ALSO:
  - rate.go:      RoyaltyRate union
  - category.go:  label matching for category mode
  - reconcile.go: compares the result against the licensee's reported figure
*/
package royalty

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT - Which path produced the number, and how
// =============================================================================

type CalculationMethod string

const (
	MethodFlat     CalculationMethod = "flat"
	MethodTiered   CalculationMethod = "tiered"
	MethodCategory CalculationMethod = "category"
)

// TierLine records one bracket's contribution, for audit display.
type TierLine struct {
	Min          decimal.Decimal
	Max          *decimal.Decimal
	Rate         decimal.Decimal
	AmountInTier decimal.Decimal
	Royalty      decimal.Decimal
}

// CategoryLine records one breakdown entry's contribution.
type CategoryLine struct {
	Reported string // label as reported by the licensee
	Matched  string // contract category it resolved to
	Amount   decimal.Decimal
	Rate     decimal.Decimal
	Royalty  decimal.Decimal
}

// Result is the discriminated outcome of a calculation: the exact royalty
// plus the per-bracket or per-category lines that produced it.
type Result struct {
	Royalty       decimal.Decimal
	Method        CalculationMethod
	TierLines     []TierLine     // tiered only
	CategoryLines []CategoryLine // category only
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculate computes the royalty for one reporting period.
// breakdown is required for category rates and ignored otherwise.
func Calculate(rate RoyaltyRate, netSales decimal.Decimal, breakdown map[string]decimal.Decimal) (Result, error) {
	switch rate.Kind {
	case RateFlat:
		return calculateFlat(rate, netSales), nil
	case RateTiered:
		return calculateTiered(rate, netSales), nil
	case RateCategory:
		return calculateCategory(rate, breakdown)
	default:
		return Result{}, &RateParseError{Raw: string(rate.Kind), Reason: "unknown rate kind"}
	}
}

func calculateFlat(rate RoyaltyRate, netSales decimal.Decimal) Result {
	return Result{
		Royalty: netSales.Mul(rate.Percent),
		Method:  MethodFlat,
	}
}

func calculateTiered(rate RoyaltyRate, netSales decimal.Decimal) Result {
	result := Result{Method: MethodTiered, Royalty: decimal.Zero}

	for _, tier := range rate.Tiers {
		// Amount of sales falling inside this bracket:
		//   max(0, min(netSales, tier.Max) - tier.Min)
		// An open-ended last bracket caps at netSales itself.
		upper := netSales
		if tier.Max != nil {
			upper = min(netSales, *tier.Max)
		}
		amountInTier := max(decimal.Zero, upper.Sub(tier.Min))
		royalty := amountInTier.Mul(tier.Rate)

		result.Royalty = result.Royalty.Add(royalty)
		result.TierLines = append(result.TierLines, TierLine{
			Min:          tier.Min,
			Max:          tier.Max,
			Rate:         tier.Rate,
			AmountInTier: amountInTier,
			Royalty:      royalty,
		})
	}

	return result
}

func calculateCategory(rate RoyaltyRate, breakdown map[string]decimal.Decimal) (Result, error) {
	if breakdown == nil {
		return Result{}, ErrMissingBreakdown
	}

	candidates := rate.CategoryLabels()

	// Deterministic iteration order: identical inputs must always produce
	// identical results (including line order).
	reported := make([]string, 0, len(breakdown))
	for label := range breakdown {
		reported = append(reported, label)
	}
	sort.Strings(reported)

	result := Result{Method: MethodCategory, Royalty: decimal.Zero}
	for _, label := range reported {
		matched, ok := MatchCategory(label, candidates)
		if !ok {
			// Every reported dollar is accounted for or explicitly rejected.
			return Result{}, &UnmatchedCategoryError{Category: label, Candidates: candidates}
		}

		amount := breakdown[label]
		categoryRate := rate.Categories[matched]
		royalty := amount.Mul(categoryRate)

		result.Royalty = result.Royalty.Add(royalty)
		result.CategoryLines = append(result.CategoryLines, CategoryLine{
			Reported: label,
			Matched:  matched,
			Amount:   amount,
			Rate:     categoryRate,
			Royalty:  royalty,
		})
	}

	return result, nil
}
