/*
rate.go - Rate structures and the rate parser

PURPOSE:
  Defines the RoyaltyRate tagged union (flat / tiered / category) and parses
  the loosely-typed rate representations produced by the contract extraction
  and editing layer into it. Rates arrive as JSON in one of three shapes:

    "8%"                                     -> Flat
    "8% of Net Sales"                        -> Flat
    [{"min": 0, "max": 2000000, "rate": "6%"}, ...] -> Tiered
    {"Apparel": "10%", "Home Goods": "8%"}   -> Category

  Downstream components never see raw JSON: the union is resolved exactly
  once, here, and every invariant (percent in [0,1], tiers sorted, contiguous,
  non-overlapping) holds after parsing.

PERCENT NORMALIZATION:
  The first numeric token in a string is extracted. A trailing/attached "%"
  means the value is a percentage and is divided by 100. Without a "%", a
  value below 1 is taken as an already-normalized fraction (the extraction
  layer sometimes emits "0.08"); anything else is treated as a percentage.
  So "8%", "8", "8.0% of Net Sales" and "0.08" all normalize to 0.08.

TIER INVARIANTS (enforced, not assumed):
  - at least one tier; every tier supplies min and rate
  - tiers sorted ascending by min (input order is not trusted - upstream
    extraction scrambles them)
  - contiguous and non-overlapping: each tier's min equals the previous
    tier's max
  - only the last tier may have a null max ("and above")

SEE ALSO:
  - calculator.go: consumes RoyaltyRate
  - factory/terms.go: calls ParseRate while building contract terms
*/
package royalty

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROYALTY RATE - Tagged union over the three contract rate shapes
// =============================================================================

type RateKind string

const (
	RateFlat     RateKind = "flat"
	RateTiered   RateKind = "tiered"
	RateCategory RateKind = "category"
)

// Tier is one marginal bracket. Max == nil means "and above".
type Tier struct {
	Min  decimal.Decimal
	Max  *decimal.Decimal
	Rate decimal.Decimal
}

// RoyaltyRate is the closed variant type for contract rate structures.
// Exactly one of Percent / Tiers / Categories is meaningful, per Kind.
type RoyaltyRate struct {
	Kind RateKind

	// Flat: normalized fraction in [0,1]
	Percent decimal.Decimal

	// Tiered: sorted ascending by Min
	Tiers []Tier

	// Category: display label (case preserved) -> normalized fraction.
	// Matching against these keys is case-insensitive, see category.go.
	Categories map[string]decimal.Decimal
}

// CategoryLabels returns the contract's category labels (display form).
func (r RoyaltyRate) CategoryLabels() []string {
	labels := make([]string, 0, len(r.Categories))
	for label := range r.Categories {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// =============================================================================
// RATE PARSER
// =============================================================================

var numericToken = regexp.MustCompile(`-?\d+(\.\d+)?`)

// ParseRate resolves a raw JSON rate representation into a RoyaltyRate.
// Accepted shapes: JSON string (flat), JSON array of tier objects (tiered),
// JSON object of category -> rate string (category).
func ParseRate(raw json.RawMessage) (RoyaltyRate, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return RoyaltyRate{}, &RateParseError{Raw: trimmed, Reason: "empty rate"}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return RoyaltyRate{}, &RateParseError{Raw: truncate(trimmed), Reason: "invalid JSON string"}
		}
		return parseFlat(s)
	case '[':
		var tiers []tierJSON
		if err := json.Unmarshal(raw, &tiers); err != nil {
			return RoyaltyRate{}, &RateParseError{Raw: truncate(trimmed), Reason: "invalid tier list"}
		}
		return parseTiered(tiers)
	case '{':
		var categories map[string]json.RawMessage
		if err := json.Unmarshal(raw, &categories); err != nil {
			return RoyaltyRate{}, &RateParseError{Raw: truncate(trimmed), Reason: "invalid category map"}
		}
		return parseCategory(categories)
	default:
		// Bare number: extraction layer occasionally emits an unquoted rate.
		return parseFlat(trimmed)
	}
}

// ParsePercent normalizes a textual rate ("8%", "8", "8% of Net Sales",
// "0.08") to a fraction in [0,1].
func ParsePercent(s string) (decimal.Decimal, error) {
	token := numericToken.FindString(s)
	if token == "" {
		return decimal.Zero, &RateParseError{Raw: truncate(s), Reason: "no numeric token"}
	}

	value, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Zero, &RateParseError{Raw: truncate(s), Reason: "invalid number"}
	}

	hasPercentSign := strings.Contains(s, "%")
	switch {
	case hasPercentSign:
		value = value.Div(decimal.NewFromInt(100))
	case value.Abs().LessThan(decimal.NewFromInt(1)):
		// Already a fraction (e.g. 0.08)
	default:
		value = value.Div(decimal.NewFromInt(100))
	}

	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, &RateParseError{
			Raw:    truncate(s),
			Reason: fmt.Sprintf("rate %s out of range [0%%, 100%%]", value.Mul(decimal.NewFromInt(100))),
		}
	}
	return value, nil
}

func parseFlat(s string) (RoyaltyRate, error) {
	percent, err := ParsePercent(s)
	if err != nil {
		return RoyaltyRate{}, err
	}
	return RoyaltyRate{Kind: RateFlat, Percent: percent}, nil
}

// tierJSON is the loose wire form of a tier. Min and Rate use pointers so a
// missing field is distinguishable from a zero value. Rate and Min/Max accept
// either JSON numbers or strings ("6%", "2000000").
type tierJSON struct {
	Min  *json.RawMessage `json:"min"`
	Max  *json.RawMessage `json:"max"`
	Rate *json.RawMessage `json:"rate"`
}

func parseTiered(tiers []tierJSON) (RoyaltyRate, error) {
	if len(tiers) == 0 {
		return RoyaltyRate{}, &RateParseError{Raw: "[]", Reason: "tiered rate requires at least one tier"}
	}

	parsed := make([]Tier, 0, len(tiers))
	for i, tj := range tiers {
		if tj.Min == nil {
			return RoyaltyRate{}, &RateParseError{Raw: fmt.Sprintf("tier %d", i), Reason: "tier missing min"}
		}
		if tj.Rate == nil {
			return RoyaltyRate{}, &RateParseError{Raw: fmt.Sprintf("tier %d", i), Reason: "tier missing rate"}
		}

		min, err := parseAmountField(*tj.Min)
		if err != nil {
			return RoyaltyRate{}, &RateParseError{Raw: fmt.Sprintf("tier %d min", i), Reason: err.Error()}
		}

		rateStr, err := rawToString(*tj.Rate)
		if err != nil {
			return RoyaltyRate{}, &RateParseError{Raw: fmt.Sprintf("tier %d rate", i), Reason: err.Error()}
		}
		rate, err := ParsePercent(rateStr)
		if err != nil {
			return RoyaltyRate{}, err
		}

		tier := Tier{Min: min, Rate: rate}
		if tj.Max != nil && strings.TrimSpace(string(*tj.Max)) != "null" {
			max, err := parseAmountField(*tj.Max)
			if err != nil {
				return RoyaltyRate{}, &RateParseError{Raw: fmt.Sprintf("tier %d max", i), Reason: err.Error()}
			}
			tier.Max = &max
		}
		parsed = append(parsed, tier)
	}

	// Upstream extraction does not guarantee order.
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Min.LessThan(parsed[j].Min) })

	// Tiers must be contiguous and non-overlapping; only the last may be unbounded.
	for i, tier := range parsed {
		last := i == len(parsed)-1
		if tier.Max == nil && !last {
			return RoyaltyRate{}, &RateParseError{
				Raw: fmt.Sprintf("tier %d", i), Reason: "only the last tier may have an open max",
			}
		}
		if tier.Max != nil && !tier.Max.GreaterThan(tier.Min) {
			return RoyaltyRate{}, &RateParseError{
				Raw: fmt.Sprintf("tier %d", i), Reason: "tier max must exceed tier min",
			}
		}
		if !last {
			next := parsed[i+1]
			if !tier.Max.Equal(next.Min) {
				return RoyaltyRate{}, &RateParseError{
					Raw:    fmt.Sprintf("tier %d", i),
					Reason: fmt.Sprintf("tiers must be contiguous: max %s != next min %s", tier.Max, next.Min),
				}
			}
		}
	}

	return RoyaltyRate{Kind: RateTiered, Tiers: parsed}, nil
}

func parseCategory(categories map[string]json.RawMessage) (RoyaltyRate, error) {
	if len(categories) == 0 {
		return RoyaltyRate{}, &RateParseError{Raw: "{}", Reason: "category rate requires at least one category"}
	}

	rates := make(map[string]decimal.Decimal, len(categories))
	for label, raw := range categories {
		s, err := rawToString(raw)
		if err != nil {
			return RoyaltyRate{}, &RateParseError{Raw: truncate(label), Reason: err.Error()}
		}
		percent, err := ParsePercent(s)
		if err != nil {
			return RoyaltyRate{}, err
		}
		// Original key preserved for display; matching normalizes separately.
		rates[label] = percent
	}

	return RoyaltyRate{Kind: RateCategory, Categories: rates}, nil
}

// =============================================================================
// LOOSE-JSON HELPERS
// =============================================================================

// rawToString accepts a JSON string or number and returns its textual form.
func rawToString(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", fmt.Errorf("empty value")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid string")
		}
		return s, nil
	}
	return trimmed, nil
}

// parseAmountField parses a tier boundary: a JSON number or a string that may
// carry currency formatting ("$2,000,000").
func parseAmountField(raw json.RawMessage) (decimal.Decimal, error) {
	s, err := rawToString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

func truncate(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
