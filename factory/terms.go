/*
Package factory converts extracted contract terms JSON into typed terms.

PURPOSE:
  Contract terms arrive as loosely-typed JSON from the PDF/LLM extraction
  pipeline (an external collaborator) or from manual editing in the admin UI.
  This factory is the single place that JSON is validated and resolved into
  the typed structures the engine consumes - rate union, minimum guarantee,
  advance, reporting frequency. Downstream code never touches raw terms JSON.

JSON SCHEMA:
  {
    "licensee": "Acme Licensing Co",
    "royalty_rate": "8% of Net Sales",          // or tier list, or category map
    "minimum_guarantee": {"amount": "50000", "period": "annual"},
    "advance": {"amount": "20000"},
    "reporting_frequency": "quarterly",
    "territory": "North America"
  }

KEY FEATURES:
  - Delegates rate parsing to royalty.ParseRate (all three shapes)
  - Amounts accepted as JSON numbers or strings; never binary floats
  - Sensible defaults: reporting frequency defaults to quarterly,
    guarantee period defaults to annual
  - A malformed rate is an error surfaced for manual correction - terms are
    never silently defaulted

USAGE:
  factory := NewTermsFactory()
  terms, err := factory.ParseTerms(extractedJSON)

SEE ALSO:
  - royalty/rate.go: rate union and parser
  - store/sqlite:    persists the raw terms JSON alongside the contract
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/royalty-engine/royalty"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TermsJSON is the wire representation of extracted contract terms.
type TermsJSON struct {
	Licensee           string           `json:"licensee,omitempty"`
	RoyaltyRate        json.RawMessage  `json:"royalty_rate"`
	MinimumGuarantee   *GuaranteeJSON   `json:"minimum_guarantee,omitempty"`
	Advance            *AdvanceJSON     `json:"advance,omitempty"`
	ReportingFrequency string           `json:"reporting_frequency,omitempty"`
	Territory          string           `json:"territory,omitempty"`
}

// GuaranteeJSON is the wire form of a minimum guarantee. Amounts arrive as
// JSON numbers or strings ("50000", "$50,000") - never binary floats.
type GuaranteeJSON struct {
	Amount json.RawMessage `json:"amount"`
	Period string          `json:"period,omitempty"` // annual (default), quarterly, monthly
}

// AdvanceJSON is the wire form of an advance payment.
type AdvanceJSON struct {
	Amount json.RawMessage `json:"amount"`
}

// =============================================================================
// TYPED TERMS
// =============================================================================

// Terms is the validated, typed form of a contract's commercial terms.
type Terms struct {
	Licensee           string
	Rate               royalty.RoyaltyRate
	MinimumGuarantee   *royalty.MinimumGuarantee
	Advance            *decimal.Decimal
	ReportingFrequency royalty.Frequency
	Territory          string
}

// =============================================================================
// TERMS FACTORY
// =============================================================================

// TermsFactory converts terms JSON to typed Terms.
type TermsFactory struct{}

func NewTermsFactory() *TermsFactory {
	return &TermsFactory{}
}

// ParseTerms parses a JSON document into Terms.
func (f *TermsFactory) ParseTerms(jsonStr string) (*Terms, error) {
	var tj TermsJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return nil, fmt.Errorf("%w: invalid terms JSON: %v", royalty.ErrInvalidTerms, err)
	}
	return f.FromJSON(tj)
}

// FromJSON converts TermsJSON to Terms, validating every field.
func (f *TermsFactory) FromJSON(tj TermsJSON) (*Terms, error) {
	rate, err := royalty.ParseRate(tj.RoyaltyRate)
	if err != nil {
		return nil, err
	}

	frequency := royalty.FrequencyQuarterly
	if tj.ReportingFrequency != "" {
		frequency, err = royalty.ParseFrequency(tj.ReportingFrequency)
		if err != nil {
			return nil, err
		}
	}

	terms := &Terms{
		Licensee:           tj.Licensee,
		Rate:               rate,
		ReportingFrequency: frequency,
		Territory:          tj.Territory,
	}

	if tj.MinimumGuarantee != nil {
		mg, err := parseGuarantee(*tj.MinimumGuarantee)
		if err != nil {
			return nil, err
		}
		terms.MinimumGuarantee = mg
	}

	if tj.Advance != nil {
		amount, err := parseAmount(tj.Advance.Amount, "advance amount")
		if err != nil {
			return nil, err
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("%w: advance amount must not be negative", royalty.ErrInvalidTerms)
		}
		terms.Advance = &amount
	}

	return terms, nil
}

func parseGuarantee(gj GuaranteeJSON) (*royalty.MinimumGuarantee, error) {
	amount, err := parseAmount(gj.Amount, "guarantee amount")
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: guarantee amount must not be negative", royalty.ErrInvalidTerms)
	}

	period := royalty.GuaranteeAnnual
	switch gj.Period {
	case "", string(royalty.GuaranteeAnnual):
		// default
	case string(royalty.GuaranteeQuarterly):
		period = royalty.GuaranteeQuarterly
	case string(royalty.GuaranteeMonthly):
		period = royalty.GuaranteeMonthly
	default:
		return nil, fmt.Errorf("%w: unknown guarantee period %q", royalty.ErrInvalidTerms, gj.Period)
	}

	return &royalty.MinimumGuarantee{Amount: amount, Period: period}, nil
}

func parseAmount(raw json.RawMessage, what string) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, fmt.Errorf("%w: missing %s", royalty.ErrInvalidTerms, what)
	}
	if s[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, fmt.Errorf("%w: invalid %s", royalty.ErrInvalidTerms, what)
		}
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid %s %q", royalty.ErrInvalidTerms, what, s)
	}
	return d, nil
}
