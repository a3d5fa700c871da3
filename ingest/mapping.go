/*
Package ingest turns licensee-uploaded sales reports into normalized sales
figures for the royalty calculator.

PURPOSE:
  Licensees upload spreadsheets with arbitrary column headers ("Net Revenue",
  "Product Line", "Royalty Due to Licensor", ...). This package models the
  mapping from those headers onto the closed set of semantic fields the
  engine understands, suggests mappings from saved history or header
  keywords, and reduces the mapped rows to a single normalized report:

      {net_sales, category_breakdown?, licensee_reported_royalty?, warnings}

KEY CONCEPTS IN THIS FILE (mapping.go):
  - Field: the closed set of semantic column meanings
  - ColumnMapping: header -> Field, validated before ingestion
  - Provenance: where a suggested mapping came from (saved / suggested / none)
  - SuggestMapping: keyword heuristics over headers, advisory only

MAPPING RULES:
  - net_sales is mandatory - EXCEPT when both gross_sales and returns are
    mapped, in which case net is derived as gross minus returns
  - at most one column may map to each non-ignore field
  - suggestions never proceed on their own: the user confirms the mapping
    before ingestion runs

SEE ALSO:
  - ingest.go: row reduction using a validated mapping
  - csv.go:    CSV parsing into header + rows
*/
package ingest

import (
	"fmt"
	"strings"
)

// =============================================================================
// SEMANTIC FIELDS
// =============================================================================

// Field is a semantic meaning a spreadsheet column can map to.
type Field string

const (
	FieldNetSales        Field = "net_sales"
	FieldGrossSales      Field = "gross_sales"
	FieldReturns         Field = "returns"
	FieldProductCategory Field = "product_category"
	FieldReportedRoyalty Field = "licensee_reported_royalty"
	FieldTerritory       Field = "territory"
	FieldIgnore          Field = "ignore"
)

// ParseField validates a textual field name from a client-confirmed mapping.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldNetSales, FieldGrossSales, FieldReturns, FieldProductCategory,
		FieldReportedRoyalty, FieldTerritory, FieldIgnore:
		return Field(s), nil
	default:
		return "", fmt.Errorf("unknown mapping field %q", s)
	}
}

// =============================================================================
// COLUMN MAPPING
// =============================================================================

// ColumnMapping maps raw spreadsheet headers to semantic fields.
type ColumnMapping map[string]Field

// Provenance records where a suggested mapping came from.
type Provenance string

const (
	ProvenanceSaved     Provenance = "saved"     // reused from a previous upload by this licensee
	ProvenanceSuggested Provenance = "suggested" // header keyword heuristics
	ProvenanceNone      Provenance = "none"      // nothing to offer, user maps from scratch
)

// ColumnFor returns the header mapped to the given field, if any.
func (m ColumnMapping) ColumnFor(field Field) (string, bool) {
	for header, f := range m {
		if f == field {
			return header, true
		}
	}
	return "", false
}

// Validate checks the mapping invariants: at most one column per non-ignore
// field, and a usable net-sales source (direct, or gross plus returns).
func (m ColumnMapping) Validate() error {
	seen := make(map[Field]string)
	for header, field := range m {
		if field == FieldIgnore {
			continue
		}
		if _, err := ParseField(string(field)); err != nil {
			return err
		}
		if prev, dup := seen[field]; dup {
			return fmt.Errorf("field %s mapped by both %q and %q", field, prev, header)
		}
		seen[field] = header
	}

	_, hasNet := seen[FieldNetSales]
	_, hasGross := seen[FieldGrossSales]
	_, hasReturns := seen[FieldReturns]
	if !hasNet && !(hasGross && hasReturns) {
		return fmt.Errorf("a net_sales column is required (or both gross_sales and returns)")
	}
	return nil
}

// =============================================================================
// MAPPING SUGGESTION - advisory keyword heuristics
// =============================================================================

// fieldKeywords drive the fallback suggestion when no saved mapping exists.
// Order matters: more specific fields are claimed first so "Net Sales" does
// not land on gross_sales and "Royalty Due" does not land on net_sales.
var fieldKeywords = []struct {
	field    Field
	keywords []string
}{
	{FieldReportedRoyalty, []string{"royalt"}},
	{FieldReturns, []string{"return", "refund", "allowance"}},
	{FieldNetSales, []string{"net sales", "net revenue", "net_sales", "net amount"}},
	{FieldGrossSales, []string{"gross"}},
	{FieldProductCategory, []string{"categor", "product line", "product type", "department"}},
	{FieldTerritory, []string{"territor", "region", "country", "market"}},
	// Bare "sales"/"revenue" headers are assumed net when nothing better claims them.
	{FieldNetSales, []string{"sales", "revenue", "amount"}},
}

// SuggestMapping proposes a mapping from header keywords. The result is
// advisory: it may be incomplete (no net-sales source found) and must be
// confirmed by the user before ingestion.
func SuggestMapping(headers []string) ColumnMapping {
	mapping := make(ColumnMapping, len(headers))
	claimed := make(map[Field]bool)

	for _, entry := range fieldKeywords {
		if claimed[entry.field] {
			continue
		}
		for _, header := range headers {
			if _, taken := mapping[header]; taken {
				continue
			}
			if !headerMatches(header, entry.keywords) {
				continue
			}
			mapping[header] = entry.field
			claimed[entry.field] = true
			break
		}
	}

	for _, header := range headers {
		if _, ok := mapping[header]; !ok {
			mapping[header] = FieldIgnore
		}
	}
	return mapping
}

func headerMatches(header string, keywords []string) bool {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.ReplaceAll(h, "_", " ")
	for _, kw := range keywords {
		if strings.Contains(h, kw) {
			return true
		}
	}
	return false
}
