/*
ingest.go - Reducing mapped rows to a normalized sales report

PURPOSE:
  Applies a confirmed ColumnMapping to uploaded rows and produces the single
  normalized tuple the calculator consumes. All amounts are exact decimals;
  cells carry whatever formatting the licensee's export produced ("$1,234.56",
  "(500)" for negatives) and are cleaned before parsing.

DERIVATION RULES:
  net_sales         sum of the net_sales column; if absent, sum(gross_sales)
                    minus sum(returns)
  category_breakdown built only when a product_category column is mapped:
                    rows grouped by normalized label, per-group sum of the
                    net-sales-equivalent amount
  reported_royalty  sum of the mapped column, nil when unmapped

WARNINGS vs ERRORS:
  A warning is a non-fatal heads-up surfaced to the user (zero total sales,
  breakdown that doesn't reconcile to the total). A non-numeric cell in a
  mapped amount column is an ERROR: ingestion is all-or-nothing, because a
  skipped row silently understates royalties owed. Empty cells count as zero -
  exports routinely pad trailing rows.
*/
package ingest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/royalty-engine/royalty"
)

// =============================================================================
// REPORT - The normalized ingestion result
// =============================================================================

// Report is the normalized outcome of one upload.
type Report struct {
	NetSales decimal.Decimal

	// Normalized-label groups, nil when no product_category column is mapped.
	// DisplayLabels preserves the first-seen raw spelling per group.
	CategoryBreakdown map[string]decimal.Decimal
	DisplayLabels     map[string]string

	// Nil when no licensee_reported_royalty column is mapped.
	ReportedRoyalty *decimal.Decimal

	Warnings []Warning
}

// Warning is a non-fatal advisory raised during ingestion.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WarnZeroNetSales      = "zero_net_sales"
	WarnBreakdownMismatch = "breakdown_mismatch"
)

// CellError reports a mapped amount cell that could not be parsed.
type CellError struct {
	Column string
	RowNum int // 1-based data row number
	Value  string
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d, column %q: cannot parse amount %q", e.RowNum, e.Column, e.Value)
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestReport reduces uploaded rows through a confirmed mapping.
// The mapping must have been validated; Validate is re-run defensively.
func IngestReport(rows []Row, mapping ColumnMapping) (Report, error) {
	if err := mapping.Validate(); err != nil {
		return Report{}, err
	}

	netCol, hasNet := mapping.ColumnFor(FieldNetSales)
	grossCol, _ := mapping.ColumnFor(FieldGrossSales)
	returnsCol, _ := mapping.ColumnFor(FieldReturns)
	categoryCol, hasCategory := mapping.ColumnFor(FieldProductCategory)
	royaltyCol, hasRoyalty := mapping.ColumnFor(FieldReportedRoyalty)

	report := Report{NetSales: decimal.Zero}
	if hasCategory {
		report.CategoryBreakdown = make(map[string]decimal.Decimal)
		report.DisplayLabels = make(map[string]string)
	}

	var reportedTotal decimal.Decimal

	for i, row := range rows {
		rowNum := i + 1

		// Net-sales-equivalent amount for this row.
		var rowNet decimal.Decimal
		if hasNet {
			v, err := parseCell(row, netCol, rowNum)
			if err != nil {
				return Report{}, err
			}
			rowNet = v
		} else {
			gross, err := parseCell(row, grossCol, rowNum)
			if err != nil {
				return Report{}, err
			}
			returns, err := parseCell(row, returnsCol, rowNum)
			if err != nil {
				return Report{}, err
			}
			rowNet = gross.Sub(returns)
		}
		report.NetSales = report.NetSales.Add(rowNet)

		if hasCategory {
			label := row[categoryCol]
			normalized := royalty.NormalizeLabel(label)
			if normalized != "" {
				if _, seen := report.DisplayLabels[normalized]; !seen {
					report.DisplayLabels[normalized] = strings.TrimSpace(label)
				}
				report.CategoryBreakdown[normalized] = report.CategoryBreakdown[normalized].Add(rowNet)
			}
		}

		if hasRoyalty {
			v, err := parseCell(row, royaltyCol, rowNum)
			if err != nil {
				return Report{}, err
			}
			reportedTotal = reportedTotal.Add(v)
		}
	}

	if hasRoyalty {
		report.ReportedRoyalty = &reportedTotal
	}

	report.Warnings = append(report.Warnings, checkTotals(report)...)
	return report, nil
}

// checkTotals raises the non-fatal advisories.
func checkTotals(report Report) []Warning {
	var warnings []Warning

	if report.NetSales.IsZero() {
		warnings = append(warnings, Warning{
			Code:    WarnZeroNetSales,
			Message: "total net sales is zero - check the column mapping and the report contents",
		})
	}

	if report.CategoryBreakdown != nil {
		sum := decimal.Zero
		for _, amount := range report.CategoryBreakdown {
			sum = sum.Add(amount)
		}
		// Rows without a category label fall outside the breakdown, so the
		// comparison tolerates a cent of rounding but flags real gaps.
		if sum.Sub(report.NetSales).Abs().GreaterThan(royalty.CentTolerance) {
			warnings = append(warnings, Warning{
				Code: WarnBreakdownMismatch,
				Message: fmt.Sprintf("category breakdown sums to %s but total net sales is %s",
					royalty.RoundCurrency(sum), royalty.RoundCurrency(report.NetSales)),
			})
		}
	}

	return warnings
}

// =============================================================================
// CELL PARSING
// =============================================================================

var amountCleaner = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

// parseCell parses an amount cell. Empty cells are zero; accountant-style
// parentheses mean negative.
func parseCell(row Row, column string, rowNum int) (decimal.Decimal, error) {
	raw := strings.TrimSpace(row[column])
	if raw == "" || raw == "-" {
		return decimal.Zero, nil
	}

	cleaned := amountCleaner.Replace(raw)
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &CellError{Column: column, RowNum: rowNum, Value: raw}
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
