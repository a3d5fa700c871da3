package ingest_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/royalty-engine/ingest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func rowsFromCSV(t *testing.T, csv string) ([]string, []ingest.Row) {
	t.Helper()
	headers, rows, err := ingest.ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return headers, rows
}

// =============================================================================
// INGESTION
// =============================================================================

func TestIngestReport_NetSalesColumn(t *testing.T) {
	// GIVEN: A report with a mapped net sales column carrying currency formatting
	// WHEN: Ingesting
	// THEN: Net sales is the exact column sum

	_, rows := rowsFromCSV(t, `SKU,Net Sales
A-1,"$1,250.50"
A-2,2749.50
A-3,`)

	mapping := ingest.ColumnMapping{
		"SKU":       ingest.FieldIgnore,
		"Net Sales": ingest.FieldNetSales,
	}

	report, err := ingest.IngestReport(rows, mapping)
	require.NoError(t, err)

	assert.True(t, report.NetSales.Equal(d("4000.00")), "got %s", report.NetSales)
	assert.Nil(t, report.CategoryBreakdown)
	assert.Nil(t, report.ReportedRoyalty)
	assert.Empty(t, report.Warnings)
}

func TestIngestReport_GrossMinusReturnsFallback(t *testing.T) {
	// GIVEN: No net column, but gross and returns are both mapped
	// WHEN: Ingesting
	// THEN: net = sum(gross) - sum(returns); parenthesized cells are negative

	_, rows := rowsFromCSV(t, `Gross Revenue,Returns
10000,500
5000,(250)`)

	mapping := ingest.ColumnMapping{
		"Gross Revenue": ingest.FieldGrossSales,
		"Returns":       ingest.FieldReturns,
	}

	report, err := ingest.IngestReport(rows, mapping)
	require.NoError(t, err)

	// 15000 - (500 - 250) = 14750
	assert.True(t, report.NetSales.Equal(d("14750")), "got %s", report.NetSales)
}

func TestIngestReport_CategoryBreakdownGroupsNormalizedLabels(t *testing.T) {
	// GIVEN: Category labels differing only in case/whitespace
	// WHEN: Ingesting with a category column mapped
	// THEN: Rows group under one normalized label; first spelling is kept
	//       for display

	_, rows := rowsFromCSV(t, `Product Line,Net Sales
Apparel,1000
 apparel ,500
Home Goods,2000`)

	mapping := ingest.ColumnMapping{
		"Product Line": ingest.FieldProductCategory,
		"Net Sales":    ingest.FieldNetSales,
	}

	report, err := ingest.IngestReport(rows, mapping)
	require.NoError(t, err)

	require.Len(t, report.CategoryBreakdown, 2)
	assert.True(t, report.CategoryBreakdown["apparel"].Equal(d("1500")))
	assert.True(t, report.CategoryBreakdown["home goods"].Equal(d("2000")))
	assert.Equal(t, "Apparel", report.DisplayLabels["apparel"])
	assert.Empty(t, report.Warnings)
}

func TestIngestReport_ReportedRoyaltySummed(t *testing.T) {
	_, rows := rowsFromCSV(t, `Net Sales,Royalty Due
10000,800
5000,400`)

	mapping := ingest.ColumnMapping{
		"Net Sales":   ingest.FieldNetSales,
		"Royalty Due": ingest.FieldReportedRoyalty,
	}

	report, err := ingest.IngestReport(rows, mapping)
	require.NoError(t, err)

	require.NotNil(t, report.ReportedRoyalty)
	assert.True(t, report.ReportedRoyalty.Equal(d("1200")))
}

// =============================================================================
// WARNINGS
// =============================================================================

func TestIngestReport_ZeroSalesWarning(t *testing.T) {
	// Zero total sales is a heads-up, not a rejection.
	_, rows := rowsFromCSV(t, `Net Sales
0
0`)

	report, err := ingest.IngestReport(rows, ingest.ColumnMapping{"Net Sales": ingest.FieldNetSales})
	require.NoError(t, err)

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, ingest.WarnZeroNetSales, report.Warnings[0].Code)
}

func TestIngestReport_BreakdownMismatchWarning(t *testing.T) {
	// GIVEN: Some rows carry no category label
	// WHEN: The breakdown sum falls short of total net sales
	// THEN: A non-fatal mismatch warning is raised

	_, rows := rowsFromCSV(t, `Category,Net Sales
Apparel,1000
,500`)

	mapping := ingest.ColumnMapping{
		"Category":  ingest.FieldProductCategory,
		"Net Sales": ingest.FieldNetSales,
	}

	report, err := ingest.IngestReport(rows, mapping)
	require.NoError(t, err)

	assert.True(t, report.NetSales.Equal(d("1500")))
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, ingest.WarnBreakdownMismatch, report.Warnings[0].Code)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestIngestReport_BadCellIsFatal(t *testing.T) {
	// A non-numeric amount cell aborts ingestion: a skipped row would
	// silently understate royalties.
	_, rows := rowsFromCSV(t, `Net Sales
1000
n/a`)

	_, err := ingest.IngestReport(rows, ingest.ColumnMapping{"Net Sales": ingest.FieldNetSales})

	var cellErr *ingest.CellError
	require.ErrorAs(t, err, &cellErr)
	assert.Equal(t, 2, cellErr.RowNum)
	assert.Equal(t, "Net Sales", cellErr.Column)
}

func TestIngestReport_MissingNetSalesMappingRejected(t *testing.T) {
	_, rows := rowsFromCSV(t, `Gross
1000`)

	_, err := ingest.IngestReport(rows, ingest.ColumnMapping{"Gross": ingest.FieldGrossSales})
	assert.Error(t, err, "gross without returns cannot derive net sales")
}

func TestColumnMapping_DuplicateFieldRejected(t *testing.T) {
	mapping := ingest.ColumnMapping{
		"Net":   ingest.FieldNetSales,
		"Sales": ingest.FieldNetSales,
	}
	assert.Error(t, mapping.Validate())
}

// =============================================================================
// CSV PARSING
// =============================================================================

func TestParseCSV_TrimsHeadersAndSkipsEmptyRows(t *testing.T) {
	headers, rows, err := ingest.ParseCSV(strings.NewReader("\ufeff Net Sales , Category \n100,Apparel\n,,\n200,Textiles\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Net Sales", "Category"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, "100", rows[0]["Net Sales"])
	assert.Equal(t, "Textiles", rows[1]["Category"])
}

func TestParseCSV_RaggedRowsPadded(t *testing.T) {
	_, rows, err := ingest.ParseCSV(strings.NewReader("A,B\n1\n2,3\n"))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0]["B"])
	assert.Equal(t, "3", rows[1]["B"])
}

func TestParseCSV_EmptyFile(t *testing.T) {
	_, _, err := ingest.ParseCSV(strings.NewReader(""))
	assert.Error(t, err)
}
