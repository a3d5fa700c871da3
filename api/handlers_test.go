package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/royalty-engine/api"
	"github.com/warp/royalty-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return api.NewRouter(api.NewHandler(store), []string{"*"})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func doUpload(t *testing.T, router http.Handler, path, csvBody string, fields map[string]string, out any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", "report.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csvBody))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

// seedContract creates a licensee plus a contract and returns the contract ID.
func seedContract(t *testing.T, router http.Handler, termsJSON string) string {
	var licensee api.LicenseeDTO
	rec := doJSON(t, router, http.MethodPost, "/api/licensees",
		map[string]any{"name": "Acme Licensing Co"}, &licensee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var terms map[string]any
	require.NoError(t, json.Unmarshal([]byte(termsJSON), &terms))

	var contract api.ContractDTO
	rec = doJSON(t, router, http.MethodPost, "/api/contracts", map[string]any{
		"licensee_id": licensee.ID,
		"name":        "Apparel License 2025",
		"terms":       terms,
	}, &contract)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return contract.ID
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// =============================================================================
// CONTRACT LIFECYCLE
// =============================================================================

func TestCreateContract_MalformedRateRejected(t *testing.T) {
	router := newTestRouter(t)

	var licensee api.LicenseeDTO
	doJSON(t, router, http.MethodPost, "/api/licensees", map[string]any{"name": "Acme"}, &licensee)

	rec := doJSON(t, router, http.MethodPost, "/api/contracts", map[string]any{
		"licensee_id": licensee.ID,
		"name":        "Bad Contract",
		"terms":       map[string]any{"royalty_rate": "to be negotiated"},
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestCreateContract_UnknownLicensee(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/contracts", map[string]any{
		"licensee_id": "nope",
		"terms":       map[string]any{"royalty_rate": "8%"},
	}, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContractRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	contractID := seedContract(t, router, `{
		"royalty_rate": "8%",
		"reporting_frequency": "quarterly",
		"territory": "North America"
	}`)

	var contract api.ContractDTO
	rec := doJSON(t, router, http.MethodGet, "/api/contracts/"+contractID, nil, &contract)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "flat", contract.RateKind)
	assert.Equal(t, "quarterly", contract.ReportingFrequency)
	assert.Equal(t, "North America", contract.Territory)
}

// =============================================================================
// UPLOAD FLOW
// =============================================================================

const sampleCSV = `Product Category,Net Sales,Royalty Due
Apparel,"60,000",4800
Home Goods,40000,3100
`

var sampleMapping = `{"Product Category":"product_category","Net Sales":"net_sales","Royalty Due":"licensee_reported_royalty"}`

func TestUploadFlow_EndToEnd(t *testing.T) {
	// GIVEN: A flat 8% contract with a $500 advance and a $50k annual minimum
	// WHEN: A quarterly report with $100,000 net sales and $7,900 reported is committed
	// THEN: Royalty is $8,000, the discrepancy is a $100 under-report, the
	//       advance covers $500, and the guarantee window shows a shortfall

	router := newTestRouter(t)
	contractID := seedContract(t, router, `{
		"royalty_rate": "8%",
		"reporting_frequency": "quarterly",
		"minimum_guarantee": {"amount": "50000", "period": "annual"},
		"advance": {"amount": "500"}
	}`)

	// Preview proposes a usable mapping from the headers.
	var preview api.PreviewResponse
	rec := doUpload(t, router, "/api/contracts/"+contractID+"/uploads/preview", sampleCSV, nil, &preview)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "suggested", preview.Provenance)
	assert.Equal(t, "net_sales", preview.Mapping["Net Sales"])
	assert.Equal(t, "licensee_reported_royalty", preview.Mapping["Royalty Due"])
	assert.Equal(t, 2, preview.RowCount)

	// Commit with the confirmed mapping.
	var result api.UploadResultDTO
	rec = doUpload(t, router, "/api/contracts/"+contractID+"/uploads", sampleCSV, map[string]string{
		"mapping":      sampleMapping,
		"period_start": "2025-01-15",
		"save_mapping": "true",
	}, &result)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	period := result.Period
	assert.Equal(t, "2025-01-01", period.PeriodStart)
	assert.Equal(t, "2025-03-31", period.PeriodEnd)
	assert.Equal(t, "2025-Q1", period.PeriodLabel)
	assert.True(t, period.NetSales.Equal(d("100000")), "net sales %s", period.NetSales)
	assert.True(t, period.RoyaltyCalculated.Equal(d("8000")), "royalty %s", period.RoyaltyCalculated)

	assert.Equal(t, "under_reported", period.Discrepancy.Status)
	require.NotNil(t, period.Discrepancy.Amount)
	assert.True(t, period.Discrepancy.Amount.Equal(d("100")))
	require.NotNil(t, period.Discrepancy.Percentage)
	assert.True(t, period.Discrepancy.Percentage.Equal(d("1.25")))

	assert.True(t, period.AdvanceCreditUsed.Equal(d("500")))
	assert.True(t, period.NetDue.Equal(d("7500")))
	assert.True(t, period.MinimumApplied)

	// Advance is exhausted.
	var advance api.AdvanceDTO
	rec = doJSON(t, router, http.MethodGet, "/api/contracts/"+contractID+"/advance", nil, &advance)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, advance.Remaining.IsZero(), "remaining %s", advance.Remaining)

	// Guarantee window totals the committed period.
	var guarantee api.GuaranteeStatusDTO
	rec = doJSON(t, router, http.MethodGet, "/api/contracts/"+contractID+"/guarantee?date=2025-06-30", nil, &guarantee)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025", guarantee.WindowLabel)
	assert.True(t, guarantee.CalculatedTotal.Equal(d("8000")))
	assert.True(t, guarantee.Shortfall.Equal(d("42000")))
	assert.True(t, guarantee.Applied)

	// The saved mapping is preferred on the next preview.
	rec = doUpload(t, router, "/api/contracts/"+contractID+"/uploads/preview", sampleCSV, nil, &preview)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "saved", preview.Provenance)

	// The period shows up in history.
	var periods []api.SalesPeriodDTO
	rec = doJSON(t, router, http.MethodGet, "/api/contracts/"+contractID+"/periods", nil, &periods)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, periods, 1)
	assert.Equal(t, period.ID, periods[0].ID)
}

func TestCommitUpload_BadMappingRejected(t *testing.T) {
	router := newTestRouter(t)
	contractID := seedContract(t, router, `{"royalty_rate": "8%"}`)

	// No net-sales source in the mapping.
	rec := doUpload(t, router, "/api/contracts/"+contractID+"/uploads", sampleCSV, map[string]string{
		"mapping":      `{"Product Category":"product_category"}`,
		"period_start": "2025-01-15",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestCommitUpload_UnparseableCellRejected(t *testing.T) {
	router := newTestRouter(t)
	contractID := seedContract(t, router, `{"royalty_rate": "8%"}`)

	badCSV := "Net Sales\n100\nN/A\n"
	rec := doUpload(t, router, "/api/contracts/"+contractID+"/uploads", badCSV, map[string]string{
		"mapping":      `{"Net Sales":"net_sales"}`,
		"period_start": "2025-01-15",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "N/A"), rec.Body.String())
}

func TestCommitUpload_UnmatchedCategoryIs422(t *testing.T) {
	router := newTestRouter(t)
	contractID := seedContract(t, router, `{
		"royalty_rate": {"Apparel": "10%", "Home Goods": "8%"}
	}`)

	csvBody := "Product Category,Net Sales\nElectronics,1000\n"
	rec := doUpload(t, router, "/api/contracts/"+contractID+"/uploads", csvBody, map[string]string{
		"mapping":      `{"Product Category":"product_category","Net Sales":"net_sales"}`,
		"period_start": "2025-01-15",
	}, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.True(t, strings.Contains(rec.Body.String(), "Electronics"))
}

// =============================================================================
// AD-HOC CALCULATION
// =============================================================================

func TestCalculate_TieredWhatIf(t *testing.T) {
	router := newTestRouter(t)

	body := map[string]any{
		"rate": []map[string]any{
			{"min": 0, "max": 2000000, "rate": "6%"},
			{"min": 2000000, "max": 5000000, "rate": "8%"},
			{"min": 5000000, "max": nil, "rate": "10%"},
		},
		"net_sales": "3000000",
	}

	var calc api.CalculationDTO
	rec := doJSON(t, router, http.MethodPost, "/api/calculate", body, &calc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 2M at 6% plus 1M at 8%
	assert.True(t, calc.Royalty.Equal(d("200000")), "royalty %s", calc.Royalty)
	assert.Equal(t, "tiered", calc.Method)
	require.Len(t, calc.TierLines, 3)
	assert.True(t, calc.TierLines[2].AmountInTier.IsZero())
}

func TestCalculate_InvalidRateIs422(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/calculate", map[string]any{
		"rate":      "call me maybe",
		"net_sales": "1000",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTermsCache_ConcurrentWarm(t *testing.T) {
	// A handler built over an existing database starts with a cold terms
	// cache; parallel requests all miss and fill it at the same time.

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seeded := api.NewRouter(api.NewHandler(store), []string{"*"})
	contractID := seedContract(t, seeded, `{
		"royalty_rate": "8%",
		"minimum_guarantee": {"amount": "1000", "period": "annual"}
	}`)

	cold := api.NewRouter(api.NewHandler(store), []string{"*"})
	path := "/api/contracts/" + contractID + "/guarantee?date=2025-06-30"

	const parallel = 16
	codes := make([]int, parallel)
	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			cold.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
}

func TestGuaranteeStatus_NoGuaranteeIs404(t *testing.T) {
	router := newTestRouter(t)
	contractID := seedContract(t, router, `{"royalty_rate": "8%"}`)

	rec := doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/contracts/%s/guarantee?date=2025-06-30", contractID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
