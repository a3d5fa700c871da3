/*
handlers.go - HTTP API handlers for the royalty system

PURPOSE:
  Exposes the royalty engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Licensees:
    GET    /api/licensees                   List licensees
    POST   /api/licensees                   Create licensee
    GET    /api/licensees/{id}              Get licensee details

  Contracts:
    GET    /api/contracts                   List contracts (?licensee_id=)
    POST   /api/contracts                   Create contract from terms JSON
    GET    /api/contracts/{id}              Get contract details
    GET    /api/contracts/{id}/periods      Period history
    GET    /api/contracts/{id}/guarantee    Minimum-guarantee window status
    GET    /api/contracts/{id}/advance      Advance balance

  Uploads:
    POST   /api/contracts/{id}/uploads/preview  Parse headers, propose mapping
    POST   /api/contracts/{id}/uploads          Ingest, calculate, reconcile

  Calculation:
    POST   /api/calculate                   Ad-hoc what-if calculation

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - TermsFactory: terms JSON to typed Terms conversion
  - Cached parsed terms per contract

REQUEST FLOW (upload commit):
  1. Parse multipart form (file + confirmed mapping + period start)
  2. Ingest rows through the mapping
  3. Calculate royalty from the contract's rate
  4. Reconcile against the licensee-reported figure
  5. Credit the advance balance, check the guarantee window
  6. Append the immutable period record

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed request (body, dates, multipart)
  - 404: Resource not found
  - 422: Engine rejected the input (unparseable rate, unmatched category)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/royalty-engine/factory"
	"github.com/warp/royalty-engine/ingest"
	"github.com/warp/royalty-engine/royalty"
	"github.com/warp/royalty-engine/store/sqlite"
)

const maxUploadBytes = 10 << 20 // 10 MB

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	TermsFactory *factory.TermsFactory

	// Parsed terms cached per contract ID; filled on demand from request
	// goroutines, so access goes through mu
	mu    sync.RWMutex
	terms map[string]*factory.Terms
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:        store,
		TermsFactory: factory.NewTermsFactory(),
		terms:        make(map[string]*factory.Terms),
	}
}

// LoadContracts parses every stored contract's terms into the cache.
// Contracts with terms that no longer parse are skipped; they surface a 422
// when used.
func (h *Handler) LoadContracts(ctx context.Context) error {
	contracts, err := h.Store.ListContracts(ctx, "")
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range contracts {
		terms, err := h.TermsFactory.ParseTerms(c.TermsJSON)
		if err != nil {
			continue
		}
		h.terms[c.ID] = terms
	}
	return nil
}

// termsFor returns the parsed terms for a contract, parsing on miss.
func (h *Handler) termsFor(c *sqlite.Contract) (*factory.Terms, error) {
	h.mu.RLock()
	terms, ok := h.terms[c.ID]
	h.mu.RUnlock()
	if ok {
		return terms, nil
	}

	terms, err := h.TermsFactory.ParseTerms(c.TermsJSON)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.terms[c.ID] = terms
	h.mu.Unlock()
	return terms, nil
}

// =============================================================================
// LICENSEE HANDLERS
// =============================================================================

// ListLicensees returns all licensees.
func (h *Handler) ListLicensees(w http.ResponseWriter, r *http.Request) {
	licensees, err := h.Store.ListLicensees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list licensees", err)
		return
	}

	dtos := make([]LicenseeDTO, len(licensees))
	for i, l := range licensees {
		dtos[i] = toLicenseeDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLicensee returns a single licensee.
func (h *Handler) GetLicensee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	licensee, err := h.Store.GetLicensee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get licensee", err)
		return
	}
	if licensee == nil {
		writeError(w, http.StatusNotFound, "Licensee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toLicenseeDTO(*licensee))
}

// CreateLicensee creates a new licensee.
func (h *Handler) CreateLicensee(w http.ResponseWriter, r *http.Request) {
	var req CreateLicenseeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	licensee := sqlite.Licensee{
		ID:           req.ID,
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.SaveLicensee(r.Context(), licensee); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create licensee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLicenseeDTO(licensee))
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns contracts, optionally filtered by licensee.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	licenseeID := r.URL.Query().Get("licensee_id")

	contracts, err := h.Store.ListContracts(r.Context(), licenseeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetContract returns a single contract.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	contract, err := h.Store.GetContract(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}
	if contract == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*contract))
}

// CreateContract creates a contract from extracted terms JSON. The terms are
// validated by parsing; a malformed rate is rejected here, never defaulted.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.LicenseeID == "" {
		writeError(w, http.StatusBadRequest, "licensee_id is required", nil)
		return
	}

	ctx := r.Context()
	licensee, err := h.Store.GetLicensee(ctx, req.LicenseeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get licensee", err)
		return
	}
	if licensee == nil {
		writeError(w, http.StatusNotFound, "Licensee not found", nil)
		return
	}

	terms, err := h.TermsFactory.FromJSON(req.Terms)
	if err != nil {
		writeEngineError(w, "Invalid contract terms", err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	termsJSON, _ := json.Marshal(req.Terms)

	contract := sqlite.Contract{
		ID:                 req.ID,
		LicenseeID:         req.LicenseeID,
		Name:               req.Name,
		TermsJSON:          string(termsJSON),
		RateKind:           string(terms.Rate.Kind),
		ReportingFrequency: string(terms.ReportingFrequency),
		Territory:          terms.Territory,
		CreatedAt:          time.Now().UTC(),
	}
	if err := h.Store.SaveContract(ctx, contract); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create contract", err)
		return
	}

	// An advance in the terms opens a fresh balance. Saving again resets it,
	// which matches re-negotiated terms superseding the old advance.
	if terms.Advance != nil {
		if err := h.Store.SaveAdvance(ctx, contract.ID, *terms.Advance); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to record advance", err)
			return
		}
	}

	h.mu.Lock()
	h.terms[contract.ID] = terms
	h.mu.Unlock()
	writeJSON(w, http.StatusCreated, toContractDTO(contract))
}

// =============================================================================
// UPLOAD HANDLERS
// =============================================================================

// PreviewUpload parses an uploaded report and proposes a column mapping:
// the licensee's saved mapping when it still fits the headers, keyword
// suggestions otherwise. Nothing is persisted.
func (h *Handler) PreviewUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contract, err := h.Store.GetContract(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}
	if contract == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}

	headers, rows, err := h.parseUploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}

	mapping, provenance := h.proposeMapping(ctx, contract.LicenseeID, headers)

	sample := rows
	if len(sample) > 5 {
		sample = sample[:5]
	}
	writeJSON(w, http.StatusOK, PreviewResponse{
		Headers:    headers,
		RowCount:   len(rows),
		SampleRows: sample,
		Mapping:    mappingToStrings(headers, mapping),
		Provenance: string(provenance),
	})
}

// proposeMapping prefers the licensee's saved mapping when every saved header
// is present in the upload, then falls back to keyword suggestion.
func (h *Handler) proposeMapping(ctx context.Context, licenseeID string, headers []string) (ingest.ColumnMapping, ingest.Provenance) {
	if saved, err := h.Store.GetColumnMapping(ctx, licenseeID); err == nil && saved != nil {
		if mapping, err := parseMappingJSON(saved.MappingJSON); err == nil && coversHeaders(mapping, headers) {
			return mapping, ingest.ProvenanceSaved
		}
	}

	suggested := ingest.SuggestMapping(headers)
	if suggested.Validate() == nil {
		return suggested, ingest.ProvenanceSuggested
	}
	// Partial suggestions are still returned as a starting point.
	return suggested, ingest.ProvenanceNone
}

// CommitUpload ingests a report through a confirmed mapping, runs the full
// calculation pipeline, and appends the immutable period record.
//
// Multipart form fields:
//
//	file          the CSV report
//	mapping       JSON object of header -> field
//	period_start  YYYY-MM-DD, any date inside the reporting period
//	save_mapping  "true" to persist the mapping for this licensee
func (h *Handler) CommitUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contract, err := h.Store.GetContract(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}
	if contract == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}

	terms, err := h.termsFor(contract)
	if err != nil {
		writeEngineError(w, "Contract terms are invalid", err)
		return
	}

	_, rows, err := h.parseUploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}

	mapping, err := parseMappingJSON(r.FormValue("mapping"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid column mapping", err)
		return
	}
	if err := mapping.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid column mapping", err)
		return
	}

	periodDate, err := time.Parse("2006-01-02", r.FormValue("period_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_start (use YYYY-MM-DD)", err)
		return
	}
	window := royalty.WindowFor(terms.ReportingFrequency, periodDate)

	report, err := ingest.IngestReport(rows, mapping)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to ingest report", err)
		return
	}

	// The calculator sees the licensee's own spellings so the audit lines
	// show what was reported, not the normalized keys.
	var breakdown map[string]decimal.Decimal
	if report.CategoryBreakdown != nil {
		breakdown = make(map[string]decimal.Decimal, len(report.CategoryBreakdown))
		for normalized, amount := range report.CategoryBreakdown {
			breakdown[report.DisplayLabels[normalized]] = amount
		}
	}

	result, err := royalty.Calculate(terms.Rate, report.NetSales, breakdown)
	if err != nil {
		writeEngineError(w, "Calculation failed", err)
		return
	}

	discrepancy := royalty.Reconcile(result.Royalty, report.ReportedRoyalty)

	// Advance credit: read the remaining balance and apply. The debit itself
	// lands atomically with the period append below, so a failed save leaves
	// the balance untouched and the upload can simply be retried.
	netDue := result.Royalty
	creditUsed := decimal.Zero
	if advance, err := h.Store.GetAdvance(ctx, contract.ID); err == nil && advance != nil {
		applied := royalty.ApplyAdvance(result.Royalty, advance.Remaining)
		netDue = applied.NetDue
		creditUsed = applied.CreditUsed
	}

	// Guarantee check over the window including this period's royalty.
	minimumApplied := false
	if mg := terms.MinimumGuarantee; mg != nil {
		mgWindow := royalty.WindowFor(mg.Period.Frequency(), periodDate)
		total, err := h.Store.SumCalculatedInWindow(ctx, contract.ID, mgWindow.Start, mgWindow.End)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to total guarantee window", err)
			return
		}
		minimumApplied = royalty.ApplyMinimum(total.Add(result.Royalty), *mg).Applied
	}

	period := sqlite.SalesPeriod{
		ID:                uuid.NewString(),
		ContractID:        contract.ID,
		PeriodStart:       window.Start,
		PeriodEnd:         window.End,
		NetSales:          report.NetSales,
		RoyaltyCalculated: result.Royalty,
		ReportedRoyalty:   report.ReportedRoyalty,
		DiscrepancyStatus: string(discrepancy.Status),
		DiscrepancyAmount: discrepancy.Amount,
		MinimumApplied:    minimumApplied,
		AdvanceCreditUsed: creditUsed,
		NetDue:            netDue,
		CreatedAt:         time.Now().UTC(),
	}
	if breakdown != nil {
		b, _ := json.Marshal(breakdown)
		period.CategoryBreakdownJSON = string(b)
	}

	if err := h.Store.CommitSalesPeriod(ctx, period); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save period", err)
		return
	}

	if r.FormValue("save_mapping") == "true" {
		b, _ := json.Marshal(mapping)
		if err := h.Store.SaveColumnMapping(ctx, contract.LicenseeID, string(b)); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save mapping", err)
			return
		}
	}

	calc := toCalculationDTO(result)
	writeJSON(w, http.StatusCreated, UploadResultDTO{
		Period:        toSalesPeriodDTO(period),
		Method:        calc.Method,
		TierLines:     calc.TierLines,
		CategoryLines: calc.CategoryLines,
		Warnings:      report.Warnings,
	})
}

// parseUploadedFile extracts and parses the CSV from a multipart request.
func (h *Handler) parseUploadedFile(r *http.Request) ([]string, []ingest.Row, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()
	return ingest.ParseCSV(file)
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ListSalesPeriods returns a contract's period history in period order.
func (h *Handler) ListSalesPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListSalesPeriods(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list periods", err)
		return
	}

	dtos := make([]SalesPeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toSalesPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// GUARANTEE AND ADVANCE HANDLERS
// =============================================================================

// GetGuaranteeStatus reports the minimum-guarantee position for the window
// containing ?date= (today when omitted).
func (h *Handler) GetGuaranteeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contract, err := h.Store.GetContract(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contract", err)
		return
	}
	if contract == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}

	terms, err := h.termsFor(contract)
	if err != nil {
		writeEngineError(w, "Contract terms are invalid", err)
		return
	}
	if terms.MinimumGuarantee == nil {
		writeError(w, http.StatusNotFound, "Contract has no minimum guarantee", nil)
		return
	}

	date := time.Now().UTC()
	if q := r.URL.Query().Get("date"); q != "" {
		date, err = time.Parse("2006-01-02", q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	mg := terms.MinimumGuarantee
	window := royalty.WindowFor(mg.Period.Frequency(), date)
	total, err := h.Store.SumCalculatedInWindow(ctx, contract.ID, window.Start, window.End)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to total guarantee window", err)
		return
	}

	minimum := royalty.ApplyMinimum(total, *mg)
	writeJSON(w, http.StatusOK, GuaranteeStatusDTO{
		ContractID:      contract.ID,
		WindowStart:     window.Start.Format("2006-01-02"),
		WindowEnd:       window.End.Format("2006-01-02"),
		WindowLabel:     window.Label(),
		GuaranteeAmount: royalty.RoundCurrency(mg.Amount),
		CalculatedTotal: royalty.RoundCurrency(total),
		Shortfall:       royalty.RoundCurrency(minimum.Shortfall),
		Applied:         minimum.Applied,
	})
}

// GetAdvance returns a contract's advance balance.
func (h *Handler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	advance, err := h.Store.GetAdvance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get advance", err)
		return
	}
	if advance == nil {
		writeError(w, http.StatusNotFound, "Contract has no advance", nil)
		return
	}
	writeJSON(w, http.StatusOK, AdvanceDTO{
		ContractID: advance.ContractID,
		Amount:     royalty.RoundCurrency(advance.Amount),
		Remaining:  royalty.RoundCurrency(advance.Remaining),
		UpdatedAt:  advance.UpdatedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// CALCULATION HANDLER
// =============================================================================

// CalculateRoyalty runs an ad-hoc calculation against a raw rate structure.
// Nothing is persisted; the terms editor uses this for what-if previews.
func (h *Handler) CalculateRoyalty(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := royalty.ParseRate(req.Rate)
	if err != nil {
		writeEngineError(w, "Invalid rate", err)
		return
	}

	result, err := royalty.Calculate(rate, req.NetSales, req.CategoryBreakdown)
	if err != nil {
		writeEngineError(w, "Calculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(result))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine rejections to 422 (the user can fix the input)
// and everything else to 500.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	if royalty.IsClientError(err) {
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, message, err)
}

// parseMappingJSON decodes a client-confirmed header -> field mapping.
func parseMappingJSON(raw string) (ingest.ColumnMapping, error) {
	var loose map[string]string
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, fmt.Errorf("invalid mapping JSON: %w", err)
	}
	mapping := make(ingest.ColumnMapping, len(loose))
	for header, fieldName := range loose {
		field, err := ingest.ParseField(fieldName)
		if err != nil {
			return nil, err
		}
		mapping[header] = field
	}
	return mapping, nil
}

// coversHeaders reports whether every mapped header exists in the upload.
func coversHeaders(mapping ingest.ColumnMapping, headers []string) bool {
	present := make(map[string]bool, len(headers))
	for _, header := range headers {
		present[header] = true
	}
	for header := range mapping {
		if !present[header] {
			return false
		}
	}
	return true
}

// mappingToStrings renders a mapping in header order for the preview response,
// defaulting unmapped headers to ignore.
func mappingToStrings(headers []string, mapping ingest.ColumnMapping) map[string]string {
	out := make(map[string]string, len(headers))
	for _, header := range headers {
		field, ok := mapping[header]
		if !ok {
			field = ingest.FieldIgnore
		}
		out[header] = string(field)
	}
	return out
}
