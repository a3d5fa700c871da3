/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY FIELDS:
  Every money field is a decimal.Decimal, which serializes as a quoted exact
  string ("8000.04"). Figures cross the API boundary as strings on purpose:
  a JSON number would be read back as a binary float by most clients, and a
  disputed royalty figure must survive the round trip exactly. Amounts are
  rounded to cents at this boundary only - the engine itself never rounds.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/terms.go: TermsJSON type
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/royalty-engine/factory"
	"github.com/warp/royalty-engine/ingest"
	"github.com/warp/royalty-engine/royalty"
	"github.com/warp/royalty-engine/store/sqlite"
)

// =============================================================================
// LICENSEE TYPES
// =============================================================================

// LicenseeDTO represents a licensee in API responses.
type LicenseeDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateLicenseeRequest is the request to create a licensee.
// ID is optional; the server generates one when absent.
type CreateLicenseeRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
}

// =============================================================================
// CONTRACT TYPES
// =============================================================================

// ContractDTO represents a contract in API responses. Terms carries the raw
// terms JSON the contract was created with; RateKind and ReportingFrequency
// are denormalized from it for list views.
type ContractDTO struct {
	ID                 string            `json:"id"`
	LicenseeID         string            `json:"licensee_id"`
	Name               string            `json:"name"`
	Terms              factory.TermsJSON `json:"terms"`
	RateKind           string            `json:"rate_kind"`
	ReportingFrequency string            `json:"reporting_frequency"`
	Territory          string            `json:"territory,omitempty"`
	CreatedAt          string            `json:"created_at,omitempty"`
}

// CreateContractRequest is the request to create or update a contract.
type CreateContractRequest struct {
	ID         string            `json:"id,omitempty"`
	LicenseeID string            `json:"licensee_id"`
	Name       string            `json:"name"`
	Terms      factory.TermsJSON `json:"terms"`
}

// =============================================================================
// UPLOAD TYPES
// =============================================================================

// PreviewResponse is the response to an upload preview: the parsed headers,
// a few sample rows, and the mapping proposal the user will confirm or edit.
type PreviewResponse struct {
	Headers    []string          `json:"headers"`
	RowCount   int               `json:"row_count"`
	SampleRows []ingest.Row      `json:"sample_rows"`
	Mapping    map[string]string `json:"mapping"`
	Provenance string            `json:"provenance"` // saved | suggested | none
}

// UploadResultDTO is the response after committing an upload: the persisted
// period plus the calculation detail that produced it.
type UploadResultDTO struct {
	Period        SalesPeriodDTO    `json:"period"`
	Method        string            `json:"method"`
	TierLines     []TierLineDTO     `json:"tier_lines,omitempty"`
	CategoryLines []CategoryLineDTO `json:"category_lines,omitempty"`
	Warnings      []ingest.Warning  `json:"warnings,omitempty"`
}

// =============================================================================
// SALES PERIOD TYPES
// =============================================================================

// SalesPeriodDTO represents one immutable reporting period result.
type SalesPeriodDTO struct {
	ID                string                     `json:"id"`
	ContractID        string                     `json:"contract_id"`
	PeriodStart       string                     `json:"period_start"`
	PeriodEnd         string                     `json:"period_end"`
	PeriodLabel       string                     `json:"period_label"`
	NetSales          decimal.Decimal            `json:"net_sales"`
	CategoryBreakdown map[string]decimal.Decimal `json:"category_breakdown,omitempty"`
	RoyaltyCalculated decimal.Decimal            `json:"royalty_calculated"`
	ReportedRoyalty   *decimal.Decimal           `json:"reported_royalty,omitempty"`
	Discrepancy       DiscrepancyDTO             `json:"discrepancy"`
	MinimumApplied    bool                       `json:"minimum_applied"`
	AdvanceCreditUsed decimal.Decimal            `json:"advance_credit_used"`
	NetDue            decimal.Decimal            `json:"net_due"`
	CreatedAt         string                     `json:"created_at,omitempty"`
}

// DiscrepancyDTO is the reconciliation outcome for one period.
type DiscrepancyDTO struct {
	Status     string           `json:"status"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

// =============================================================================
// CALCULATION TYPES
// =============================================================================

// CalculateRequest is an ad-hoc calculation: a rate structure plus sales
// figures, no contract required. Used by the terms editor for what-if checks.
type CalculateRequest struct {
	Rate              json.RawMessage            `json:"rate"`
	NetSales          decimal.Decimal            `json:"net_sales"`
	CategoryBreakdown map[string]decimal.Decimal `json:"category_breakdown,omitempty"`
}

// CalculationDTO is a calculation result with its audit lines.
type CalculationDTO struct {
	Royalty       decimal.Decimal   `json:"royalty"`
	Method        string            `json:"method"`
	TierLines     []TierLineDTO     `json:"tier_lines,omitempty"`
	CategoryLines []CategoryLineDTO `json:"category_lines,omitempty"`
}

// TierLineDTO records one bracket's contribution.
type TierLineDTO struct {
	Min          decimal.Decimal  `json:"min"`
	Max          *decimal.Decimal `json:"max,omitempty"`
	Rate         decimal.Decimal  `json:"rate"`
	AmountInTier decimal.Decimal  `json:"amount_in_tier"`
	Royalty      decimal.Decimal  `json:"royalty"`
}

// CategoryLineDTO records one breakdown entry's contribution.
type CategoryLineDTO struct {
	Reported string          `json:"reported"`
	Matched  string          `json:"matched"`
	Amount   decimal.Decimal `json:"amount"`
	Rate     decimal.Decimal `json:"rate"`
	Royalty  decimal.Decimal `json:"royalty"`
}

// =============================================================================
// GUARANTEE AND ADVANCE TYPES
// =============================================================================

// GuaranteeStatusDTO reports a contract's minimum-guarantee position for
// the window containing the queried date.
type GuaranteeStatusDTO struct {
	ContractID      string          `json:"contract_id"`
	WindowStart     string          `json:"window_start"`
	WindowEnd       string          `json:"window_end"`
	WindowLabel     string          `json:"window_label"`
	GuaranteeAmount decimal.Decimal `json:"guarantee_amount"`
	CalculatedTotal decimal.Decimal `json:"calculated_total"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	Applied         bool            `json:"applied"`
}

// AdvanceDTO reports a contract's advance balance.
type AdvanceDTO struct {
	ContractID string          `json:"contract_id"`
	Amount     decimal.Decimal `json:"amount"`
	Remaining  decimal.Decimal `json:"remaining"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toLicenseeDTO(l sqlite.Licensee) LicenseeDTO {
	return LicenseeDTO{
		ID:           l.ID,
		Name:         l.Name,
		ContactEmail: l.ContactEmail,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
	}
}

func toContractDTO(c sqlite.Contract) ContractDTO {
	var terms factory.TermsJSON
	json.Unmarshal([]byte(c.TermsJSON), &terms)

	return ContractDTO{
		ID:                 c.ID,
		LicenseeID:         c.LicenseeID,
		Name:               c.Name,
		Terms:              terms,
		RateKind:           c.RateKind,
		ReportingFrequency: c.ReportingFrequency,
		Territory:          c.Territory,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
	}
}

func toSalesPeriodDTO(p sqlite.SalesPeriod) SalesPeriodDTO {
	dto := SalesPeriodDTO{
		ID:                p.ID,
		ContractID:        p.ContractID,
		PeriodStart:       p.PeriodStart.Format("2006-01-02"),
		PeriodEnd:         p.PeriodEnd.Format("2006-01-02"),
		PeriodLabel:       royalty.Window{Start: p.PeriodStart, End: p.PeriodEnd}.Label(),
		NetSales:          royalty.RoundCurrency(p.NetSales),
		RoyaltyCalculated: royalty.RoundCurrency(p.RoyaltyCalculated),
		MinimumApplied:    p.MinimumApplied,
		AdvanceCreditUsed: royalty.RoundCurrency(p.AdvanceCreditUsed),
		NetDue:            royalty.RoundCurrency(p.NetDue),
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		Discrepancy:       DiscrepancyDTO{Status: p.DiscrepancyStatus},
	}

	if p.ReportedRoyalty != nil {
		v := royalty.RoundCurrency(*p.ReportedRoyalty)
		dto.ReportedRoyalty = &v
	}
	if p.DiscrepancyAmount != nil {
		v := royalty.RoundCurrency(*p.DiscrepancyAmount)
		dto.Discrepancy.Amount = &v
		if p.RoyaltyCalculated.IsPositive() {
			pct := p.DiscrepancyAmount.Div(p.RoyaltyCalculated).Mul(decimal.NewFromInt(100)).Round(2)
			dto.Discrepancy.Percentage = &pct
		}
	}
	if p.CategoryBreakdownJSON != "" {
		json.Unmarshal([]byte(p.CategoryBreakdownJSON), &dto.CategoryBreakdown)
	}
	return dto
}

func toCalculationDTO(result royalty.Result) CalculationDTO {
	dto := CalculationDTO{
		Royalty: royalty.RoundCurrency(result.Royalty),
		Method:  string(result.Method),
	}
	for _, line := range result.TierLines {
		dto.TierLines = append(dto.TierLines, TierLineDTO{
			Min:          line.Min,
			Max:          line.Max,
			Rate:         line.Rate,
			AmountInTier: royalty.RoundCurrency(line.AmountInTier),
			Royalty:      royalty.RoundCurrency(line.Royalty),
		})
	}
	for _, line := range result.CategoryLines {
		dto.CategoryLines = append(dto.CategoryLines, CategoryLineDTO{
			Reported: line.Reported,
			Matched:  line.Matched,
			Amount:   royalty.RoundCurrency(line.Amount),
			Rate:     line.Rate,
			Royalty:  royalty.RoundCurrency(line.Royalty),
		})
	}
	return dto
}
