/*
errors.go - Centralized error types for the royalty engine

PURPOSE:
  All engine error types in one place. Every error here is a terminal,
  locally-recoverable-by-caller condition: the engine never retries, and the
  calling layer translates these into user-facing messages (form validation,
  HTTP responses). No partial results accompany an error - calculation is
  all-or-nothing to avoid silently understating royalties owed.

ERROR CATEGORIES:
  1. Rate parse errors  - malformed rate representation from extraction/editing
  2. Calculation errors - missing breakdown, unmatched category
  3. Terms errors       - malformed contract terms

USAGE:
  Callers classify with errors.Is / errors.As:

    if errors.Is(err, royalty.ErrUnmatchedCategory) {
        var uc *royalty.UnmatchedCategoryError
        errors.As(err, &uc)
        // prompt user to add a rate for uc.Category
    }
*/
package royalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateParse is returned when a rate representation cannot be parsed.
	// The caller must surface this for manual correction, never default it.
	ErrRateParse = errors.New("unparseable royalty rate")

	// ErrMissingBreakdown is returned when a category-rate contract is
	// calculated without a category breakdown.
	ErrMissingBreakdown = errors.New("category rate requires a category breakdown")

	// ErrUnmatchedCategory is returned when a reported category has no
	// corresponding contract rate. Revenue is never silently dropped.
	ErrUnmatchedCategory = errors.New("reported category has no contract rate")

	// ErrInvalidTerms is returned when contract terms fail validation
	// (e.g. unknown reporting frequency, negative guarantee amount).
	ErrInvalidTerms = errors.New("invalid contract terms")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateParseError describes why a raw rate representation was rejected.
type RateParseError struct {
	Raw    string // the offending input, truncated for display
	Reason string
}

func (e *RateParseError) Error() string {
	return fmt.Sprintf("unparseable royalty rate %q: %s", e.Raw, e.Reason)
}

func (e *RateParseError) Unwrap() error { return ErrRateParse }

// UnmatchedCategoryError names the breakdown category that could not be
// matched to any contract category.
type UnmatchedCategoryError struct {
	Category   string
	Candidates []string
}

func (e *UnmatchedCategoryError) Error() string {
	return fmt.Sprintf("reported category %q has no contract rate (contract categories: %v)",
		e.Category, e.Candidates)
}

func (e *UnmatchedCategoryError) Unwrap() error { return ErrUnmatchedCategory }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input that the
// user can correct (as opposed to an internal failure).
func IsClientError(err error) bool {
	return errors.Is(err, ErrRateParse) ||
		errors.Is(err, ErrMissingBreakdown) ||
		errors.Is(err, ErrUnmatchedCategory) ||
		errors.Is(err, ErrInvalidTerms)
}
