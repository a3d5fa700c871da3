package royalty_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/warp/royalty-engine/royalty"
)

// =============================================================================
// FLAT RATE PARSING
// =============================================================================

func TestParseRate_FlatString(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{`"8%"`, "0.08"},
		{`"8"`, "0.08"},
		{`"8% of Net Sales"`, "0.08"},
		{`"Royalty rate: 12.5%"`, "0.125"},
		{`"0.08"`, "0.08"}, // already-normalized fraction
		{`"100%"`, "1"},
	}

	for _, tc := range cases {
		rate, err := royalty.ParseRate(json.RawMessage(tc.input))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.input, err)
			continue
		}
		if rate.Kind != royalty.RateFlat {
			t.Errorf("%s: expected flat, got %s", tc.input, rate.Kind)
		}
		if !rate.Percent.Equal(d(tc.want)) {
			t.Errorf("%s: expected %s, got %s", tc.input, tc.want, rate.Percent)
		}
	}
}

func TestParseRate_NoNumericToken(t *testing.T) {
	_, err := royalty.ParseRate(json.RawMessage(`"standard industry rate"`))

	var parseErr *royalty.RateParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected RateParseError, got %v", err)
	}
	if !errors.Is(err, royalty.ErrRateParse) {
		t.Errorf("RateParseError should unwrap to ErrRateParse")
	}
}

func TestParseRate_OutOfRangeRejected(t *testing.T) {
	for _, input := range []string{`"250%"`, `"-5%"`} {
		if _, err := royalty.ParseRate(json.RawMessage(input)); !errors.Is(err, royalty.ErrRateParse) {
			t.Errorf("%s: expected ErrRateParse, got %v", input, err)
		}
	}
}

// =============================================================================
// TIERED RATE PARSING
// =============================================================================

func TestParseRate_Tiered_SortsScrambledInput(t *testing.T) {
	// GIVEN: Tiers arrive out of order (upstream extraction scrambles them)
	// WHEN: Parsing
	// THEN: Tiers are sorted ascending by min

	raw := `[
		{"min": 2000000, "max": 5000000, "rate": "8%"},
		{"min": 5000000, "max": null, "rate": "10%"},
		{"min": 0, "max": 2000000, "rate": "6%"}
	]`

	rate, err := royalty.ParseRate(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Kind != royalty.RateTiered {
		t.Fatalf("expected tiered, got %s", rate.Kind)
	}
	if len(rate.Tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(rate.Tiers))
	}

	if !rate.Tiers[0].Min.IsZero() || !rate.Tiers[0].Rate.Equal(d("0.06")) {
		t.Errorf("first tier wrong: %+v", rate.Tiers[0])
	}
	if rate.Tiers[2].Max != nil {
		t.Errorf("last tier should be open-ended")
	}
}

func TestParseRate_Tiered_MixedValueForms(t *testing.T) {
	// Boundaries as currency strings, rates as fractions
	raw := `[
		{"min": "$0", "max": "$1,000,000", "rate": 0.05},
		{"min": "$1,000,000", "rate": "7.5%"}
	]`

	rate, err := royalty.ParseRate(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Tiers[0].Max.Equal(d("1000000")) {
		t.Errorf("expected max 1000000, got %s", rate.Tiers[0].Max)
	}
	if !rate.Tiers[1].Rate.Equal(d("0.075")) {
		t.Errorf("expected 0.075, got %s", rate.Tiers[1].Rate)
	}
}

func TestParseRate_Tiered_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty list":     `[]`,
		"missing min":    `[{"max": 100, "rate": "5%"}]`,
		"missing rate":   `[{"min": 0, "max": 100}]`,
		"overlap":        `[{"min": 0, "max": 150, "rate": "5%"}, {"min": 100, "max": 200, "rate": "6%"}]`,
		"gap":            `[{"min": 0, "max": 100, "rate": "5%"}, {"min": 150, "max": 200, "rate": "6%"}]`,
		"open mid tier":  `[{"min": 0, "rate": "5%"}, {"min": 100, "max": 200, "rate": "6%"}]`,
		"inverted bound": `[{"min": 100, "max": 50, "rate": "5%"}]`,
	}

	for name, raw := range cases {
		if _, err := royalty.ParseRate(json.RawMessage(raw)); !errors.Is(err, royalty.ErrRateParse) {
			t.Errorf("%s: expected ErrRateParse, got %v", name, err)
		}
	}
}

// =============================================================================
// CATEGORY RATE PARSING
// =============================================================================

func TestParseRate_Category_PreservesDisplayLabels(t *testing.T) {
	raw := `{"Apparel": "10%", "Home Goods": "8%", "Accessories": 0.05}`

	rate, err := royalty.ParseRate(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.Kind != royalty.RateCategory {
		t.Fatalf("expected category, got %s", rate.Kind)
	}

	if !rate.Categories["Apparel"].Equal(d("0.10")) {
		t.Errorf("Apparel: expected 0.10, got %s", rate.Categories["Apparel"])
	}
	if !rate.Categories["Accessories"].Equal(d("0.05")) {
		t.Errorf("Accessories: expected 0.05, got %s", rate.Categories["Accessories"])
	}

	// Original casing survives for display.
	labels := rate.CategoryLabels()
	if len(labels) != 3 || labels[0] != "Accessories" || labels[1] != "Apparel" {
		t.Errorf("unexpected labels: %v", labels)
	}
}

func TestParseRate_Category_BadValueRejected(t *testing.T) {
	raw := `{"Apparel": "call licensing team"}`
	if _, err := royalty.ParseRate(json.RawMessage(raw)); !errors.Is(err, royalty.ErrRateParse) {
		t.Errorf("expected ErrRateParse, got %v", err)
	}
}

func TestParseRate_EmptyAndNull(t *testing.T) {
	for _, raw := range []string{``, `null`, `{}`} {
		if _, err := royalty.ParseRate(json.RawMessage(raw)); !errors.Is(err, royalty.ErrRateParse) {
			t.Errorf("%q: expected ErrRateParse, got %v", raw, err)
		}
	}
}
