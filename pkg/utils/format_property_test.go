package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any amount, FormatUSD should:
// 1. Start with $ (or -$ for negative amounts)
// 2. Have exactly 2 decimal places
// 3. Group the integer part in thousands
// 4. Preserve the numeric value when parsed back
func TestProperty_USDFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	thousands := regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)

	properties.Property("FormatUSD produces grouped dollar amounts", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatUSD(amount)

			if amount >= 0 && !strings.HasPrefix(formatted, "$") {
				t.Logf("Expected $ prefix for %f, got %s", amount, formatted)
				return false
			}
			if amount < 0 && !strings.HasPrefix(formatted, "-$") {
				t.Logf("Expected -$ prefix for %f, got %s", amount, formatted)
				return false
			}

			numPart := strings.TrimPrefix(strings.TrimPrefix(formatted, "-"), "$")
			intPart, decPart, ok := strings.Cut(numPart, ".")
			if !ok || len(decPart) != 2 {
				t.Logf("Expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}
			if !thousands.MatchString(intPart) {
				t.Logf("Invalid grouping for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatUSD preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatUSD(amount)
			parsed := parseUSD(formatted)

			roundedAmount := math.Round(amount*100) / 100
			if math.Abs(parsed-roundedAmount) > 0.01 {
				t.Logf("Value not preserved: original=%f, formatted=%s, parsed=%f", amount, formatted, parsed)
				return false
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPercent produces correct format", prop.ForAll(
		func(value float64) bool {
			formatted := FormatPercent(value)
			if !strings.HasSuffix(formatted, "%") {
				return false
			}
			if value > 0 && !strings.HasPrefix(formatted, "+") {
				t.Logf("Expected + prefix for positive %f, got %s", value, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}

func parseUSD(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		parsed = -parsed
	}
	return parsed
}

func TestFormatUSDExamples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "$0.00"},
		{47, "$47.00"},
		{100.6, "$100.60"},
		{1000, "$1,000.00"},
		{123456.78, "$123,456.78"},
		{1000000, "$1,000,000.00"},
		{-1234.56, "-$1,234.56"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			result := FormatUSD(tc.amount)
			if result != tc.expected {
				t.Errorf("FormatUSD(%f) = %s, want %s", tc.amount, result, tc.expected)
			}
		})
	}
}

func TestFormatPercentExamples(t *testing.T) {
	testCases := []struct {
		value    float64
		expected string
	}{
		{0, "0.00%"},
		{4.44, "+4.44%"},
		{-2.5, "-2.50%"},
		{28, "+28.00%"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			result := FormatPercent(tc.value)
			if result != tc.expected {
				t.Errorf("FormatPercent(%f) = %s, want %s", tc.value, result, tc.expected)
			}
		})
	}
}

func TestFormatChangeAndArrow(t *testing.T) {
	if got := FormatChange(2); got != "+$2.00" {
		t.Errorf("FormatChange(2) = %s", got)
	}
	if got := FormatChange(-5); got != "-$5.00" {
		t.Errorf("FormatChange(-5) = %s", got)
	}
	if TrendArrow(1) != "↑" || TrendArrow(-1) != "↓" || TrendArrow(0) != "-" {
		t.Error("unexpected trend arrows")
	}
	if got := Truncate("DDR5 UDIMM 32GB 6000", 10); got != "DDR5 UD..." {
		t.Errorf("Truncate = %q", got)
	}
}
