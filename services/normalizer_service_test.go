package services

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlexibleDate(t *testing.T) {
	normalizer := NewNormalizerService()

	cases := []struct {
		input    string
		expected string
	}{
		{"12 Mar 2024", "2024-03-12"},
		{"3 January 2025", "2025-01-03"},
		{"02/05/2024", "2024-05-02"}, // day-first
		{"2024-05-02", "2024-05-02"},
		{"Jan 2, 2006", "2006-01-02"},
	}
	for _, tc := range cases {
		parsed := normalizer.ParseFlexibleDate(tc.input)
		require.NotNil(t, parsed, "input %q should parse", tc.input)
		assert.Equal(t, tc.expected, parsed.Format("2006-01-02"), "input %q", tc.input)
	}

	assert.Nil(t, normalizer.ParseFlexibleDate(""))
	assert.Nil(t, normalizer.ParseFlexibleDate("not a date"))
	assert.Nil(t, normalizer.ParseFlexibleDate("32 Jan 2024"))
}

func TestParseNumericDateRejectsInvalidComponents(t *testing.T) {
	normalizer := NewNormalizerService()

	parsed := normalizer.ParseNumericDate("2024/6/18")
	require.NotNil(t, parsed)
	assert.Equal(t, "2024-06-18", parsed.Format("2006-01-02"))

	// time.Date would silently roll month 13 into the next year; the parser
	// must refuse instead.
	assert.Nil(t, normalizer.ParseNumericDate("2024/13/01"))
	assert.Nil(t, normalizer.ParseNumericDate("2024-02-30"))
	assert.Nil(t, normalizer.ParseNumericDate("2024/0/10"))
}

func TestExtractDateRange(t *testing.T) {
	normalizer := NewNormalizerService()

	start, end := normalizer.ExtractDateRange("Offer period: 3-7 June 2024")
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, "2024-06-03", start.Format("2006-01-02"))
	assert.Equal(t, "2024-06-07", end.Format("2006-01-02"))

	start, end = normalizer.ExtractDateRange("from 28 May 2024 to 2 June 2024 inclusive")
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, "2024-05-28", start.Format("2006-01-02"))
	assert.Equal(t, "2024-06-02", end.Format("2006-01-02"))

	// A hyphenated cross-month range must not let the compact pattern match
	// inside the first year ("...25 - 2 May 2025").
	start, end = normalizer.ExtractDateRange("28 April 2025 - 2 May 2025")
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, "2025-04-28", start.Format("2006-01-02"))
	assert.Equal(t, "2025-05-02", end.Format("2006-01-02"))

	start, end = normalizer.ExtractDateRange("dealings commence on 15 July 2024")
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, start, end)

	start, end = normalizer.ExtractDateRange("no dates here")
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestNormalizeStockCode(t *testing.T) {
	normalizer := NewNormalizerService()

	cases := map[string]string{
		"1":        "00001",
		"00001":    "00001",
		"1.HK":     "00001",
		"2688.HK":  "02688",
		" 9988 ":   "09988",
		"":         "",
		"-":        "",
		`"`:        "",
		"TBC":      "TBC",
	}
	for input, expected := range cases {
		assert.Equal(t, expected, normalizer.NormalizeStockCode(input), "input %q", input)
	}
}

func TestNormalizeStockCodeProperties(t *testing.T) {
	normalizer := NewNormalizerService()
	properties := gopter.NewProperties(nil)

	properties.Property("numeric codes always canonicalize to five digits", prop.ForAll(
		func(code int) bool {
			normalized := normalizer.NormalizeStockCode(strconv.Itoa(code))
			return len(normalized) == 5
		},
		gen.IntRange(1, 99999),
	))

	properties.Property("normalization is idempotent", prop.ForAll(
		func(code int) bool {
			once := normalizer.NormalizeStockCode(strconv.Itoa(code))
			return normalizer.NormalizeStockCode(once) == once
		},
		gen.IntRange(1, 99999),
	))

	properties.Property("the .HK suffix never changes the canonical form", prop.ForAll(
		func(code int) bool {
			plain := normalizer.NormalizeStockCode(strconv.Itoa(code))
			suffixed := normalizer.NormalizeStockCode(strconv.Itoa(code) + ".HK")
			return plain == suffixed
		},
		gen.IntRange(1, 99999),
	))

	properties.TestingRun(t)
}

func TestNormalizeCompanyKey(t *testing.T) {
	normalizer := NewNormalizerService()

	assert.Equal(t, "goldenharbourroboticslimited", normalizer.NormalizeCompanyKey("Golden Harbour Robotics Limited"))
	assert.Equal(t, "abcholdingsco", normalizer.NormalizeCompanyKey("  A.B.C. Holdings & Co!  "))
	assert.Equal(t,
		normalizer.NormalizeCompanyKey("Lumenshine Biopharma"),
		normalizer.NormalizeCompanyKey("LUMENSHINE  BIOPHARMA"),
	)
}

func TestNormalizeCurrencyToken(t *testing.T) {
	normalizer := NewNormalizerService()

	assert.Equal(t, "USD", normalizer.NormalizeCurrencyToken(""))
	assert.Equal(t, "USD", normalizer.NormalizeCurrencyToken("US$"))
	assert.Equal(t, "USD", normalizer.NormalizeCurrencyToken("$"))
	assert.Equal(t, "HKD", normalizer.NormalizeCurrencyToken("HK$"))
	assert.Equal(t, "HKD", normalizer.NormalizeCurrencyToken("hkd"))
	assert.Equal(t, "EUR", normalizer.NormalizeCurrencyToken("eur"))
}

func TestApplyMagnitudeSuffix(t *testing.T) {
	normalizer := NewNormalizerService()

	assert.Equal(t, 2_500_000.0, normalizer.ApplyMagnitudeSuffix(2.5, "million"))
	assert.Equal(t, 2_500_000.0, normalizer.ApplyMagnitudeSuffix(2.5, "mn"))
	assert.Equal(t, 1_000_000_000.0, normalizer.ApplyMagnitudeSuffix(1, "B"))
	assert.Equal(t, 42.0, normalizer.ApplyMagnitudeSuffix(42, ""))
	assert.Equal(t, 42.0, normalizer.ApplyMagnitudeSuffix(42, "shares"))
}

func TestToUSD(t *testing.T) {
	normalizer := NewNormalizerService()

	assert.InDelta(t, 100.0, normalizer.ToUSD(100, "USD"), 0.001)
	assert.InDelta(t, 100.0, normalizer.ToUSD(780, "HKD"), 0.001)
	assert.InDelta(t, 55.0, normalizer.ToUSD(55, "EUR"), 0.001)
}

func TestParseFloat(t *testing.T) {
	normalizer := NewNormalizerService()

	parsed := normalizer.ParseFloat("1,860.50")
	require.NotNil(t, parsed)
	assert.InDelta(t, 1860.50, *parsed, 0.001)

	assert.Nil(t, normalizer.ParseFloat(""))
	assert.Nil(t, normalizer.ParseFloat("-"))
	assert.Nil(t, normalizer.ParseFloat("n/a"))
}

func TestFormatMoney(t *testing.T) {
	normalizer := NewNormalizerService()

	billion := 3_250_000_000.0
	million := 940_000_000.0
	small := 512.0

	assert.Equal(t, "$3.25B", normalizer.FormatMoney(&billion))
	assert.Equal(t, "$940.00M", normalizer.FormatMoney(&million))
	assert.Equal(t, "$512", normalizer.FormatMoney(&small))
	assert.Equal(t, "N/A", normalizer.FormatMoney(nil))
}
