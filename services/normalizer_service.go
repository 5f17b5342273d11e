package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultFXRateUSDHKD is the fixed conversion rate used for USD reporting.
// A known approximation; there is no live FX lookup in this pipeline.
const DefaultFXRateUSDHKD = 7.80

// NormalizerService handles parsing of loosely-formatted dates, stock codes,
// company-name keys, currency tokens and magnitude suffixes. Every method is
// quiet-failure: unparseable input yields a nil/empty result, never an error.
type NormalizerService struct{}

// NewNormalizerService creates a new text and date normalization service
func NewNormalizerService() *NormalizerService {
	return &NormalizerService{}
}

var (
	// The leading \b keeps the day from matching inside a 4-digit year, as in
	// "28 April 2025 - 2 May 2025".
	compactRangePattern = regexp.MustCompile(`\b(\d{1,2})\s*-\s*(\d{1,2})\s+([A-Za-z]{3,9})\s+(\d{4})`)
	textualDatePattern  = regexp.MustCompile(`\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4}`)
	numericDatePattern  = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)
	nonAlphanumPattern  = regexp.MustCompile(`[^a-z0-9]+`)
	digitsOnlyPattern   = regexp.MustCompile(`^\d+$`)
)

// flexibleDateLayouts are tried in order by ParseFlexibleDate. Day-first
// layouts come first because the exchange publishes day-first text.
var flexibleDateLayouts = []string{
	"2 Jan 2006",
	"2 January 2006",
	"02 Jan 2006",
	"2 Jan 2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006 15:04:05",
}

// ParseFlexibleDate attempts day-first textual parsing of free text dates
// such as "12 Mar 2024". Returns nil on any unparseable input.
func (s *NormalizerService) ParseFlexibleDate(value string) *time.Time {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}
	for _, layout := range flexibleDateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}

// ParseNumericDate matches YYYY[/-]M[/-]D patterns preferentially, falling
// back to the flexible parser. Invalid calendar dates (month 13, day 32)
// yield nil rather than erroring.
func (s *NormalizerService) ParseNumericDate(value string) *time.Time {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}
	if match := numericDatePattern.FindStringSubmatch(text); match != nil {
		year, _ := strconv.Atoi(match[1])
		month, _ := strconv.Atoi(match[2])
		day, _ := strconv.Atoi(match[3])
		if date, ok := buildCalendarDate(year, month, day); ok {
			return date
		}
		return nil
	}
	return s.ParseFlexibleDate(text)
}

// buildCalendarDate validates the components before constructing the date;
// time.Date would silently normalize month 13 into the next year.
func buildCalendarDate(year, month, day int) (*time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return nil, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return nil, false
	}
	return &date, true
}

// ExtractDateRange extracts a (start, end) pair from free text. It first
// tries the compact "3-7 June 2024" pattern, then scans for all
// "D Month YYYY" dates: two or more found yields (first, second), exactly
// one yields (that, that), none yields (nil, nil).
func (s *NormalizerService) ExtractDateRange(text string) (*time.Time, *time.Time) {
	if text == "" {
		return nil, nil
	}
	if match := compactRangePattern.FindStringSubmatch(text); match != nil {
		start := s.ParseFlexibleDate(fmt.Sprintf("%s %s %s", match[1], match[3], match[4]))
		end := s.ParseFlexibleDate(fmt.Sprintf("%s %s %s", match[2], match[3], match[4]))
		if start != nil && end != nil {
			return start, end
		}
	}

	var dates []*time.Time
	for _, candidate := range textualDatePattern.FindAllString(text, -1) {
		if parsed := s.ParseFlexibleDate(candidate); parsed != nil {
			dates = append(dates, parsed)
		}
	}
	if len(dates) >= 2 {
		return dates[0], dates[1]
	}
	if len(dates) == 1 {
		return dates[0], dates[0]
	}
	return nil, nil
}

// ExtractFirstDate extracts the first "D Month YYYY" date from free text,
// falling back to flexible parsing of the whole text. Used for single-date
// listing/trade columns.
func (s *NormalizerService) ExtractFirstDate(text string) *time.Time {
	if text == "" {
		return nil
	}
	if match := textualDatePattern.FindString(text); match != "" {
		return s.ParseFlexibleDate(match)
	}
	return s.ParseFlexibleDate(text)
}

// NormalizeStockCode canonicalizes a stock code: "00001", 1 and "1.HK" all
// collapse to "00001". Placeholder values normalize to the empty string.
func (s *NormalizerService) NormalizeStockCode(value string) string {
	text := strings.TrimSpace(value)
	if text == "" || text == "-" || text == `"` {
		return ""
	}
	text = strings.ReplaceAll(text, ".HK", "")
	text = strings.ReplaceAll(text, "HK", "")
	text = strings.TrimSpace(text)
	if text == "" || text == "-" || text == `"` {
		return ""
	}
	if digitsOnlyPattern.MatchString(text) {
		numeric, err := strconv.Atoi(text)
		if err != nil {
			return text
		}
		return fmt.Sprintf("%05d", numeric)
	}
	return text
}

// NormalizeCompanyKey lower-cases a company name and strips everything
// except [a-z0-9], for fuzzy matching across sources.
func (s *NormalizerService) NormalizeCompanyKey(name string) string {
	return nonAlphanumPattern.ReplaceAllString(strings.ToLower(name), "")
}

// NormalizeCurrencyToken maps currency token variants onto ISO-ish codes.
// Empty input defaults to USD; unrecognized tokens pass through unchanged.
func (s *NormalizerService) NormalizeCurrencyToken(text string) string {
	token := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(text)), " ", "")
	if token == "" {
		return "USD"
	}
	switch token {
	case "US$", "USD", "$":
		return "USD"
	case "HK$", "HKD":
		return "HKD"
	}
	return token
}

// ApplyMagnitudeSuffix multiplies a value by the magnitude its textual unit
// implies: million/m/mn by 1e6, billion/b/bn by 1e9, anything else identity.
func (s *NormalizerService) ApplyMagnitudeSuffix(value float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "b", "bn", "billion":
		return value * 1_000_000_000
	case "m", "mn", "million":
		return value * 1_000_000
	}
	return value
}

// ParseFloat parses a numeric cell tolerantly: commas stripped, "-" and
// empty treated as absent. Returns nil when the text is not a number.
func (s *NormalizerService) ParseFloat(value string) *float64 {
	text := strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if text == "" || text == "-" {
		return nil
	}
	parsed, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

// ToUSD converts an amount into USD at the fixed rate: identity for USD,
// division by 7.80 for HKD, pass-through for any other currency code.
func (s *NormalizerService) ToUSD(amount float64, currency string) float64 {
	switch currency {
	case "USD":
		return amount
	case "HKD":
		return amount / DefaultFXRateUSDHKD
	}
	return amount
}

// FormatMoney renders an amount for display with a magnitude suffix, or
// "N/A" for absent values.
func (s *NormalizerService) FormatMoney(amount *float64) string {
	if amount == nil {
		return "N/A"
	}
	value := *amount
	if value >= 1_000_000_000 {
		return fmt.Sprintf("$%.2fB", value/1_000_000_000)
	}
	if value >= 1_000_000 {
		return fmt.Sprintf("$%.2fM", value/1_000_000)
	}
	return fmt.Sprintf("$%.0f", value)
}
