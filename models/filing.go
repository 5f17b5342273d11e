package models

import "time"

// Filing source tags
const (
	FilingSourceCrossReference   = "hkexnews"
	FilingSourceApplicationProof = "application-proof"
)

// Filing is one discoverable document about a company's offering. URL is the
// deduplication key: one URL maps to at most one Filing in any final list.
type Filing struct {
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Source        string     `json:"source"`
}

// MoneyAmount is an extracted amount with its reported currency.
type MoneyAmount struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// ExtractedTerms holds the fields recovered from term-sheet documents. Values
// merge across successive candidate documents without overwriting fields that
// were already found.
type ExtractedTerms struct {
	OfferPrice        *MoneyAmount `json:"offer_price,omitempty"`
	GrossProceeds     *MoneyAmount `json:"gross_proceeds,omitempty"`
	MarketCap         *MoneyAmount `json:"market_cap,omitempty"`
	ValuationMultiple string       `json:"valuation_multiple,omitempty"`
	BusinessModel     string       `json:"business_model,omitempty"`
	FinancialTrend    string       `json:"financial_trend,omitempty"`
	IPOValueUSD       *float64     `json:"ipo_value_usd,omitempty"`
	RaiseAmountUSD    *float64     `json:"raise_amount_usd,omitempty"`
}

// PopulatedKeyFields counts how many of the high-value fields have been
// recovered so far. Extraction stops early once at least three are populated.
func (t *ExtractedTerms) PopulatedKeyFields() int {
	count := 0
	if t.IPOValueUSD != nil {
		count++
	}
	if t.RaiseAmountUSD != nil {
		count++
	}
	if t.ValuationMultiple != "" {
		count++
	}
	if t.BusinessModel != "" {
		count++
	}
	if t.FinancialTrend != "" {
		count++
	}
	return count
}

// IPODetails is the per-company result of filing resolution and term
// extraction. Computed on demand, never persisted by the core.
type IPODetails struct {
	TermSheetURL      string       `json:"term_sheet_url,omitempty"`
	Filings           []Filing     `json:"filings"`
	OfferPrice        *MoneyAmount `json:"offer_price,omitempty"`
	GrossProceeds     *MoneyAmount `json:"gross_proceeds,omitempty"`
	MarketCap         *MoneyAmount `json:"market_cap,omitempty"`
	IPOValueUSD       *float64     `json:"ipo_value_usd,omitempty"`
	RaiseAmountUSD    *float64     `json:"raise_amount_usd,omitempty"`
	ValuationMultiple string       `json:"valuation_multiple,omitempty"`
	BusinessModel     string       `json:"business_model,omitempty"`
	FinancialTrend    string       `json:"financial_trend,omitempty"`
}
