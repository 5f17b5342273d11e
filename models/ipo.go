package models

import "time"

// BookbuildingType tags how a record's bookbuilding window was derived
const (
	BookbuildingTypeStandard    = "bookbuilding"
	BookbuildingTypeApplication = "application"
)

// EventTypeTrade marks calendar events derived from a record's trade (listing) date
const EventTypeTrade = "trade"

// IPORecord represents one issuer/offering candidate assembled from one of the
// upstream sources. Every adapter populates the same field set; fields that a
// source cannot supply stay at their zero/nil value rather than being absent.
type IPORecord struct {
	ID          string `json:"id"`
	Company     string `json:"company"`
	StockCode   string `json:"stock_code"` // canonical 5-digit form for numeric codes
	Industry    string `json:"industry"`

	BookbuildingStart *time.Time `json:"bookbuilding_start,omitempty"`
	BookbuildingEnd   *time.Time `json:"bookbuilding_end,omitempty"`
	BookbuildingLabel string     `json:"bookbuilding_label,omitempty"`
	BookbuildingType  string     `json:"bookbuilding_type,omitempty"`

	TradeDate  *time.Time `json:"trade_date,omitempty"`
	TradeLabel string     `json:"trade_label,omitempty"`

	ProspectusDate       *time.Time `json:"prospectus_date,omitempty"`
	ListingDate          *time.Time `json:"listing_date,omitempty"`
	FundsRaisedHKD       *float64   `json:"funds_raised_hkd,omitempty"`
	SubscriptionPriceHKD *float64   `json:"subscription_price_hkd,omitempty"`

	// Secondary-market-site fields; free text as published by the source.
	OfferPriceText string `json:"offer_price_text,omitempty"`
	LotSize        string `json:"lot_size,omitempty"`
	EntryFeeText   string `json:"entry_fee_text,omitempty"`

	// Application-proof fields.
	ApplicationStatus    string     `json:"application_status,omitempty"`
	ApplicationBoard     string     `json:"application_board,omitempty"`
	ApplicationProofDate *time.Time `json:"application_proof_date,omitempty"`
	ApplicationDocuments []Filing   `json:"application_documents,omitempty"`

	AnnouncementURL string `json:"announcement_url,omitempty"`
	ProspectusURL   string `json:"prospectus_url,omitempty"`
	AllotmentURL    string `json:"allotment_url,omitempty"`
	CompanyPageURL  string `json:"company_page_url,omitempty"`

	// Source identifies the adapter that produced the record.
	Source string `json:"source"`
}

// CalendarMeta carries provenance and advisory failure messages for one
// calendar fetch. Errors accumulate across every attempted source regardless
// of which path finally succeeded.
type CalendarMeta struct {
	Source string   `json:"source"`
	Errors []string `json:"errors"`
}

// CalendarEvent is a single calendar-day entry derived from a record. Many
// events may reference the same record; the reference is not owning.
type CalendarEvent struct {
	Day    time.Time  `json:"day"`
	Type   string     `json:"type"`
	Label  string     `json:"label"`
	Record *IPORecord `json:"record"`
}

// ListingDocuments holds the cross-referenced document links published for a
// stock code on the new-listing index page.
type ListingDocuments struct {
	Company         string `json:"company"`
	AnnouncementURL string `json:"announcement_url,omitempty"`
	ProspectusURL   string `json:"prospectus_url,omitempty"`
	AllotmentURL    string `json:"allotment_url,omitempty"`
}
