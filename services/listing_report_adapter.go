package services

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx/v2"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

var reportYearPattern = regexp.MustCompile(`\d{4}`)

// ListingReportAdapter fetches the new-listing report spreadsheets published
// on the listing index page and parses them into calendar records. It also
// exposes the stock-code-to-documents cross-reference table published on the
// same page.
type ListingReportAdapter struct {
	httpFactory *shared.HTTPClientFactory
	rateLimiter *shared.HTTPRequestRateLimiter
	normalizer  *NormalizerService
	indexURL    string
}

// NewListingReportAdapter creates a listing-report adapter
func NewListingReportAdapter(httpFactory *shared.HTTPClientFactory, rateLimiter *shared.HTTPRequestRateLimiter, normalizer *NormalizerService) *ListingReportAdapter {
	return &ListingReportAdapter{
		httpFactory: httpFactory,
		rateLimiter: rateLimiter,
		normalizer:  normalizer,
		indexURL:    newListingMainURL,
	}
}

// FetchRecords downloads the most recent listing-report spreadsheets and
// returns one record per parsed row. A single unreadable report is skipped;
// only a failure to reach the index page aborts the adapter.
func (a *ListingReportAdapter) FetchRecords(ctx context.Context) ([]models.IPORecord, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "ListingReportAdapter",
		"method":    "FetchRecords",
	})

	a.rateLimiter.EnforceRateLimit()
	body, err := a.httpFactory.FetchURL(ctx, a.indexURL)
	if err != nil {
		return nil, shared.NewNetworkError("listing-report", "index fetch", err)
	}

	links, err := a.extractReportLinks(body)
	if err != nil {
		return nil, shared.NewParsingError("listing-report", "index parse", err)
	}
	if len(links) == 0 {
		return nil, shared.NewServiceError(shared.ErrorCategoryParsing, "no report links found on index page", "listing-report", "index parse", false, nil)
	}

	var records []models.IPORecord
	for _, link := range links {
		a.rateLimiter.EnforceRateLimit()
		data, err := a.httpFactory.FetchURL(ctx, link)
		if err != nil {
			logger.WithError(err).WithField("report_url", link).Warn("Skipping unreachable listing report")
			continue
		}
		parsed, err := a.parseListingReport(data)
		if err != nil {
			logger.WithError(err).WithField("report_url", link).Warn("Skipping unparseable listing report")
			continue
		}
		records = append(records, parsed...)
	}

	logger.WithFields(logrus.Fields{
		"report_count": len(links),
		"record_count": len(records),
	}).Info("Listing report fetch completed")

	return records, nil
}

// extractReportLinks locates report-document links: the URL must contain the
// new-listing-report path segment and end in the spreadsheet extension.
// Links are deduplicated by URL and sorted by embedded 4-digit year,
// most-recent-first.
func (a *ListingReportAdapter) extractReportLinks(html []byte) ([]string, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse index html: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	document.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		lowered := strings.ToLower(href)
		if !strings.HasSuffix(lowered, ".xlsx") {
			return
		}
		if !strings.Contains(lowered, newListingReportSegment) {
			return
		}
		resolved := resolveAgainst(hkexNewsBase, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	sort.SliceStable(links, func(i, j int) bool {
		return reportLinkYear(links[i]) > reportLinkYear(links[j])
	})
	return links, nil
}

func reportLinkYear(link string) int {
	match := reportYearPattern.FindString(link)
	if match == "" {
		return 0
	}
	year, _ := strconv.Atoi(match)
	return year
}

// parseListingReport reads one spreadsheet. The header row is located by
// scanning for a row containing both a "Stock Code" and a "Company Name"
// marker cell; fixed-offset columns are read from the rows after it.
func (a *ListingReportAdapter) parseListingReport(data []byte) ([]models.IPORecord, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open report: %w", err)
	}
	if len(file.Sheets) == 0 {
		return nil, fmt.Errorf("xlsx: report has no sheets")
	}
	sheet := file.Sheets[0]

	headerIndex := -1
	for i, row := range sheet.Rows {
		if listingReportHeaderRow(row) {
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return nil, fmt.Errorf("xlsx: header row not found")
	}

	var records []models.IPORecord
	for _, row := range sheet.Rows[headerIndex+1:] {
		cells := rowCellValues(row)
		if len(cells) < 5 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		stockCode := a.normalizer.NormalizeStockCode(cells[1])
		if stockCode == "" {
			continue
		}
		company := strings.TrimSpace(strings.ReplaceAll(cells[2], "\n", " "))
		prospectusDate := a.parseReportDate(cells[3])
		listingDate := a.parseReportDate(cells[4])

		record := models.IPORecord{
			Company:           company,
			StockCode:         stockCode,
			ProspectusDate:    prospectusDate,
			ListingDate:       listingDate,
			BookbuildingStart: prospectusDate,
			BookbuildingEnd:   prospectusDate,
			BookbuildingLabel: "Prospectus",
			BookbuildingType:  models.BookbuildingTypeStandard,
			TradeDate:         listingDate,
			TradeLabel:        "Listing date",
			CompanyPageURL:    a.indexURL,
			Source:            "listing-report",
		}
		if len(cells) > 8 {
			record.FundsRaisedHKD = a.normalizer.ParseFloat(cells[8])
		}
		if len(cells) > 9 {
			record.SubscriptionPriceHKD = a.normalizer.ParseFloat(cells[9])
		}
		records = append(records, record)
	}
	return records, nil
}

// parseReportDate handles both textual and numeric spreadsheet date cells
func (a *ListingReportAdapter) parseReportDate(cell string) *time.Time {
	if parsed := a.normalizer.ParseFlexibleDate(cell); parsed != nil {
		return parsed
	}
	return a.normalizer.ParseNumericDate(cell)
}

func listingReportHeaderRow(row *xlsx.Row) bool {
	hasCode, hasCompany := false, false
	for _, cell := range row.Cells {
		value := cell.String()
		if strings.Contains(value, "Stock Code") {
			hasCode = true
		}
		if strings.Contains(value, "Company Name") {
			hasCompany = true
		}
	}
	return hasCode && hasCompany
}

func rowCellValues(row *xlsx.Row) []string {
	values := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		values[i] = cell.String()
	}
	return values
}

// FetchDocumentMap scrapes the cross-reference table on the listing index
// page: stock code mapped to announcement, prospectus and allotment links.
func (a *ListingReportAdapter) FetchDocumentMap(ctx context.Context) (map[string]models.ListingDocuments, error) {
	a.rateLimiter.EnforceRateLimit()
	body, err := a.httpFactory.FetchURL(ctx, a.indexURL)
	if err != nil {
		return nil, shared.NewNetworkError("listing-report", "document map fetch", err)
	}

	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, shared.NewParsingError("listing-report", "document map parse", err)
	}

	documents := make(map[string]models.ListingDocuments)
	document.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		headers := table.Find("th").Map(func(_ int, th *goquery.Selection) string {
			return strings.TrimSpace(th.Text())
		})
		if !containsString(headers, "Stock Code") || !containsString(headers, "Stock Name") {
			return true
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 5 {
				return
			}
			stockCode := a.normalizer.NormalizeStockCode(strings.TrimSpace(cells.Eq(0).Text()))
			if stockCode == "" {
				return
			}
			documents[stockCode] = models.ListingDocuments{
				Company:         normalizeCellText(cells.Eq(1)),
				AnnouncementURL: firstLink(cells.Eq(2)),
				ProspectusURL:   firstLink(cells.Eq(3)),
				AllotmentURL:    firstLink(cells.Eq(4)),
			}
		})
		return false
	})
	return documents, nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func normalizeCellText(cell *goquery.Selection) string {
	return strings.Join(strings.Fields(cell.Text()), " ")
}

func firstLink(cell *goquery.Selection) string {
	href, exists := cell.Find("a[href]").First().Attr("href")
	if !exists {
		return ""
	}
	return resolveAgainst(hkexNewsBase, href)
}

// resolveAgainst resolves a possibly-relative href against a base URL
func resolveAgainst(base, href string) string {
	parsedBase, err := url.Parse(base)
	if err != nil {
		return href
	}
	parsedHref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return parsedBase.ResolveReference(parsedHref).String()
}
