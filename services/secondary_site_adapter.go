package services

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

var stockCodeSuffixPattern = regexp.MustCompile(`\b(\d{1,5})\.HK\b`)

// rowPlaceholders are header cells that leak into data rows on the secondary
// market site's table markup.
var rowPlaceholders = map[string]bool{
	"company name": true,
	"company":      true,
	"name":         true,
	"code":         true,
	"-":            true,
}

// SecondarySiteAdapter scrapes the upcoming-IPO table on the secondary
// market site and optionally follows each row's detail page to recover a
// precise offer-period range.
type SecondarySiteAdapter struct {
	httpFactory      *shared.HTTPClientFactory
	rateLimiter      *shared.HTTPRequestRateLimiter
	normalizer       *NormalizerService
	listURL          string
	fetchDetailPages bool
}

// NewSecondarySiteAdapter creates a secondary-market-site adapter
func NewSecondarySiteAdapter(httpFactory *shared.HTTPClientFactory, rateLimiter *shared.HTTPRequestRateLimiter, normalizer *NormalizerService) *SecondarySiteAdapter {
	return &SecondarySiteAdapter{
		httpFactory:      httpFactory,
		rateLimiter:      rateLimiter,
		normalizer:       normalizer,
		listURL:          secondarySiteListURL,
		fetchDetailPages: true,
	}
}

// FetchRecords scrapes the upcoming-IPO table. The table is located by its
// header row containing both "Closing Date" and "Listing Date" columns.
func (a *SecondarySiteAdapter) FetchRecords(ctx context.Context) ([]models.IPORecord, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "SecondarySiteAdapter",
		"method":    "FetchRecords",
	})

	var records []models.IPORecord
	var tableFound bool
	var fetchErr error

	collector := colly.NewCollector(
		colly.UserAgent(shared.BrowserUserAgent),
		colly.IgnoreRobotsTxt(),
	)
	collector.SetRequestTimeout(25 * time.Second)

	collector.OnRequest(func(request *colly.Request) {
		request.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	collector.OnHTML("table", func(element *colly.HTMLElement) {
		if tableFound {
			return
		}
		columns, ok := a.mapTableColumns(element.DOM)
		if !ok {
			return
		}
		tableFound = true
		element.DOM.Find("tr").Each(func(_ int, row *goquery.Selection) {
			record, ok := a.parseTableRow(ctx, row, columns)
			if ok {
				records = append(records, record)
			}
		})
	})

	a.rateLimiter.EnforceRateLimit()
	if err := collector.Visit(a.listURL); err != nil {
		return nil, shared.NewNetworkError("secondary-site", "list fetch", err)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, shared.NewNetworkError("secondary-site", "list fetch", fetchErr)
	}
	if !tableFound {
		return nil, shared.NewServiceError(shared.ErrorCategoryParsing, "upcoming-IPO table not found", "secondary-site", "list parse", false, nil)
	}

	logger.WithField("record_count", len(records)).Info("Secondary site fetch completed")
	return records, nil
}

// secondaryColumns maps semantic fields to table column indices
type secondaryColumns struct {
	name       int
	industry   int
	offerPrice int
	lotSize    int
	entryFee   int
	closing    int
	listing    int
}

// mapTableColumns identifies the upcoming-IPO table by its header row and
// maps each needed column by substring match. Returns false when the table
// is not the one we want.
func (a *SecondarySiteAdapter) mapTableColumns(table *goquery.Selection) (secondaryColumns, bool) {
	columns := secondaryColumns{name: -1, industry: -1, offerPrice: -1, lotSize: -1, entryFee: -1, closing: -1, listing: -1}

	headerRow := table.Find("tr").First()
	headerCells := headerRow.Find("th")
	if headerCells.Length() == 0 {
		headerCells = headerRow.Find("td")
	}

	headerCells.Each(func(index int, cell *goquery.Selection) {
		header := strings.ToLower(strings.Join(strings.Fields(cell.Text()), " "))
		switch {
		case strings.Contains(header, "closing date"):
			columns.closing = index
		case strings.Contains(header, "listing date"):
			columns.listing = index
		case strings.Contains(header, "entry fee"):
			columns.entryFee = index
		case strings.Contains(header, "lot"):
			columns.lotSize = index
		case strings.Contains(header, "price"):
			columns.offerPrice = index
		case strings.Contains(header, "industry") || strings.Contains(header, "sector"):
			columns.industry = index
		case strings.Contains(header, "name") || strings.Contains(header, "company"):
			columns.name = index
		}
	})

	if columns.closing < 0 || columns.listing < 0 {
		return columns, false
	}
	if columns.name < 0 {
		columns.name = 0
	}
	return columns, true
}

// parseTableRow converts one table row into a record. Rows whose company
// name or code resolve to known header placeholders are skipped.
func (a *SecondarySiteAdapter) parseTableRow(ctx context.Context, row *goquery.Selection, columns secondaryColumns) (models.IPORecord, bool) {
	cells := row.Find("td")
	if cells.Length() <= columns.closing || cells.Length() <= columns.listing {
		return models.IPORecord{}, false
	}

	nameCell := cells.Eq(columns.name)
	company := normalizeCellText(nameCell)
	if company == "" || rowPlaceholders[strings.ToLower(company)] {
		return models.IPORecord{}, false
	}

	stockCode := a.extractStockCode(row)

	detailURL := ""
	if href, exists := nameCell.Find("a[href]").First().Attr("href"); exists {
		detailURL = resolveAgainst(a.listURL, href)
	}

	closingDate := a.normalizer.ParseNumericDate(normalizeCellText(cells.Eq(columns.closing)))
	listingDate := a.normalizer.ParseNumericDate(normalizeCellText(cells.Eq(columns.listing)))

	record := models.IPORecord{
		Company:           company,
		StockCode:         stockCode,
		Industry:          cellTextAt(cells, columns.industry),
		OfferPriceText:    cellTextAt(cells, columns.offerPrice),
		LotSize:           cellTextAt(cells, columns.lotSize),
		EntryFeeText:      cellTextAt(cells, columns.entryFee),
		BookbuildingStart: closingDate,
		BookbuildingEnd:   closingDate,
		BookbuildingLabel: "Offer period",
		BookbuildingType:  models.BookbuildingTypeStandard,
		TradeDate:         listingDate,
		TradeLabel:        "Listing date",
		CompanyPageURL:    detailURL,
		Source:            "secondary-site",
	}

	if detailURL != "" && a.fetchDetailPages {
		if start, end := a.fetchOfferPeriod(ctx, detailURL); start != nil && end != nil {
			record.BookbuildingStart = start
			record.BookbuildingEnd = end
		}
	}
	return record, true
}

// extractStockCode reads the dedicated markup class first, then falls back
// to the "NNNNN.HK" text pattern anywhere in the row.
func (a *SecondarySiteAdapter) extractStockCode(row *goquery.Selection) string {
	if coded := row.Find(".stockcode, .stock-code, span.code").First(); coded.Length() > 0 {
		if code := a.normalizer.NormalizeStockCode(strings.TrimSpace(coded.Text())); code != "" {
			return code
		}
	}
	if match := stockCodeSuffixPattern.FindStringSubmatch(row.Text()); match != nil {
		return a.normalizer.NormalizeStockCode(match[1])
	}
	return ""
}

// fetchOfferPeriod fetches a detail page and extracts the offer-period date
// range from its visible text. Failure is quiet; the caller keeps the
// closing-date-as-both-bounds fallback.
func (a *SecondarySiteAdapter) fetchOfferPeriod(ctx context.Context, detailURL string) (*time.Time, *time.Time) {
	a.rateLimiter.EnforceRateLimit()
	body, err := a.httpFactory.FetchURL(ctx, detailURL)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":  "SecondarySiteAdapter",
			"detail_url": detailURL,
		}).WithError(err).Debug("Detail page fetch failed, keeping closing-date bounds")
		return nil, nil
	}

	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil
	}
	pageText := document.Text()

	if index := strings.Index(strings.ToLower(pageText), "offer period"); index >= 0 {
		window := pageText[index:]
		if len(window) > 200 {
			window = window[:200]
		}
		if start, end := a.normalizer.ExtractDateRange(window); start != nil && end != nil {
			return start, end
		}
	}
	return nil, nil
}

func cellTextAt(cells *goquery.Selection, index int) string {
	if index < 0 || index >= cells.Length() {
		return ""
	}
	return normalizeCellText(cells.Eq(index))
}
