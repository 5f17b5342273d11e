package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

var (
	initialStatePattern = regexp.MustCompile(`(?s)__INITIAL_STATE__\s*=\s*(\{.*\});`)
	inlineArrayPattern  = regexp.MustCompile(`(?s)\[\{.*?\}\]`)
)

// fallbackHeaderCandidates maps semantic fields to header phrases used for
// fuzzy column matching in the HTML-table path.
var fallbackHeaderCandidates = map[string][]string{
	"company":      {"company", "issuer", "applicant", "company name"},
	"stock_code":   {"stock code", "code"},
	"bookbuilding": {"bookbuilding", "offer period", "book building"},
	"trade_date":   {"listing date", "trade date", "listing"},
	"industry":     {"industry", "sector"},
}

// FallbackCalendarAdapter is the legacy single-endpoint calendar path, used
// only when all primary sources fail. It first tries an embedded page-state
// JSON blob, then falls back to scanning visible HTML tables.
type FallbackCalendarAdapter struct {
	httpFactory  *shared.HTTPClientFactory
	rateLimiter  *shared.HTTPRequestRateLimiter
	normalizer   *NormalizerService
	calendarURLs []string
}

// NewFallbackCalendarAdapter creates the legacy calendar adapter. A
// non-empty overrideURL is tried before the default endpoint.
func NewFallbackCalendarAdapter(httpFactory *shared.HTTPClientFactory, rateLimiter *shared.HTTPRequestRateLimiter, normalizer *NormalizerService, overrideURL string) *FallbackCalendarAdapter {
	urls := []string{}
	if strings.TrimSpace(overrideURL) != "" {
		urls = append(urls, strings.TrimSpace(overrideURL))
	}
	urls = append(urls, legacyCalendarURL)

	return &FallbackCalendarAdapter{
		httpFactory:  httpFactory,
		rateLimiter:  rateLimiter,
		normalizer:   normalizer,
		calendarURLs: urls,
	}
}

// FetchRecords tries each configured endpoint until one yields records
func (a *FallbackCalendarAdapter) FetchRecords(ctx context.Context) ([]models.IPORecord, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "FallbackCalendarAdapter",
		"method":    "FetchRecords",
	})

	var lastErr error
	for _, calendarURL := range a.calendarURLs {
		a.rateLimiter.EnforceRateLimit()
		body, err := a.httpFactory.FetchURL(ctx, calendarURL)
		if err != nil {
			lastErr = err
			logger.WithError(err).WithField("url", calendarURL).Warn("Legacy calendar endpoint unreachable")
			continue
		}
		records := a.extractFromHTML(body)
		if len(records) > 0 {
			logger.WithFields(logrus.Fields{
				"url":          calendarURL,
				"record_count": len(records),
			}).Info("Legacy calendar fetch completed")
			return records, nil
		}
		lastErr = fmt.Errorf("calendar returned empty data from %s", calendarURL)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("calendar endpoint list is empty")
	}
	return nil, shared.NewServiceError(shared.ErrorCategoryNetwork, "legacy calendar fetch failed", "hkex", "calendar fetch", true, lastErr)
}

// extractFromHTML first attempts the embedded page-state JSON, then the
// visible-table scan.
func (a *FallbackCalendarAdapter) extractFromHTML(html []byte) []models.IPORecord {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	if items := a.extractFromScripts(document); len(items) > 0 {
		var records []models.IPORecord
		for _, item := range items {
			if record, ok := a.buildRecordFromStateItem(item); ok {
				records = append(records, record)
			}
		}
		if len(records) > 0 {
			return records
		}
	}

	return a.extractFromTables(document)
}

// extractFromScripts scans script blocks for an embedded JSON state blob.
// Only scripts mentioning both "ipo" and "calendar" are considered.
func (a *FallbackCalendarAdapter) extractFromScripts(document *goquery.Document) []map[string]interface{} {
	var items []map[string]interface{}

	document.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text := script.Text()
		lowered := strings.ToLower(text)
		if !strings.Contains(lowered, "ipo") || !strings.Contains(lowered, "calendar") {
			return true
		}

		if match := initialStatePattern.FindStringSubmatch(text); match != nil {
			var payload interface{}
			if err := json.Unmarshal([]byte(match[1]), &payload); err == nil {
				if found := findCalendarItemsInState(payload); len(found) > 0 {
					items = found
					return false
				}
			}
		}

		for _, candidate := range inlineArrayPattern.FindAllString(text, -1) {
			var decoded []map[string]interface{}
			if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
				continue
			}
			if len(decoded) == 0 {
				continue
			}
			if _, hasCompany := decoded[0]["company"]; hasCompany {
				items = decoded
				return false
			}
			if _, hasIssuer := decoded[0]["issuer"]; hasIssuer {
				items = decoded
				return false
			}
		}
		return true
	})

	return items
}

// findCalendarItemsInState walks the decoded state looking for a
// list-of-objects whose keys carry a calendar-like marker. The walk is
// bounded to guard against adversarial or degenerate payloads.
func findCalendarItemsInState(payload interface{}) []map[string]interface{} {
	const (
		maxNodes = 10000
		maxDepth = 12
	)

	type stackEntry struct {
		node  interface{}
		depth int
	}

	stack := []stackEntry{{node: payload}}
	visited := 0
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++
		if visited > maxNodes || entry.depth > maxDepth {
			return nil
		}

		switch typed := entry.node.(type) {
		case map[string]interface{}:
			for _, value := range typed {
				if list, ok := value.([]interface{}); ok && len(list) > 0 {
					if first, ok := list[0].(map[string]interface{}); ok && hasCalendarMarker(first) {
						return toObjectList(list)
					}
				}
				stack = append(stack, stackEntry{node: value, depth: entry.depth + 1})
			}
		case []interface{}:
			for _, value := range typed {
				stack = append(stack, stackEntry{node: value, depth: entry.depth + 1})
			}
		}
	}
	return nil
}

func hasCalendarMarker(node map[string]interface{}) bool {
	for key := range node {
		switch strings.ToLower(key) {
		case "company", "listingdate":
			return true
		}
	}
	return false
}

func toObjectList(list []interface{}) []map[string]interface{} {
	objects := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if object, ok := item.(map[string]interface{}); ok {
			objects = append(objects, object)
		}
	}
	return objects
}

// buildRecordFromStateItem maps one embedded-state object onto a record
func (a *FallbackCalendarAdapter) buildRecordFromStateItem(item map[string]interface{}) (models.IPORecord, bool) {
	lowered := make(map[string]interface{}, len(item))
	for key, value := range item {
		lowered[strings.ToLower(key)] = value
	}

	company := strings.TrimSpace(pickString(lowered, "company", "issuer", "applicant", "name"))
	if company == "" {
		return models.IPORecord{}, false
	}

	record := models.IPORecord{
		Company:           company,
		StockCode:         a.normalizer.NormalizeStockCode(pickString(lowered, "stockcode", "stock_code", "code")),
		Industry:          pickString(lowered, "industry", "sector"),
		BookbuildingLabel: "Bookbuilding",
		BookbuildingType:  models.BookbuildingTypeStandard,
		TradeLabel:        "Trade",
		CompanyPageURL:    pickString(lowered, "companypageurl", "url", "link"),
		Source:            "hkex",
	}

	if bookText := pickString(lowered, "bookbuilding", "offerperiod", "bookbuildingperiod"); bookText != "" {
		record.BookbuildingStart, record.BookbuildingEnd = a.normalizer.ExtractDateRange(bookText)
	}
	if record.BookbuildingStart == nil {
		record.BookbuildingStart = a.normalizer.ParseFlexibleDate(pickString(lowered, "bookbuildingstart", "bookbuilding_start"))
		record.BookbuildingEnd = a.normalizer.ParseFlexibleDate(pickString(lowered, "bookbuildingend", "bookbuilding_end"))
	}
	if tradeText := pickString(lowered, "listingdate", "tradedate", "trade_date", "listing"); tradeText != "" {
		record.TradeDate = a.normalizer.ExtractFirstDate(tradeText)
	}
	return record, true
}

// extractFromTables scans visible HTML tables whose header mentions
// "listing" or "trade", fuzzy-mapping columns by substring match.
func (a *FallbackCalendarAdapter) extractFromTables(document *goquery.Document) []models.IPORecord {
	var records []models.IPORecord

	document.Find("table").Each(func(_ int, table *goquery.Selection) {
		headerCells := table.Find("th")
		if headerCells.Length() == 0 {
			return
		}
		headers := headerCells.Map(func(_ int, cell *goquery.Selection) string {
			return strings.ToLower(strings.Join(strings.Fields(cell.Text()), " "))
		})

		relevant := false
		for _, header := range headers {
			if strings.Contains(header, "listing") || strings.Contains(header, "trade") {
				relevant = true
				break
			}
		}
		if !relevant {
			return
		}

		columnMap := map[string]int{}
		for field, candidates := range fallbackHeaderCandidates {
			for index, header := range headers {
				matched := false
				for _, candidate := range candidates {
					if strings.Contains(header, candidate) {
						matched = true
						break
					}
				}
				if matched {
					columnMap[field] = index
					break
				}
			}
		}

		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() == 0 {
				return
			}

			companyIndex := 0
			if index, ok := columnMap["company"]; ok {
				companyIndex = index
			}
			if companyIndex >= cells.Length() {
				return
			}
			companyCell := cells.Eq(companyIndex)
			company := normalizeCellText(companyCell)
			if company == "" {
				return
			}

			record := models.IPORecord{
				Company:           company,
				StockCode:         a.normalizer.NormalizeStockCode(mappedCellText(cells, columnMap, "stock_code")),
				Industry:          mappedCellText(cells, columnMap, "industry"),
				BookbuildingLabel: "Bookbuilding",
				BookbuildingType:  models.BookbuildingTypeStandard,
				TradeLabel:        "Trade",
				Source:            "hkex",
			}
			if href, exists := companyCell.Find("a[href]").First().Attr("href"); exists {
				record.CompanyPageURL = href
			}
			if bookText := mappedCellText(cells, columnMap, "bookbuilding"); bookText != "" {
				record.BookbuildingStart, record.BookbuildingEnd = a.normalizer.ExtractDateRange(bookText)
			}
			if tradeText := mappedCellText(cells, columnMap, "trade_date"); tradeText != "" {
				record.TradeDate = a.normalizer.ExtractFirstDate(tradeText)
			}
			records = append(records, record)
		})
	})

	return records
}

func mappedCellText(cells *goquery.Selection, columnMap map[string]int, field string) string {
	index, ok := columnMap[field]
	if !ok || index >= cells.Length() {
		return ""
	}
	return normalizeCellText(cells.Eq(index))
}
