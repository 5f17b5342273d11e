package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

// searchLookbackYears bounds the full-text search date window
const searchLookbackYears = 2

// searchEndpoint describes one independently-shaped search endpoint
type searchEndpoint struct {
	name   string
	url    string
	method string
}

var filingSearchEndpoints = []searchEndpoint{
	{name: "servlet", url: searchServletURL, method: "post"},
	{name: "xhtml", url: searchXHTMLURL, method: "get"},
}

// FilingSearchService queries the filing index's title-search endpoints for
// documents mentioning a company. The two endpoints return differently
// shaped payloads; JSON parsing is tried first, HTML anchors second, and the
// first endpoint yielding any results wins.
type FilingSearchService struct {
	httpFactory *shared.HTTPClientFactory
	rateLimiter *shared.HTTPRequestRateLimiter
	normalizer  *NormalizerService
	endpoints   []searchEndpoint
	now         func() time.Time
}

// NewFilingSearchService creates a filing search client
func NewFilingSearchService(httpFactory *shared.HTTPClientFactory, rateLimiter *shared.HTTPRequestRateLimiter, normalizer *NormalizerService) *FilingSearchService {
	return &FilingSearchService{
		httpFactory: httpFactory,
		rateLimiter: rateLimiter,
		normalizer:  normalizer,
		endpoints:   filingSearchEndpoints,
		now:         time.Now,
	}
}

// SearchFilings returns filings whose title matches the company name.
// Failures are quiet: a search that finds nothing returns an empty list.
func (s *FilingSearchService) SearchFilings(ctx context.Context, companyName string) []models.Filing {
	if strings.TrimSpace(companyName) == "" {
		return nil
	}

	logger := logrus.WithFields(logrus.Fields{
		"component": "FilingSearchService",
		"company":   companyName,
	})
	params := s.buildSearchParams(companyName)

	for _, endpoint := range s.endpoints {
		s.rateLimiter.EnforceRateLimit()

		var body []byte
		var err error
		if endpoint.method == "post" {
			body, err = s.httpFactory.PostForm(ctx, endpoint.url, params)
		} else {
			body, err = s.httpFactory.FetchURL(ctx, endpoint.url+"?"+params.Encode())
		}
		if err != nil {
			logger.WithError(err).WithField("endpoint", endpoint.name).Debug("Search endpoint failed, trying next")
			continue
		}

		if payload, ok := tryParseJSON(body); ok {
			if filings := s.extractFilingsFromJSON(payload, endpoint.name); len(filings) > 0 {
				return filings
			}
		}
		if filings := s.extractFilingsFromHTML(body, endpoint.name); len(filings) > 0 {
			return filings
		}
	}
	return nil
}

// buildSearchParams assembles the shared title-search parameters: market
// scope, a two-year lookback window and newest-first ordering.
func (s *FilingSearchService) buildSearchParams(companyName string) url.Values {
	today := s.now().UTC()
	start := today.AddDate(-searchLookbackYears, 0, 0)

	params := url.Values{}
	params.Set("lang", "EN")
	params.Set("searchType", "SEHK")
	params.Set("searchMethod", "TITLE")
	params.Set("market", "SEHK")
	params.Set("title", companyName)
	params.Set("searchFromDate", start.Format("20060102"))
	params.Set("searchToDate", today.Format("20060102"))
	params.Set("sortDir", "0")
	params.Set("sortByOptions", "DateTime")
	return params
}

func tryParseJSON(body []byte) (interface{}, bool) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, false
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var payload interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// extractFilingsFromJSON walks the payload collecting any object exposing a
// title-like and URL-like key pair under the known key-name synonyms. The
// traversal is a bounded worklist; payload shape is not trusted.
func (s *FilingSearchService) extractFilingsFromJSON(payload interface{}, source string) []models.Filing {
	const maxNodes = 10000

	var filings []models.Filing
	worklist := []interface{}{payload}
	visited := 0
	for len(worklist) > 0 {
		node := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		visited++
		if visited > maxNodes {
			break
		}

		switch typed := node.(type) {
		case map[string]interface{}:
			title := pickString(typed, "title", "docTitle", "headline", "documentTitle")
			docURL := pickString(typed, "url", "docUrl", "fileLink", "documentUrl")
			if title != "" && docURL != "" {
				published := pickString(typed, "publishedDate", "date", "publishDate")
				filings = append(filings, models.Filing{
					Title:         title,
					URL:           normalizeFilingURL(docURL),
					PublishedDate: s.normalizer.ParseFlexibleDate(published),
					Source:        source,
				})
			}
			for _, value := range typed {
				worklist = append(worklist, value)
			}
		case []interface{}:
			worklist = append(worklist, typed...)
		}
	}
	return dedupeFilings(filings)
}

// extractFilingsFromHTML collects anchors pointing at filing documents
func (s *FilingSearchService) extractFilingsFromHTML(body []byte, source string) []models.Filing {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var filings []models.Filing
	document.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		if !isFilingLink(href) {
			return
		}
		title := strings.Join(strings.Fields(anchor.Text()), " ")
		parentText := strings.Join(strings.Fields(anchor.Parent().Text()), " ")
		if title == "" {
			title = parentText
		}
		filings = append(filings, models.Filing{
			Title:         title,
			URL:           normalizeFilingURL(href),
			PublishedDate: s.normalizer.ExtractFirstDate(parentText),
			Source:        source,
		})
	})
	return dedupeFilings(filings)
}

func isFilingLink(href string) bool {
	lowered := strings.ToLower(href)
	return strings.HasSuffix(lowered, ".pdf") || strings.HasSuffix(lowered, ".htm") || strings.HasSuffix(lowered, ".html")
}

// normalizeFilingURL resolves relative document paths against the filing host
func normalizeFilingURL(raw string) string {
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return hkexNewsHost + raw
	}
	return hkexNewsHost + "/" + raw
}

// dedupeFilings removes later duplicates by URL (first-seen metadata wins)
// and sorts the result newest-first; filings without a published date sort
// as oldest.
func dedupeFilings(filings []models.Filing) []models.Filing {
	seen := make(map[string]bool, len(filings))
	unique := make([]models.Filing, 0, len(filings))
	for _, filing := range filings {
		if seen[filing.URL] {
			continue
		}
		seen[filing.URL] = true
		unique = append(unique, filing)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return filingSortTime(unique[i]).After(filingSortTime(unique[j]))
	})
	return unique
}

func filingSortTime(filing models.Filing) time.Time {
	if filing.PublishedDate == nil {
		return time.Time{}
	}
	return *filing.PublishedDate
}
