package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

var docGroupFilePattern = regexp.MustCompile(`^(?:file|url)(\d+)$`)

// applicationStatusLabels maps the coded status letter published in the
// application-proof feeds to a display label. Unknown codes pass through
// verbatim; a missing code becomes "Unknown".
var applicationStatusLabels = map[string]string{
	"A": "Active",
	"I": "Inactive",
	"L": "Listed",
	"R": "Returned",
}

// ApplicationProofAdapter fetches the per-board application-proof JSON feeds
// and converts posted applications into calendar records with their attached
// document groups.
type ApplicationProofAdapter struct {
	httpFactory *shared.HTTPClientFactory
	rateLimiter *shared.HTTPRequestRateLimiter
	normalizer  *NormalizerService
	feeds       []applicationProofFeed
}

// NewApplicationProofAdapter creates an application-proof adapter
func NewApplicationProofAdapter(httpFactory *shared.HTTPClientFactory, rateLimiter *shared.HTTPRequestRateLimiter, normalizer *NormalizerService) *ApplicationProofAdapter {
	return &ApplicationProofAdapter{
		httpFactory: httpFactory,
		rateLimiter: rateLimiter,
		normalizer:  normalizer,
		feeds:       applicationProofFeeds,
	}
}

// FetchRecords fetches one JSON feed per board. Records without an applicant
// name or a postable date are dropped; a malformed entry is skipped without
// discarding the rest of the feed.
func (a *ApplicationProofAdapter) FetchRecords(ctx context.Context) ([]models.IPORecord, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "ApplicationProofAdapter",
		"method":    "FetchRecords",
	})

	var records []models.IPORecord
	for _, feed := range a.feeds {
		a.rateLimiter.EnforceRateLimit()
		body, err := a.httpFactory.FetchURL(ctx, feed.URL)
		if err != nil {
			return nil, shared.NewNetworkError("application-proof", feed.Board+" feed fetch", err)
		}

		var payload interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, shared.NewParsingError("application-proof", feed.Board+" feed parse", err)
		}

		entries := findEntryList(payload)
		if entries == nil {
			logger.WithField("board", feed.Board).Warn("Application proof feed contained no entry list")
			continue
		}

		boardCount := 0
		for _, rawEntry := range entries {
			entry, ok := rawEntry.(map[string]interface{})
			if !ok {
				continue
			}
			record, ok := a.buildRecord(entry, feed.Board)
			if !ok {
				continue
			}
			records = append(records, record)
			boardCount++
		}

		logger.WithFields(logrus.Fields{
			"board":        feed.Board,
			"record_count": boardCount,
		}).Info("Application proof feed processed")
	}
	return records, nil
}

// buildRecord converts one feed entry into a calendar record. Returns false
// when the entry lacks an applicant name or a parseable posting date.
func (a *ApplicationProofAdapter) buildRecord(entry map[string]interface{}, board string) (models.IPORecord, bool) {
	applicant := strings.TrimSpace(pickString(entry, "applicant", "applicantName", "companyName", "a", "name"))
	if applicant == "" {
		return models.IPORecord{}, false
	}

	dateText := pickString(entry, "dateOfFirstPosting", "postingDate", "date", "d")
	postingDate := a.normalizer.ParseFlexibleDate(dateText)
	if postingDate == nil {
		postingDate = a.normalizer.ParseNumericDate(dateText)
	}
	if postingDate == nil {
		return models.IPORecord{}, false
	}

	statusCode := strings.TrimSpace(pickString(entry, "status", "s"))
	status := "Unknown"
	if statusCode != "" {
		if label, known := applicationStatusLabels[strings.ToUpper(statusCode)]; known {
			status = label
		} else {
			status = statusCode
		}
	}

	record := models.IPORecord{
		Company:              applicant,
		StockCode:            a.normalizer.NormalizeStockCode(pickString(entry, "stockCode", "code")),
		ApplicationStatus:    status,
		ApplicationBoard:     board,
		ApplicationProofDate: postingDate,
		BookbuildingStart:    postingDate,
		BookbuildingEnd:      postingDate,
		BookbuildingLabel:    "Application proof",
		BookbuildingType:     models.BookbuildingTypeApplication,
		TradeLabel:           "Listing date",
		CompanyPageURL:       applicationProofIndexURL,
		Source:               "application-proof",
	}
	record.ApplicationDocuments = a.extractDocuments(entry, record)
	return record, true
}

// extractDocuments walks the entry's nested document groups. Each group
// yields zero or more document entries formed by pairing numbered URL-suffix
// keys with their matching title-suffix keys; a warning-statement path
// becomes its own entry.
func (a *ApplicationProofAdapter) extractDocuments(entry map[string]interface{}, record models.IPORecord) []models.Filing {
	groups := pickList(entry, "ls", "docGroups", "documents", "docs")
	if groups == nil {
		return nil
	}

	var filings []models.Filing
	for _, rawGroup := range groups {
		group, ok := rawGroup.(map[string]interface{})
		if !ok {
			continue
		}
		filings = append(filings, a.extractGroupDocuments(group, record)...)
	}
	return filings
}

func (a *ApplicationProofAdapter) extractGroupDocuments(group map[string]interface{}, record models.IPORecord) []models.Filing {
	var filings []models.Filing

	keys := make([]string, 0, len(group))
	for key := range group {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		match := docGroupFilePattern.FindStringSubmatch(key)
		if match == nil {
			continue
		}
		path, ok := group[key].(string)
		if !ok || strings.TrimSpace(path) == "" {
			continue
		}
		title := pickString(group, "title"+match[1], "t"+match[1])
		if title == "" {
			title = fmt.Sprintf("%s document %s", record.Company, match[1])
		}
		filings = append(filings, models.Filing{
			Title:         title,
			URL:           resolveAgainst(hkexNewsHost, path),
			PublishedDate: record.ApplicationProofDate,
			Source:        models.FilingSourceApplicationProof,
		})
	}

	if warning := pickString(group, "warningStatement", "ws"); strings.TrimSpace(warning) != "" {
		filings = append(filings, models.Filing{
			Title:         "Warning statement",
			URL:           resolveAgainst(hkexNewsHost, warning),
			PublishedDate: record.ApplicationProofDate,
			Source:        models.FilingSourceApplicationProof,
		})
	}
	return filings
}

// findEntryList locates the first array-of-objects in the decoded feed. The
// feed wrapping differs between boards and changes without notice, so the
// walk is generic with a node budget.
func findEntryList(payload interface{}) []interface{} {
	const maxNodes = 10000

	worklist := []interface{}{payload}
	visited := 0
	for len(worklist) > 0 {
		node := worklist[0]
		worklist = worklist[1:]
		visited++
		if visited > maxNodes {
			return nil
		}

		switch typed := node.(type) {
		case []interface{}:
			if len(typed) > 0 {
				if _, ok := typed[0].(map[string]interface{}); ok {
					return typed
				}
			}
			for _, item := range typed {
				worklist = append(worklist, item)
			}
		case map[string]interface{}:
			for _, value := range typed {
				worklist = append(worklist, value)
			}
		}
	}
	return nil
}

// pickString returns the first non-empty string value among the candidate
// keys, tolerating numeric values by formatting them.
func pickString(node map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		value, exists := node[key]
		if !exists || value == nil {
			continue
		}
		switch typed := value.(type) {
		case string:
			if typed != "" {
				return typed
			}
		case float64:
			return strings.TrimSuffix(fmt.Sprintf("%v", typed), ".0")
		}
	}
	return ""
}

// pickList returns the first array value among the candidate keys
func pickList(node map[string]interface{}, keys ...string) []interface{} {
	for _, key := range keys {
		if value, ok := node[key].([]interface{}); ok {
			return value
		}
	}
	return nil
}
