package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

// Calendar provenance tags
const (
	CalendarSourceHKEXNews = "hkex-news"
	CalendarSourceHKEX     = "hkex"
	CalendarSourceSample   = "sample"
)

// namedAdapter pairs an upstream source with its fetch capability. Adapters
// share one function signature and fail independently.
type namedAdapter struct {
	name  string
	fetch func(ctx context.Context) ([]models.IPORecord, error)
}

// CalendarService is the reconciliation engine: it fans out to the source
// adapters, attaches cross-referenced documents, deduplicates overlapping
// records and degrades to the legacy endpoint and then the bundled sample
// dataset. It is the error boundary of record; nothing past an adapter
// failure propagates to callers.
type CalendarService struct {
	listingReport    *ListingReportAdapter
	secondarySite    *SecondarySiteAdapter
	applicationProof *ApplicationProofAdapter
	fallbackCalendar *FallbackCalendarAdapter
	sampleData       *SampleDataService
	normalizer       *NormalizerService
	metrics          *shared.ServiceMetrics
}

// NewCalendarService wires the reconciliation engine from its adapters
func NewCalendarService(
	listingReport *ListingReportAdapter,
	secondarySite *SecondarySiteAdapter,
	applicationProof *ApplicationProofAdapter,
	fallbackCalendar *FallbackCalendarAdapter,
	sampleData *SampleDataService,
	normalizer *NormalizerService,
) *CalendarService {
	return &CalendarService{
		listingReport:    listingReport,
		secondarySite:    secondarySite,
		applicationProof: applicationProof,
		fallbackCalendar: fallbackCalendar,
		sampleData:       sampleData,
		normalizer:       normalizer,
		metrics:          shared.NewServiceMetrics("calendar"),
	}
}

// FetchIPOCalendar runs the full acquisition pipeline. Adapter failures are
// collected as advisory strings in the returned meta; the call itself never
// fails. With useLive false the bundled sample dataset is returned directly.
func (s *CalendarService) FetchIPOCalendar(ctx context.Context, useLive bool) ([]models.IPORecord, models.CalendarMeta) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "CalendarService",
		"method":    "FetchIPOCalendar",
	})

	errors := []string{}
	if useLive {
		adapters := []namedAdapter{
			{name: "HKEX new listing report", fetch: s.listingReport.FetchRecords},
			{name: "Secondary market site", fetch: s.secondarySite.FetchRecords},
			{name: "HKEX application proof", fetch: s.applicationProof.FetchRecords},
		}

		var records []models.IPORecord
		for _, adapter := range adapters {
			started := time.Now()
			fetched, err := adapter.fetch(ctx)
			s.metrics.RecordOperation(adapter.name, err == nil, time.Since(started))
			if err != nil {
				errors = append(errors, fmt.Sprintf("%s fetch failed: %v", adapter.name, err))
				logger.WithError(err).WithField("adapter", adapter.name).Warn("Adapter failed, continuing with remaining sources")
				continue
			}
			records = append(records, fetched...)
		}

		if len(records) > 0 {
			if err := s.attachListingDocuments(ctx, records); err != nil {
				errors = append(errors, fmt.Sprintf("HKEX document cross-reference failed: %v", err))
			}
			records = s.deduplicateRecords(records)
			assignRecordIDs(records)
			logger.WithFields(logrus.Fields{
				"source":       CalendarSourceHKEXNews,
				"record_count": len(records),
				"error_count":  len(errors),
			}).Info("Calendar assembled from primary sources")
			return records, models.CalendarMeta{Source: CalendarSourceHKEXNews, Errors: errors}
		}

		started := time.Now()
		legacy, err := s.fallbackCalendar.FetchRecords(ctx)
		s.metrics.RecordOperation("legacy calendar", err == nil, time.Since(started))
		if err != nil {
			errors = append(errors, fmt.Sprintf("HKEX calendar fetch failed: %v", err))
		} else if len(legacy) == 0 {
			errors = append(errors, "HKEX calendar returned empty data")
		} else {
			legacy = s.deduplicateRecords(legacy)
			assignRecordIDs(legacy)
			logger.WithFields(logrus.Fields{
				"source":       CalendarSourceHKEX,
				"record_count": len(legacy),
			}).Info("Calendar assembled from legacy endpoint")
			return legacy, models.CalendarMeta{Source: CalendarSourceHKEX, Errors: errors}
		}
	}

	sample := s.sampleData.LoadSampleCalendar()
	assignRecordIDs(sample)
	logger.WithFields(logrus.Fields{
		"source":       CalendarSourceSample,
		"record_count": len(sample),
		"error_count":  len(errors),
	}).Info("Calendar assembled from sample dataset")
	return sample, models.CalendarMeta{Source: CalendarSourceSample, Errors: errors}
}

// attachListingDocuments fetches the stock-code-to-document map from the
// listing index page and fills in (never overrides) document links, company
// name and company page URL on matching records.
func (s *CalendarService) attachListingDocuments(ctx context.Context, records []models.IPORecord) error {
	documents, err := s.listingReport.FetchDocumentMap(ctx)
	if err != nil {
		return err
	}
	if len(documents) == 0 {
		return nil
	}

	for i := range records {
		code := records[i].StockCode
		if code == "" {
			continue
		}
		doc, found := documents[code]
		if !found {
			continue
		}
		if records[i].AnnouncementURL == "" {
			records[i].AnnouncementURL = doc.AnnouncementURL
		}
		if records[i].ProspectusURL == "" {
			records[i].ProspectusURL = doc.ProspectusURL
		}
		if records[i].AllotmentURL == "" {
			records[i].AllotmentURL = doc.AllotmentURL
		}
		if records[i].Company == "" && doc.Company != "" {
			records[i].Company = doc.Company
		}
		if records[i].CompanyPageURL == "" {
			switch {
			case doc.ProspectusURL != "":
				records[i].CompanyPageURL = doc.ProspectusURL
			case doc.AnnouncementURL != "":
				records[i].CompanyPageURL = doc.AnnouncementURL
			default:
				records[i].CompanyPageURL = newListingMainURL
			}
		}
	}
	return nil
}

// deduplicateRecords collapses records describing the same offering. The
// identity tuple is (stock code, trade date, bookbuilding start, normalized
// company key, bookbuilding type); first occurrence wins.
func (s *CalendarService) deduplicateRecords(records []models.IPORecord) []models.IPORecord {
	seen := make(map[string]bool, len(records))
	unique := make([]models.IPORecord, 0, len(records))
	for _, record := range records {
		key := s.recordIdentityKey(record)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, record)
	}
	return unique
}

func (s *CalendarService) recordIdentityKey(record models.IPORecord) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		record.StockCode,
		formatDateKey(record.TradeDate),
		formatDateKey(record.BookbuildingStart),
		s.normalizer.NormalizeCompanyKey(record.Company),
		record.BookbuildingType,
	)
}

func formatDateKey(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.Format("2006-01-02")
}

func assignRecordIDs(records []models.IPORecord) {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
	}
}

// MetricsSnapshot exposes per-source fetch counters for diagnostics
func (s *CalendarService) MetricsSnapshot() map[string]shared.OperationStats {
	return s.metrics.Snapshot()
}
