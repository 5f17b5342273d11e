package services

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkipo/ipo-calendar-backend/models"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

func newTestCalendarService(t *testing.T, dataDir string) *CalendarService {
	t.Helper()

	normalizer := NewNormalizerService()
	httpFactory := shared.NewHTTPClientFactory(2 * time.Second)
	rateLimiter := shared.NewHTTPRequestRateLimiter(0)

	// A started-then-closed server yields a connection-refused URL, so every
	// live adapter fails deterministically without touching the network.
	deadServer := httptest.NewServer(nil)
	deadURL := deadServer.URL
	deadServer.Close()

	listingReport := &ListingReportAdapter{
		httpFactory: httpFactory,
		rateLimiter: rateLimiter,
		normalizer:  normalizer,
		indexURL:    deadURL,
	}
	secondarySite := &SecondarySiteAdapter{
		httpFactory: httpFactory,
		rateLimiter: rateLimiter,
		normalizer:  normalizer,
		listURL:     deadURL,
	}
	applicationProof := &ApplicationProofAdapter{
		httpFactory: httpFactory,
		rateLimiter: rateLimiter,
		normalizer:  normalizer,
		feeds:       []applicationProofFeed{{Board: "Main Board", URL: deadURL}},
	}
	fallbackCalendar := &FallbackCalendarAdapter{
		httpFactory:  httpFactory,
		rateLimiter:  rateLimiter,
		normalizer:   normalizer,
		calendarURLs: []string{deadURL},
	}
	sampleData := NewSampleDataService(dataDir, normalizer)

	return NewCalendarService(listingReport, secondarySite, applicationProof, fallbackCalendar, sampleData, normalizer)
}

func TestFetchIPOCalendarSampleWhenLiveDisabled(t *testing.T) {
	dir := t.TempDir()
	fixture := `[
		{
			"company": "Pearl Delta Green Energy Limited",
			"stock_code": "2407",
			"bookbuilding_start": "2025-04-28",
			"bookbuilding_end": "2025-05-02",
			"trade_date": "2025-05-09"
		}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample_ipo_calendar.json"), []byte(fixture), 0o644))

	service := newTestCalendarService(t, dir)
	records, meta := service.FetchIPOCalendar(context.Background(), false)

	assert.Equal(t, CalendarSourceSample, meta.Source)
	assert.Empty(t, meta.Errors)
	require.Len(t, records, 1)
	assert.Equal(t, "Pearl Delta Green Energy Limited", records[0].Company)
	assert.NotEmpty(t, records[0].ID)
}

func TestFetchIPOCalendarDegradesToSampleWithAdvisories(t *testing.T) {
	dir := t.TempDir()
	fixture := `[
		{
			"company": "Aurora Strait Logistics Holdings",
			"stock_code": "8501",
			"bookbuilding_start": "2025-05-12",
			"bookbuilding_end": "2025-05-15",
			"trade_date": "2025-05-22"
		}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample_ipo_calendar.json"), []byte(fixture), 0o644))

	service := newTestCalendarService(t, dir)
	records, meta := service.FetchIPOCalendar(context.Background(), true)

	assert.Equal(t, CalendarSourceSample, meta.Source)
	require.Len(t, records, 1)

	// One advisory per failed primary adapter plus one for the legacy path.
	assert.Len(t, meta.Errors, 4)
	assert.Contains(t, meta.Errors[0], "HKEX new listing report fetch failed")
	assert.Contains(t, meta.Errors[1], "Secondary market site fetch failed")
	assert.Contains(t, meta.Errors[2], "HKEX application proof fetch failed")
	assert.Contains(t, meta.Errors[3], "HKEX calendar fetch failed")
}

func TestDeduplicateRecordsFirstWins(t *testing.T) {
	service := newTestCalendarService(t, t.TempDir())

	trade := dateAt(2024, time.June, 13)
	start := dateAt(2024, time.June, 3)

	records := []models.IPORecord{
		{
			Company:           "Golden Harbour Robotics Limited",
			StockCode:         "02688",
			TradeDate:         trade,
			BookbuildingStart: start,
			BookbuildingType:  models.BookbuildingTypeStandard,
			Source:            "listing-report",
		},
		{
			// Same offering under cosmetic name variation collapses away.
			Company:           "GOLDEN HARBOUR ROBOTICS LIMITED",
			StockCode:         "02688",
			TradeDate:         trade,
			BookbuildingStart: start,
			BookbuildingType:  models.BookbuildingTypeStandard,
			Source:            "secondary-site",
		},
		{
			// Different bookbuilding type is a distinct record.
			Company:           "Golden Harbour Robotics Limited",
			StockCode:         "02688",
			TradeDate:         trade,
			BookbuildingStart: start,
			BookbuildingType:  models.BookbuildingTypeApplication,
			Source:            "application-proof",
		},
	}

	unique := service.deduplicateRecords(records)
	require.Len(t, unique, 2)
	assert.Equal(t, "listing-report", unique[0].Source)
	assert.Equal(t, "application-proof", unique[1].Source)
}

func TestRecordIdentityKeyDistinguishesDates(t *testing.T) {
	service := newTestCalendarService(t, t.TempDir())

	base := models.IPORecord{
		Company:          "Lumenshine Biopharma Holdings",
		StockCode:        "09926",
		BookbuildingType: models.BookbuildingTypeStandard,
	}
	withTrade := base
	withTrade.TradeDate = dateAt(2024, time.June, 13)

	assert.NotEqual(t, service.recordIdentityKey(base), service.recordIdentityKey(withTrade))
}

func TestAssignRecordIDsPreservesExisting(t *testing.T) {
	records := []models.IPORecord{
		{ID: "existing-id"},
		{},
	}
	assignRecordIDs(records)

	assert.Equal(t, "existing-id", records[0].ID)
	assert.NotEmpty(t, records[1].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}
