package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/models"
)

const sampleCalendarFile = "sample_ipo_calendar.json"

// sampleCalendarItem is the on-disk shape of one bundled fixture record
type sampleCalendarItem struct {
	Company              string   `json:"company"`
	StockCode            string   `json:"stock_code"`
	Industry             string   `json:"industry"`
	BookbuildingStart    string   `json:"bookbuilding_start"`
	BookbuildingEnd      string   `json:"bookbuilding_end"`
	BookbuildingLabel    string   `json:"bookbuilding_label"`
	BookbuildingType     string   `json:"bookbuilding_type"`
	TradeDate            string   `json:"trade_date"`
	TradeLabel           string   `json:"trade_label"`
	FundsRaisedHKD       *float64 `json:"funds_raised_hkd"`
	SubscriptionPriceHKD *float64 `json:"subscription_price_hkd"`
	CompanyPageURL       string   `json:"company_page_url"`
}

// SampleDataService loads the bundled sample calendar fixture used when all
// live sources fail. The fixture's dates are shifted forward by whole months
// so stale data still reads as current.
type SampleDataService struct {
	dataDir    string
	normalizer *NormalizerService
	now        func() time.Time
}

// NewSampleDataService creates a sample data loader rooted at dataDir
func NewSampleDataService(dataDir string, normalizer *NormalizerService) *SampleDataService {
	return &SampleDataService{
		dataDir:    dataDir,
		normalizer: normalizer,
		now:        time.Now,
	}
}

// LoadSampleCalendar reads the fixture fresh from disk. A missing or
// unreadable file yields an empty list, never an error.
func (s *SampleDataService) LoadSampleCalendar() []models.IPORecord {
	path := filepath.Join(s.dataDir, sampleCalendarFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "SampleDataService",
			"path":      path,
		}).WithError(err).Warn("Sample calendar fixture not readable")
		return nil
	}

	var items []sampleCalendarItem
	if err := json.Unmarshal(raw, &items); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "SampleDataService",
			"path":      path,
		}).WithError(err).Warn("Sample calendar fixture not parseable")
		return nil
	}

	records := make([]models.IPORecord, 0, len(items))
	for _, item := range items {
		bookType := item.BookbuildingType
		if bookType == "" {
			bookType = models.BookbuildingTypeStandard
		}
		records = append(records, models.IPORecord{
			Company:              item.Company,
			StockCode:            s.normalizer.NormalizeStockCode(item.StockCode),
			Industry:             item.Industry,
			BookbuildingStart:    s.normalizer.ParseFlexibleDate(item.BookbuildingStart),
			BookbuildingEnd:      s.normalizer.ParseFlexibleDate(item.BookbuildingEnd),
			BookbuildingLabel:    item.BookbuildingLabel,
			BookbuildingType:     bookType,
			TradeDate:            s.normalizer.ParseFlexibleDate(item.TradeDate),
			TradeLabel:           item.TradeLabel,
			FundsRaisedHKD:       item.FundsRaisedHKD,
			SubscriptionPriceHKD: item.SubscriptionPriceHKD,
			CompanyPageURL:       item.CompanyPageURL,
			Source:               "sample",
		})
	}

	return s.ShiftToRecent(records)
}

// ShiftToRecent shifts every date field forward by the same number of whole
// months when the fixture's most recent date is more than 60 days old.
// Day-of-month is preserved, clamped to the target month's last valid day.
func (s *SampleDataService) ShiftToRecent(records []models.IPORecord) []models.IPORecord {
	if len(records) == 0 {
		return records
	}

	var earliest, latest *time.Time
	for _, record := range records {
		for _, value := range []*time.Time{record.BookbuildingStart, record.BookbuildingEnd, record.TradeDate} {
			if value == nil {
				continue
			}
			if earliest == nil || value.Before(*earliest) {
				earliest = value
			}
			if latest == nil || value.After(*latest) {
				latest = value
			}
		}
	}
	if latest == nil {
		return records
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	if !latest.Before(today.AddDate(0, 0, -60)) {
		return records
	}

	deltaMonths := monthIndex(today) - monthIndex(*earliest)
	if deltaMonths == 0 {
		return records
	}

	shifted := make([]models.IPORecord, len(records))
	for i, record := range records {
		record.BookbuildingStart = addMonthsClamped(record.BookbuildingStart, deltaMonths)
		record.BookbuildingEnd = addMonthsClamped(record.BookbuildingEnd, deltaMonths)
		record.TradeDate = addMonthsClamped(record.TradeDate, deltaMonths)
		shifted[i] = record
	}
	return shifted
}

func monthIndex(value time.Time) int {
	return value.Year()*12 + int(value.Month())
}

// addMonthsClamped adds whole months preserving day-of-month, clamping to
// the target month's last valid day. time.AddDate would overflow Jan 31 + 1
// month into March, so the clamp is explicit.
func addMonthsClamped(value *time.Time, months int) *time.Time {
	if value == nil {
		return nil
	}
	yearOffset := (int(value.Month()) - 1 + months) / 12
	monthNumber := (int(value.Month()) - 1 + months) % 12
	if monthNumber < 0 {
		monthNumber += 12
		yearOffset--
	}
	year := value.Year() + yearOffset
	month := time.Month(monthNumber + 1)

	day := value.Day()
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	shifted := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &shifted
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
