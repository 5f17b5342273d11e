package services

import (
	"github.com/hkipo/ipo-calendar-backend/models"
)

// EventIndexService expands normalized records into a calendar-keyed event
// index. The index is rebuilt from scratch on every call and never persisted.
type EventIndexService struct{}

// NewEventIndexService creates an event index builder
func NewEventIndexService() *EventIndexService {
	return &EventIndexService{}
}

// BuildEventIndex derives the day-to-events mapping. For each record: one
// bookbuilding-type event per calendar day of the closed bookbuilding
// window, then one trade-type event for the trade date. Within a shared day,
// cross-record order follows fetch order.
func (s *EventIndexService) BuildEventIndex(records []models.IPORecord) map[string][]models.CalendarEvent {
	events := make(map[string][]models.CalendarEvent)

	for i := range records {
		record := &records[i]

		bookLabel := record.BookbuildingLabel
		if bookLabel == "" {
			bookLabel = "Bookbuilding"
		}
		bookType := record.BookbuildingType
		if bookType == "" {
			bookType = models.BookbuildingTypeStandard
		}
		tradeLabel := record.TradeLabel
		if tradeLabel == "" {
			tradeLabel = "Trade"
		}

		if record.BookbuildingStart != nil && record.BookbuildingEnd != nil {
			for day := *record.BookbuildingStart; !day.After(*record.BookbuildingEnd); day = day.AddDate(0, 0, 1) {
				key := day.Format("2006-01-02")
				events[key] = append(events[key], models.CalendarEvent{
					Day:    day,
					Type:   bookType,
					Label:  bookLabel,
					Record: record,
				})
			}
		}
		if record.TradeDate != nil {
			key := record.TradeDate.Format("2006-01-02")
			events[key] = append(events[key], models.CalendarEvent{
				Day:    *record.TradeDate,
				Type:   models.EventTypeTrade,
				Label:  tradeLabel,
				Record: record,
			})
		}
	}

	return events
}
