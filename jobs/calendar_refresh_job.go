package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/services"
)

type CalendarRefreshJob struct {
	CalendarService *services.CachedCalendarService
	Interval        time.Duration
}

func NewCalendarRefreshJob(calendarService *services.CachedCalendarService, interval time.Duration) *CalendarRefreshJob {
	return &CalendarRefreshJob{
		CalendarService: calendarService,
		Interval:        interval,
	}
}

func (j *CalendarRefreshJob) Start() {
	logrus.Infof("Starting Calendar Refresh Job (runs every %v)...", j.Interval)
	ticker := time.NewTicker(j.Interval)

	go func() {
		// Run immediately on start
		j.Run()

		for range ticker.C {
			j.Run()
		}
	}()
}

func (j *CalendarRefreshJob) Run() {
	startTime := time.Now()
	logrus.Info("Running Calendar Refresh Job...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	j.CalendarService.InvalidateCalendarCache()
	records, meta := j.CalendarService.GetIPOCalendar(ctx, true)

	if len(meta.Errors) > 0 {
		logrus.Warnf("Calendar Refresh Job: %d source advisories during refresh", len(meta.Errors))
	}

	duration := time.Since(startTime)
	logrus.Infof("Calendar Refresh Job completed: %d records from source %q (took %v)",
		len(records), meta.Source, duration)
}
