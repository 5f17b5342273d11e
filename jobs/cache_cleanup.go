package jobs

import (
	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/services"
)

type CacheCleanupJob struct {
	CacheService *services.CacheService
}

func NewCacheCleanupJob(cacheService *services.CacheService) *CacheCleanupJob {
	return &CacheCleanupJob{CacheService: cacheService}
}

func (j *CacheCleanupJob) Run() {
	logrus.Info("Starting Cache Cleanup Job")
	removed := j.CacheService.CleanupExpiredNow()
	logrus.Infof("Cache Cleanup Job completed: removed %d expired entries", removed)
}
