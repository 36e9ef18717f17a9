package services

import (
	"context"
	"sync"
	"time"

	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/pkg/logger"
	"gorm.io/gorm"
)

const (
	MaxRetryCount  = 3
	RetryInterval  = 5 * time.Minute
	RetryBatchSize = 10
)

// RetryService re-sends referral notifications whose delivery failed.
type RetryService struct {
	db       *gorm.DB
	referral *ReferralService

	stop chan struct{}
	once sync.Once
}

func NewRetryService(db *gorm.DB, referral *ReferralService) *RetryService {
	return &RetryService{db: db, referral: referral, stop: make(chan struct{})}
}

func (s *RetryService) Start() {
	ticker := time.NewTicker(RetryInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ProcessFailedNotifications(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
	logger.Info().Dur("interval", RetryInterval).Int("max_retries", MaxRetryCount).Msg("[Retry] Scheduler started")
}

func (s *RetryService) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// ProcessFailedNotifications returns how many notifications were delivered.
func (s *RetryService) ProcessFailedNotifications(ctx context.Context) int {
	var failed []models.Referral
	err := s.db.WithContext(ctx).
		Where("notified_at IS NULL AND notify_error <> '' AND retry_count < ?", MaxRetryCount).
		Order("created_at ASC").
		Limit(RetryBatchSize).
		Find(&failed).Error
	if err != nil {
		logger.Error().Err(err).Msg("[Retry] Failed to fetch undelivered referrals")
		return 0
	}

	delivered := 0
	for _, r := range failed {
		task := &ReferralTask{ReferralID: r.ID, Reference: r.Reference, Automatic: r.Automatic}
		if err := s.referral.ProcessNotifyTask(ctx, task); err != nil {
			logger.Warn().Err(err).Int("attempt", r.RetryCount+1).Msg("[Retry] Notification still failing")
			continue
		}
		delivered++
	}
	if len(failed) > 0 {
		logger.Info().Int("pending", len(failed)).Int("delivered", delivered).Msg("[Retry] Pass complete")
	}
	return delivered
}
