package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const digestLockName = "referral_digest"

// DigestService posts a daily summary of open referrals on working days.
type DigestService struct {
	db       *gorm.DB
	notifier *NotificationService
	holidays *HolidayService
	feedback *FeedbackService
	cfg      config.NotificationConfig
	owner    string
	now      func() time.Time

	cronScheduler *cron.Cron
}

func NewDigestService(db *gorm.DB, notifier *NotificationService, holidays *HolidayService, cfg *config.NotificationConfig) *DigestService {
	host, _ := os.Hostname()
	return &DigestService{
		db:       db,
		notifier: notifier,
		holidays: holidays,
		feedback: NewFeedbackService(db),
		cfg:      *cfg,
		owner:    fmt.Sprintf("%s-%d", host, os.Getpid()),
		now:      time.Now,
	}
}

// cronExpr turns HH:MM into a cron spec, defaulting to 09:00.
func cronExpr(digestTime string) (string, error) {
	hour, minute := "9", "0"
	if digestTime != "" {
		t, err := time.Parse("15:04", digestTime)
		if err != nil {
			return "", fmt.Errorf("invalid digest time %q: %w", digestTime, err)
		}
		hour, minute = fmt.Sprint(t.Hour()), fmt.Sprint(t.Minute())
	}
	return fmt.Sprintf("%s %s * * *", minute, hour), nil
}

func (s *DigestService) StartScheduler() error {
	if s.cfg.DigestTime == "" {
		logger.Info().Msg("[Digest] Disabled")
		return nil
	}
	expr, err := cronExpr(s.cfg.DigestTime)
	if err != nil {
		return err
	}

	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(expr, func() {
		if _, err := s.Run(context.Background()); err != nil {
			logger.Error().Err(err).Msg("[Digest] Run failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	s.cronScheduler.Start()
	logger.Info().Str("at", s.cfg.DigestTime).Str("cron", expr).Str("country", s.cfg.HolidayCountry).Msg("[Digest] Scheduler started")
	return nil
}

func (s *DigestService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// Run builds, stores and sends today's digest. It returns nil without error on
// non-working days and when another instance already holds today's lock.
func (s *DigestService) Run(ctx context.Context) (*models.ReferralDigest, error) {
	now := s.now()
	if !s.holidays.IsWorkday(now, s.cfg.HolidayCountry) {
		logger.Info().Str("date", now.Format("2006-01-02")).Msg("[Digest] Non-working day, skipped")
		return nil, nil
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	claimed, err := models.TryLock(s.db, digestLockName, day.Format("2006-01-02"), s.owner, 23*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("digest lock: %w", err)
	}
	if !claimed {
		logger.Debug().Msg("[Digest] Another instance owns today's digest")
		return nil, nil
	}

	digest, err := s.build(ctx, day, now)
	if err != nil {
		return nil, err
	}

	var existing models.ReferralDigest
	if err := s.db.WithContext(ctx).Where("digest_date = ?", day).First(&existing).Error; err == nil {
		digest.ID = existing.ID
		digest.CreatedAt = existing.CreatedAt
	}
	if err := s.db.WithContext(ctx).Save(digest).Error; err != nil {
		return nil, fmt.Errorf("save digest: %w", err)
	}

	if err := s.notifier.SendText(ctx, "Open referral digest", digest.Content); err != nil {
		digest.NotifyError = err.Error()
		s.db.Save(digest)
		return digest, fmt.Errorf("send digest: %w", err)
	}
	sent := s.now()
	digest.NotifiedAt = &sent
	digest.NotifyError = ""
	s.db.Save(digest)

	logger.Info().Uint("id", digest.ID).Int("open", digest.OpenCount).Msg("[Digest] Sent")
	return digest, nil
}

func (s *DigestService) build(ctx context.Context, day, now time.Time) (*models.ReferralDigest, error) {
	since := now.Add(-24 * time.Hour)

	var open, created, auto int64
	if err := s.db.WithContext(ctx).Model(&models.Referral{}).Where("status = ?", models.ReferralStatusOpen).Count(&open).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Referral{}).Where("created_at >= ?", since).Count(&created).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Referral{}).Where("created_at >= ? AND automatic = ?", since, true).Count(&auto).Error; err != nil {
		return nil, err
	}

	rate, feedbackTotal, err := s.feedback.HelpfulRate(ctx, since)
	if err != nil {
		return nil, err
	}

	var oldest []models.Referral
	s.db.WithContext(ctx).
		Where("status = ?", models.ReferralStatusOpen).
		Order("created_at ASC").
		Limit(5).
		Find(&oldest)

	var b strings.Builder
	fmt.Fprintf(&b, "Open referrals: %d\n", open)
	fmt.Fprintf(&b, "New in the last 24h: %d (%d automatic)\n", created, auto)
	if feedbackTotal > 0 {
		fmt.Fprintf(&b, "Answers rated helpful: %.0f%% of %d\n", rate*100, feedbackTotal)
	}
	if len(oldest) > 0 {
		b.WriteString("\nOldest open:\n")
		for _, r := range oldest {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Reference, r.CreatedAt.Format("Jan 2"), truncate(r.Question, 80))
		}
	}

	return &models.ReferralDigest{
		DigestDate:   day,
		OpenCount:    int(open),
		CreatedCount: int(created),
		AutoCount:    int(auto),
		HelpfulRate:  rate,
		Content:      strings.TrimRight(b.String(), "\n"),
	}, nil
}
