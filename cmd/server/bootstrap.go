package main

import (
	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/internal/services"
	"github.com/casedesk/smechat/pkg/logger"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	cfg           *config.Config
	answers       *services.AnswerService
	feedback      *services.FeedbackService
	referrals     *services.ReferralService
	digest        *services.DigestService
	retry         *services.RetryService
	taskQueue     services.TaskQueue
	worker        *services.Worker
	notifications *services.NotificationService
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Infof("Database ready (%s)", cfg.Database.Driver)

	// Seed sample guidance on an empty database
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()
	notifications := services.NewNotificationService(&cfg.Notification, nil)
	if !notifications.Enabled() {
		logger.Warn().Msg("No notification webhook configured, experts will not be alerted")
	}

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)
	referrals := services.NewReferralService(db, taskQueue, notifications)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(referrals.ProcessNotifyTask)
	}

	// Start async worker only when the queue really is Redis-backed
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(referrals.ProcessNotifyTask)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start worker")
				worker = nil
			}
		}
	}

	// Retry referral notifications that failed to deliver
	retry := services.NewRetryService(db, referrals)
	retry.Start()

	// Daily open-referral digest
	holidays := services.NewHolidayService()
	if !holidays.Supports(cfg.Notification.HolidayCountry) {
		logger.Warnf("No holiday calendar for %q, using Monday to Friday", cfg.Notification.HolidayCountry)
	}
	digest := services.NewDigestService(db, notifications, holidays, &cfg.Notification)
	if notifications.Enabled() {
		if err := digest.StartScheduler(); err != nil {
			logger.Error().Err(err).Msg("Failed to start digest scheduler")
		}
	}

	answers := services.NewAnswerService(db, &cfg.Assistant, &cfg.LLM, services.NewLLMClient())
	logger.Info().Str("backend", answers.BackendName()).Int("providers", len(cfg.LLM.Providers)).Msg("Answer service ready")

	return &appServices{
		cfg:           cfg,
		answers:       answers,
		feedback:      services.NewFeedbackService(db),
		referrals:     referrals,
		digest:        digest,
		retry:         retry,
		taskQueue:     taskQueue,
		worker:        worker,
		notifications: notifications,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.digest.StopScheduler()
	s.retry.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
