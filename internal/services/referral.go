package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AutoReferralPrefix marks referrals raised by the client without user input.
const AutoReferralPrefix = "Auto-referral:"

var (
	ErrReferralNotFound = errors.New("referral not found")
	ErrReferralResolved = errors.New("referral already resolved")
	ErrEmptyResponse    = errors.New("response is empty")
)

type CreateReferralInput struct {
	Reason    string
	Question  string
	Answer    string
	ClientKey string
}

type ReferralService struct {
	db       *gorm.DB
	queue    TaskQueue
	notifier *NotificationService
}

func NewReferralService(db *gorm.DB, queue TaskQueue, notifier *NotificationService) *ReferralService {
	return &ReferralService{db: db, queue: queue, notifier: notifier}
}

func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "REF-" + strings.ToUpper(id[:8])
}

// Create stores the referral and queues the expert notification. A queue
// failure is logged; the referral itself is already saved.
func (s *ReferralService) Create(ctx context.Context, in CreateReferralInput) (*models.Referral, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "No reason given."
	}

	r := &models.Referral{
		Reference: newReference(),
		ClientKey: in.ClientKey,
		Question:  strings.TrimSpace(in.Question),
		Answer:    strings.TrimSpace(in.Answer),
		Reason:    reason,
		Automatic: strings.HasPrefix(reason, AutoReferralPrefix),
		Status:    models.ReferralStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("save referral: %w", err)
	}

	logger.Info().
		Str("reference", r.Reference).
		Bool("automatic", r.Automatic).
		Msg("referral created")

	if s.queue != nil {
		task := &ReferralTask{ReferralID: r.ID, Reference: r.Reference, Automatic: r.Automatic}
		if err := s.queue.Enqueue(task); err != nil {
			logger.Error().Err(err).Str("reference", r.Reference).Msg("failed to enqueue referral notification")
		}
	}
	return r, nil
}

// ReceiptMessage is the confirmation shown to the user.
func ReceiptMessage(r *models.Referral) string {
	return fmt.Sprintf("Referral %s submitted to a subject-matter expert.", r.Reference)
}

// ListByClient returns the newest referrals raised from one anonymous client.
func (s *ReferralService) ListByClient(ctx context.Context, clientKey string, limit int) ([]models.Referral, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Referral
	err := s.db.WithContext(ctx).
		Where("client_key = ?", clientKey).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *ReferralService) Get(ctx context.Context, id uint) (*models.Referral, error) {
	var r models.Referral
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Resolve records the expert's answer. Resolving twice is an error.
func (s *ReferralService) Resolve(ctx context.Context, id uint, response string) (*models.Referral, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, ErrEmptyResponse
	}

	// The status condition makes the first of two concurrent resolves win.
	res := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("id = ? AND status <> ?", id, models.ReferralStatusResolved).
		Updates(map[string]interface{}{
			"status":      models.ReferralStatusResolved,
			"response":    response,
			"resolved_at": time.Now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("resolve referral: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrReferralResolved
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("reference", r.Reference).Msg("referral resolved")
	return r, nil
}

// ProcessNotifyTask is the queue processor for TaskTypeReferralNotify.
func (s *ReferralService) ProcessNotifyTask(ctx context.Context, task *ReferralTask) error {
	r, err := s.Get(ctx, task.ReferralID)
	if err != nil {
		return fmt.Errorf("load referral %s: %w", task.Reference, err)
	}
	if r.NotifiedAt != nil {
		return nil
	}

	if err := s.notifier.NotifyReferral(ctx, r); err != nil {
		s.db.Model(r).Updates(map[string]interface{}{
			"notify_error": err.Error(),
			"retry_count":  gorm.Expr("retry_count + 1"),
		})
		return fmt.Errorf("notify referral %s: %w", r.Reference, err)
	}

	now := time.Now()
	return s.db.Model(r).Updates(map[string]interface{}{
		"notified_at":  &now,
		"notify_error": "",
	}).Error
}
