package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/casedesk/smechat/internal/models"
	"gorm.io/gorm"
)

type FeedbackInput struct {
	SessionID string
	ClientKey string
	Question  string
	Answer    string
	Helpful   bool
}

type FeedbackService struct {
	db *gorm.DB
}

func NewFeedbackService(db *gorm.DB) *FeedbackService {
	return &FeedbackService{db: db}
}

func (s *FeedbackService) Record(ctx context.Context, in FeedbackInput) (*models.FeedbackEvent, error) {
	ev := &models.FeedbackEvent{
		SessionID: strings.TrimSpace(in.SessionID),
		ClientKey: in.ClientKey,
		Question:  strings.TrimSpace(in.Question),
		Answer:    in.Answer,
		Helpful:   in.Helpful,
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	return ev, nil
}

// HelpfulRate is the share of helpful feedback since the given time, 0 to 1.
func (s *FeedbackService) HelpfulRate(ctx context.Context, since time.Time) (float64, int64, error) {
	var total, helpful int64
	q := s.db.WithContext(ctx).Model(&models.FeedbackEvent{}).Where("created_at >= ?", since)
	if err := q.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.FeedbackEvent{}).
		Where("created_at >= ? AND helpful = ?", since, true).
		Count(&helpful).Error; err != nil {
		return 0, 0, err
	}
	return float64(helpful) / float64(total), total, nil
}
