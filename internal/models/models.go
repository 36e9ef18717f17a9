package models

import (
	"time"

	"gorm.io/gorm"
)

// GuidanceDocument is one piece of approved guidance the assistant may answer from.
type GuidanceDocument struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	Body      string         `gorm:"type:text;not null" json:"body"`
	Keywords  string         `gorm:"size:1000" json:"keywords"` // comma separated
	Source    string         `gorm:"size:255" json:"source"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// FeedbackEvent records one Yes/No (or automatic Yes) on an answer.
type FeedbackEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;index" json:"session_id"`
	ClientKey string    `gorm:"size:64;index" json:"-"`
	Question  string    `gorm:"type:text" json:"question"`
	Answer    string    `gorm:"type:text" json:"answer"`
	Helpful   bool      `json:"helpful"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ReferralStatusOpen     = "open"
	ReferralStatusResolved = "resolved"
)

// Referral is a question escalated to a subject-matter expert.
type Referral struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Reference   string     `gorm:"uniqueIndex;size:32;not null" json:"reference"`
	ClientKey   string     `gorm:"size:64;index" json:"-"`
	Question    string     `gorm:"type:text" json:"question"`
	Answer      string     `gorm:"type:text" json:"answer"`
	Reason      string     `gorm:"type:text" json:"reason"`
	Automatic   bool       `gorm:"default:false" json:"automatic"`
	Status      string     `gorm:"size:20;default:open;index" json:"status"`
	Response    string     `gorm:"type:text" json:"response"`
	NotifiedAt  *time.Time `json:"-"`
	NotifyError string     `gorm:"type:text" json:"-"`
	RetryCount  int        `gorm:"default:0" json:"-"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ReferralDigest is the stored copy of one daily open-referral summary.
type ReferralDigest struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	DigestDate   time.Time  `gorm:"uniqueIndex" json:"digest_date"`
	OpenCount    int        `json:"open_count"`
	CreatedCount int        `json:"created_count"`
	AutoCount    int        `json:"auto_count"`
	HelpfulRate  float64    `json:"helpful_rate"`
	Content      string     `gorm:"type:text" json:"content"`
	NotifiedAt   *time.Time `json:"notified_at"`
	NotifyError  string     `gorm:"type:text" json:"notify_error"`
	CreatedAt    time.Time  `json:"created_at"`
}

// UpsertGuidance inserts documents, replacing any existing document with the
// same title. It returns how many were created and how many updated.
func UpsertGuidance(db *gorm.DB, docs []GuidanceDocument) (created, updated int, err error) {
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, d := range docs {
			var existing GuidanceDocument
			res := tx.Where("title = ?", d.Title).Limit(1).Find(&existing)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				if err := tx.Create(&d).Error; err != nil {
					return err
				}
				created++
				continue
			}
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"body":      d.Body,
				"keywords":  d.Keywords,
				"source":    d.Source,
				"is_active": d.IsActive,
			}).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return created, updated, err
}
