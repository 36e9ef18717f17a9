package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// SchedulerLock keeps a scheduled job from running on more than one instance
// for the same key.
type SchedulerLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LockName  string    `gorm:"uniqueIndex:idx_lock_name_key;size:100;not null" json:"lock_name"`
	LockKey   string    `gorm:"uniqueIndex:idx_lock_name_key;size:100;not null" json:"lock_key"`
	LockedBy  string    `gorm:"size:100" json:"locked_by"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }

// TryLock claims name/key for owner until ttl elapses. Expired locks are taken
// over; a live lock held by someone else returns false.
func TryLock(db *gorm.DB, name, key, owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	claimed := false

	err := db.Transaction(func(tx *gorm.DB) error {
		var lock SchedulerLock
		err := tx.Where("lock_name = ? AND lock_key = ?", name, key).First(&lock).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			lock = SchedulerLock{LockName: name, LockKey: key, LockedBy: owner, LockedAt: now, ExpiresAt: now.Add(ttl)}
			if err := tx.Create(&lock).Error; err != nil {
				return err
			}
			claimed = true
			return nil
		case err != nil:
			return err
		}

		if lock.ExpiresAt.After(now) && lock.LockedBy != owner {
			return nil
		}
		lock.LockedBy = owner
		lock.LockedAt = now
		lock.ExpiresAt = now.Add(ttl)
		if err := tx.Save(&lock).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}
