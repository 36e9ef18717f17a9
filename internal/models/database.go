package models

import (
	"fmt"

	"github.com/casedesk/smechat/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	db, err := Open(cfg, logger.Warn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects without touching the package-level handle; tests use it for
// isolated in-memory databases.
func Open(cfg *config.DatabaseConfig, level logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

func AutoMigrate() error {
	return Migrate(DB)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&GuidanceDocument{},
		&FeedbackEvent{},
		&Referral{},
		&ReferralDigest{},
		&SchedulerLock{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData loads starter guidance when the library is empty.
func SeedDefaultData() error {
	return SeedGuidance(DB)
}

func SeedGuidance(db *gorm.DB) error {
	var count int64
	if err := db.Model(&GuidanceDocument{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	docs := []GuidanceDocument{
		{
			Title:    "Travel expense reimbursement",
			Keywords: "travel,expense,reimbursement,taxi,hotel,flight,receipt",
			Body: "Business travel expenses are reimbursed when submitted with itemised receipts " +
				"within 30 days of the trip. Taxi and ride-share fares are reimbursable for trips " +
				"to and from airports, client sites and hotels. Hotel stays are capped at the " +
				"published city rate; flights must be economy class unless the flight exceeds six hours.",
			Source:   "Finance Policy FP-12",
			IsActive: true,
		},
		{
			Title:    "Purchase approvals",
			Keywords: "purchase,approval,approvals,procurement,vendor,invoice,spend",
			Body: "Purchases up to 5,000 require approval from the budget owner. Purchases above " +
				"5,000 require two approvals: the budget owner and the finance controller. New " +
				"vendors must be registered with procurement before an invoice can be paid.",
			Source:   "Procurement Standard PS-3",
			IsActive: true,
		},
		{
			Title:    "Remote work equipment",
			Keywords: "remote,home,equipment,laptop,monitor,stipend,office",
			Body: "Employees approved for remote work receive a laptop and one external monitor. " +
				"A one-time home office stipend of 300 is available and must be claimed within " +
				"90 days of the remote work approval.",
			Source:   "HR Handbook 4.2",
			IsActive: true,
		},
	}
	return db.Create(&docs).Error
}
