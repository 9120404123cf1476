package models

import (
	"fmt"

	"github.com/dailydues/backend/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite allows one writer; serializing avoids SQLITE_BUSY on concurrent approvals
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	DB = db
	return nil
}

// AllModels lists every table the service owns, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&Realm{},
		&UserRealm{},
		&Commitment{},
		&UserCommitment{},
		&DailyLog{},
		&Holiday{},
		&Challenge{},
		&ChallengeMember{},
		&ChallengeVote{},
		&SystemLog{},
		&SchedulerLock{},
	}
}

func AutoMigrate() error {
	return DB.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates the default realm on an empty database.
func SeedDefaultData() error {
	var count int64
	if err := DB.Model(&Realm{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return DB.Create(&Realm{
		Name:        "Default",
		Slug:        "default",
		Description: "Default realm",
	}).Error
}
