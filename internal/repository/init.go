package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/internal/models"
)

type Repositories struct {
	DomainRepository         DomainRepository
	DNSRecordRepository      DNSRecordRepository
	PollingSessionRepository PollingSessionRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository:         NewDomainRepository(db),
		DNSRecordRepository:      NewDNSRecordRepository(db),
		PollingSessionRepository: NewPollingSessionRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = AutoMigrate(db)

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Domain{},
		&models.DNSRecord{},
		&models.PollingSession{},
		&models.PollingSessionRecord{},
	)
}
