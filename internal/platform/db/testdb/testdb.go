// Package testdb opens throwaway in-memory databases for service tests.
package testdb

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jameswitika/iei.org.au/internal/models"
)

// New returns an isolated in-memory database with the full schema applied.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Application{},
		&models.ApplicationFile{},
		&models.Vote{},
		&models.Member{},
		&models.Subscription{},
		&models.Payment{},
		&models.ActivityLogEntry{},
		&models.Counter{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
