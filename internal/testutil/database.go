// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/internal/utils"
)

// NewTestDB opens a migrated in-memory SQLite database that lives for the duration of the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}

func NewTestRepositories(t *testing.T) *repository.Repositories {
	t.Helper()
	return repository.InitRepositories(NewTestDB(t))
}

func TenantContext(tenant string) context.Context {
	return utils.SetTenantInContext(context.Background(), tenant)
}

// CreateZonedDomain stores an active domain that already has a zone.
func CreateZonedDomain(t *testing.T, repos *repository.Repositories, tenant, name string) *models.Domain {
	t.Helper()
	ctx := TenantContext(tenant)

	domain := &models.Domain{Tenant: tenant, Domain: name, Registrar: enum.RegistrarOther}
	require.NoError(t, repos.DomainRepository.Create(ctx, domain))
	require.NoError(t, repos.DomainRepository.SetZone(ctx, domain.ID, "zone-"+name, []string{"ada.ns.cloudflare.com", "bob.ns.cloudflare.com"}))

	stored, err := repos.DomainRepository.GetByID(ctx, domain.ID)
	require.NoError(t, err)
	return stored
}
