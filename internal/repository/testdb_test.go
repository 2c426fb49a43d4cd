package repository

import (
	"testing"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Appeal{},
		&model.AppealDocument{},
		&model.Donation{},
		&model.Utilization{},
		&model.Beneficiary{},
		&model.AssetLink{},
		&model.Communication{},
		&model.AuditLog{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, role string) model.User {
	t.Helper()
	u := model.User{Name: "Asha " + role, Email: uuid.NewString() + "@example.org", Password: "x", Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedAppeal(t *testing.T, db *gorm.DB, owner uuid.UUID, status string) model.Appeal {
	t.Helper()
	now := time.Now().UTC()
	a := model.Appeal{
		Title:               "Flood relief " + status,
		Description:         "Dry rations",
		EstimatedAmount:     decimal.NewFromInt(500000),
		BeneficiaryCategory: "relief",
		Duration:            "3 months",
		Status:              status,
		CreatedBy:           owner,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if status == model.AppealStatusApproved {
		amt := decimal.NewFromInt(450000)
		a.ApprovedAmount = &amt
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}
