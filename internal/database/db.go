package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"donationdesk/internal/model"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Models lists every table the API owns, in dependency order.
func Models() []any {
	return []any{
		&model.User{},
		&model.Appeal{},
		&model.AppealDocument{},
		&model.Donation{},
		&model.Utilization{},
		&model.Beneficiary{},
		&model.AssetLink{},
		&model.Communication{},
		&model.AuditLog{},
	}
}

// NewConnection initializes a new connection pool using GORM. With autoMigrate set the
// schema is brought up to date through gorm; production runs the migrate command instead.
func NewConnection(dsn string, autoMigrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if autoMigrate {
		if err := db.AutoMigrate(Models()...); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
		}
	}
	return db, nil
}

// Migrate applies the embedded SQL migrations to the database at dsn.
func Migrate(dsn string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("cannot create a new migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	slog.Info("database migrated", "version", version, "dirty", dirty)
	return nil
}
