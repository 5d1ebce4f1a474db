package database

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// sqlitePrefix selects the embedded driver instead of PostgreSQL
const sqlitePrefix = "sqlite://"

// Connect establishes a connection to the database. DSNs starting with
// sqlite:// open a local SQLite file, everything else is PostgreSQL.
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	if strings.HasPrefix(dsn, sqlitePrefix) {
		DB, err = gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix)), cfg)
		if err == nil {
			// SQLite allows a single writer; serialize through one connection.
			if sqlDB, dbErr := DB.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	} else {
		DB, err = gorm.Open(postgres.Open(dsn), cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	zap.L().Info("Database connection established", zap.Bool("sqlite", strings.HasPrefix(dsn, sqlitePrefix)))
	return nil
}

// Models returns every model managed by AutoMigrate
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Alert{},
		&AlertOccurrence{},
		&Incident{},
		&IncidentEvent{},
		&SilenceWindow{},
		&EscalationPolicy{},
		&ServiceMapping{},
		&EscalationState{},
		&OnCallSchedule{},
		&OnCallMember{},
		&OnCallOverride{},
		&NotificationChannel{},
		&NotificationLog{},
		&EngineSettings{},
	}
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	zap.L().Info("Running database migrations")

	if err := DB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	zap.L().Info("Database migrations completed successfully")
	return nil
}
