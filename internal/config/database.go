package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"landscape_tracker/internal/models"
)

// OpenDB connects to Postgres and migrates the tracker tables. The jobs
// and users tables belong to the marketplace; they are migrated only so a
// fresh database is usable in development.
func OpenDB(cfg Database, log gormlogger.Interface) (*gorm.DB, error) {
	gcfg := &gorm.Config{}
	if log != nil {
		gcfg.Logger = log
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Job{},
		&models.Geofence{},
		&models.LocationSample{},
		&models.GeofenceEvent{},
		&models.TrackingState{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto-migration failed: %w", err)
	}
	return db, nil
}
