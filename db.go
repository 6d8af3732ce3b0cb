package main

import (
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sd-index/config"
	"sd-index/models"
)

func initDb(config *config.Config) *gorm.DB {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(getLogLevel(config)),
	}

	return connect(config.DBPath, gormConfig)
}

func getLogLevel(config *config.Config) logger.LogLevel {
	if config.IsDebug {
		return logger.Info
	}

	return logger.Silent
}

func connect(dsn string, gormConfig *gorm.Config) *gorm.DB {
	db, err := GetDriver(dsn, gormConfig)

	if err != nil {
		log.Fatalf("failed to connect to the database: %v", err)
	}

	err = migrate(db)

	if err != nil {
		log.Fatalf("failed to migrate the database: %v", err)
	}

	return db
}

// migrate applies the schema. AutoMigrate only adds; existing columns are
// never altered or dropped.
func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.File{},
		&models.Parameters{},
		&models.AnnotationUsage{},
	)
}
