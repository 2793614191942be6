package db

import (
	"fmt"

	"kiko-backend/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to Postgres. Callers run Migrate separately so tests can
// point it at other drivers.
func Open(host, user, password, name, port string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, name, port)

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return conn, nil
}

// Migrate syncs the tables with the structs in /models.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.Script{},
		&models.Sentence{},
		&models.SentenceMapping{},
		&models.MappingEdit{},
		&models.AudioSession{},
		&models.ABLoop{},
		&models.Bookmark{},
	)
	if err != nil {
		return fmt.Errorf("syncing tables: %w", err)
	}
	return nil
}
