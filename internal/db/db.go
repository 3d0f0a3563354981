// Package db provides database connection and management functionality
package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dealscope/internal/models"
)

// Setup initializes the PostgreSQL connection and runs migrations. It
// reads configuration from environment variables via viper and ensures a
// default admin account exists for first-time setup. Returns a
// configured *gorm.DB or exits on fatal errors.
func Setup() *gorm.DB {
	host := viper.GetString("DB_HOST")
	user := viper.GetString("DB_USER")
	password := viper.GetString("DB_PASSWORD")
	dbname := viper.GetString("DB_NAME")
	port := viper.GetString("DB_PORT")

	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if dbname == "" {
		dbname = "dealscope"
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	// Creates tables if they don't exist and updates existing ones.
	db.AutoMigrate(
		&models.User{},
		&models.WatchlistRecord{},
		&models.AlertRecord{},
		&models.ScrapJobRecord{},
		&models.EstimationRecord{},
	)

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count == 0 {
		db.Create(&models.User{
			Email:            "admin@dealscope.local",
			Username:         "admin",
			Password:         "admin123", // TODO: Hash password before storing in production
			Plan:             string(models.PlanExpert),
			CreditsRemaining: 100,
			IsActive:         true,
		})
		logrus.Info("Created default admin user")
	}

	logrus.Info("Database initialized successfully")
	return db
}
