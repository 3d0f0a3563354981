package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Load initializes configuration from environment variables and .env file.
func Load() error {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("HTTP_PORT", 8080)

	// Data provider selection: "mock" or "api"
	viper.SetDefault("PROVIDER_MODE", "mock")
	viper.SetDefault("API_BASE_URL", "http://localhost:9000")
	viper.SetDefault("API_PING_PATH", "/v1/health")
	viper.SetDefault("API_RATE_LIMIT_RPS", 10)

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_NAME", "dealscope")

	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")

	// Mock data determinism: fixed seed so demo output is reproducible
	viper.SetDefault("MOCK_SEED", 42)
	viper.SetDefault("MOCK_CREDITS", 100)

	viper.SetDefault("ALERT_SWEEP_CRON", "*/5 * * * *")
	viper.SetDefault("JOB_POLL_INTERVAL_MS", 2000)

	if err := viper.ReadInConfig(); err != nil {
		logrus.WithError(err).Warn("Failed to read .env file, using environment variables")
	}

	logrus.Info("Configuration loaded successfully")
	return nil
}

// IsProduction reports whether the process runs with production settings.
// The provider debug trail is disabled when this is true.
func IsProduction() bool {
	return viper.GetString("APP_ENV") == "production"
}
