package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"dealscope/internal/alerts"
	"dealscope/internal/db"
	"dealscope/internal/estimation"
	"dealscope/internal/jobs"
	"dealscope/internal/kafka"
	"dealscope/internal/notification"
	"dealscope/internal/provider"
	"dealscope/internal/server"
	"dealscope/internal/transport"
	"dealscope/pkg/config"
	"dealscope/pkg/logger"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	if err := config.Load(); err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	devMode := !config.IsProduction()

	// Redis backs the credits cache and the provider override. Optional:
	// a dead redis only loses caching and override persistence.
	redisClient := connectRedis()

	dbConn := db.Setup()

	// Kafka carries alert events to the notification consumer. Optional
	// in development.
	var producer sarama.SyncProducer
	if viper.GetString("KAFKA_BROKERS") != "" {
		producer = kafka.SetupProducer()
	}

	// Build both provider implementations; the registry decides which
	// one serves traffic for this process.
	creditsCache := estimation.NewCreditsCache(redisClient)
	mock := provider.NewMockWithHistory(
		viper.GetInt64("MOCK_SEED"),
		viper.GetInt("MOCK_CREDITS"),
		creditsCache,
		estimation.NewGormStore(dbConn),
	)

	var api *provider.API
	var pinger provider.Pinger
	if baseURL := viper.GetString("API_BASE_URL"); baseURL != "" {
		client := transport.New(baseURL, viper.GetString("API_PING_PATH"), viper.GetInt("API_RATE_LIMIT_RPS"))
		if token := viper.GetString("API_TOKEN"); token != "" {
			client.SetToken(token)
		}
		api = provider.NewAPI(client)
		pinger = api
	}

	registry := provider.NewRegistry(
		viper.GetString("PROVIDER_MODE"),
		mock,
		apiOrNil(api),
		pinger,
		provider.NewOverrideStore(redisClient),
		provider.NewTrail(devMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry.Resolve(ctx)
	if registry.ActiveMode() == provider.ModeAPI {
		registry.CheckAPIHealth(ctx)
	}

	// The state store mirrors alert, watchlist and job mutations into
	// the local database; the sweep reads its rules from there.
	stateStore := db.NewStateStore(dbConn)

	// Alert sweep evaluates rules against whichever provider is live.
	sweeper := alerts.NewSweeper(stateStore, registry.Active(), producer)
	if err := sweeper.Start(viper.GetString("ALERT_SWEEP_CRON")); err != nil {
		logrus.WithError(err).Fatal("Invalid cron expression")
	}
	defer sweeper.Stop()

	// Notification consumer reads the alert topic and delivers email and
	// Telegram messages.
	if producer != nil {
		stopConsumer, err := notification.StartConsumer(dbConn)
		if err != nil {
			logrus.WithError(err).Error("Failed to start notification consumer")
		} else {
			defer stopConsumer()
		}
	}

	poller := jobs.NewPoller(registry.Active(),
		time.Duration(viper.GetInt("JOB_POLL_INTERVAL_MS"))*time.Millisecond)

	srv := server.New(registry, poller, stateStore, devMode)
	go func() {
		if err := srv.Start(viper.GetInt("HTTP_PORT")); err != nil {
			logrus.WithError(err).Info("HTTP server stopped")
		}
	}()

	logrus.Info("Application started")

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP shutdown failed")
	}
	if producer != nil {
		producer.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
}

// connectRedis returns a live client or nil when redis is unreachable.
func connectRedis() *redis.Client {
	addr := viper.GetString("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logrus.WithError(err).Warn("Redis unavailable, caching and override persistence disabled")
		client.Close()
		return nil
	}
	logrus.WithField("addr", addr).Info("Redis connected")
	return client
}

// apiOrNil avoids handing the registry a typed-nil interface value.
func apiOrNil(api *provider.API) provider.DataProvider {
	if api == nil {
		return nil
	}
	return api
}
