// Command metadataworker runs the off-chain metadata fetcher (C8): it
// consumes token/contract notifications published by the indexer and
// resolves, canonicalizes, and persists each token's metadata document
// (spec.md §4.7).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/metadata"
	"github.com/zunokit/evm-nft-indexer/shared/config"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
	"github.com/zunokit/evm-nft-indexer/shared/messaging"
	"github.com/zunokit/evm-nft-indexer/shared/metrics"
	"github.com/zunokit/evm-nft-indexer/shared/monitoring"
	"github.com/zunokit/evm-nft-indexer/shared/postgres"
	"github.com/zunokit/evm-nft-indexer/shared/redis"
	"github.com/zunokit/evm-nft-indexer/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(&logging.Config{
		Level:       logging.LevelInfo,
		Service:     "evm-nft-metadata-worker",
		Environment: cfg.Environment,
		Output:      os.Stdout,
	})
	logger := logging.Default()

	if err := monitoring.InitSentry(&monitoring.SentryConfig{
		DSN:              cfg.Monitoring.SentryDSN,
		Environment:      cfg.Monitoring.SentryEnv,
		ServiceName:      "evm-nft-metadata-worker",
		SampleRate:       1.0,
		TracesSampleRate: cfg.Monitoring.TracingSampling,
	}); err != nil {
		logger.WithError(err).Warn("failed to initialize sentry")
	}
	defer sentry.Flush(2 * time.Second)
	defer monitoring.RecoverWithSentry()

	pg, err := postgres.NewPostgres(postgres.PostgresConfig{
		PostgresHost:     cfg.Database.PostgresHost,
		PostgresPort:     cfg.Database.PostgresPort,
		PostgresUser:     cfg.Database.PostgresUser,
		PostgresPassword: cfg.Database.PostgresPassword,
		PostgresDatabase: cfg.Database.PostgresDatabase,
		PostgresSSLMode:  cfg.Database.PostgresSSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pg.Close()

	dataStore := store.New(pg)

	amqpClient, err := messaging.NewRabbitMQ(messaging.RabbitMQConfig{
		RabbitMQHost:     cfg.Messaging.RabbitMQHost,
		RabbitMQPort:     cfg.Messaging.RabbitMQPort,
		RabbitMQUser:     cfg.Messaging.RabbitMQUser,
		RabbitMQPassword: cfg.Messaging.RabbitMQPassword,
		RabbitMQExchange: cfg.Messaging.Exchange,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to rabbitmq")
	}
	defer amqpClient.Close()

	ensRegistry, err := chain.ParseAddress(cfg.Metadata.ENSRegistryAddress)
	if err != nil {
		logger.WithField("address", cfg.Metadata.ENSRegistryAddress).Warn("ignoring invalid ens registry address, override disabled")
	}

	// NewMetrics self-registers its collectors with the default Prometheus
	// registry; built before Fetcher so fetch outcomes record against it.
	m := metrics.NewMetrics(cfg.Monitoring.MetricsNamespace, "metadata-worker")

	fetcher := metadata.New(metadata.Config{
		HTTPTimeout:        cfg.Metadata.HTTPTimeout,
		IPFSGateway:        cfg.Metadata.IPFSGateway,
		ENSRegistryAddress: ensRegistry,
		ENSOverrideBaseURL: cfg.Metadata.ENSOverrideBaseURL,
	}, dataStore, logger, m)

	// dedupe stays a true nil interface (not a typed-nil *redis.Redis) when
	// redis is unreachable, so Worker's nil check actually skips it.
	var dedupe interface {
		Exists(ctx context.Context, keys ...string) (int64, error)
		Set(ctx context.Context, key, value string, expiration time.Duration) error
	}
	redisClient, err := redis.NewRedis(redis.RedisConfig{
		RedisHost:     cfg.Cache.RedisHost,
		RedisPort:     cfg.Cache.RedisPort,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
	})
	if err != nil || redisClient.HealthCheck(context.Background()) != nil {
		logger.WithError(err).Warn("failed to connect to redis, metadata fetch deduplication disabled")
	} else {
		dedupe = redisClient
		defer redisClient.Close()
	}

	worker := metadata.NewWorker(amqpClient, fetcher, logger, dedupe)

	if err := worker.Run("metadata-worker"); err != nil {
		logger.WithError(err).Fatal("failed to start metadata worker consumer")
	}

	logger.Info("metadata worker consuming")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping metadata worker")
}
