// Command indexer runs the processor (C7) main loop: it pages through the
// event source, enriches from the node, flushes to the store, and
// notifies the metadata fetcher, until the process receives a shutdown
// signal (spec.md §4.6, §5).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/evmclient"
	"github.com/zunokit/evm-nft-indexer/eventsource"
	"github.com/zunokit/evm-nft-indexer/notify"
	"github.com/zunokit/evm-nft-indexer/processor"
	"github.com/zunokit/evm-nft-indexer/shared/config"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
	"github.com/zunokit/evm-nft-indexer/shared/messaging"
	"github.com/zunokit/evm-nft-indexer/shared/metrics"
	"github.com/zunokit/evm-nft-indexer/shared/migration"
	"github.com/zunokit/evm-nft-indexer/shared/monitoring"
	"github.com/zunokit/evm-nft-indexer/shared/postgres"
	"github.com/zunokit/evm-nft-indexer/shared/resilience"
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
		Service:     "evm-nft-indexer",
		Environment: cfg.Environment,
		Output:      os.Stdout,
	})
	logger := logging.Default()

	if err := monitoring.InitSentry(&monitoring.SentryConfig{
		DSN:              cfg.Monitoring.SentryDSN,
		Environment:      cfg.Monitoring.SentryEnv,
		ServiceName:      "evm-nft-indexer",
		SampleRate:       1.0,
		TracesSampleRate: cfg.Monitoring.TracingSampling,
	}); err != nil {
		logger.WithError(err).Warn("failed to initialize sentry")
	}
	defer sentry.Flush(2 * time.Second)
	defer monitoring.RecoverWithSentry()

	postgresDSN := buildPostgresDSN(cfg.Database)

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

	migrator, err := migration.NewMigrator(&migration.Config{
		DatabaseURL: postgresDSN,
		Service:     "evm-nft-indexer",
		SchemaName:  cfg.Processor.DBSchema,
		Migrations:  store.Migrations,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to build migrator")
	}
	if err := migrator.Migrate(); err != nil {
		logger.WithError(err).Fatal("failed to run migrations")
	}
	migrator.Close()

	source := eventsource.New(pg)
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

	notifier := notify.New(amqpClient, logger)

	// NewMetrics self-registers its collectors with the default Prometheus
	// registry; built before its consumers so the Processor and node client
	// below can record against the same instance.
	m := metrics.NewMetrics(cfg.Monitoring.MetricsNamespace, "indexer")
	go serveMetrics(cfg.Monitoring.MetricsPath, logger)

	var node processor.NodeClient
	if cfg.Processor.FetchNodeData {
		client, err := evmclient.Dial(context.Background(), evmclient.Config{
			RPCURL:            cfg.Node.RPCURL,
			RequestsPerSecond: cfg.Node.RateLimitRPS,
			Retry: &resilience.RetryConfig{
				MaxAttempts:  cfg.Node.MaxRetries,
				InitialDelay: cfg.Node.RetryDelay,
				MaxDelay:     30 * time.Second,
				BackoffFactor: 2.0,
			},
			Metrics: m,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to dial evm node")
		}
		node = client
	}

	procCfg := processor.Config{
		PageSize:        uint64(cfg.Processor.PageSize),
		ChainDataSource: processor.ChainDataSource(cfg.Processor.ChainDataSource),
		FetchNodeData:   cfg.Processor.FetchNodeData,
		UriRetryBlocks:  uint64(cfg.Processor.UriRetryBlocks),
		TokenAvoidList:  buildAvoidList(cfg.Processor.TokenAvoidList, logger),
		BatchDelay:      time.Duration(cfg.Processor.BatchDelay) * time.Millisecond,
	}

	proc := processor.New(procCfg, source, node, dataStore, notifier, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() {
		logger.Info("starting processor main loop")
		runErr <- proc.Start(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping processor")
		proc.Stop()
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			logger.WithError(err).Error("processor stopped with an error")
			os.Exit(1)
		}
	}

	logger.Info("indexer stopped")
}

func buildAvoidList(addrs []string, logger *logging.Logger) map[chain.Address]struct{} {
	out := make(map[chain.Address]struct{}, len(addrs))
	for _, s := range addrs {
		addr, err := chain.ParseAddress(s)
		if err != nil {
			logger.WithField("address", s).Warn("ignoring invalid entry in token avoid list")
			continue
		}
		out[addr] = struct{}{}
	}
	return out
}

func buildPostgresDSN(db config.DatabaseConfig) string {
	sslMode := db.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.PostgresHost, db.PostgresPort, db.PostgresUser, db.PostgresPassword, db.PostgresDatabase, sslMode,
	)
}

func serveMetrics(path string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	if err := http.ListenAndServe(":9090", mux); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("metrics server stopped")
	}
}
