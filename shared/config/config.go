package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// GlobalConfig holds all configuration values for the indexer
type GlobalConfig struct {
	// Service Info
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	Environment    string `json:"environment"`

	// Processor (C7) parameters
	Processor ProcessorConfig `json:"processor"`

	// Database holds both the upstream event-source connection and the
	// store connection; in production these point at the same cluster but
	// are configured independently since the event source is read-only.
	Database DatabaseConfig `json:"database"`

	// Cache is the Redis instance backing the metadata fetcher's
	// fetch-dedup window (not the in-memory update cache, which has no
	// persistence config of its own).
	Cache CacheConfig `json:"cache"`

	// Messaging holds the AMQP connection used to notify the metadata
	// fetcher of new/updated tokens and contracts.
	Messaging MessagingConfig `json:"messaging"`

	// Node is the EVM JSON-RPC endpoint used for on-chain enrichment (C5).
	Node NodeConfig `json:"node"`

	// Metadata holds the off-chain metadata fetcher's (C8) settings.
	Metadata MetadataConfig `json:"metadata"`

	// Monitoring
	Monitoring MonitoringConfig `json:"monitoring"`
}

// ProcessorConfig holds the main-loop parameters from spec.md §4.6.
type ProcessorConfig struct {
	PageSize        int64    `json:"page_size"`
	ChainDataSource string   `json:"chain_data_source"` // "Database" | "Node"
	FetchNodeData   bool     `json:"fetch_node_data"`
	UriRetryBlocks  int64    `json:"uri_retry_blocks"`
	BatchDelay      int      `json:"batch_delay"`
	DBSchema        string   `json:"db_schema"`
	TokenAvoidList  []string `json:"token_avoid_list"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	PostgresHost     string        `json:"postgres_host"`
	PostgresPort     int           `json:"postgres_port"`
	PostgresUser     string        `json:"postgres_user"`
	PostgresPassword string        `json:"-"`
	PostgresDatabase string        `json:"postgres_database"`
	PostgresSSLMode  string        `json:"postgres_ssl_mode"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleConns     int           `json:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `json:"conn_max_idle_time"`
}

// CacheConfig holds cache settings
type CacheConfig struct {
	RedisHost     string        `json:"redis_host"`
	RedisPort     int           `json:"redis_port"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	DefaultTTL    time.Duration `json:"default_ttl"`
	MaxRetries    int           `json:"max_retries"`
	PoolSize      int           `json:"pool_size"`
}

// MessagingConfig holds messaging settings
type MessagingConfig struct {
	RabbitMQHost     string        `json:"rabbitmq_host"`
	RabbitMQPort     int           `json:"rabbitmq_port"`
	RabbitMQUser     string        `json:"rabbitmq_user"`
	RabbitMQPassword string        `json:"-"`
	RabbitMQVHost    string        `json:"rabbitmq_vhost"`
	Exchange         string        `json:"exchange"`
	Queue            string        `json:"queue"`
	RetryAttempts    int           `json:"retry_attempts"`
	RetryDelay       time.Duration `json:"retry_delay"`
	PrefetchCount    int           `json:"prefetch_count"`
}

// NodeConfig holds EVM JSON-RPC client settings (C5)
type NodeConfig struct {
	RPCURL         string        `json:"rpc_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxRetries     int           `json:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	RateLimitRPS   float64       `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
}

// MetadataConfig holds off-chain metadata fetcher settings (C8)
type MetadataConfig struct {
	HTTPTimeout        time.Duration `json:"http_timeout"`
	IPFSGateway        string        `json:"ipfs_gateway"`
	ENSRegistryAddress string        `json:"ens_registry_address"`
	ENSOverrideBaseURL string        `json:"ens_override_base_url"`
	// DedupWindow is loaded from METADATA_DEDUP_WINDOW but is not passed to
	// metadata.Worker, whose dedupe window is its fixed 30s dedupeWindow.
	DedupWindow        time.Duration `json:"dedup_window"`
}

// MonitoringConfig holds monitoring settings
type MonitoringConfig struct {
	SentryDSN         string  `json:"-"`
	SentryEnv         string  `json:"sentry_env"`
	TracingSampling   float64 `json:"tracing_sampling"`
	MetricsNamespace  string  `json:"metrics_namespace"`
	MetricsPath       string  `json:"metrics_path"`
	LogLevel          string  `json:"log_level"`
	LogFormat         string  `json:"log_format"`
}

// LoadConfig loads configuration from environment and files
func LoadConfig() (*GlobalConfig, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	config := &GlobalConfig{
		ServiceName:    getEnvString("SERVICE_NAME", "evm-nft-indexer"),
		ServiceVersion: getEnvString("SERVICE_VERSION", "unknown"),
		Environment:    getEnvString("ENVIRONMENT", "development"),

		Processor: ProcessorConfig{
			PageSize:        int64(getEnvInt("PAGE_SIZE", 2000)),
			ChainDataSource: getEnvString("CHAIN_DATA_SOURCE", "Database"),
			FetchNodeData:   getEnvBool("FETCH_NODE_DATA", true),
			UriRetryBlocks:  int64(getEnvInt("URI_RETRY_BLOCKS", 50000)),
			BatchDelay:      getEnvInt("BATCH_DELAY", 0),
			DBSchema:        getEnvString("DB_SCHEMA", "public"),
			TokenAvoidList:  getEnvStringSlice("TOKEN_AVOID_LIST", nil),
		},

		Database: DatabaseConfig{
			PostgresHost:     getEnvString("POSTGRES_HOST", "localhost"),
			PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
			PostgresUser:     getEnvString("POSTGRES_USER", "postgres"),
			PostgresPassword: getEnvString("POSTGRES_PASSWORD", ""),
			PostgresDatabase: getEnvString("POSTGRES_DATABASE", "nft_indexer"),
			PostgresSSLMode:  getEnvString("POSTGRES_SSL_MODE", "disable"),
			MaxConnections:   getEnvInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:  getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},

		Cache: CacheConfig{
			RedisHost:     getEnvString("REDIS_HOST", "localhost"),
			RedisPort:     getEnvInt("REDIS_PORT", 6379),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			DefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
		},

		Messaging: MessagingConfig{
			RabbitMQHost:     getEnvString("RABBITMQ_HOST", "localhost"),
			RabbitMQPort:     getEnvInt("RABBITMQ_PORT", 5672),
			RabbitMQUser:     getEnvString("RABBITMQ_USER", "guest"),
			RabbitMQPassword: getEnvString("RABBITMQ_PASSWORD", "guest"),
			RabbitMQVHost:    getEnvString("RABBITMQ_VHOST", "/"),
			Exchange:         getEnvString("MQ_EXCHANGE", "nft.metadata.notify"),
			Queue:            getEnvString("MQ_QUEUE", "metadata.fetch"),
			RetryAttempts:    getEnvInt("MQ_RETRY_ATTEMPTS", 3),
			RetryDelay:       getEnvDuration("MQ_RETRY_DELAY", 1*time.Second),
			PrefetchCount:    getEnvInt("MQ_PREFETCH_COUNT", 10),
		},

		Node: NodeConfig{
			RPCURL:         getEnvString("NODE_RPC_URL", ""),
			RequestTimeout: getEnvDuration("NODE_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvInt("NODE_MAX_RETRIES", 3),
			RetryDelay:     getEnvDuration("NODE_RETRY_DELAY", 1*time.Second),
			RateLimitRPS:   getEnvFloat("NODE_RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvInt("NODE_RATE_LIMIT_BURST", 40),
		},

		Metadata: MetadataConfig{
			HTTPTimeout:        getEnvDuration("METADATA_HTTP_TIMEOUT", 10*time.Second),
			IPFSGateway:        getEnvString("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
			ENSRegistryAddress: getEnvString("ENS_REGISTRY_ADDRESS", "0x57f1887a8bf19b14fc0df6fd9b2acc9af147ea85"),
			ENSOverrideBaseURL: getEnvString("ENS_OVERRIDE_BASE_URL", "https://metadata.ens.domains/mainnet"),
			DedupWindow:        getEnvDuration("METADATA_DEDUP_WINDOW", 10*time.Minute),
		},

		Monitoring: MonitoringConfig{
			SentryDSN:        getEnvString("SENTRY_DSN", ""),
			SentryEnv:        getEnvString("SENTRY_ENVIRONMENT", "development"),
			TracingSampling:  getEnvFloat("TRACING_SAMPLING", 0.1),
			MetricsNamespace: getEnvString("METRICS_NAMESPACE", "nft_indexer"),
			MetricsPath:      getEnvString("METRICS_PATH", "/metrics"),
			LogLevel:         getEnvString("LOG_LEVEL", "info"),
			LogFormat:        getEnvString("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *GlobalConfig) Validate() error {
	if c.Node.RPCURL == "" {
		return fmt.Errorf("NODE_RPC_URL is required")
	}
	if c.Processor.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive")
	}
	if c.Processor.ChainDataSource != "Database" && c.Processor.ChainDataSource != "Node" {
		return fmt.Errorf("CHAIN_DATA_SOURCE must be 'Database' or 'Node', got %q", c.Processor.ChainDataSource)
	}
	if c.Database.PostgresPassword == "" && c.Environment == "production" {
		return fmt.Errorf("POSTGRES_PASSWORD is required in production")
	}
	return nil
}

// Helper functions

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// ToJSON converts config to JSON
func (c *GlobalConfig) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
