package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	KMS           KMSConfig
	OTP           OTPConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers []string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

// OTPConfig carries the verification-code policy knobs. The defaults match the
// platform contract: 5-minute codes, 3 wrong guesses, 3 issuances per hour.
type OTPConfig struct {
	CodeTTL        time.Duration
	MaxAttempts    int
	SendWindow     time.Duration
	SendLimit      int
	VerifiedWindow time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads configuration from environment variables, loading a .env
// file first when present.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		global = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "./certs"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "comunidad"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username: getEnv("ELASTICSEARCH_USERNAME", ""),
				Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "comunidad_analytics"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 65536),
				Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 4),
				PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 90),
			},
			Bucketing: BucketingConfig{
				UserBuckets:  getEnvInt("USER_BUCKETS", 128),
				EventBuckets: getEnvInt("EVENT_BUCKETS", 64),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "us-east-1"),
			},
			OTP: OTPConfig{
				CodeTTL:        getEnvDuration("OTP_CODE_TTL", 5*time.Minute),
				MaxAttempts:    getEnvInt("OTP_MAX_ATTEMPTS", 3),
				SendWindow:     getEnvDuration("OTP_SEND_WINDOW", time.Hour),
				SendLimit:      getEnvInt("OTP_SEND_LIMIT", 3),
				VerifiedWindow: getEnvDuration("OTP_VERIFIED_WINDOW", 30*time.Minute),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "console"),
			},
		}
	})

	return global
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if global == nil {
		return LoadConfig()
	}
	return global
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
