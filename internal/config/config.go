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

// Config holds all service configuration, loaded once from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Store         StoreConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Scylla        ScyllaConfig
	SMTP          SMTPConfig
	WhatsApp      WhatsAppConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Bucketing     BucketingConfig
	Abuse         AbuseConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	CertFile     string
	KeyFile      string
}

type StoreConfig struct {
	// Driver selects the key-value backend for ephemeral gateway state
	// (captcha challenges, rate-limit buckets, OTP challenges).
	// "memory" keeps state per-process; "redis" shares it across instances.
	Driver string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	DispatchTopic string
	ConsumerGroup string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

type WhatsAppConfig struct {
	APIURL   string
	APIToken string
	SenderID string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	SubmissionBuckets int
	EventBuckets      int
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

// AbuseConfig carries the anti-abuse windows and ceilings. Defaults match
// the observed production contract; override only in tests.
type AbuseConfig struct {
	CaptchaMaxAttempts   int
	CaptchaTTL           time.Duration
	CaptchaSweepInterval time.Duration
	GenerateMaxRequests  int
	GenerateWindow       time.Duration
	VerifyMaxRequests    int
	VerifyWindow         time.Duration
	BucketMaxAge         time.Duration
	BucketSweepInterval  time.Duration
	BurstWindow          time.Duration
	BurstMaxRequests     int
	OTPLength            int
	OTPTTL               time.Duration
	OTPSendMaxRequests   int
	OTPSendWindow        time.Duration
	OTPVerifyMaxRequests int
	OTPVerifyWindow      time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads configuration from the environment (and .env when
// present) and caches it globally.
func LoadConfig() *Config {
	once.Do(func() {
		// .env is optional; absence is normal outside local development.
		_ = godotenv.Load()

		global = &Config{
			Environment: getEnv("APP_ENV", "development"),
			Server: ServerConfig{
				Port:         getEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			},
			Store: StoreConfig{
				Driver: getEnv("STORE_DRIVER", "memory"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Kafka: KafkaConfig{
				Enabled:       getEnvBool("KAFKA_ENABLED", false),
				Brokers:       getEnvList("KAFKA_BROKERS", "localhost:9092"),
				DispatchTopic: getEnv("KAFKA_DISPATCH_TOPIC", "pengajuan-notifications"),
				ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "pengajuan-dispatcher"),
			},
			Clickhouse: ClickhouseConfig{
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
				URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Database: getEnv("CLICKHOUSE_DATABASE", "pengajuan"),
			},
			Elasticsearch: ElasticsearchConfig{
				Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
				URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username: getEnv("ELASTICSEARCH_USERNAME", ""),
				Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
				Index:    getEnv("ELASTICSEARCH_NOTIFICATION_INDEX", "notification-attempts"),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "pengajuan"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			SMTP: SMTPConfig{
				Host:      getEnv("SMTP_HOST", ""),
				Port:      getEnvInt("SMTP_PORT", 587),
				Username:  getEnv("SMTP_USER", ""),
				Password:  getEnv("SMTP_PASS", ""),
				FromEmail: getEnv("SMTP_FROM_EMAIL", "no-reply@bank.example"),
				FromName:  getEnv("SMTP_FROM_NAME", "Layanan Tabungan"),
			},
			WhatsApp: WhatsAppConfig{
				APIURL:   getEnv("WHATSAPP_API_URL", ""),
				APIToken: getEnv("WHATSAPP_API_TOKEN", ""),
				SenderID: getEnv("WHATSAPP_SENDER_ID", ""),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "ap-southeast-1"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 65536),
				Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 2),
				PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 30),
			},
			Bucketing: BucketingConfig{
				SubmissionBuckets: getEnvInt("SUBMISSION_BUCKETS", 64),
				EventBuckets:      getEnvInt("EVENT_BUCKETS", 32),
			},
			Abuse: AbuseConfig{
				CaptchaMaxAttempts:   getEnvInt("CAPTCHA_MAX_ATTEMPTS", 3),
				CaptchaTTL:           getEnvDuration("CAPTCHA_TTL", 10*time.Minute),
				CaptchaSweepInterval: getEnvDuration("CAPTCHA_SWEEP_INTERVAL", 10*time.Minute),
				GenerateMaxRequests:  getEnvInt("CAPTCHA_GENERATE_MAX", 20),
				GenerateWindow:       getEnvDuration("CAPTCHA_GENERATE_WINDOW", 15*time.Minute),
				VerifyMaxRequests:    getEnvInt("CAPTCHA_VERIFY_MAX", 10),
				VerifyWindow:         getEnvDuration("CAPTCHA_VERIFY_WINDOW", 5*time.Minute),
				BucketMaxAge:         getEnvDuration("RATE_LIMIT_BUCKET_MAX_AGE", time.Hour),
				BucketSweepInterval:  getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Hour),
				BurstWindow:          getEnvDuration("BURST_WINDOW", time.Minute),
				BurstMaxRequests:     getEnvInt("BURST_MAX_REQUESTS", 10),
				OTPLength:            getEnvInt("OTP_LENGTH", 6),
				OTPTTL:               getEnvDuration("OTP_TTL", 5*time.Minute),
				OTPSendMaxRequests:   getEnvInt("OTP_SEND_MAX", 3),
				OTPSendWindow:        getEnvDuration("OTP_SEND_WINDOW", 15*time.Minute),
				OTPVerifyMaxRequests: getEnvInt("OTP_VERIFY_MAX", 10),
				OTPVerifyWindow:      getEnvDuration("OTP_VERIFY_WINDOW", 5*time.Minute),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		}
	})

	return global
}

// Get returns the cached configuration, loading it on first use.
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
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
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
