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

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Mail          MailConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Scylla        ScyllaConfig
	OTP           OTPConfig
	Metrics       MetricsConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Port           int
	TLSPort        int
	EnableTLS      bool
	AutoCert       bool
	Domain         string
	CertFile       string
	KeyFile        string
	AutoCertDir    string
	Email          string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	// RateLimitRequests caps OTP endpoint calls per client IP per
	// RateLimitWindow. Zero disables the limiter.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// AdminToken guards the /admin routes; they are not mounted when empty.
	AdminToken string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
}

// MailConfig controls how OTP mails leave the service. Jobs are published on
// Topic and rendered by the notification worker.
type MailConfig struct {
	Topic                   string
	BreakerName             string
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration
	BreakerMaxRequests      uint32
}

type ClickhouseConfig struct {
	Enabled      bool
	URL          string
	Username     string
	Password     string
	Database     string
	Table        string
	CAFile       string
	MaxOpenConns int
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

// ScyllaConfig points at the keyspace holding the security_events table.
type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
	Table    string
	CAFile   string
	// RetentionDays is the row TTL; zero keeps events forever.
	RetentionDays int
}

// OTPConfig is the issuance and verification policy. Every duration maps to
// the TTL of one key family in the store.
type OTPConfig struct {
	CodeTTL           time.Duration
	CooldownTTL       time.Duration
	RequestWindow     time.Duration
	MaxRequests       int
	SpamLockTTL       time.Duration
	MaxFailedAttempts int
	AttemptsTTL       time.Duration
	LockTTL           time.Duration
	MailSubject       string
}

// BucketingConfig spreads security events across storage partitions.
type BucketingConfig struct {
	EventBuckets int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	loadOnce.Do(func() {
		if globalConfig == nil {
			globalConfig = LoadConfig()
		}
	})
	return globalConfig
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", EnvDevelopment),
		Server: ServerConfig{
			Port:              getEnvInt("SERVER_PORT", 6001),
			TLSPort:           getEnvInt("SERVER_TLS_PORT", 6443),
			EnableTLS:         getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:          getEnvBool("SERVER_AUTOCERT", false),
			Domain:            getEnv("SERVER_DOMAIN", ""),
			CertFile:          getEnv("SERVER_CERT_FILE", ""),
			KeyFile:           getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:       getEnv("SERVER_AUTOCERT_DIR", "/var/cache/autocert"),
			Email:             getEnv("SERVER_ACME_EMAIL", ""),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins:    getEnvList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitRequests: getEnvInt("SERVER_RATE_LIMIT_REQUESTS", 30),
			RateLimitWindow:   getEnvDuration("SERVER_RATE_LIMIT_WINDOW", time.Minute),
			AdminToken:        getEnv("ADMIN_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		},
		Mail: MailConfig{
			Topic:                   getEnv("MAIL_TOPIC", "mail.otp"),
			BreakerName:             getEnv("MAIL_BREAKER_NAME", "mail-dispatch"),
			BreakerFailureThreshold: uint32(getEnvInt("MAIL_BREAKER_FAILURES", 5)),
			BreakerTimeout:          getEnvDuration("MAIL_BREAKER_TIMEOUT", 30*time.Second),
			BreakerMaxRequests:      uint32(getEnvInt("MAIL_BREAKER_HALF_OPEN_REQUESTS", 1)),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:      getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:          getEnv("CLICKHOUSE_URL", "http://localhost:9000"),
			Username:     getEnv("CLICKHOUSE_USERNAME", "default"),
			Password:     getEnv("CLICKHOUSE_PASSWORD", ""),
			Database:     getEnv("CLICKHOUSE_DATABASE", "auth"),
			Table:        getEnv("CLICKHOUSE_EVENTS_TABLE", "otp_security_events"),
			CAFile:       getEnv("CLICKHOUSE_CA_FILE", ""),
			MaxOpenConns: getEnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 20),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_EVENTS_INDEX", "otp-security-events"),
		},
		Scylla: ScyllaConfig{
			Enabled:       getEnvBool("SCYLLA_ENABLED", false),
			Nodes:         getEnvList("SCYLLA_NODES", []string{"127.0.0.1"}),
			Keyspace:      getEnv("SCYLLA_KEYSPACE", "otp_guard"),
			Username:      getEnv("SCYLLA_USERNAME", ""),
			Password:      getEnv("SCYLLA_PASSWORD", ""),
			Table:         getEnv("SCYLLA_EVENTS_TABLE", "security_events"),
			CAFile:        getEnv("SCYLLA_CA_FILE", ""),
			RetentionDays: getEnvInt("SCYLLA_EVENT_RETENTION_DAYS", 90),
		},
		OTP: DefaultOTPConfig(),
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Bucketing: BucketingConfig{
			EventBuckets: getEnvInt("EVENT_BUCKETS", 64),
		},
	}

	cfg.OTP.CodeTTL = getEnvDuration("OTP_CODE_TTL", cfg.OTP.CodeTTL)
	cfg.OTP.CooldownTTL = getEnvDuration("OTP_COOLDOWN_TTL", cfg.OTP.CooldownTTL)
	cfg.OTP.RequestWindow = getEnvDuration("OTP_REQUEST_WINDOW", cfg.OTP.RequestWindow)
	cfg.OTP.MaxRequests = getEnvInt("OTP_MAX_REQUESTS", cfg.OTP.MaxRequests)
	cfg.OTP.SpamLockTTL = getEnvDuration("OTP_SPAM_LOCK_TTL", cfg.OTP.SpamLockTTL)
	cfg.OTP.MaxFailedAttempts = getEnvInt("OTP_MAX_FAILED_ATTEMPTS", cfg.OTP.MaxFailedAttempts)
	cfg.OTP.AttemptsTTL = getEnvDuration("OTP_ATTEMPTS_TTL", cfg.OTP.AttemptsTTL)
	cfg.OTP.LockTTL = getEnvDuration("OTP_LOCK_TTL", cfg.OTP.LockTTL)
	cfg.OTP.MailSubject = getEnv("OTP_MAIL_SUBJECT", cfg.OTP.MailSubject)

	return cfg
}

// DefaultOTPConfig returns the stock policy: 5 minute codes, 1 minute
// cooldown, two requests per sliding hour, three wrong codes lock the
// identity for 30 minutes.
func DefaultOTPConfig() OTPConfig {
	return OTPConfig{
		CodeTTL:           300 * time.Second,
		CooldownTTL:       60 * time.Second,
		RequestWindow:     3600 * time.Second,
		MaxRequests:       2,
		SpamLockTTL:       3600 * time.Second,
		MaxFailedAttempts: 2,
		AttemptsTTL:       300 * time.Second,
		LockTTL:           1800 * time.Second,
		MailSubject:       "Verify Your Email",
	}
}

// Validate reports configuration that would make the service misbehave at
// runtime rather than fail at startup.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}
	if c.Scylla.Enabled && (len(c.Scylla.Nodes) == 0 || c.Scylla.Keyspace == "") {
		return fmt.Errorf("SCYLLA_NODES and SCYLLA_KEYSPACE are required when Scylla is enabled")
	}
	if c.OTP.MaxRequests < 1 {
		return fmt.Errorf("OTP_MAX_REQUESTS must be at least 1")
	}
	if c.OTP.MaxFailedAttempts < 1 {
		return fmt.Errorf("OTP_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"OTP_CODE_TTL":       c.OTP.CodeTTL,
		"OTP_COOLDOWN_TTL":   c.OTP.CooldownTTL,
		"OTP_REQUEST_WINDOW": c.OTP.RequestWindow,
		"OTP_SPAM_LOCK_TTL":  c.OTP.SpamLockTTL,
		"OTP_ATTEMPTS_TTL":   c.OTP.AttemptsTTL,
		"OTP_LOCK_TTL":       c.OTP.LockTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Bucketing.EventBuckets < 1 {
		return fmt.Errorf("EVENT_BUCKETS must be at least 1")
	}
	if c.Server.EnableTLS && c.Server.AutoCert && c.Server.Domain == "" {
		return fmt.Errorf("SERVER_DOMAIN is required for autocert")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "30m") or a bare number
// of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
