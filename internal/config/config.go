package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every configuration value of the service. Nothing else reads
// the environment directly.
type Config struct {
	AppEnv  string `env:"APP_ENV"`
	AppName string `env:"APP_NAME"`

	HttpListenAddr            string        `env:"HTTP_LISTEN_ADDR"`
	HttpServerReadTimeout     time.Duration `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout    time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpServerReadBufferSize  int           `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int           `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	TrackingBaseURL string `env:"TRACKING_BASE_URL"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresDebug         bool   `env:"POSTGRES_DEBUG"`
	PostgresSSLMode       string `env:"POSTGRES_SSLMODE"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace     string `env:"PROM_NAMESPACE"`
	MetricsListenAddr string `env:"METRICS_LISTEN_ADDR"`
	MetricsURI        string `env:"METRICS_URI"`

	LogLevel []string `env:"LOG_LEVEL"`

	SchedulerEnabled     string        `env:"SCHEDULER_ENABLED"`
	SchedulerInterval    time.Duration `env:"SCHEDULER_INTERVAL"`
	SchedulerStopTimeout time.Duration `env:"SCHEDULER_STOP_TIMEOUT"`

	SMTPBatchSize       int           `env:"SMTP_BATCH_SIZE"`
	SMTPDialTimeout     time.Duration `env:"SMTP_DIAL_TIMEOUT"`
	SMTPSendRate        float64       `env:"SMTP_SEND_RATE"`
	SMTPHeloName        string        `env:"SMTP_HELO_NAME"`
	CredentialsCacheTTL time.Duration `env:"CREDENTIALS_CACHE_TTL"`

	NotificationQueueName  string        `env:"NOTIFICATION_QUEUE_NAME"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS"`
	QueueWorkers           int           `env:"QUEUE_WORKERS"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ"`

	MockSMTPListenAddr  string  `env:"MOCK_SMTP_LISTEN_ADDR"`
	MockSMTPAdminAddr   string  `env:"MOCK_SMTP_ADMIN_ADDR"`
	MockSMTPBounceRate  float64 `env:"MOCK_SMTP_BOUNCE_RATE"`
	MockSMTPRequireAuth bool    `env:"MOCK_SMTP_REQUIRE_AUTH"`
	MockSMTPUsername    string  `env:"MOCK_SMTP_USERNAME"`
	MockSMTPPassword    string  `env:"MOCK_SMTP_PASSWORD"`
	// MockSMTPTLS offers STARTTLS with a self-signed certificate.
	MockSMTPTLS bool `env:"MOCK_SMTP_TLS"`
}

// Load reads an optional dotenv file and maps the environment onto Config.
func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	c.withDefaults()
	if len(c.LogLevel) > 0 {
		logger.SetLevel(c.LogLevel[0])
	}

	config = c
	return nil
}

// Set replaces the loaded config. Used by tests and tools that build one in code.
func Set(c *Config) {
	c.withDefaults()
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) withDefaults() {
	if c.AppEnv == "" {
		c.AppEnv = "dev"
	}
	if c.AppName == "" {
		c.AppName = "campaign_delivery"
	}
	if c.HttpListenAddr == "" {
		c.HttpListenAddr = ":5001"
	}
	if c.HttpServerReadTimeout <= 0 {
		c.HttpServerReadTimeout = 5 * time.Second
	}
	if c.HttpServerWriteTimeout <= 0 {
		c.HttpServerWriteTimeout = 10 * time.Minute
	}
	if c.HttpServerReadBufferSize <= 0 {
		c.HttpServerReadBufferSize = 16 * 1024
	}
	if c.HttpServerWriteBufferSize <= 0 {
		c.HttpServerWriteBufferSize = 16 * 1024
	}
	if c.TrackingBaseURL == "" {
		c.TrackingBaseURL = "http://localhost:5001"
	}
	c.TrackingBaseURL = strings.TrimRight(c.TrackingBaseURL, "/")
	if c.PromNamespace == "" {
		c.PromNamespace = "campaign_delivery"
	}
	if c.MetricsListenAddr == "" {
		c.MetricsListenAddr = ":9100"
	}
	if c.MetricsURI == "" {
		c.MetricsURI = "/metrics"
	}
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = 60 * time.Second
	}
	if c.SchedulerStopTimeout <= 0 {
		c.SchedulerStopTimeout = 5 * time.Second
	}
	if c.SMTPBatchSize <= 0 {
		c.SMTPBatchSize = 10
	}
	if c.SMTPDialTimeout <= 0 {
		c.SMTPDialTimeout = 30 * time.Second
	}
	if c.SMTPHeloName == "" {
		c.SMTPHeloName = "localhost"
	}
	if c.CredentialsCacheTTL <= 0 {
		c.CredentialsCacheTTL = time.Minute
	}
	if c.NotificationQueueName == "" {
		c.NotificationQueueName = "notifications"
	}
	if c.QueueConsumerGroup == "" {
		c.QueueConsumerGroup = "notification-processors"
	}
	if c.QueueConsumerName == "" {
		c.QueueConsumerName = "processor"
	}
	if c.QueueConsumers <= 0 {
		c.QueueConsumers = 2
	}
	if c.QueueWorkers <= 0 {
		c.QueueWorkers = 10
	}
	if c.MockSMTPListenAddr == "" {
		c.MockSMTPListenAddr = "127.0.0.1:1025"
	}
	if c.MockSMTPAdminAddr == "" {
		c.MockSMTPAdminAddr = ":8025"
	}
}

// IsSchedulerEnabled reports SCHEDULER_ENABLED, true when unset or unparsable.
func (c *Config) IsSchedulerEnabled() bool {
	enabled, err := strconv.ParseBool(c.SchedulerEnabled)
	return err != nil || enabled
}
