package config

import (
	"os"
	"strings"

	"github.com/beaconblast/campaign-delivery/internal/queue"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/beaconblast/campaign-delivery/pkg/pg"
	"github.com/beaconblast/campaign-delivery/pkg/redis"
)

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
}

// PostgresDebugEnabled turns on gorm statement logging, always on in dev.
func (c *Config) PostgresDebugEnabled() bool {
	return c.PostgresDebug || c.AppEnv == "dev"
}

func (c *Config) RedisOptions(clientName string) *redis.Options {
	return &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: clientName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	}
}

// NotificationQueue is the stream campaign.completed events travel on.
// Publishers and consumers share it and differ only by consumer name.
func (c *Config) NotificationQueue(consumer string) queue.QueueConfig {
	return queue.QueueConfig{
		Name:              c.NotificationQueueName,
		ConsumerGroup:     c.QueueConsumerGroup,
		ConsumerName:      consumer,
		MaxRetries:        c.QueueMaxRetries,
		VisibilityTimeout: c.QueueVisibilityTimeout,
		PollInterval:      c.QueuePollInterval,
		BatchSize:         c.QueueBatchSize,
		MaxLen:            c.QueueMaxLen,
		EnableDLQ:         c.QueueEnableDLQ,
	}
}

// EnvPathFromArgs returns the file passed as --env=<path>, or "" when the
// flag is absent or the file cannot be opened.
func EnvPathFromArgs(args []string) string {
	for _, v := range args {
		if !strings.HasPrefix(v, "--env=") {
			continue
		}
		path := strings.TrimPrefix(v, "--env=")
		if _, err := os.Stat(path); err != nil {
			logger.Error("failed to open the passed env file, got error" + err.Error())
			return ""
		}
		return path
	}
	return ""
}
