// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper fron a config file or environement variables.
type Config struct {
	DBDriver           string        `mapstructure:"DB_DRIVER"`
	DBSource           string        `mapstructure:"DB_SOURCE"`
	ServerAddress      string        `mapstructure:"SERVER_ADDRESS"`
	TokenType          string        `mapstructure:"TOKEN_TYPE"`
	TokenSymmetricKey  string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	Environement       string        `mapstructure:"GO_ENV"`
	RedisAddress       string        `mapstructure:"REDIS_ADDRESS"`
	IdempotencyLockTTL time.Duration `mapstructure:"IDEMPOTENCY_LOCK_TTL"`
	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string        `mapstructure:"KAFKA_TOPIC"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	TransferAttempts   int           `mapstructure:"TRANSFER_MAX_ATTEMPTS"`
	TransferBackoff    time.Duration `mapstructure:"TRANSFER_RETRY_BACKOFF"`
	TransferRateLimit  float64       `mapstructure:"TRANSFER_RATE_LIMIT"`
	TransferRateBurst  int           `mapstructure:"TRANSFER_RATE_BURST"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Brokers returns the configured kafka brokers, or nil when none are set.
func (c Config) Brokers() []string {
	var brokers []string

	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("TOKEN_TYPE", "paseto")
	v.SetDefault("IDEMPOTENCY_LOCK_TTL", 10*time.Second)
	v.SetDefault("KAFKA_TOPIC", "transfer.completed")
	v.SetDefault("OUTBOX_POLL_INTERVAL", time.Second)
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("TRANSFER_MAX_ATTEMPTS", 1)
	v.SetDefault("TRANSFER_RETRY_BACKOFF", 50*time.Millisecond)
	v.SetDefault("TRANSFER_RATE_LIMIT", 5)
	v.SetDefault("TRANSFER_RATE_BURST", 10)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
}

// Load read configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
