package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL        string `env:"RABBITMQ_URL,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	FCMCredentialsFile string `env:"FCM_CREDENTIALS_FILE"`

	// Two historical call sites impose different provider caps: immediate
	// sends use the FCM multicast hard limit, queued firings a smaller one.
	// Both stay configurable; neither may exceed the provider limit.
	ImmediateBatchSize int `env:"IMMEDIATE_BATCH_SIZE,default=500"`
	ScheduledBatchSize int `env:"SCHEDULED_BATCH_SIZE,default=100"`

	RetryBackoffMillis      int `env:"RETRY_BACKOFF_MS,default=2000"`
	GatewayTimeoutMillis    int `env:"GATEWAY_TIMEOUT_MS,default=15000"`
	GatewayRateLimitPerSec  int `env:"GATEWAY_RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency       int `env:"WORKER_CONCURRENCY,default=8"`
	SchedulerScanIntervalMS int `env:"SCHEDULER_SCAN_INTERVAL_MS,default=5000"`
	SchedulerScanLimit      int `env:"SCHEDULER_SCAN_LIMIT,default=100"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMillis) * time.Millisecond
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutMillis) * time.Millisecond
}

func (c *Config) SchedulerScanInterval() time.Duration {
	return time.Duration(c.SchedulerScanIntervalMS) * time.Millisecond
}
