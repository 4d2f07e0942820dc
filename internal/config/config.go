package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL        string `env:"RABBITMQ_URL,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	DirectoryAPIURL    string `env:"DIRECTORY_API_URL,required=true"`
	EnrichmentAPIURL   string `env:"ENRICHMENT_API_URL,required=true"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=10"`
	WorkerConcurrency  int    `env:"WORKER_CONCURRENCY,default=4"`
	DefaultBatchSize   int    `env:"DEFAULT_BATCH_SIZE,default=5"`
	DefaultThrottleMs  int    `env:"DEFAULT_THROTTLE_MS,default=250"`
	AdvanceLockTTLSec  int    `env:"ADVANCE_LOCK_TTL_SEC,default=300"`
	RecoveryScanSec    int    `env:"RECOVERY_SCAN_SEC,default=30"`
	RecoveryStaleSec   int    `env:"RECOVERY_STALE_SEC,default=120"`
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
