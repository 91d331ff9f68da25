package app

import (
	"strings"
	"time"

	"github.com/yungbote/aggregation-backend/internal/pkg/envutil"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	Port        string
	Environment string
	Version     string
	CORSOrigins []string

	StoreDriver  string
	SeedFile     string
	AutoMigrate  bool
	BrokerDriver string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	QueueStreamPrefix string
	QueueGroup        string
	QueueClaimIdle    time.Duration

	WorkerConcurrency   int
	EmbeddedWorkers     bool
	ConsumerMaxAttempts int
	ConsumerLoadLimit   int

	PublishTimeout   time.Duration
	PublishQueueSize int
	BreakerThreshold int
	BreakerTimeout   time.Duration

	MetricsAddr string

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelHeaders     string
	OtelSampleRatio float64
	OtelServiceName string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.GetEnv("PORT", "8080", log),
		Environment: envutil.GetEnv("APP_ENV", "development", log),
		Version:     envutil.GetEnv("APP_VERSION", "dev", log),
		CORSOrigins: splitList(envutil.GetEnv("CORS_ORIGINS", "", log)),

		StoreDriver:  strings.ToLower(envutil.GetEnv("STORE_DRIVER", DriverPostgres, log)),
		SeedFile:     envutil.GetEnv("SEED_FILE", "", log),
		AutoMigrate:  envutil.GetEnvAsBool("POSTGRES_AUTO_MIGRATE", true, log),
		BrokerDriver: strings.ToLower(envutil.GetEnv("BROKER_DRIVER", DriverRedis, log)),

		RedisAddr:     envutil.GetEnv("REDIS_ADDR", "localhost:6379", log),
		RedisPassword: envutil.GetEnv("REDIS_PASSWORD", "", log),
		RedisDB:       envutil.GetEnvAsInt("REDIS_DB", 0, log),
		RedisChannel:  envutil.GetEnv("REDIS_CHANNEL", "aggregation:sse", log),

		QueueStreamPrefix: envutil.GetEnv("QUEUE_STREAM_PREFIX", "", log),
		QueueGroup:        envutil.GetEnv("QUEUE_GROUP", "aggregation", log),
		QueueClaimIdle:    envutil.GetEnvAsDuration("QUEUE_CLAIM_IDLE", time.Minute, log),

		WorkerConcurrency:   envutil.GetEnvAsInt("WORKER_CONCURRENCY", 4, log),
		EmbeddedWorkers:     envutil.GetEnvAsBool("EMBEDDED_WORKERS", true, log),
		ConsumerMaxAttempts: envutil.GetEnvAsInt("CONSUMER_MAX_ATTEMPTS", 3, log),
		ConsumerLoadLimit:   envutil.GetEnvAsInt("CONSUMER_LOAD_CONCURRENCY", 4, log),

		PublishTimeout:   envutil.GetEnvAsDuration("PUBLISH_TIMEOUT", 2*time.Second, log),
		PublishQueueSize: envutil.GetEnvAsInt("PUBLISH_QUEUE_SIZE", 1024, log),
		BreakerThreshold: envutil.GetEnvAsInt("PUBLISH_BREAKER_THRESHOLD", 5, log),
		BreakerTimeout:   envutil.GetEnvAsDuration("PUBLISH_BREAKER_TIMEOUT", 30*time.Second, log),

		MetricsAddr: envutil.GetEnv("METRICS_ADDR", ":9090", log),

		OtelEnabled:     envutil.GetEnvAsBool("OTEL_ENABLED", false, log),
		OtelEndpoint:    envutil.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		OtelInsecure:    envutil.GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true, log),
		OtelHeaders:     envutil.GetEnv("OTEL_EXPORTER_OTLP_HEADERS", "", log),
		OtelSampleRatio: float64(envutil.GetEnvAsInt("OTEL_SAMPLE_PERCENT", 100, log)) / 100,
		OtelServiceName: envutil.GetEnv("OTEL_SERVICE_NAME", "aggregation-backend", log),
	}
	return cfg
}

func (c Config) UsesRedis() bool {
	return c.BrokerDriver == DriverRedis
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
