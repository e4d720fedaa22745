package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Service names accepted by Load.
const (
	ServicePost   = "post-service"
	ServiceMedia  = "media-service"
	ServiceSearch = "search-service"
)

type Config struct {
	Service string
	AppEnv  string

	HTTPAddr string

	// Authoritative stores
	DatabaseURL string // post-service, media-service
	MongoURI    string // search-service
	MongoDB     string

	// RabbitMQ
	RabbitURL         string
	RabbitExchange    string
	RabbitPrefetch    int
	RabbitMaxAttempts int
	RabbitFailure     string // retry | unacked
	RabbitBackoffMin  time.Duration
	RabbitBackoffMax  time.Duration
	RabbitDialTimeout time.Duration

	// Redis & Caching
	RedisURL          string
	CacheTTLPostList  time.Duration
	CacheTTLPost      time.Duration
	CacheTTLSearch    time.Duration
	CacheTTLMedia     time.Duration
	CacheTTLMediaList time.Duration

	// S3/MinIO (media-service)
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3UsePathStyle    bool
	MediaBucket       string

	// Rate Limiting
	RLEnabled bool
	RLLimit   int
	RLWindow  time.Duration

	// Tracing
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	LogLevel  string
	LogFormat string

	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	ShutdownGracePeriod time.Duration
}

func Load(service string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{Service: service}

	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", defaultAddr(service))

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.MongoDB = getEnv("MONGO_DB", "search")

	cfg.RabbitURL = getEnv("RABBIT_URL", "")
	cfg.RabbitExchange = getEnv("RABBIT_EXCHANGE", "content.events")
	cfg.RabbitPrefetch = getIntEnv("RABBIT_PREFETCH", 0)
	cfg.RabbitMaxAttempts = getIntEnv("RABBIT_MAX_ATTEMPTS", 5)
	cfg.RabbitFailure = strings.ToLower(getEnv("RABBIT_FAILURE_POLICY", "retry"))
	cfg.RabbitBackoffMin = getDuration("RABBIT_BACKOFF_MIN", 1*time.Second)
	cfg.RabbitBackoffMax = getDuration("RABBIT_BACKOFF_MAX", 30*time.Second)
	cfg.RabbitDialTimeout = getDuration("RABBIT_DIAL_TIMEOUT", 5*time.Second)

	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	cfg.CacheTTLPostList = getDuration("CACHE_TTL_POST_LIST", 5*time.Minute)
	cfg.CacheTTLPost = getDuration("CACHE_TTL_POST", 1*time.Hour)
	cfg.CacheTTLSearch = getDuration("CACHE_TTL_SEARCH", 1*time.Minute)
	cfg.CacheTTLMedia = getDuration("CACHE_TTL_MEDIA", 1*time.Hour)
	cfg.CacheTTLMediaList = getDuration("CACHE_TTL_MEDIA_LIST", 5*time.Minute)

	cfg.S3Endpoint = getEnv("S3_ENDPOINT", "http://localhost:9000")
	cfg.S3AccessKeyID = getEnv("S3_ACCESS_KEY_ID", "minioadmin")
	cfg.S3SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", "minioadmin")
	cfg.S3Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3UsePathStyle = getBoolEnv("S3_USE_PATH_STYLE", true)
	cfg.MediaBucket = getEnv("S3_MEDIA_BUCKET", "media")

	cfg.RLEnabled = getBoolEnv("RL_ENABLED", false)
	cfg.RLLimit = getIntEnv("RL_IP_LIMIT", 100)
	cfg.RLWindow = getDuration("RL_IP_WINDOW", 1*time.Minute)

	cfg.OTelEnabled = getBoolEnv("OTEL_ENABLED", false)
	cfg.OTelEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	cfg.OTelSampleRatio = getFloatEnv("OTEL_SAMPLING_RATIO", 1)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	cfg.HTTPReadTimeout = getDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTPWriteTimeout = getDuration("HTTP_WRITE_TIMEOUT", 20*time.Second)
	cfg.HTTPIdleTimeout = getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)
	cfg.ShutdownGracePeriod = getDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Service {
	case ServicePost, ServiceMedia:
		if c.DatabaseURL == "" {
			return fmt.Errorf("missing DATABASE_URL")
		}
	case ServiceSearch:
		if c.MongoURI == "" {
			return fmt.Errorf("missing MONGO_URI")
		}
	default:
		return fmt.Errorf("unknown service %q", c.Service)
	}

	// The broker is mandatory: a service must not serve without it.
	if c.RabbitURL == "" {
		return fmt.Errorf("missing RABBIT_URL")
	}
	if c.RabbitFailure != "retry" && c.RabbitFailure != "unacked" {
		return fmt.Errorf("invalid RABBIT_FAILURE_POLICY %q (want retry|unacked)", c.RabbitFailure)
	}
	if c.RabbitMaxAttempts <= 0 {
		return fmt.Errorf("RABBIT_MAX_ATTEMPTS must be > 0")
	}
	if c.RabbitBackoffMin <= 0 || c.RabbitBackoffMax < c.RabbitBackoffMin {
		return fmt.Errorf("invalid rabbit backoff window %s..%s", c.RabbitBackoffMin, c.RabbitBackoffMax)
	}
	return nil
}

func defaultAddr(service string) string {
	switch service {
	case ServicePost:
		return ":3002"
	case ServiceMedia:
		return ":3003"
	case ServiceSearch:
		return ":3004"
	default:
		return ":8080"
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getBoolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getFloatEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}
