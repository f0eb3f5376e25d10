package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers           []string
	KafkaRequestTopic      string
	KafkaResponseTopic     string
	KafkaNotificationTopic string
	KafkaGroupID           string
	KafkaEnabled           bool
	HTTPAddr               string
	LogLevel               string
	LogFormat              string
	ShutdownTimeout        time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	CatalogPath string

	// Search cache configuration.
	CacheBackend     string
	CachePath        string
	CacheCapacity    int
	CacheLockTimeout time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisCacheKey    string

	// Upstream collaborators.
	NWSBaseURL       string
	NWSUserAgent     string
	NWSTimeout       time.Duration
	OpenMeteoBaseURL string
	UVEnabled        bool
	NominatimBaseURL string

	MaxSearchResults int

	// Watch scheduler. An empty WatchFile disables it.
	WatchFile     string
	WatchInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	lockTimeout, err := parseDuration("CACHE_LOCK_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	nwsTimeout, err := parseDuration("NWS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	watchInterval, err := parseDuration("WATCH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}

	capacity, err := parsePositiveInt("CACHE_CAPACITY", 20)
	if err != nil {
		return nil, err
	}
	maxResults, err := parsePositiveInt("MAX_SEARCH_RESULTS", 500)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:           sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRequestTopic:      sharedcfg.EnvOrDefault("KAFKA_REQUEST_TOPIC", "beach-query-requests"),
		KafkaResponseTopic:     sharedcfg.EnvOrDefault("KAFKA_RESPONSE_TOPIC", "beach-query-responses"),
		KafkaNotificationTopic: sharedcfg.EnvOrDefault("KAFKA_NOTIFICATION_TOPIC", "beach-notifications"),
		KafkaGroupID:           sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "beach-query"),
		KafkaEnabled:           parseBool("KAFKA_ENABLED", true),
		HTTPAddr:               sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:               sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:        shutdownTimeout,
		BatchSize:              batchSize,
		BatchFlushInterval:     flushInterval,

		CatalogPath: sharedcfg.EnvOrDefault("CATALOG_PATH", "data/beach_attributes.json"),

		CacheBackend:     strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheBackendFile)),
		CachePath:        sharedcfg.EnvOrDefault("CACHE_PATH", "data/search_cache.json"),
		CacheCapacity:    capacity,
		CacheLockTimeout: lockTimeout,
		RedisAddr:        sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisCacheKey:    sharedcfg.EnvOrDefault("REDIS_CACHE_KEY", "beach-query:search-cache"),

		NWSBaseURL:       sharedcfg.EnvOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NWSUserAgent:     sharedcfg.EnvOrDefault("NWS_USER_AGENT", "beach-query-service"),
		NWSTimeout:       nwsTimeout,
		OpenMeteoBaseURL: sharedcfg.EnvOrDefault("OPENMETEO_BASE_URL", "https://api.open-meteo.com"),
		UVEnabled:        parseBool("UV_ENABLED", true),
		NominatimBaseURL: sharedcfg.EnvOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),

		MaxSearchResults: maxResults,

		WatchFile:     os.Getenv("WATCH_FILE"),
		WatchInterval: watchInterval,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaRequestTopic == "" {
			return nil, errors.New("KAFKA_REQUEST_TOPIC is required")
		}
		if cfg.KafkaResponseTopic == "" {
			return nil, errors.New("KAFKA_RESPONSE_TOPIC is required")
		}
	}
	if cfg.CatalogPath == "" {
		return nil, errors.New("CATALOG_PATH is required")
	}
	switch cfg.CacheBackend {
	case CacheBackendFile:
		if cfg.CachePath == "" {
			return nil, errors.New("CACHE_PATH is required for the file cache backend")
		}
	case CacheBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q: must be %q or %q", cfg.CacheBackend, CacheBackendFile, CacheBackendRedis)
	}
	if cfg.WatchFile != "" && !cfg.KafkaEnabled {
		return nil, errors.New("WATCH_FILE requires KAFKA_ENABLED for notification delivery")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseBool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
