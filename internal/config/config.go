package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr             = ":8080"
	defaultDatabaseURL          = "campus.db"
	defaultJWTSecret            = "change-me-jwt-secret"
	defaultJWTAccessTTL         = "24h"
	defaultTimezone             = "UTC"
	defaultCreateAttempts       = "3"
	defaultStatusAttempts       = "3"
	defaultAvailabilityCacheTTL = "5s"
	defaultEventsTransport      = TransportNone
	defaultKafkaTopic           = "campus.reservations"
	defaultAMQPExchange         = "campus.reservations"
	defaultOutboxPollInterval   = "2s"
	defaultOutboxBatchSize      = "50"
	defaultRequestTimeout       = "10s"
)

const (
	TransportNone     = "none"
	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	DatabaseURL    string
	DBAutoMigrate  bool
	JWTSecret      string
	JWTAccessTTL   time.Duration
	Location       *time.Location
	RequestTimeout time.Duration
	CORSOrigins    []string

	Reservations ReservationConfig
	Redis        RedisConfig
	Events       EventsConfig
}

type ReservationConfig struct {
	CreateAttempts int
	StatusAttempts int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type EventsConfig struct {
	Transport    string
	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string
	PollInterval time.Duration
	BatchSize    int
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "local"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.DBAutoMigrate = parseBoolEnv("DB_AUTO_MIGRATE", strconv.FormatBool(!isProdLike(cfg.AppEnv)))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.CORSOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	var err error
	if cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parseDurationEnv("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return nil, err
	}

	tz := strings.TrimSpace(getEnv("CAMPUS_TIMEZONE", defaultTimezone))
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid CAMPUS_TIMEZONE value %q: %w", tz, err)
	}

	if cfg.Reservations.CreateAttempts, err = parseIntEnv("RESERVATION_CREATE_ATTEMPTS", defaultCreateAttempts); err != nil {
		return nil, err
	}
	if cfg.Reservations.StatusAttempts, err = parseIntEnv("RESERVATION_STATUS_ATTEMPTS", defaultStatusAttempts); err != nil {
		return nil, err
	}

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = parseIntEnv("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = parseDurationEnv("AVAILABILITY_CACHE_TTL", defaultAvailabilityCacheTTL); err != nil {
		return nil, err
	}

	cfg.Events.Transport = strings.ToLower(strings.TrimSpace(getEnv("EVENTS_TRANSPORT", defaultEventsTransport)))
	cfg.Events.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.Events.KafkaTopic = strings.TrimSpace(getEnv("KAFKA_TOPIC", defaultKafkaTopic))
	cfg.Events.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	cfg.Events.AMQPExchange = strings.TrimSpace(getEnv("AMQP_EXCHANGE", defaultAMQPExchange))
	if cfg.Events.PollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", defaultOutboxPollInterval); err != nil {
		return nil, err
	}
	if cfg.Events.BatchSize, err = parseIntEnv("OUTBOX_BATCH_SIZE", defaultOutboxBatchSize); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if cfg.Reservations.CreateAttempts < 1 {
		return fmt.Errorf("RESERVATION_CREATE_ATTEMPTS must be >= 1")
	}
	if cfg.Reservations.StatusAttempts < 1 {
		return fmt.Errorf("RESERVATION_STATUS_ATTEMPTS must be >= 1")
	}
	if cfg.Redis.Enabled() && cfg.Redis.TTL <= 0 {
		return fmt.Errorf("AVAILABILITY_CACHE_TTL must be > 0 when REDIS_ADDR is set")
	}

	switch cfg.Events.Transport {
	case TransportNone:
	case TransportKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS must be set when EVENTS_TRANSPORT=kafka")
		}
		if cfg.Events.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
	case TransportRabbitMQ:
		if cfg.Events.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL must be set when EVENTS_TRANSPORT=rabbitmq")
		}
	default:
		return fmt.Errorf("EVENTS_TRANSPORT must be one of: none, kafka, rabbitmq")
	}
	if cfg.Events.Transport != TransportNone {
		if cfg.Events.PollInterval <= 0 {
			return fmt.Errorf("OUTBOX_POLL_INTERVAL must be > 0")
		}
		if cfg.Events.BatchSize <= 0 {
			return fmt.Errorf("OUTBOX_BATCH_SIZE must be > 0")
		}
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.DBAutoMigrate {
			return fmt.Errorf("in prod/release DB_AUTO_MIGRATE must be false, run cmd/migrator instead")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
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

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
