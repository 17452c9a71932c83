package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the runtime's full knob set, grounded on the teacher's
// config.Config (same getEnv/getEnvInt/buildDBURL loading style),
// extended with the SignalBus rate limits, offline-queue and undo-stack
// knobs spec §6 calls out, plus the Redis cache and Postgres connection
// settings the domain stack wires in.
type Config struct {
	Env         string `validate:"required,oneof=dev staging prod"`
	Port        int    `validate:"required,gt=0,lt=65536"`
	DebugLogging bool

	DBURL string `validate:"required"`

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	OtelEndpoint  string
	OtelServiceName string `validate:"required"`

	Bus    BusConfig
	Offline OfflineConfig
	Undo   UndoConfig
}

// BusConfig holds the SignalBus rate limiter knobs from spec §9's
// resolved open question: a default per-event-type cap with an
// override for the Progress event type.
type BusConfig struct {
	MaxEventsPerSecond int            `validate:"required,gt=0"`
	TypeEventLimits    map[string]int
}

// OfflineConfig holds the OfflineQueueManager knobs from spec §4.5/§6.
type OfflineConfig struct {
	MaxRetries    int  `validate:"gte=0"`
	DrainOnStart  bool
	DrainWorkers  int `validate:"required,gt=0"`
	FileSafetyDir string `validate:"required"`
}

// UndoConfig holds the UndoStackManager knobs from spec §4.7/§9.
type UndoConfig struct {
	MaxHistory     int           `validate:"gte=0"`
	CoalesceWindow time.Duration `validate:"gte=0"`
}

func Load() (Config, error) {
	cfg := Config{
		Env:          getEnv("APP_ENV", "dev"),
		Port:         getEnvInt("PORT", 8080),
		DebugLogging: getEnvBool("DEBUG_LOGGING", false),
		DBURL:        buildDBURL(),

		RedisAddr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "jobrt:"),

		OtelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelServiceName: getEnv("OTEL_SERVICE_NAME", "jobrt"),

		Bus: BusConfig{
			MaxEventsPerSecond: getEnvInt("BUS_MAX_EVENTS_PER_SECOND", 50),
			TypeEventLimits:    parseTypeLimits(getEnv("BUS_TYPE_EVENT_LIMITS", "job_progress=100")),
		},
		Offline: OfflineConfig{
			MaxRetries:    getEnvInt("OFFLINE_MAX_RETRIES", 5),
			DrainOnStart:  getEnvBool("OFFLINE_DRAIN_ON_START", true),
			DrainWorkers:  getEnvInt("OFFLINE_DRAIN_WORKERS", 4),
			FileSafetyDir: getEnv("OFFLINE_FILE_SAFETY_DIR", "/var/lib/jobrt/offline-files"),
		},
		Undo: UndoConfig{
			MaxHistory:     getEnvInt("UNDO_MAX_HISTORY", 0),
			CoalesceWindow: getEnvDuration("UNDO_COALESCE_WINDOW", 500*time.Millisecond),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "jobrt")
	pass := getEnv("DB_PASSWORD", "jobrt")
	name := getEnv("DB_NAME", "jobrt")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// parseTypeLimits reads a "type=limit,type=limit" override string, the
// env-var-friendly encoding of BusConfig.TypeEventLimits.
func parseTypeLimits(raw string) map[string]int {
	out := map[string]int{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = n
	}
	return out
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}
