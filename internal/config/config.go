package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	// snapshot storage
	StoreDriver   string
	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	// simulated replies
	AIProvider    string
	ReplyMinDelay time.Duration
	ReplyMaxDelay time.Duration
	ReplySeed     int64

	// rabbitMQ change feed, disabled when RabbitURL is empty
	RabbitURL   string
	RabbitQueue string
}

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:      getEnv("APP_ENV", "dev"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		HTTPAddr: getEnv("HTTP_ADDR", "127.0.0.1:8787"),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DBDSN:         os.Getenv("DB_DSN"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisKey:      getEnv("REDIS_KEY", "hackchat:snapshot"),

		AIProvider: strings.ToLower(getEnv("AI_PROVIDER", "keyword")),

		RabbitURL:   strings.TrimSpace(os.Getenv("RABBIT_URL")),
		RabbitQueue: getEnv("RABBIT_QUEUE", "hackchat_changes"),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("REPLY_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ReplySeed = n
		}
	}

	if cfg.DBDSN == "" {
		switch cfg.StoreDriver {
		case DriverMySQL:
			// app:apppass@tcp(127.0.0.1:3306)/hackchat?charset=utf8mb4&parseTime=true&loc=Local
			cfg.DBDSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
				"app", "apppass", "127.0.0.1", "3306", "hackchat",
			)
		default:
			cfg.DBDSN = "hackchat.db"
		}
	}

	switch cfg.StoreDriver {
	case DriverSQLite, DriverMySQL, DriverRedis:
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER=%q", cfg.StoreDriver)
	}

	var err error
	if cfg.ReplyMinDelay, err = parseDuration("REPLY_MIN_DELAY", "800ms"); err != nil {
		return Config{}, err
	}
	if cfg.ReplyMaxDelay, err = parseDuration("REPLY_MAX_DELAY", "2300ms"); err != nil {
		return Config{}, err
	}
	if cfg.ReplyMinDelay < 0 || cfg.ReplyMaxDelay < cfg.ReplyMinDelay {
		return Config{}, fmt.Errorf("invalid reply delay range %s..%s", cfg.ReplyMinDelay, cfg.ReplyMaxDelay)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return dur, nil
}
