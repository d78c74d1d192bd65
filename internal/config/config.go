package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env            string
	Port           string
	ClientOrigins  []string
	WebAppURL      string
	Storage        string
	MigrationsDir  string
	SeedDefaults   bool
	NotifyCron     string
	AdminPassword  string
	SessionSecret  string
	SessionMaxAge  int
	SecureCookies  bool
	Telegram       TelegramConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	MembershipTTL  time.Duration
	RequestTimeout time.Duration
}

type TelegramConfig struct {
	BotToken  string
	ChannelID string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	MaxIdle  int
	MaxOpen  int
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DB, c.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.S().Debug("load .env file: ", err)
	}

	cfg := &Config{
		Env:           getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "4000"),
		ClientOrigins: splitList(getEnv("CLIENT_ORIGIN", "http://localhost:5173")),
		WebAppURL:     os.Getenv("WEB_APP_URL"),
		Storage:       getEnv("STORAGE", StoragePostgres),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		SeedDefaults:  getEnvBool("SEED_DEFAULTS", true),
		NotifyCron:    getEnv("NOTIFY_CRON", "*/15 * * * *"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		SessionSecret: os.Getenv("ADMIN_SESSION_SECRET"),
		SessionMaxAge: getEnvInt("ADMIN_SESSION_MAX_AGE", 7*24*60*60),
		Telegram: TelegramConfig{
			BotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChannelID: os.Getenv("TELEGRAM_CHANNEL_ID"),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DB:       getEnv("POSTGRES_DB", "sprint"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxIdle:  getEnvInt("POSTGRES_MAX_IDLE", 10),
			MaxOpen:  getEnvInt("POSTGRES_MAX_OPEN", 20),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MembershipTTL:  getEnvDuration("MEMBERSHIP_CACHE_TTL", time.Minute),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
	}
	cfg.SecureCookies = cfg.IsProduction()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	if c.IsProduction() {
		if c.AdminPassword == "" {
			return fmt.Errorf("ADMIN_PASSWORD is required in production")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("ADMIN_SESSION_SECRET must be at least 32 bytes in production")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		zap.S().Warnf("invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		zap.S().Warnf("invalid %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		zap.S().Warnf("invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
