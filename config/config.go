package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials (only needed for fetching history)
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	HTTPAddr      string

	// Snapshots cached in Redis expire after this long.
	SnapshotTTL time.Duration

	// Post-close refresh schedule (cron with seconds field, IST).
	RefreshCron string

	// Concurrent instruments per refresh.
	RefreshWorkers int

	LogLevel   string
	ParamsFile string
	WebhookURL string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file is applied first (see LoadDotEnv).
func Load() *Config {
	LoadDotEnv()
	return &Config{
		AngelAPIKey:     os.Getenv("ANGEL_API_KEY"),
		AngelClientCode: os.Getenv("ANGEL_CLIENT_CODE"),
		AngelPassword:   os.Getenv("ANGEL_PASSWORD"),
		AngelTOTPSecret: os.Getenv("ANGEL_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":9095"),

		SnapshotTTL: getEnvDuration("SNAPSHOT_TTL", 24*time.Hour),

		// 15:45 IST, Monday to Friday
		RefreshCron:    getEnv("REFRESH_CRON", "0 45 15 * * 1-5"),
		RefreshWorkers: getEnvInt("REFRESH_WORKERS", 4),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ParamsFile: getEnv("PARAMS_FILE", "params.yaml"),
		WebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

// RequireBroker reports which Angel One credentials are missing, if any.
func (c *Config) RequireBroker() error {
	missing := []string{}
	for k, v := range map[string]string{
		"ANGEL_API_KEY":     c.AngelAPIKey,
		"ANGEL_CLIENT_CODE": c.AngelClientCode,
		"ANGEL_PASSWORD":    c.AngelPassword,
		"ANGEL_TOTP_SECRET": c.AngelTOTPSecret,
	} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required env vars not set: %v", sorted(missing))
	}
	return nil
}

var dotenvOnce sync.Once

// LoadDotEnv applies ENV_FILE (default ".env") to the process environment
// once. Variables already set are left untouched. NO_DOTENV=1 disables it.
func LoadDotEnv() {
	dotenvOnce.Do(func() {
		if os.Getenv("NO_DOTENV") == "1" {
			return
		}
		path := getEnv("ENV_FILE", ".env")
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[config] ignoring %s: %v", path, err)
		}
	})
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
