package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OPPREDICT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OPPREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "OPPREDICT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OPPREDICT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPPREDICT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPPREDICT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPPREDICT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPPREDICT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPPREDICT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPPREDICT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPPREDICT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPPREDICT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "OPPREDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPPREDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPPREDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPPREDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPPREDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPPREDICT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "OPPREDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OPPREDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "OPPREDICT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OPPREDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OPPREDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OPPREDICT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OPPREDICT_S3_FORCE_PATH_STYLE")

	// ── Auth ──
	setStringSlice(&cfg.Auth.AdminIDs, "OPPREDICT_AUTH_ADMIN_IDS")
	setStr(&cfg.Auth.TokenSecret, "OPPREDICT_AUTH_TOKEN_SECRET")

	// ── Server ──
	setInt(&cfg.Server.Port, "OPPREDICT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPPREDICT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "OPPREDICT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "OPPREDICT_SERVER_RATE_LIMIT_WINDOW")

	// ── Cache ──
	setDuration(&cfg.Cache.MarketTTL, "OPPREDICT_CACHE_MARKET_TTL")
	setDuration(&cfg.Cache.LeaderboardRefresh, "OPPREDICT_CACHE_LEADERBOARD_REFRESH")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "OPPREDICT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "OPPREDICT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "OPPREDICT_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OPPREDICT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OPPREDICT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OPPREDICT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OPPREDICT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "OPPREDICT_MODE")
	setStr(&cfg.LogLevel, "OPPREDICT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
