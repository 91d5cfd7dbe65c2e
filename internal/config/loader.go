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
// built-in defaults, applies ZMART_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ZMART_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ZMART_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ZMART_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ZMART_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ZMART_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ZMART_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ZMART_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ZMART_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ZMART_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ZMART_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ZMART_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ZMART_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ZMART_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ZMART_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ZMART_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ZMART_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ZMART_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ZMART_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ZMART_S3_REGION")
	setStr(&cfg.S3.Bucket, "ZMART_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ZMART_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ZMART_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ZMART_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ZMART_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ZMART_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ZMART_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ZMART_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ZMART_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ZMART_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ZMART_SERVER_RATE_WINDOW")

	// ── Protocol ──
	setStr(&cfg.Protocol.Admin, "ZMART_PROTOCOL_ADMIN")
	setStr(&cfg.Protocol.BackendAuthority, "ZMART_PROTOCOL_BACKEND_AUTHORITY")
	setStr(&cfg.Protocol.ProtocolFeeWallet, "ZMART_PROTOCOL_FEE_WALLET")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ZMART_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ZMART_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "ZMART_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ZMART_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ZMART_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ZMART_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ZMART_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ZMART_MODE")
	setStr(&cfg.LogLevel, "ZMART_LOG_LEVEL")
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
