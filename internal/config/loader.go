package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MEGALUCKY_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults plus
// the environment are used instead. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MEGALUCKY_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setInt64(&cfg.Chain.ID, "MEGALUCKY_CHAIN_ID")
	setStr(&cfg.Chain.Name, "MEGALUCKY_CHAIN_NAME")
	setStr(&cfg.Chain.RPCURL, "MEGALUCKY_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ExplorerURL, "MEGALUCKY_CHAIN_EXPLORER_URL")

	// ── Contracts ──
	setStr(&cfg.Contracts.Lottery, "MEGALUCKY_CONTRACTS_LOTTERY")
	setStr(&cfg.Contracts.Token, "MEGALUCKY_CONTRACTS_TOKEN")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MEGALUCKY_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MEGALUCKY_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MEGALUCKY_WALLET_KEY_PASSWORD")

	// ── Lottery ──
	setDuration(&cfg.Lottery.CallTimeout, "MEGALUCKY_LOTTERY_CALL_TIMEOUT")
	setDuration(&cfg.Lottery.ReceiptTimeout, "MEGALUCKY_LOTTERY_RECEIPT_TIMEOUT")
	setDuration(&cfg.Lottery.PollInterval, "MEGALUCKY_LOTTERY_POLL_INTERVAL")
	setBool(&cfg.Lottery.ConfirmPurchases, "MEGALUCKY_LOTTERY_CONFIRM_PURCHASES")
	setInt(&cfg.Lottery.MaxRandomTickets, "MEGALUCKY_LOTTERY_MAX_RANDOM_TICKETS")
	setStr(&cfg.Lottery.CurrencySymbol, "MEGALUCKY_LOTTERY_CURRENCY_SYMBOL")
	setStr(&cfg.Lottery.TimeZone, "MEGALUCKY_LOTTERY_TIME_ZONE")

	// ── Access ──
	setBool(&cfg.Access.Enabled, "MEGALUCKY_ACCESS_ENABLED")
	setStringSlice(&cfg.Access.Codes, "MEGALUCKY_ACCESS_CODES")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MEGALUCKY_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MEGALUCKY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MEGALUCKY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MEGALUCKY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MEGALUCKY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MEGALUCKY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MEGALUCKY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MEGALUCKY_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "MEGALUCKY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MEGALUCKY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MEGALUCKY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MEGALUCKY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MEGALUCKY_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "MEGALUCKY_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MEGALUCKY_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MEGALUCKY_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MEGALUCKY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MEGALUCKY_S3_REGION")
	setStr(&cfg.S3.Bucket, "MEGALUCKY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MEGALUCKY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MEGALUCKY_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "MEGALUCKY_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MEGALUCKY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MEGALUCKY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MEGALUCKY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MEGALUCKY_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MEGALUCKY_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MEGALUCKY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MEGALUCKY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MEGALUCKY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MEGALUCKY_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.Format, "MEGALUCKY_LOG_FORMAT")
	setStr(&cfg.Log.File, "MEGALUCKY_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "MEGALUCKY_MODE")
	setStr(&cfg.LogLevel, "MEGALUCKY_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses cleanly.

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
