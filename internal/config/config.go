// Package config defines the top-level configuration for the megalucky
// lottery service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MEGALUCKY_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Contracts ContractsConfig `toml:"contracts"`
	Wallet    WalletConfig    `toml:"wallet"`
	Lottery   LotteryConfig   `toml:"lottery"`
	Access    AccessConfig    `toml:"access"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Log       LogConfig       `toml:"log"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig describes the target EVM network.
type ChainConfig struct {
	ID           int64  `toml:"id"`
	Name         string `toml:"name"`
	RPCURL       string `toml:"rpc_url"`
	ExplorerName string `toml:"explorer_name"`
	ExplorerURL  string `toml:"explorer_url"`
	Multicall3   string `toml:"multicall3"`
	Testnet      bool   `toml:"testnet"`
}

// ContractsConfig holds the deployed lottery and payment token addresses.
type ContractsConfig struct {
	Lottery       string `toml:"lottery"`
	Token         string `toml:"token"`
	TokenDecimals int32  `toml:"token_decimals"`
}

// WalletConfig holds signing key credentials. Both sources may be empty, in
// which case the service runs read-only.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// LotteryConfig tunes the lottery client.
type LotteryConfig struct {
	CallTimeout      duration `toml:"call_timeout"`
	ReceiptTimeout   duration `toml:"receipt_timeout"`
	ReceiptPoll      duration `toml:"receipt_poll"`
	PollInterval     duration `toml:"poll_interval"`
	ConfirmPurchases bool     `toml:"confirm_purchases"`
	MaxRandomTickets int      `toml:"max_random_tickets"`
	CurrencySymbol   string   `toml:"currency_symbol"`
	TimeZone         string   `toml:"time_zone"`
}

// AccessConfig lists the single-use invite codes accepted by the access gate.
type AccessConfig struct {
	Enabled bool     `toml:"enabled"`
	Codes   []string `toml:"codes"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"pool_size"`
	MaxRetries     int    `toml:"max_retries"`
	TLSEnabled     bool   `toml:"tls_enabled"`
	KeyPrefix      string `toml:"key_prefix"`
	SnapshotTTLSec int    `toml:"snapshot_ttl_sec"`
	StreamMaxLen   int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for draw archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled       bool     `toml:"enabled"`
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	APIKey        string   `toml:"api_key"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindowSec int      `toml:"rate_window_sec"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig controls log output. An empty File logs to stdout.
type LogConfig struct {
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config targeting the MEGA testnet.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ID:           6342,
			Name:         "MEGA Testnet",
			RPCURL:       "https://carrot.megaeth.com/rpc",
			ExplorerName: "MegaExplorer",
			ExplorerURL:  "https://megaexplorer.xyz",
			Multicall3:   "0xca11bde05977b3631167028862be2a173976ca11",
			Testnet:      true,
		},
		Contracts: ContractsConfig{
			TokenDecimals: 18,
		},
		Lottery: LotteryConfig{
			CallTimeout:      duration{15 * time.Second},
			ReceiptTimeout:   duration{2 * time.Minute},
			ReceiptPoll:      duration{time.Second},
			PollInterval:     duration{15 * time.Second},
			ConfirmPurchases: true,
			MaxRandomTickets: 100,
			CurrencySymbol:   "MEGA",
			TimeZone:         "Local",
		},
		Access: AccessConfig{
			Enabled: true,
			Codes:   []string{"omega", "fluffle"},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "megalucky",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       10,
			MaxRetries:     3,
			KeyPrefix:      "megalucky",
			SnapshotTTLSec: 60,
			StreamMaxLen:   10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "megalucky-draws",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:     60,
			RateWindowSec: 60,
		},
		Notify: NotifyConfig{
			Events: []string{"purchase", "draw_completed", "error"},
		},
		Log: LogConfig{
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server": true,
	"watch":  true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, watch, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("log: format must be json or text, got %q", c.Log.Format))
	}

	// Chain
	if c.Chain.ID <= 0 {
		errs = append(errs, "chain: id must be positive")
	}
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}

	// Contracts
	if !common.IsHexAddress(c.Contracts.Lottery) {
		errs = append(errs, fmt.Sprintf("contracts: lottery %q is not a hex address", c.Contracts.Lottery))
	}
	if !common.IsHexAddress(c.Contracts.Token) {
		errs = append(errs, fmt.Sprintf("contracts: token %q is not a hex address", c.Contracts.Token))
	}
	if c.Contracts.TokenDecimals < 0 || c.Contracts.TokenDecimals > 36 {
		errs = append(errs, "contracts: token_decimals must be 0-36")
	}

	// Wallet
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Lottery
	if c.Lottery.CallTimeout.Duration <= 0 {
		errs = append(errs, "lottery: call_timeout must be > 0")
	}
	if c.Lottery.ReceiptTimeout.Duration <= 0 {
		errs = append(errs, "lottery: receipt_timeout must be > 0")
	}
	if c.Lottery.ReceiptPoll.Duration <= 0 {
		errs = append(errs, "lottery: receipt_poll must be > 0")
	}
	if c.Lottery.PollInterval.Duration <= 0 {
		errs = append(errs, "lottery: poll_interval must be > 0")
	}
	if c.Lottery.MaxRandomTickets < 1 {
		errs = append(errs, "lottery: max_random_tickets must be >= 1")
	}
	if c.Lottery.TimeZone != "" {
		if _, err := time.LoadLocation(c.Lottery.TimeZone); err != nil {
			errs = append(errs, fmt.Sprintf("lottery: time_zone %q: %v", c.Lottery.TimeZone, err))
		}
	}

	// Access
	if c.Access.Enabled && len(c.Access.Codes) == 0 {
		errs = append(errs, "access: codes must not be empty when access is enabled")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindowSec <= 0 {
			errs = append(errs, "server: rate_window_sec must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// HasWallet reports whether a signing key source is configured.
func (c *Config) HasWallet() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.EncryptedKeyPath != ""
}

// Location resolves Lottery.TimeZone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Lottery.TimeZone == "" || c.Lottery.TimeZone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Lottery.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
