package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/megalucky/internal/blob/s3"
	"github.com/alanyoungcy/megalucky/internal/cache/memory"
	"github.com/alanyoungcy/megalucky/internal/cache/redis"
	"github.com/alanyoungcy/megalucky/internal/chain"
	"github.com/alanyoungcy/megalucky/internal/config"
	"github.com/alanyoungcy/megalucky/internal/domain"
	"github.com/alanyoungcy/megalucky/internal/metrics"
	"github.com/alanyoungcy/megalucky/internal/notify"
	"github.com/alanyoungcy/megalucky/internal/server/handler"
	"github.com/alanyoungcy/megalucky/internal/service"
	"github.com/alanyoungcy/megalucky/internal/store/postgres"
	"github.com/alanyoungcy/megalucky/internal/wallet"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Network chain.Network
	Wallet  *wallet.Accessor
	Lottery *service.LotteryService

	// Stores
	PurchaseStore domain.PurchaseStore
	AuditStore    domain.AuditStore
	AccessStore   domain.AccessStore

	// Caches
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// DrawArchive is nil unless S3 is enabled.
	DrawArchive domain.DrawArchive

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// HealthChecks feed GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Disabled Redis and Postgres
// sections fall back to in-process implementations.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Network:      network(cfg.Chain),
		Metrics:      metrics.New("megalucky"),
		HealthChecks: make(map[string]handler.HealthCheck),
	}

	// --- Chain + wallet ---
	eth, err := chain.Dial(ctx, cfg.Chain.RPCURL, deps.Network.ID)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, eth.Close)
	deps.HealthChecks["chain"] = func(ctx context.Context) error {
		_, err := eth.BlockNumber(ctx)
		return err
	}

	key, err := wallet.LoadKey(wallet.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil && cfg.HasWallet() {
		return fail(fmt.Errorf("wire: wallet: %w", err))
	}
	deps.Wallet = wallet.NewAccessor(key, eth, deps.Network.ID, logger)
	if addr, err := deps.Wallet.ConnectedAddress(); err == nil {
		logger.Info("wallet connected",
			slog.String("address", addr.Hex()),
			slog.String("explorer", deps.Network.AddressURL(addr)),
		)
	} else {
		logger.Warn("no wallet configured; purchases are disabled")
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.PurchaseStore = postgres.NewPurchaseStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.AccessStore = postgres.NewAccessStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	} else {
		deps.PurchaseStore = memory.NewPurchaseStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		ttl := time.Duration(cfg.Redis.SnapshotTTLSec) * time.Second
		deps.SnapshotCache = redis.NewSnapshotCache(redisClient, ttl)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		// Postgres wins for redemptions when both are enabled.
		if deps.AccessStore == nil {
			deps.AccessStore = redis.NewAccessStore(redisClient)
		}
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.SnapshotCache = memory.NewSnapshotCache()
		deps.RateLimiter = memory.NewRateLimiter(10 * time.Minute)
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus(cfg.Redis.StreamMaxLen)
	}
	if deps.AccessStore == nil {
		deps.AccessStore = memory.NewAccessStore()
	}

	// --- S3 draw archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.DrawArchive = s3blob.NewDrawArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.AuditStore,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Lottery service ---
	deps.Lottery = service.NewLotteryService(
		chain.NewClient(eth, cfg.Lottery.ReceiptPoll.Duration, logger),
		deps.Wallet,
		deps.LockManager,
		service.LotteryConfig{
			Lottery:          common.HexToAddress(cfg.Contracts.Lottery),
			Token:            common.HexToAddress(cfg.Contracts.Token),
			TokenDecimals:    cfg.Contracts.TokenDecimals,
			CallTimeout:      cfg.Lottery.CallTimeout.Duration,
			ReceiptTimeout:   cfg.Lottery.ReceiptTimeout.Duration,
			ConfirmPurchases: cfg.Lottery.ConfirmPurchases,
		},
		logger,
	).
		WithPurchaseStore(deps.PurchaseStore).
		WithAudit(deps.AuditStore).
		WithSignalBus(deps.SignalBus).
		WithRecorder(deps.Metrics)

	return deps, cleanup, nil
}

// network describes the configured chain, filling blanks from the MEGA
// testnet defaults.
func network(c config.ChainConfig) chain.Network {
	n := chain.MegaTestnet()
	n.ID = big.NewInt(c.ID)
	n.RPCURL = c.RPCURL
	n.Testnet = c.Testnet
	if c.Name != "" {
		n.Name = c.Name
	}
	if c.ExplorerName != "" {
		n.ExplorerName = c.ExplorerName
	}
	if c.ExplorerURL != "" {
		n.ExplorerURL = c.ExplorerURL
	}
	if strings.TrimSpace(c.Multicall3) != "" {
		n.Multicall3 = common.HexToAddress(c.Multicall3)
	}
	return n
}
