package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/dropsync/dropsync/config"
	"github.com/dropsync/dropsync/internal/broker/kafka"
	"github.com/dropsync/dropsync/internal/cache"
	"github.com/dropsync/dropsync/internal/cache/rediscache"
	"github.com/dropsync/dropsync/internal/integrations/carrier"
	"github.com/dropsync/dropsync/internal/integrations/carrier/fake"
	"github.com/dropsync/dropsync/internal/integrations/carrier/track17"
	"github.com/dropsync/dropsync/internal/integrations/marketplace"
	"github.com/dropsync/dropsync/internal/integrations/suppliers"
	"github.com/dropsync/dropsync/internal/services/sweeper"
	"github.com/dropsync/dropsync/internal/services/tracking"
	"github.com/dropsync/dropsync/internal/services/watcher"
	"github.com/dropsync/dropsync/internal/storage/pgstore"
	"github.com/pkg/errors"
)

// workerStorage — всё, что воркеру нужно от Postgres: обход пользователей,
// мониторинги, заказы, креденшалы и интеграции площадок.
type workerStorage interface {
	sweeper.UserDirectory
	watcher.Repository
	tracking.Repository
	suppliers.CredentialStore
	marketplace.IntegrationStore
}

type workerFactories struct {
	newStorage       func(cfg *config.Config) (workerStorage, func(), error)
	newProducer      func(cfg *config.Config) watcher.Publisher
	newLocker        func(cfg *config.Config) watcher.Locker
	newCache         func(cfg *config.Config) cache.BytesCache
	newRateLimiter   func(cfg *config.Config) suppliers.RateLimiter
	newCarrierClient func(cfg *config.Config) carrier.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgstore.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) watcher.Publisher {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newLocker: func(cfg *config.Config) watcher.Locker {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewLocker(redisAddr)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newRateLimiter: func(cfg *config.Config) suppliers.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newCarrierClient: func(cfg *config.Config) carrier.Client {
			// Живой провайдер только при явном provider_mode: live,
			// иначе детерминированный fake для локальной разработки.
			if cfg.DropSync.ProviderMode == "live" && cfg.DropSync.ProviderBaseURL != "" {
				return track17.New(cfg.DropSync.ProviderBaseURL, cfg.DropSync.ProviderAPIKey)
			}
			return fake.New()
		},
	}
}

func RunSyncWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	sweepInterval := time.Duration(cfg.DropSync.WorkerSweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	concurrency := cfg.DropSync.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	userPageSize := cfg.DropSync.WorkerUserPageSize
	if userPageSize <= 0 {
		userPageSize = 200
	}

	vaultKey, err := hex.DecodeString(cfg.DropSync.CredentialVaultKey)
	if err != nil {
		return errors.Wrap(err, "decode credential_vault_key")
	}
	vault, err := suppliers.NewVault(vaultKey)
	if err != nil {
		return errors.Wrap(err, "credential vault")
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	locker := f.newLocker(cfg)
	bc := f.newCache(cfg)
	log := slog.Default()

	gw := suppliers.NewGateway(st, vault, nil, log).
		WithRateLimiter(f.newRateLimiter(cfg), int64(cfg.DropSync.SupplierRateLimitPerMinute))
	feed := suppliers.NewFeed(gw, st)
	pusher := marketplace.NewHTTPPusher(st, nil, log)

	watcherSvc := watcher.New(st, feed, pusher, locker, producer, bc, log).
		WithSettings(time.Duration(cfg.DropSync.DashboardTTLSeconds)*time.Second, 0)

	trackingSvc := tracking.New(f.newCarrierClient(cfg), st, producer,
		time.Duration(cfg.DropSync.BatchDelayMillis)*time.Millisecond, log)

	sw := sweeper.New(st, watcherSvc, trackingSvc).
		WithSettings(sweepInterval, concurrency, userPageSize)

	go func() {
		if err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.DropSync.WorkerHTTPAddr,
			sweeper:  sw,
			cfg:      cfg,
		}); err != nil && err != context.Canceled {
			slog.Error("worker http server", "error", err.Error())
		}
	}()

	return sw.Run(ctx)
}
