package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dropsync/dropsync/config"
	"github.com/dropsync/dropsync/internal/api/syncapi"
	"github.com/dropsync/dropsync/internal/broker/kafka"
	"github.com/dropsync/dropsync/internal/broker/messages"
	"github.com/dropsync/dropsync/internal/cache/rediscache"
	"github.com/dropsync/dropsync/internal/integrations/carrier"
	"github.com/dropsync/dropsync/internal/integrations/carrier/fake"
	"github.com/dropsync/dropsync/internal/integrations/carrier/track17"
	"github.com/dropsync/dropsync/internal/integrations/marketplace"
	"github.com/dropsync/dropsync/internal/integrations/suppliers"
	"github.com/dropsync/dropsync/internal/services/tracking"
	"github.com/dropsync/dropsync/internal/services/watcher"
	"github.com/dropsync/dropsync/internal/storage/pgstore"
)

type syncAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     syncAPIOpts
	api      *syncapi.API
	watcher  *watcher.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapSyncAPI() *syncAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.DropSync.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.DropSync.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "sync-api"
	}
	dashboardTTL := time.Duration(cfg.DropSync.DashboardTTLSeconds) * time.Second

	vaultKey, err := hex.DecodeString(cfg.DropSync.CredentialVaultKey)
	if err != nil {
		panic(fmt.Sprintf("credential_vault_key is not valid hex: %v", err))
	}
	vault, err := suppliers.NewVault(vaultKey)
	if err != nil {
		panic(fmt.Sprintf("credential vault: %v", err))
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	locker := rediscache.NewLocker(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, messages.TopicMonitoringAlert, consumerGroup)

	log := slog.Default()

	gw := suppliers.NewGateway(st, vault, nil, log).
		WithRateLimiter(rediscache.NewRateLimiter(redisAddr), int64(cfg.DropSync.SupplierRateLimitPerMinute))
	feed := suppliers.NewFeed(gw, st)
	pusher := marketplace.NewHTTPPusher(st, nil, log)

	watcherSvc := watcher.New(st, feed, pusher, locker, producer, rc, log).
		WithSettings(dashboardTTL, 0)

	trackingSvc := tracking.New(newCarrierClient(cfg), st, producer,
		time.Duration(cfg.DropSync.BatchDelayMillis)*time.Millisecond, log)

	api := syncapi.New(trackingSvc, watcherSvc, gw, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &syncAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: syncAPIOpts{
			httpAddr:      httpAddr,
			topic:         messages.TopicMonitoringAlert,
			consumerGroup: consumerGroup,
		},
		api:      api,
		watcher:  watcherSvc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func newCarrierClient(cfg *config.Config) carrier.Client {
	// Живой провайдер только при явном provider_mode: live.
	// Для локальной разработки и демо — детерминированный fake.
	if cfg.DropSync.ProviderMode == "live" && cfg.DropSync.ProviderBaseURL != "" {
		return track17.New(cfg.DropSync.ProviderBaseURL, cfg.DropSync.ProviderAPIKey)
	}
	return fake.New()
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *syncAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *syncAPIApp) Run() error {
	return runSyncAPI(a.ctx, a.opts, a.api, a.watcher, a.consumer)
}
