package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/open-builders/adkamai/internal/common/config"
	"github.com/open-builders/adkamai/internal/common/logger"
	"github.com/open-builders/adkamai/internal/features/account/repository"
	memoryrepo "github.com/open-builders/adkamai/internal/features/account/repository/memory"
	postgresrepo "github.com/open-builders/adkamai/internal/features/account/repository/postgres"
	redisrepo "github.com/open-builders/adkamai/internal/features/account/repository/redis"
	botrepo "github.com/open-builders/adkamai/internal/features/bot/repository"
	pendingmemory "github.com/open-builders/adkamai/internal/features/bot/repository/memory"
	pendingredis "github.com/open-builders/adkamai/internal/features/bot/repository/redis"
	"github.com/open-builders/adkamai/internal/features/bot/router"
	"github.com/open-builders/adkamai/internal/features/ledger"
	rewardhttp "github.com/open-builders/adkamai/internal/features/reward/delivery/http"
	apphttp "github.com/open-builders/adkamai/internal/http"
	"github.com/open-builders/adkamai/internal/platform/db"
	redisplatform "github.com/open-builders/adkamai/internal/platform/redis"
	"github.com/open-builders/adkamai/internal/platform/telegram"
	"github.com/open-builders/adkamai/internal/workers"
)

const appName = "DailyKamai"

// @title           adkamai API
// @version         1.0
// @description     Ad reward confirmation and probes for the adkamai Telegram bot.
// @BasePath        /

// @securityDefinitions.apikey TelegramInitData
// @in header
// @name X-Telegram-Init-Data
// @description Telegram Mini App init data

// @tag.name reward
// @tag.description Ad page and reward confirmation
// @tag.name system
// @tag.description Probes

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init("adkamai", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("Bot stopped with error")
	}
	logger.Info().Msg("Bot exited")
}

type storage struct {
	accounts repository.AccountRepository
	pending  botrepo.PendingStore
	rdb      *goredis.Client
	sqlDB    *sql.DB
}

func (s *storage) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	s := &storage{}
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn().Msg("Using in-memory store; data is lost on restart")
		s.accounts = memoryrepo.NewAccountRepository()
		s.pending = pendingmemory.NewPendingStore()
		return s, nil
	}

	rdb, err := redisplatform.Open(ctx, redisplatform.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}
	s.rdb = rdb
	s.pending = pendingredis.NewPendingStore(rdb)

	if cfg.Store.Driver == config.StoreRedis {
		s.accounts = redisrepo.NewAccountRepository(rdb, cfg.Store.Timeout)
		return s, nil
	}

	sqlDB, err := db.Open(ctx, cfg.Database.URL, db.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.sqlDB = sqlDB
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, sqlDB); err != nil {
			s.Close()
			return nil, err
		}
		logger.Info().Msg("Database schema is up to date")
	}
	s.accounts = postgresrepo.NewAccountRepository(sqlDB, cfg.Store.Timeout)
	return s, nil
}

func policyFromConfig(cfg *config.Config) (ledger.Policy, error) {
	loc, err := cfg.Location()
	if err != nil {
		return ledger.Policy{}, err
	}
	p := cfg.Policy
	return ledger.Policy{
		AdReward:              p.AdReward,
		ReferralReward:        p.ReferralReward,
		DailyAdLimit:          p.DailyAdLimit,
		MinSecondsBetweenAds:  p.MinSecondsBetweenAds,
		MinWithdrawBalance:    p.MinWithdrawBalance,
		MinReferrals:          p.MinReferrals,
		MinDaysBeforeWithdraw: p.MinDaysBeforeWithdraw,
		FullWithdrawReferrals: p.FullWithdrawReferrals,
		Location:              loc,
	}, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info().
		Str("store", cfg.Store.Driver).
		Bool("webhook", cfg.UsesWebhook()).
		Bool("debug", cfg.Debug).
		Msg("Starting adkamai")

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	policy, err := policyFromConfig(cfg)
	if err != nil {
		return err
	}

	tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.GroupID, cfg.Telegram.Debug)
	if err != nil {
		return err
	}
	botLink := "https://t.me/" + tg.Username()

	var publisher ledger.PayoutPublisher
	if store.rdb != nil {
		publisher = workers.NewPayoutPublisher(store.rdb, cfg.Jobs.PayoutStream)
	}
	svc := ledger.NewService(store.accounts, policy, publisher)

	hour, minute, err := cfg.DailyResetTime()
	if err != nil {
		return err
	}
	scheduler, err := workers.NewScheduler(workers.SchedulerConfig{
		Location:    policy.Location,
		ResetHour:   hour,
		ResetMinute: minute,
		BotLink:     botLink,
	}, store.accounts, tg)
	if err != nil {
		return err
	}

	bot := router.NewRouter(router.Config{
		BotUsername:       tg.Username(),
		BaseURL:           cfg.Server.BaseURL,
		GroupInviteURL:    cfg.Telegram.GroupInviteURL,
		AgreementURL:      cfg.Telegram.AgreementURL,
		AdminID:           cfg.Telegram.AdminID,
		MembershipTimeout: cfg.Telegram.MembershipTimeout,
		PendingTTL:        cfg.Telegram.PendingInputTTL,
	}, svc, store.pending, tg, tg,
		router.WithGroupPoster(tg),
		router.WithBroadcastScheduler(scheduler),
	)
	dispatcher := telegram.NewDispatcher(tg, bot, cfg.Telegram.Workers)

	if settings, err := svc.BroadcastSettings(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load broadcast settings")
	} else if err := scheduler.ApplyBroadcast(settings); err != nil {
		logger.Warn().Err(err).Msg("Failed to schedule broadcast")
	}
	scheduler.Start()

	if store.rdb != nil && cfg.Jobs.ForwardPayout {
		hostname, _ := os.Hostname()
		fwd := workers.NewPayoutForwarder(store.rdb, cfg.Jobs.PayoutStream, cfg.Jobs.PayoutGroup,
			"adkamai-"+hostname, tg, cfg.Telegram.AdminID)
		go fwd.Start(ctx)
	}

	checks := []apphttp.Check{{Name: "store", Ping: store.accounts.Ping}}
	if store.rdb != nil {
		checks = append(checks, apphttp.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return store.rdb.Ping(ctx).Err()
		}})
	}
	deps := apphttp.Deps{
		Config:  cfg,
		Rewards: rewardhttp.NewRewardHandler(svc, tg, appName),
		Checks:  checks,
	}
	if cfg.UsesWebhook() {
		dispatcher.SetWebhookSecret(cfg.Telegram.WebhookSecret)
		deps.Webhook = dispatcher
	}
	server := apphttp.NewServer(cfg.Server.Addr, apphttp.NewRouter(deps))

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.UsesWebhook() {
		url := cfg.Server.BaseURL + cfg.Telegram.WebhookPath
		if err := tg.SetWebhook(url, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		logger.Info().Str("url", url).Msg("Webhook registered")
	} else {
		go func() {
			if err := dispatcher.Poll(ctx); err != nil {
				logger.Error().Err(err).Msg("Long polling failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("HTTP server failed")
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	dispatcher.Wait(cfg.Server.ShutdownGrace)
	if err := scheduler.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Scheduler did not stop cleanly")
	}
	return nil
}
