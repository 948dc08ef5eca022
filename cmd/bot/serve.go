package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bezpauzy/eva-bot/internal/admin"
	"github.com/bezpauzy/eva-bot/internal/cache"
	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/database"
	"github.com/bezpauzy/eva-bot/internal/repository"
	"github.com/bezpauzy/eva-bot/internal/responder"
	"github.com/bezpauzy/eva-bot/internal/scheduler"
	"github.com/bezpauzy/eva-bot/internal/server"
	"github.com/bezpauzy/eva-bot/internal/service"
	"github.com/bezpauzy/eva-bot/internal/storage"
	"github.com/bezpauzy/eva-bot/internal/telegram"
	"github.com/bezpauzy/eva-bot/internal/webchat"
	"github.com/bezpauzy/eva-bot/pkg/logger"
)

const (
	updateDedupeTTL = 24 * time.Hour
	rateWindow      = time.Minute
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the web chat API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.New("eva-bot", cfg.LogLevel, cfg.LogPretty))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db, log); err != nil {
		return fmt.Errorf("database migrate: %w", err)
	}

	userRepo := repository.NewUserRepository(db, nil)
	queryRepo := repository.NewQueryRepository(db, nil)
	videoRepo := repository.NewVideoRepository(db, nil)

	var resp responder.Responder = responder.Unconfigured
	if cfg.Gemini.APIKey != "" {
		gemini, err := responder.NewGemini(ctx, cfg.Gemini, log)
		if err != nil {
			return fmt.Errorf("gemini: %w", err)
		}
		resp = gemini
	} else {
		log.Warn().Msg("GEMINI_API_KEY is not set, chat queries will fail")
	}

	users := service.NewUserService(userRepo, queryRepo, nil)
	videos := service.NewVideoService(videoRepo, nil, log)
	chat := service.NewChatService(queryRepo, resp, service.ChatOptions{
		InlineWait:      cfg.Chat.InlineWait,
		MaxInFlight:     cfg.Chat.MaxInFlight,
		GenerateTimeout: cfg.Gemini.Timeout,
	}, log)
	defer chat.Wait()

	api, err := telegram.NewAPI(cfg.Telegram, nil)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if api == nil {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN is not set, outbound messages will fail")
	}
	sender := telegram.NewTransport(api, log)

	var botOpts []telegram.Option
	if cfg.S3.Enabled() {
		archive, err := storage.NewExportArchive(cfg.S3)
		if err != nil {
			return fmt.Errorf("export archive: %w", err)
		}
		botOpts = append(botOpts, telegram.WithExportArchive(archive))
	}
	bot := telegram.NewBot(sender, users, chat, videos, telegram.Settings{
		SiteBaseURL:  cfg.SiteBaseURL,
		SupportEmail: cfg.SupportEmail,
	}, log, botOpts...)

	rdb, err := cache.Open(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	var (
		dedupe  cache.Deduper     = cache.Noop
		limiter cache.RateLimiter = cache.Noop
	)
	if rdb != nil {
		defer rdb.Close()
		dedupe = cache.NewDeduper(rdb, "tg:update:", updateDedupeTTL)
		limiter = cache.NewRateLimiter(rdb, "chat:rate:", int64(cfg.Chat.RateLimit), rateWindow)
	}

	web := webchat.NewHandler(users, chat, limiter, webchat.Options{
		BotToken:    cfg.Telegram.BotToken,
		InitDataTTL: cfg.Chat.InitDataTTL,
	}, log)
	httpServer := server.New(cfg.HTTP, cfg.Telegram.WebhookSecret, bot, web, dedupe, db, log)

	sweeper, err := scheduler.New(chat, scheduler.Config{
		Interval:   cfg.Scheduler.SweepInterval,
		StaleAfter: cfg.Scheduler.StaleAfter,
	}, log)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Run(gCtx) })
	g.Go(func() error { return sweeper.Run(gCtx) })

	if cfg.Admin.Enabled() {
		adminServer := admin.NewServer(cfg.Admin, cfg.Telegram.Channel, log, users, videos, sender)
		g.Go(func() error { return adminServer.Run(gCtx) })
	}

	if cfg.Telegram.Mode == config.ModePolling {
		g.Go(func() error { return runPolling(gCtx, api, bot) })
	}

	log.Info().Str("mode", cfg.Telegram.Mode).Msg("eva-bot started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("eva-bot stopped")
		return err
	}
	log.Info().Msg("eva-bot stopped gracefully")
	return nil
}

// runPolling removes any registered webhook first, getUpdates is refused while one is set.
func runPolling(ctx context.Context, api *tgbotapi.BotAPI, bot *telegram.Bot) error {
	if api != nil {
		if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			return fmt.Errorf("delete webhook before polling: %w", err)
		}
	}
	return bot.Run(ctx, api)
}
