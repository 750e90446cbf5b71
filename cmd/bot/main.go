package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nai-prompt-bot/internal/app"
	"nai-prompt-bot/internal/config"
	"nai-prompt-bot/internal/gemini"
	"nai-prompt-bot/internal/handlers"
	"nai-prompt-bot/internal/httpclient"
	"nai-prompt-bot/internal/session"
	"nai-prompt-bot/internal/telegram"
)

const sessionIdle = 24 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Require{Telegram: true, Presets: true})
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("prompt stack init failed", "err", err)
		os.Exit(1)
	}
	defer stack.Close()

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	opts := handlers.Options{
		Messenger: tg,
		Presets:   stack.Library,
		Engine:    stack.Engine,
		Composer:  stack.Composer,
		Sessions:  session.NewStore(session.Options{}),
		Logger:    logger,
	}
	if cfg.GeminiAPIKey != "" {
		opts.Images = gemini.New(gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	} else {
		logger.Info("GEMINI_API_KEY not set, /image disabled")
	}
	if stack.Pools != nil {
		opts.Pools = stack.Pools
	}
	handler := handlers.New(opts)

	go pruneSessions(ctx, opts.Sessions, logger)

	logger.Info("bot started", "username", tg.Username(), "presets", stack.Library.Len())

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	sem := make(chan struct{}, cfg.MaxConcurrent)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

func pruneSessions(ctx context.Context, store *session.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Prune(sessionIdle); n > 0 {
				logger.Debug("sessions pruned", "count", n)
			}
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
