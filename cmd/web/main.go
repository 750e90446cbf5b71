package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nai-prompt-bot/internal/app"
	"nai-prompt-bot/internal/config"
	"nai-prompt-bot/internal/gemini"
	"nai-prompt-bot/internal/httpclient"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Require{Presets: true})
	if err != nil {
		panic(err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

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

	s := &server{
		presets:        stack.Library,
		engine:         stack.Engine,
		composer:       stack.Composer,
		newSeed:        rand.Uint64,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}
	if stack.Pools != nil {
		s.pools = stack.Pools
	}
	if cfg.GeminiAPIKey != "" {
		s.images = gemini.New(gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("web started", "addr", cfg.WebAddr, "presets", stack.Library.Len())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
