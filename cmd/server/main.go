// Package main is the entry point for the outfit calendar server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (env vars, optionally from a .env file)
// 2. Create dependencies (logger, day resolver, AI providers)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/outfit-calendar/internal/config"
	"github.com/sakif/outfit-calendar/internal/daykey"
	"github.com/sakif/outfit-calendar/internal/generator"
	"github.com/sakif/outfit-calendar/internal/generator/gemini"
	"github.com/sakif/outfit-calendar/internal/generator/openai"
	"github.com/sakif/outfit-calendar/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load reports every bad variable at once, so a broken deploy
	// shows the full list instead of one error per restart.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Text for humans at a terminal, JSON for log collectors.
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	// === 3. BUSINESS DAY ===
	days, err := daykey.New(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. AI PROVIDERS ===
	// Gemini always serves text and photo analysis; images come from
	// Gemini or OpenAI depending on IMAGE_PROVIDER.
	ctx := context.Background()
	gem, err := gemini.New(ctx, gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
	}, logger)
	if err != nil {
		logger.Error("failed to create Gemini client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var images generator.ImageGenerator = gem
	if cfg.ImageProvider == config.ProviderOpenAI {
		images, err = openai.New(openai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIImageModel,
			Size:   cfg.OpenAIImageSize,
		}, logger)
		if err != nil {
			logger.Error("failed to create OpenAI client", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(ctx, cfg, server.Providers{
		Text:     gem,
		Images:   images,
		Analyzer: gem,
	}, days, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
