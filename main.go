package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/Amund211/asyncloader/internal/adapters/fetcher"
	"github.com/Amund211/asyncloader/internal/app"
	"github.com/Amund211/asyncloader/internal/config"
	"github.com/Amund211/asyncloader/internal/loader"
	"github.com/Amund211/asyncloader/internal/logging"
	"github.com/Amund211/asyncloader/internal/reporting"
	"github.com/Amund211/asyncloader/internal/telemetry"
	"github.com/google/uuid"
)

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	if config.DocumentationMode() {
		logger.Info("Documentation mode, not starting the loader")
		return
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.AddToContext(ctx, logger)

	flush, err := reporting.NewSentryOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry")

	if config.OTelEnabled() {
		shutdown, err := telemetry.SetupOTelSDK(ctx, "asyncloader")
		if err != nil {
			fail("Failed to initialize OpenTelemetry", "error", err.Error())
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	identifiers := os.Args[1:]
	if len(identifiers) == 0 {
		fail("No images provided")
	}

	components, err := app.BuildLoader(ctx, app.LoaderSettingsFromConfig(config), fetcher.NewHTTPClient(30*time.Second), loader.WithLogger(logger))
	if err != nil {
		fail("Failed to initialize loader", "error", err.Error())
	}
	defer components.Close()

	loadAll := app.BuildLoadAll(components.Loader, components.Clock, config.FramesPerSecond())

	logger.Info("Init complete", "images", len(identifiers))
	placeholders, err := loadAll(ctx, identifiers)
	if err != nil {
		logger.Error("Loading was interrupted", "error", err.Error())
	}

	failed := 0
	for _, placeholder := range placeholders {
		attrs := []any{
			"identifier", placeholder.Identifier(),
			"state", placeholder.State().String(),
			"width", placeholder.Image().Width(),
			"height", placeholder.Image().Height(),
		}
		if placeholder.Err() != nil {
			failed++
			attrs = append(attrs, "error", placeholder.Err().Error())
		}
		logger.Info("Image result", attrs...)
	}

	if failed > 0 || err != nil {
		// Deferred cleanup does not run after os.Exit
		components.Close()
		flush()
		fail("Some images could not be loaded", "failed", failed)
	}
}
