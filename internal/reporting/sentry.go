package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/Amund211/asyncloader/internal/config"
	"github.com/Amund211/asyncloader/internal/logging"
	"github.com/getsentry/sentry-go"
)

var userInfoRx = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/@\s"]+@`)
var queryRx = regexp.MustCompile(`\?[^\s"]*`)
var tempFileRx = regexp.MustCompile(`asyncloader[0-9]+`)

// Remove credentials and volatile parts so equal failures are grouped together
func sanitizeError(err string) string {
	err = userInfoRx.ReplaceAllString(err, "$1<credentials>@")
	err = queryRx.ReplaceAllString(err, "?<query>")
	err = tempFileRx.ReplaceAllString(err, "asyncloader<tmp>")
	return err
}

func Report(ctx context.Context, err error, extras ...map[string]string) {
	if err == nil {
		err = errors.New("No error provided")
	}

	hub := sentry.GetHubFromContext(ctx)
	logger := logging.FromContext(ctx)
	if hub == nil {
		logger.WarnContext(ctx, "Failed to get Sentry hub from context", "error", err, "extras", extras)
		return
	}

	logger.ErrorContext(
		ctx,
		"Reporting error to Sentry",
		slog.String("error", err.Error()),
		slog.Any("extras", extras),
	)

	hub.WithScope(func(scope *sentry.Scope) {
		meta := MetaFromContext(ctx)
		scope.SetTags(meta.tags)
		for key, value := range meta.extras {
			scope.SetExtra(key, value)
		}
		if !meta.startedAt.IsZero() {
			scope.SetExtra("secondsSinceStart", time.Since(meta.startedAt).Seconds())
		}

		for _, extra := range extras {
			if extra == nil {
				continue
			}
			for key, value := range extra {
				scope.SetExtra(key, value)
			}
		}

		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		hub.CaptureException(err)
	})
}

// AddHubToContext gives ctx its own hub, cloned from the current one.
//
// Use it for contexts that live in background goroutines.
func AddHubToContext(ctx context.Context) context.Context {
	if sentry.HasHubOnContext(ctx) {
		return ctx
	}
	return sentry.SetHubOnContext(ctx, sentry.CurrentHub().Clone())
}

func InitSentry(sentryDSN string, environment string) (func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sentryDSN,
		Environment:      environment,
		EnableTracing:    true,
		TracesSampleRate: 1.0 / 100.0,
	})
	if err != nil {
		return nil, err
	}

	flush := func() {
		sentry.Flush(5 * time.Second)
	}

	return flush, nil
}

func NewSentryOrMock(config config.Config) (func(), error) {
	if config.SentryDSN() != "" {
		return InitSentry(config.SentryDSN(), config.Environment())
	}

	if config.IsDevelopment() {
		flush := func() {}
		return flush, nil
	}

	return nil, fmt.Errorf("Missing Sentry DSN in non-development environment")
}
