package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Amund211/asyncloader/internal/adapters/cache"
	"github.com/Amund211/asyncloader/internal/adapters/decoder"
	"github.com/Amund211/asyncloader/internal/adapters/fetcher"
	"github.com/Amund211/asyncloader/internal/clock"
	"github.com/Amund211/asyncloader/internal/config"
	"github.com/Amund211/asyncloader/internal/domain"
	"github.com/Amund211/asyncloader/internal/loader"
	"github.com/Amund211/asyncloader/internal/ratelimiting"
)

// Just made these up, most hosts are happy with this
const (
	fetchRefillPerSecond = 10
	fetchBurstSize       = 20
)

type LoaderSettings struct {
	NumWorkers        int
	MaxUploadPerFrame int // 0 for unlimited
	WorkerStrategy    string
	CacheLimit        uint64
	CacheTTL          time.Duration
	TempDir           string
	S3Enabled         bool
	S3Endpoint        string
}

func LoaderSettingsFromConfig(conf config.Config) LoaderSettings {
	maxUploadPerFrame, limited := conf.MaxUploadPerFrame()
	if !limited {
		maxUploadPerFrame = 0
	}

	return LoaderSettings{
		NumWorkers:        conf.NumWorkers(),
		MaxUploadPerFrame: maxUploadPerFrame,
		WorkerStrategy:    conf.WorkerStrategy(),
		CacheLimit:        conf.CacheLimit(),
		CacheTTL:          conf.CacheTTL(),
		TempDir:           conf.TempDir(),
		S3Enabled:         conf.S3Enabled(),
		S3Endpoint:        conf.S3Endpoint(),
	}
}

type LoaderComponents struct {
	Loader *loader.Loader
	Clock  *clock.Clock
	// Close stops the loader and releases the background resources
	Close func()
}

// BuildLoader wires a loader with its cache, decoder and fetcher
func BuildLoader(ctx context.Context, settings LoaderSettings, httpClient fetcher.HttpClient, opts ...loader.Option) (LoaderComponents, error) {
	strategyKind, err := loader.ParseStrategyKind(settings.WorkerStrategy)
	if err != nil {
		return LoaderComponents{}, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	limiter, stopLimiter := ratelimiting.NewTokenBucketRateLimiter(fetchRefillPerSecond, fetchBurstSize)
	remote := fetcher.NewDefault(httpClient, limiter)

	if settings.S3Enabled {
		s3Handler, err := fetcher.NewS3HandlerFromEnvironment(ctx, settings.S3Endpoint)
		if err != nil {
			stopLimiter()
			return LoaderComponents{}, fmt.Errorf("failed to initialize s3 handler: %w", err)
		}
		remote.Register("s3", s3Handler)
	}

	store := cache.NewStore[domain.Result]()
	clk := clock.New(time.Now)

	options := []loader.Option{
		loader.WithStrategy(strategyKind),
		loader.WithTempDir(settings.TempDir),
		loader.WithCacheLimits(settings.CacheLimit, settings.CacheTTL),
	}
	options = append(options, opts...)

	l, err := loader.New(ctx, store, decoder.New(), remote, clk, options...)
	if err != nil {
		store.Stop()
		stopLimiter()
		return LoaderComponents{}, fmt.Errorf("failed to create loader: %w", err)
	}

	closeAll := func() {
		l.Stop()
		store.Stop()
		stopLimiter()
	}

	if err := l.SetNumWorkers(settings.NumWorkers); err != nil {
		closeAll()
		return LoaderComponents{}, err
	}
	if settings.MaxUploadPerFrame != 0 {
		if err := l.SetMaxUploadPerFrame(settings.MaxUploadPerFrame); err != nil {
			closeAll()
			return LoaderComponents{}, err
		}
	} else {
		l.SetUnlimitedUploadPerFrame()
	}

	return LoaderComponents{
		Loader: l,
		Clock:  clk,
		Close:  closeAll,
	}, nil
}
