// Package loader loads images in the background and hands them to placeholders on the frame clock.
//
// Request returns a Placeholder right away. Workers fetch and decode the image, and the
// frame pump delivers at most a fixed number of completed results per pass.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/Amund211/asyncloader/internal/adapters/cache"
	"github.com/Amund211/asyncloader/internal/adapters/decoder"
	"github.com/Amund211/asyncloader/internal/adapters/fetcher"
	"github.com/Amund211/asyncloader/internal/clock"
	"github.com/Amund211/asyncloader/internal/domain"
	"github.com/Amund211/asyncloader/internal/logging"
	"github.com/Amund211/asyncloader/internal/queue"
	"github.com/Amund211/asyncloader/internal/reporting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const CacheNamespace = "loader"

const (
	DefaultNumWorkers        = 2
	DefaultMaxUploadPerFrame = 2
	DefaultCacheLimit        = 500
	DefaultCacheTTL          = 60 * time.Second
	DefaultPumpInterval      = time.Second / 25

	// Workers hold off while more than this many frames worth of results are waiting
	backpressureFrames = 2

	tempFilePrefix = "asyncloader"
)

type Cache interface {
	Register(namespace string, limit uint64, ttl time.Duration)
	Get(namespace, key string) cache.Entry[domain.Result]
	GetOrClaim(namespace, key string) (cache.Entry[domain.Result], bool)
	Append(namespace, key string, data domain.Result)
	Remove(namespace, key string)
}

type Decoder interface {
	Decode(ctx context.Context, source string, keepData bool, options domain.DecodeOptions) (*domain.Image, error)
}

type Fetcher interface {
	Handles(identifier string) bool
	Open(ctx context.Context, identifier string) (io.ReadCloser, error)
}

type settings struct {
	logger         *slog.Logger
	strategyKind   StrategyKind
	pumpInterval   time.Duration
	tempDir        string
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	nowFunc        func() time.Time
	cacheLimit     uint64
	cacheTTL       time.Duration
}

type Option func(*settings)

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func WithStrategy(kind StrategyKind) Option {
	return func(s *settings) {
		s.strategyKind = kind
	}
}

// WithPumpInterval limits how often the frame pump runs. 0 runs it on every tick.
func WithPumpInterval(interval time.Duration) Option {
	return func(s *settings) {
		s.pumpInterval = interval
	}
}

// WithTempDir sets where downloads are stored while they are decoded. Empty uses the OS default.
func WithTempDir(dir string) Option {
	return func(s *settings) {
		s.tempDir = dir
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(s *settings) {
		s.meterProvider = provider
	}
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(s *settings) {
		s.tracerProvider = provider
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *settings) {
		s.nowFunc = nowFunc
	}
}

func WithCacheLimits(limit uint64, ttl time.Duration) Option {
	return func(s *settings) {
		s.cacheLimit = limit
		s.cacheTTL = ttl
	}
}

type Loader struct {
	cache     Cache
	decoder   Decoder
	fetcher   Fetcher
	scheduler FrameScheduler

	ctx    context.Context
	cancel context.CancelFunc

	pending   *queue.Deque[LoadRequest]
	completed *queue.Deque[CompletedResult]

	strategy    Strategy
	trigger     *clock.Trigger
	pumpLimiter *rate.Limiter
	tempDir     string
	nowFunc     func() time.Time

	// Guards the cache state transitions together with the clients registry
	mutex   sync.Mutex
	clients map[string][]*Placeholder
	// Identifiers with a queued or running load that will write the cache
	inFlight          map[string]struct{}
	numWorkers        int
	maxUploadPerFrame int // 0 for unlimited
	startWanted       bool
	started           bool
	stopped           bool

	loadingImage func() *domain.Image
	errorImage   func() *domain.Image

	metrics loaderMetricsCollection
	tracer  trace.Tracer
}

// New creates a loader that is driven by scheduler.
//
// remote may be nil, in which case every identifier without a custom LoadFunc is decoded
// as a local file. The loader stops when ctx is cancelled.
func New(ctx context.Context, store Cache, imageDecoder Decoder, remote Fetcher, scheduler FrameScheduler, opts ...Option) (*Loader, error) {
	const name = "asyncloader/loader"

	s := settings{
		strategyKind:   StrategyAuto,
		pumpInterval:   DefaultPumpInterval,
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		nowFunc:        time.Now,
		cacheLimit:     DefaultCacheLimit,
		cacheTTL:       DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.pumpInterval < 0 {
		return nil, fmt.Errorf("%w: pump interval must not be negative, got %s", domain.ErrConfiguration, s.pumpInterval)
	}
	if s.cacheTTL <= 0 {
		return nil, fmt.Errorf("%w: cache ttl must be positive, got %s", domain.ErrConfiguration, s.cacheTTL)
	}
	if _, err := ParseStrategyKind(string(s.strategyKind)); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	if s.logger != nil {
		ctx = logging.AddToContext(ctx, s.logger)
	}
	ctx = logging.AddMetaToContext(ctx, slog.String("component", "loader"))
	ctx = reporting.AddHubToContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	l := &Loader{
		cache:     store,
		decoder:   imageDecoder,
		fetcher:   remote,
		scheduler: scheduler,

		ctx:    ctx,
		cancel: cancel,

		pending:   queue.NewDeque[LoadRequest](),
		completed: queue.NewDeque[CompletedResult](),

		tempDir: s.tempDir,
		nowFunc: s.nowFunc,

		clients:           make(map[string][]*Placeholder),
		inFlight:          make(map[string]struct{}),
		numWorkers:        DefaultNumWorkers,
		maxUploadPerFrame: DefaultMaxUploadPerFrame,

		tracer: s.tracerProvider.Tracer(name),
	}

	metrics, err := setupLoaderMetrics(s.meterProvider.Meter(name), l.pending.Len, l.completed.Len)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	l.metrics = metrics

	if s.pumpInterval > 0 {
		l.pumpLimiter = rate.NewLimiter(rate.Every(s.pumpInterval), 1)
	}

	l.loadingImage = sync.OnceValue(func() *domain.Image {
		return l.builtinImage(decoder.LoadingImageSource)
	})
	l.errorImage = sync.OnceValue(func() *domain.Image {
		return l.builtinImage(decoder.MissingImageSource)
	})

	switch resolveStrategyKind(s.strategyKind) {
	case StrategyCooperative:
		l.strategy = newCooperativeStrategy(scheduler, l.runOne, l.blocked)
	default:
		l.strategy = newPoolStrategy(l.runOne, l.blocked)
	}

	l.trigger = scheduler.CreateTrigger(l.update)
	store.Register(CacheNamespace, s.cacheLimit, s.cacheTTL)

	logging.FromContext(ctx).InfoContext(ctx, "Created loader", "strategy", l.strategy.Name())

	return l, nil
}

func (l *Loader) builtinImage(source string) *domain.Image {
	img, err := l.decoder.Decode(l.ctx, source, true, domain.DecodeOptions{})
	if err != nil {
		logging.FromContext(l.ctx).WarnContext(l.ctx, "Failed to decode builtin image", "source", source, "error", err.Error())
		return &domain.Image{Source: source}
	}
	return img
}

// LoadingImage is shown by placeholders while they wait for their image
func (l *Loader) LoadingImage() *domain.Image {
	return l.loadingImage()
}

// ErrorImage is shown by placeholders whose image could not be loaded
func (l *Loader) ErrorImage() *domain.Image {
	return l.errorImage()
}

func (l *Loader) StrategyName() string {
	return l.strategy.Name()
}

// Workers returns the number of workers the strategy is running
func (l *Loader) Workers() int {
	return l.strategy.Workers()
}

func (l *Loader) SetNumWorkers(numWorkers int) error {
	if numWorkers < 2 {
		return fmt.Errorf("%w: num_workers must be at least 2, got %d", domain.ErrConfiguration, numWorkers)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.numWorkers = numWorkers
	if l.started {
		logging.FromContext(l.ctx).InfoContext(l.ctx, "Worker count changed after start, keeping the running pool", "numWorkers", numWorkers)
	}
	return nil
}

func (l *Loader) NumWorkers() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.numWorkers
}

func (l *Loader) SetMaxUploadPerFrame(maxUploadPerFrame int) error {
	if maxUploadPerFrame < 1 {
		return fmt.Errorf("%w: max_upload_per_frame must be at least 1, got %d", domain.ErrConfiguration, maxUploadPerFrame)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.maxUploadPerFrame = maxUploadPerFrame
	return nil
}

// SetUnlimitedUploadPerFrame makes the pump drain every completed result on each pass
func (l *Loader) SetUnlimitedUploadPerFrame() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.maxUploadPerFrame = 0
}

// MaxUploadPerFrame returns the pump budget, or false if it is unlimited
func (l *Loader) MaxUploadPerFrame() (int, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.maxUploadPerFrame, l.maxUploadPerFrame != 0
}

// Start starts the workers. Otherwise they are started by the first pump pass after a request.
func (l *Loader) Start() {
	l.mutex.Lock()
	if l.started || l.stopped {
		l.mutex.Unlock()
		return
	}
	l.started = true
	numWorkers := l.numWorkers
	l.mutex.Unlock()

	l.strategy.Start(l.ctx, numWorkers)
	logging.FromContext(l.ctx).InfoContext(l.ctx, "Started loader", "strategy", l.strategy.Name(), "numWorkers", numWorkers)
}

func (l *Loader) startIfWanted() {
	l.mutex.Lock()
	wanted := l.startWanted && !l.started
	l.mutex.Unlock()

	if wanted {
		l.Start()
	}
}

// Stop stops the workers and the frame pump. A stopped loader can not be restarted.
func (l *Loader) Stop() {
	l.mutex.Lock()
	if l.stopped {
		l.mutex.Unlock()
		return
	}
	l.stopped = true
	l.mutex.Unlock()

	l.trigger.Cancel()
	l.cancel()
	l.strategy.Stop()
	logging.FromContext(l.ctx).InfoContext(l.ctx, "Stopped loader")
}

// Request returns a placeholder that will receive the image for identifier.
//
// Requests for an identifier that is already being loaded share the same load.
// A stopped loader returns an errored placeholder without touching the cache.
func (l *Loader) Request(ctx context.Context, identifier string, opts ...RequestOption) *Placeholder {
	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}

	placeholder := newPlaceholder(identifier, options.options, l.LoadingImage())

	if identifier == "" {
		l.recordRequest(ctx, "empty")
		placeholder.deliver(l.ErrorImage(), domain.ErrEmptyIdentifier)
		return placeholder
	}

	l.mutex.Lock()
	if l.stopped {
		l.mutex.Unlock()
		l.recordRequest(ctx, "stopped")
		placeholder.deliver(l.ErrorImage(), fmt.Errorf("%w: %s", domain.ErrLoaderStopped, identifier))
		return placeholder
	}

	if !options.options.NoCache {
		entry, claimed := l.cache.GetOrClaim(CacheNamespace, identifier)
		// The cache may have evicted the in-progress marker of a running load
		_, inFlight := l.inFlight[identifier]
		switch {
		case entry.State == cache.Present:
			l.mutex.Unlock()
			if entry.Data.Err != nil {
				l.recordRequest(ctx, "negative_hit")
			} else {
				l.recordRequest(ctx, "hit")
			}
			placeholder.deliver(entry.Data.Image, entry.Data.Err)
			return placeholder
		case (entry.State == cache.InProgress && !claimed) || inFlight:
			l.clients[identifier] = append(l.clients[identifier], placeholder)
			l.mutex.Unlock()
			l.recordRequest(ctx, "in_progress")
			return placeholder
		}
		l.inFlight[identifier] = struct{}{}
		l.recordRequest(ctx, "miss")
	} else {
		l.recordRequest(ctx, "no_cache")
	}

	l.pending.PushFront(LoadRequest{
		Identifier: identifier,
		Load:       options.load,
		Post:       options.post,
		Options:    options.options,
	})
	l.clients[identifier] = append(l.clients[identifier], placeholder)
	l.startWanted = true
	l.mutex.Unlock()

	l.trigger.Fire()
	l.strategy.Notify()

	return placeholder
}

func (l *Loader) recordRequest(ctx context.Context, outcome string) {
	l.metrics.requestCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// blocked reports whether the completed queue is too long for workers to keep producing
func (l *Loader) blocked() bool {
	l.mutex.Lock()
	maxUploadPerFrame := l.maxUploadPerFrame
	l.mutex.Unlock()

	if maxUploadPerFrame == 0 {
		return false
	}
	return l.completed.Len() > backpressureFrames*maxUploadPerFrame
}

func (l *Loader) runOne(ctx context.Context) bool {
	request, ok := l.pending.PopBack()
	if !ok {
		return false
	}

	result, ok := l.load(ctx, request)
	if !ok {
		if !request.Options.NoCache {
			l.mutex.Lock()
			delete(l.inFlight, request.Identifier)
			l.mutex.Unlock()
		}
		return true
	}

	l.completed.PushBack(result)
	l.trigger.Fire()
	return true
}

func (l *Loader) load(ctx context.Context, request LoadRequest) (CompletedResult, bool) {
	ctx, span := l.tracer.Start(ctx, "Loader.load")
	defer span.End()

	ctx = logging.AddMetaToContext(ctx, slog.String("identifier", request.Identifier))
	ctx = reporting.AddExtrasToContext(ctx, map[string]string{"identifier": request.Identifier})

	start := l.nowFunc()
	ctx = reporting.SetStartedAtInContext(ctx, start)
	protocol, img, err := l.loadWithProtocol(ctx, request)
	span.SetAttributes(attribute.String("protocol", protocol))
	ctx = reporting.AddTagsToContext(ctx, map[string]string{"protocol": protocol})

	if errors.Is(err, domain.ErrMissingOptionalDependency) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.droppedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("protocol", protocol)))
		logging.FromContext(ctx).WarnContext(ctx, "Dropping request, protocol handler is not available", "protocol", protocol, "error", err.Error())
		return CompletedResult{}, false
	}

	if err == nil && request.Post != nil {
		img, err = request.Post(ctx, img)
		switch {
		case err != nil && !errors.Is(err, domain.ErrDecode) && !errors.Is(err, domain.ErrFetch):
			err = fmt.Errorf("%w: %s: post-processing failed: %w", domain.ErrDecode, request.Identifier, err)
		case err == nil && img == nil:
			err = fmt.Errorf("%w: %s: post-processing returned no image", domain.ErrDecode, request.Identifier)
		}
	}

	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, domain.ErrFetch) {
			result = "recovered"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		reporting.Report(ctx, err)
		img = l.ErrorImage()
	}

	attributesOption := metric.WithAttributes(
		attribute.String("protocol", protocol),
		attribute.String("result", result),
	)
	l.metrics.loadCount.Add(ctx, 1, attributesOption)
	l.metrics.loadDuration.Record(ctx, l.nowFunc().Sub(start).Seconds(), attributesOption)

	return CompletedResult{
		Identifier: request.Identifier,
		Image:      img,
		Err:        err,
		NoCache:    request.Options.NoCache,
	}, true
}

func (l *Loader) loadWithProtocol(ctx context.Context, request LoadRequest) (string, *domain.Image, error) {
	switch {
	case request.Load != nil:
		img, err := l.loadCustom(ctx, request)
		return "custom", img, err
	case l.fetcher != nil && l.fetcher.Handles(request.Identifier):
		img, err := l.loadNetwork(ctx, request.Identifier, request.Options)
		return fetcher.Scheme(request.Identifier), img, err
	default:
		img, err := l.loadLocal(ctx, request.Identifier, request.Options)
		return "local", img, err
	}
}

func (l *Loader) loadCustom(ctx context.Context, request LoadRequest) (*domain.Image, error) {
	img, err := request.Load(ctx, request.Identifier, request.Options)
	if err != nil {
		if errors.Is(err, domain.ErrDecode) || errors.Is(err, domain.ErrFetch) || errors.Is(err, domain.ErrMissingOptionalDependency) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecode, request.Identifier, err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: %s: custom loader returned no image", domain.ErrDecode, request.Identifier)
	}
	return img, nil
}

func (l *Loader) loadLocal(ctx context.Context, identifier string, options domain.DecodeOptions) (*domain.Image, error) {
	return l.decoder.Decode(ctx, identifier, true, options)
}

// loadNetwork downloads identifier into a temporary file and decodes it from there
func (l *Loader) loadNetwork(ctx context.Context, identifier string, options domain.DecodeOptions) (*domain.Image, error) {
	body, err := l.fetcher.Open(ctx, identifier)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tempFile, err := os.CreateTemp(l.tempDir, tempFilePrefix+"*"+extension(identifier))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create temporary file: %w", domain.ErrFetch, err)
	}
	defer os.Remove(tempFile.Name())

	_, err = io.Copy(tempFile, body)
	closeErr := tempFile.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download %s: %w", domain.ErrFetch, identifier, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("%w: failed to write temporary file: %w", domain.ErrFetch, closeErr)
	}

	img, err := l.decoder.Decode(ctx, tempFile.Name(), true, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	img.Source = identifier
	return img, nil
}

// extension returns the file extension of the path in identifier, including the dot
func extension(identifier string) string {
	p := identifier
	if u, err := url.Parse(identifier); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if len(ext) > 16 {
		return ""
	}
	return ext
}

// update is the frame pump. It delivers completed results to their placeholders.
func (l *Loader) update() {
	defer l.rearm()

	if l.pumpLimiter != nil && !l.pumpLimiter.AllowN(l.nowFunc(), 1) {
		return
	}

	l.startIfWanted()

	l.mutex.Lock()
	maxUploadPerFrame := l.maxUploadPerFrame
	l.mutex.Unlock()

	for uploaded := 0; maxUploadPerFrame == 0 || uploaded < maxUploadPerFrame; uploaded++ {
		result, ok := l.completed.PopBack()
		if !ok {
			return
		}

		for _, client := range l.settle(result) {
			if client.deliver(result.Image, result.Err) {
				l.metrics.deliveredCount.Add(l.ctx, 1)
			}
		}
	}
}

// settle writes result to the cache and detaches the placeholders waiting for it
func (l *Loader) settle(result CompletedResult) []*Placeholder {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !result.NoCache {
		delete(l.inFlight, result.Identifier)
		if result.Err == nil || errors.Is(result.Err, domain.ErrFetch) {
			l.cache.Append(CacheNamespace, result.Identifier, domain.Result{
				Image: result.Image,
				Err:   result.Err,
			})
		} else {
			// Let a later request retry
			l.cache.Remove(CacheNamespace, result.Identifier)
		}
	}

	clients := l.clients[result.Identifier]
	delete(l.clients, result.Identifier)
	return clients
}

func (l *Loader) rearm() {
	l.mutex.Lock()
	stopped := l.stopped
	l.mutex.Unlock()

	if !stopped {
		l.trigger.Fire()
	}
}

// Pending returns the number of requests waiting for a worker
func (l *Loader) Pending() int {
	return l.pending.Len()
}

// Completed returns the number of results waiting for the frame pump
func (l *Loader) Completed() int {
	return l.completed.Len()
}
