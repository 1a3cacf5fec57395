package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/Amund211/asyncloader/internal/domain"
	"github.com/Amund211/asyncloader/internal/ratelimiting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler opens a remote resource for one URL scheme.
type Handler interface {
	Open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

type Fetcher struct {
	mutex    sync.RWMutex
	handlers map[string]Handler
	limiter  ratelimiting.RateLimiter

	tracer trace.Tracer
}

// New returns a fetcher without any handlers. limiter may be nil.
func New(limiter ratelimiting.RateLimiter) *Fetcher {
	return &Fetcher{
		handlers: make(map[string]Handler),
		limiter:  limiter,
		tracer:   otel.Tracer("asyncloader/fetcher"),
	}
}

// NewDefault returns a fetcher handling http, https, ftp and smb.
func NewDefault(httpClient HttpClient, limiter ratelimiting.RateLimiter) *Fetcher {
	f := New(limiter)
	httpHandler := NewHTTPHandler(httpClient)
	f.Register("http", httpHandler)
	f.Register("https", httpHandler)
	f.Register("ftp", NewFTPHandler())
	f.Register("smb", NewSMBHandler())
	return f
}

func (f *Fetcher) Register(scheme string, handler Handler) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.handlers[strings.ToLower(scheme)] = handler
}

func (f *Fetcher) Schemes() []string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	schemes := make([]string, 0, len(f.handlers))
	for scheme := range f.handlers {
		schemes = append(schemes, scheme)
	}
	slices.Sort(schemes)
	return schemes
}

func (f *Fetcher) handler(scheme string) (Handler, bool) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	handler, ok := f.handlers[scheme]
	return handler, ok
}

// Scheme returns the lowercased text before the first colon, or "" if there is none
func Scheme(identifier string) string {
	scheme, _, found := strings.Cut(identifier, ":")
	if !found {
		return ""
	}
	return strings.ToLower(scheme)
}

// Handles reports whether identifier is a network resource this fetcher can open
func (f *Fetcher) Handles(identifier string) bool {
	_, ok := f.handler(Scheme(identifier))
	return ok
}

// Open starts downloading identifier. The caller must close the returned body.
//
// Errors wrap domain.ErrFetch, or domain.ErrMissingOptionalDependency if the handler
// for the scheme is not compiled in.
func (f *Fetcher) Open(ctx context.Context, identifier string) (io.ReadCloser, error) {
	ctx, span := f.tracer.Start(ctx, "Fetcher.Open")
	defer span.End()

	body, err := f.open(ctx, identifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) open(ctx context.Context, identifier string) (io.ReadCloser, error) {
	scheme := Scheme(identifier)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("scheme", scheme))

	handler, ok := f.handler(scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", domain.ErrFetch, domain.ErrUnsupportedScheme, scheme)
	}

	u, err := url.Parse(identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse url: %w", domain.ErrFetch, err)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, ratelimiting.HostKeyFunc(u)); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}
	}

	body, err := handler.Open(ctx, u)
	if errors.Is(err, domain.ErrMissingOptionalDependency) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetch, err)
	}
	return body, nil
}
