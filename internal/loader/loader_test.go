package loader_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/Amund211/asyncloader/internal/adapters/cache"
	"github.com/Amund211/asyncloader/internal/adapters/decoder"
	"github.com/Amund211/asyncloader/internal/adapters/fetcher"
	"github.com/Amund211/asyncloader/internal/clock"
	"github.com/Amund211/asyncloader/internal/domain"
	"github.com/Amund211/asyncloader/internal/loader"
	"github.com/Amund211/asyncloader/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height)))
	require.NoError(t, err)
	return buf.Bytes()
}

func writePNG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()

	filename := filepath.Join(dir, name)
	err := os.WriteFile(filename, encodePNG(t, width, height), 0o600)
	require.NoError(t, err)
	return filename
}

type testLoader struct {
	loader *loader.Loader
	clock  *clock.Clock
	store  *cache.Store[domain.Result]
}

func newTestLoader(t *testing.T, remote loader.Fetcher, opts ...loader.Option) testLoader {
	t.Helper()

	store := cache.NewStore[domain.Result]()
	t.Cleanup(store.Stop)

	clk := clock.New(time.Now)

	defaults := []loader.Option{
		loader.WithLogger(logging.Discard()),
		loader.WithStrategy(loader.StrategyCooperative),
		loader.WithPumpInterval(0),
	}

	l, err := loader.New(t.Context(), store, decoder.New(), remote, clk, append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(l.Stop)

	return testLoader{loader: l, clock: clk, store: store}
}

// tickUntilSettled ticks the clock until every placeholder has left the pending state
func (tl testLoader) tickUntilSettled(t *testing.T, placeholders ...*loader.Placeholder) {
	t.Helper()

	for range 100 {
		settled := true
		for _, placeholder := range placeholders {
			if placeholder.State() == loader.Pending {
				settled = false
				break
			}
		}
		if settled {
			return
		}
		tl.clock.Tick()
	}
	require.FailNow(t, "placeholders did not settle")
}

func (tl testLoader) entry(identifier string) cache.Entry[domain.Result] {
	return tl.store.Get(loader.CacheNamespace, identifier)
}

type stubHandler struct {
	open func(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

func (h stubHandler) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	return h.open(ctx, u)
}

func TestRequest(t *testing.T) {
	t.Parallel()

	t.Run("fresh request is pending with the loading image", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

		placeholder := tl.loader.Request(t.Context(), filename)

		require.Equal(t, loader.Pending, placeholder.State())
		require.False(t, placeholder.Loaded())
		require.NoError(t, placeholder.Err())
		require.Same(t, tl.loader.LoadingImage(), placeholder.Image())
		require.Equal(t, filename, placeholder.Identifier())
		require.Equal(t, cache.InProgress, tl.entry(filename).State)
		require.Equal(t, 1, tl.loader.Pending())
	})

	t.Run("local file is delivered and cached", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

		placeholder := tl.loader.Request(t.Context(), filename)
		tl.tickUntilSettled(t, placeholder)

		require.True(t, placeholder.Loaded())
		require.NoError(t, placeholder.Err())
		require.Equal(t, 4, placeholder.Image().Width())
		require.Equal(t, 3, placeholder.Image().Height())
		require.True(t, placeholder.Image().HasData())

		entry := tl.entry(filename)
		require.Equal(t, cache.Present, entry.State)
		require.Same(t, placeholder.Image(), entry.Data.Image)
	})

	t.Run("cached identifier is loaded immediately", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

		first := tl.loader.Request(t.Context(), filename)
		tl.tickUntilSettled(t, first)

		second := tl.loader.Request(t.Context(), filename)
		require.True(t, second.Loaded())
		require.Same(t, first.Image(), second.Image())
		require.Equal(t, 0, tl.loader.Pending())
	})

	t.Run("concurrent requests share one load", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

		const count = 16
		placeholders := make([]*loader.Placeholder, count)
		var wg sync.WaitGroup
		for i := range count {
			wg.Go(func() {
				placeholders[i] = tl.loader.Request(t.Context(), filename)
			})
		}
		wg.Wait()

		require.Equal(t, 1, tl.loader.Pending())

		var mutex sync.Mutex
		notified := 0
		for _, placeholder := range placeholders {
			placeholder.OnLoad(func(p *loader.Placeholder) {
				mutex.Lock()
				defer mutex.Unlock()
				notified++
			})
		}

		tl.tickUntilSettled(t, placeholders...)

		require.Equal(t, count, notified)
		for _, placeholder := range placeholders {
			require.True(t, placeholder.Loaded())
			require.Same(t, placeholders[0].Image(), placeholder.Image())
		}
	})

	t.Run("empty identifier", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)

		placeholder := tl.loader.Request(t.Context(), "")

		require.Equal(t, loader.Errored, placeholder.State())
		require.ErrorIs(t, placeholder.Err(), domain.ErrEmptyIdentifier)
		require.Same(t, tl.loader.ErrorImage(), placeholder.Image())
		require.Equal(t, 0, tl.loader.Pending())
	})

	t.Run("missing local file", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := filepath.Join(t.TempDir(), "missing.png")

		placeholder := tl.loader.Request(t.Context(), filename)
		tl.tickUntilSettled(t, placeholder)

		require.Equal(t, loader.Errored, placeholder.State())
		require.False(t, placeholder.Loaded())
		require.ErrorIs(t, placeholder.Err(), domain.ErrDecode)
		require.ErrorIs(t, placeholder.Err(), fs.ErrNotExist)
		require.Same(t, tl.loader.ErrorImage(), placeholder.Image())

		// A later request tries again
		require.Equal(t, cache.Absent, tl.entry(filename).State)
	})

	t.Run("no cache", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

		placeholder := tl.loader.Request(t.Context(), filename, loader.WithNoCache())
		require.True(t, placeholder.Options().NoCache)
		require.Equal(t, cache.Absent, tl.entry(filename).State)

		tl.tickUntilSettled(t, placeholder)

		require.True(t, placeholder.Loaded())
		require.Equal(t, cache.Absent, tl.entry(filename).State)

		again := tl.loader.Request(t.Context(), filename, loader.WithNoCache())
		require.Equal(t, loader.Pending, again.State())
		require.Equal(t, 1, tl.loader.Pending())
	})

	t.Run("mipmap option is passed to the decoder", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

		placeholder := tl.loader.Request(t.Context(), filename, loader.WithMipmap())
		tl.tickUntilSettled(t, placeholder)

		require.True(t, placeholder.Image().Mipmap)
	})

	t.Run("custom load and post functions", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)

		load := func(ctx context.Context, identifier string, options domain.DecodeOptions) (*domain.Image, error) {
			return &domain.Image{Source: identifier, Bounds: image.Rect(0, 0, 8, 8)}, nil
		}
		post := func(ctx context.Context, img *domain.Image) (*domain.Image, error) {
			return &domain.Image{Source: img.Source + "#thumbnail", Bounds: image.Rect(0, 0, 2, 2)}, nil
		}

		placeholder := tl.loader.Request(t.Context(), "generated://checker", loader.WithLoadFunc(load), loader.WithPostFunc(post))
		tl.tickUntilSettled(t, placeholder)

		require.True(t, placeholder.Loaded())
		require.Equal(t, "generated://checker#thumbnail", placeholder.Image().Source)
		require.Equal(t, 2, placeholder.Image().Width())
	})

	t.Run("post returning no image is an error", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)

		load := func(ctx context.Context, identifier string, options domain.DecodeOptions) (*domain.Image, error) {
			return &domain.Image{Source: identifier, Bounds: image.Rect(0, 0, 8, 8)}, nil
		}
		post := func(ctx context.Context, img *domain.Image) (*domain.Image, error) {
			return nil, nil
		}

		identifier := "generated://vanishing"
		placeholder := tl.loader.Request(t.Context(), identifier, loader.WithLoadFunc(load), loader.WithPostFunc(post))
		tl.tickUntilSettled(t, placeholder)

		require.Equal(t, loader.Errored, placeholder.State())
		require.ErrorIs(t, placeholder.Err(), domain.ErrDecode)
		require.Same(t, tl.loader.ErrorImage(), placeholder.Image())
		require.Equal(t, cache.Absent, tl.entry(identifier).State)
	})

	t.Run("evicted in-progress marker does not duplicate the load", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil, loader.WithCacheLimits(1, time.Minute))
		dir := t.TempDir()
		cat := writePNG(t, dir, "cat.png", 4, 3)
		dog := writePNG(t, dir, "dog.png", 2, 2)

		first := tl.loader.Request(t.Context(), cat)
		dogPlaceholder := tl.loader.Request(t.Context(), dog)
		second := tl.loader.Request(t.Context(), cat)
		require.Equal(t, 2, tl.loader.Pending())

		tl.tickUntilSettled(t, first, dogPlaceholder, second)

		require.True(t, first.Loaded())
		require.True(t, second.Loaded())
		require.Same(t, first.Image(), second.Image())
		require.Equal(t, 0, tl.loader.Pending())
	})

	t.Run("custom load failure skips post", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)

		load := func(ctx context.Context, identifier string, options domain.DecodeOptions) (*domain.Image, error) {
			return nil, errors.New("generator exploded")
		}
		postCalled := false
		post := func(ctx context.Context, img *domain.Image) (*domain.Image, error) {
			postCalled = true
			return img, nil
		}

		placeholder := tl.loader.Request(t.Context(), "generated://broken", loader.WithLoadFunc(load), loader.WithPostFunc(post))
		tl.tickUntilSettled(t, placeholder)

		require.Equal(t, loader.Errored, placeholder.State())
		require.ErrorIs(t, placeholder.Err(), domain.ErrDecode)
		require.ErrorContains(t, placeholder.Err(), "generator exploded")
		require.False(t, postCalled)
	})

	t.Run("on load after delivery runs immediately", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

		placeholder := tl.loader.Request(t.Context(), filename)
		tl.tickUntilSettled(t, placeholder)

		called := false
		placeholder.OnLoad(func(p *loader.Placeholder) {
			called = true
			require.Same(t, placeholder, p)
		})
		require.True(t, called)
	})
}

func TestRequestNetwork(t *testing.T) {
	t.Parallel()

	t.Run("download is decoded and the temporary file removed", func(t *testing.T) {
		t.Parallel()

		data := encodePNG(t, 5, 7)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/images/cat.png", r.URL.Path)
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(data)
		}))
		t.Cleanup(server.Close)

		tempDir := t.TempDir()
		tl := newTestLoader(t, fetcher.NewDefault(server.Client(), nil), loader.WithTempDir(tempDir))

		identifier := server.URL + "/images/cat.png"
		placeholder := tl.loader.Request(t.Context(), identifier)
		tl.tickUntilSettled(t, placeholder)

		require.True(t, placeholder.Loaded())
		require.Equal(t, identifier, placeholder.Image().Source)
		require.Equal(t, 5, placeholder.Image().Width())
		require.Equal(t, 7, placeholder.Image().Height())

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("failed download shows the error image", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		tempDir := t.TempDir()
		tl := newTestLoader(t, fetcher.NewDefault(server.Client(), nil), loader.WithTempDir(tempDir))

		identifier := server.URL + "/cat.png"
		placeholder := tl.loader.Request(t.Context(), identifier)
		tl.tickUntilSettled(t, placeholder)

		require.Equal(t, loader.Errored, placeholder.State())
		require.ErrorIs(t, placeholder.Err(), domain.ErrFetch)
		require.Same(t, tl.loader.ErrorImage(), placeholder.Image())

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		require.Empty(t, entries)

		// The failure is cached, so the next request does not hit the server
		entry := tl.entry(identifier)
		require.Equal(t, cache.Present, entry.State)
		again := tl.loader.Request(t.Context(), identifier)
		require.Equal(t, loader.Errored, again.State())
		require.Same(t, tl.loader.ErrorImage(), again.Image())
		require.Equal(t, 0, tl.loader.Pending())
	})

	t.Run("undecodable download shows the error image", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("this is not an image"))
		}))
		t.Cleanup(server.Close)

		tempDir := t.TempDir()
		tl := newTestLoader(t, fetcher.NewDefault(server.Client(), nil), loader.WithTempDir(tempDir))

		placeholder := tl.loader.Request(t.Context(), server.URL+"/cat.png")
		tl.tickUntilSettled(t, placeholder)

		require.ErrorIs(t, placeholder.Err(), domain.ErrFetch)
		require.ErrorIs(t, placeholder.Err(), domain.ErrDecode)
		require.Same(t, tl.loader.ErrorImage(), placeholder.Image())

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("interrupted download removes the temporary file", func(t *testing.T) {
		t.Parallel()

		data := encodePNG(t, 5, 7)
		remote := fetcher.New(nil)
		remote.Register("http", stubHandler{open: func(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
			return io.NopCloser(io.MultiReader(
				bytes.NewReader(data[:len(data)/2]),
				iotest.ErrReader(errors.New("connection reset by peer")),
			)), nil
		}})

		tempDir := t.TempDir()
		tl := newTestLoader(t, remote, loader.WithTempDir(tempDir))

		placeholder := tl.loader.Request(t.Context(), "http://images.example/cat.png")
		tl.tickUntilSettled(t, placeholder)

		require.Equal(t, loader.Errored, placeholder.State())
		require.ErrorIs(t, placeholder.Err(), domain.ErrFetch)
		require.ErrorContains(t, placeholder.Err(), "connection reset by peer")
		require.Same(t, tl.loader.ErrorImage(), placeholder.Image())

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("unreachable host shows the error image", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		identifier := server.URL + "/cat.png"
		server.Close()

		tempDir := t.TempDir()
		remote := fetcher.NewDefault(&http.Client{Timeout: 5 * time.Second}, nil)
		tl := newTestLoader(t, remote, loader.WithTempDir(tempDir))

		placeholder := tl.loader.Request(t.Context(), identifier)
		tl.tickUntilSettled(t, placeholder)

		require.Equal(t, loader.Errored, placeholder.State())
		require.ErrorIs(t, placeholder.Err(), domain.ErrFetch)
		require.Same(t, tl.loader.ErrorImage(), placeholder.Image())

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("missing optional dependency drops the request", func(t *testing.T) {
		t.Parallel()

		remote := fetcher.New(nil)
		remote.Register("smb", stubHandler{open: func(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
			return nil, fmt.Errorf("%w: smb support is not compiled in", domain.ErrMissingOptionalDependency)
		}})
		tl := newTestLoader(t, remote)

		placeholder := tl.loader.Request(t.Context(), "smb://fileserver/share/cat.png")
		for range 10 {
			tl.clock.Tick()
		}

		require.Equal(t, loader.Pending, placeholder.State())
		require.Equal(t, 0, tl.loader.Pending())
		require.Equal(t, 0, tl.loader.Completed())
	})
}

func TestConfiguration(t *testing.T) {
	t.Parallel()

	t.Run("num workers", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		require.Equal(t, loader.DefaultNumWorkers, tl.loader.NumWorkers())

		err := tl.loader.SetNumWorkers(1)
		require.ErrorIs(t, err, domain.ErrConfiguration)
		require.Equal(t, 2, tl.loader.NumWorkers())

		require.NoError(t, tl.loader.SetNumWorkers(2))
		require.NoError(t, tl.loader.SetNumWorkers(6))
		require.Equal(t, 6, tl.loader.NumWorkers())
	})

	t.Run("max upload per frame", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil)
		maxUpload, limited := tl.loader.MaxUploadPerFrame()
		require.Equal(t, loader.DefaultMaxUploadPerFrame, maxUpload)
		require.True(t, limited)

		require.ErrorIs(t, tl.loader.SetMaxUploadPerFrame(0), domain.ErrConfiguration)
		require.ErrorIs(t, tl.loader.SetMaxUploadPerFrame(-1), domain.ErrConfiguration)

		require.NoError(t, tl.loader.SetMaxUploadPerFrame(1))
		maxUpload, limited = tl.loader.MaxUploadPerFrame()
		require.Equal(t, 1, maxUpload)
		require.True(t, limited)

		tl.loader.SetUnlimitedUploadPerFrame()
		_, limited = tl.loader.MaxUploadPerFrame()
		require.False(t, limited)
	})

	t.Run("pool keeps its size after start", func(t *testing.T) {
		t.Parallel()

		tl := newTestLoader(t, nil, loader.WithStrategy(loader.StrategyPool))
		require.Equal(t, "pool", tl.loader.StrategyName())
		require.NoError(t, tl.loader.SetNumWorkers(3))

		tl.loader.Start()
		require.Equal(t, 3, tl.loader.Workers())

		require.NoError(t, tl.loader.SetNumWorkers(8))
		require.Equal(t, 8, tl.loader.NumWorkers())
		require.Equal(t, 3, tl.loader.Workers())
	})

	t.Run("invalid options", func(t *testing.T) {
		t.Parallel()

		cases := map[string]loader.Option{
			"negative pump interval": loader.WithPumpInterval(-time.Second),
			"zero cache ttl":         loader.WithCacheLimits(10, 0),
			"unknown strategy":       loader.WithStrategy("threads"),
		}

		for name, opt := range cases {
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				store := cache.NewStore[domain.Result]()
				t.Cleanup(store.Stop)

				_, err := loader.New(t.Context(), store, decoder.New(), nil, clock.New(time.Now), opt)
				require.ErrorIs(t, err, domain.ErrConfiguration)
			})
		}
	})
}

func TestPoolStrategyDelivers(t *testing.T) {
	t.Parallel()

	tl := newTestLoader(t, nil, loader.WithStrategy(loader.StrategyPool))
	dir := t.TempDir()

	placeholders := make([]*loader.Placeholder, 0, 6)
	for i := range 6 {
		filename := writePNG(t, dir, fmt.Sprintf("image-%d.png", i), i+1, i+1)
		placeholders = append(placeholders, tl.loader.Request(t.Context(), filename))
	}

	require.Eventually(t, func() bool {
		tl.clock.Tick()
		for _, placeholder := range placeholders {
			if !placeholder.Loaded() {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	for i, placeholder := range placeholders {
		require.Equal(t, i+1, placeholder.Image().Width())
	}
	require.Equal(t, loader.DefaultNumWorkers, tl.loader.Workers())
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	tl := newTestLoader(t, nil)
	filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

	require.Equal(t, 0, tl.loader.Workers())
	tl.loader.Start()
	tl.loader.Start()
	require.Equal(t, 1, tl.loader.Workers())

	tl.loader.Stop()
	tl.loader.Stop()

	placeholder := tl.loader.Request(t.Context(), filename)
	require.Equal(t, loader.Errored, placeholder.State())
	require.ErrorIs(t, placeholder.Err(), domain.ErrLoaderStopped)
	require.Same(t, tl.loader.ErrorImage(), placeholder.Image())
	require.Equal(t, cache.Absent, tl.entry(filename).State)
	require.Equal(t, 0, tl.loader.Pending())
}

func TestBuiltinImages(t *testing.T) {
	t.Parallel()

	tl := newTestLoader(t, nil)

	loading := tl.loader.LoadingImage()
	require.Equal(t, decoder.LoadingImageSource, loading.Source)
	require.True(t, loading.HasData())
	require.Same(t, loading, tl.loader.LoadingImage())

	missing := tl.loader.ErrorImage()
	require.Equal(t, decoder.MissingImageSource, missing.Source)
	require.True(t, missing.HasData())
	require.Same(t, missing, tl.loader.ErrorImage())
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	tl := newTestLoader(t, nil, loader.WithMeterProvider(provider))
	filename := writePNG(t, t.TempDir(), "cat.png", 4, 3)

	first := tl.loader.Request(t.Context(), filename)
	second := tl.loader.Request(t.Context(), filename)
	tl.tickUntilSettled(t, first, second)
	tl.loader.Request(t.Context(), filename)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))

	sums := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, point := range data.DataPoints {
					sums[m.Name] += point.Value
				}
			case metricdata.Gauge[int64]:
				for _, point := range data.DataPoints {
					sums[m.Name] += point.Value
				}
			}
		}
	}

	require.Equal(t, int64(3), sums["loader/request_count"])
	require.Equal(t, int64(1), sums["loader/load_count"])
	require.Equal(t, int64(2), sums["loader/delivered_count"])
	require.Equal(t, int64(0), sums["loader/pending_depth"])
	require.Equal(t, int64(0), sums["loader/completed_depth"])
}
