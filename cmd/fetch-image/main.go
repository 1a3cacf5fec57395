package main

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/Amund211/asyncloader/internal/adapters/fetcher"
	"github.com/Amund211/asyncloader/internal/app"
	"github.com/Amund211/asyncloader/internal/config"
	"github.com/Amund211/asyncloader/internal/loader"
	"github.com/Amund211/asyncloader/internal/logging"
	"github.com/spf13/cobra"
)

var (
	numWorkers        int
	maxUploadPerFrame int
	workerStrategy    string
	framesPerSecond   int
	timeout           time.Duration
	tempDir           string
	outDir            string
	noCache           bool
	mipmap            bool
	s3Enabled         bool
	s3Endpoint        string
	verbose           bool
)

var rootCmd = &cobra.Command{
	Use:   "fetch-image [flags] <image>...",
	Short: "Load images through the async loader",
	Long: `Load one or more images (local paths, atlas:// paths or URLs) through the
async loader and print what each placeholder ended up with.

Examples:
  # Load a local file and a remote image
  fetch-image ./cat.png https://example.com/dog.jpg

  # Use the cooperative strategy and save the decoded images as PNG
  fetch-image --strategy cooperative --out ./decoded https://example.com/dog.jpg

  # Read from an S3 compatible store
  fetch-image --s3 --s3-endpoint http://localhost:4566 s3://bucket/cat.png`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runFetchImage,
}

func init() {
	rootCmd.Flags().IntVarP(&numWorkers, "workers", "w", loader.DefaultNumWorkers, "Number of pool workers (at least 2)")
	rootCmd.Flags().IntVar(&maxUploadPerFrame, "max-upload", loader.DefaultMaxUploadPerFrame, "Results delivered per frame, 0 for unlimited")
	rootCmd.Flags().StringVar(&workerStrategy, "strategy", string(loader.StrategyAuto), "Worker strategy (auto|pool|cooperative)")
	rootCmd.Flags().IntVar(&framesPerSecond, "fps", 60, "Frame clock rate")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	rootCmd.Flags().StringVar(&tempDir, "temp-dir", "", "Directory for downloads (default: OS temp dir)")
	rootCmd.Flags().StringVarP(&outDir, "out", "o", "", "Write every loaded image as PNG into this directory")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the cache")
	rootCmd.Flags().BoolVar(&mipmap, "mipmap", false, "Request mipmapped images")
	rootCmd.Flags().BoolVar(&s3Enabled, "s3", false, "Enable s3:// urls using the default AWS credentials")
	rootCmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "Endpoint of an S3 compatible store")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log loader internals")
}

func runFetchImage(cmd *cobra.Command, args []string) error {
	logger := logging.Discard()
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	ctx = logging.AddToContext(ctx, logger)

	settings := app.LoaderSettings{
		NumWorkers:        numWorkers,
		MaxUploadPerFrame: maxUploadPerFrame,
		WorkerStrategy:    workerStrategy,
		CacheLimit:        loader.DefaultCacheLimit,
		CacheTTL:          loader.DefaultCacheTTL,
		TempDir:           tempDir,
		S3Enabled:         s3Enabled,
		S3Endpoint:        s3Endpoint,
	}

	components, err := app.BuildLoader(ctx, settings, fetcher.NewHTTPClient(timeout), loader.WithLogger(logger))
	if err != nil {
		return err
	}
	defer components.Close()

	var opts []loader.RequestOption
	if noCache {
		opts = append(opts, loader.WithNoCache())
	}
	if mipmap {
		opts = append(opts, loader.WithMipmap())
	}

	loadAll := app.BuildLoadAll(components.Loader, components.Clock, framesPerSecond)
	placeholders, loadErr := loadAll(ctx, args, opts...)

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	failed := 0
	out := cmd.OutOrStdout()
	for i, placeholder := range placeholders {
		img := placeholder.Image()
		fmt.Fprintf(out, "%s\t%s\t%dx%d", placeholder.Identifier(), placeholder.State(), img.Width(), img.Height())
		if placeholder.Err() != nil {
			failed++
			fmt.Fprintf(out, "\t%s", placeholder.Err())
		}
		fmt.Fprintln(out)

		if outDir != "" && placeholder.Loaded() && img.HasData() {
			filename := filepath.Join(outDir, fmt.Sprintf("%03d-%s.png", i, baseName(placeholder.Identifier())))
			if err := writePNG(filename, placeholder); err != nil {
				return err
			}
		}
	}

	if loadErr != nil {
		return loadErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be loaded", failed, len(placeholders))
	}
	return nil
}

func baseName(identifier string) string {
	name := filepath.Base(identifier)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == '?' || r == '&' || r == '=' {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." {
		return "image"
	}
	return name
}

func writePNG(filename string, placeholder *loader.Placeholder) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer file.Close()

	if err := png.Encode(file, placeholder.Image().Data); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return file.Close()
}

func main() {
	if config.DocumentationMode() {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
