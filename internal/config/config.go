package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const (
	envEnvironment       = "ASYNCLOADER_ENVIRONMENT"
	envSentryDSN         = "SENTRY_DSN"
	envNumWorkers        = "ASYNCLOADER_NUM_WORKERS"
	envMaxUploadPerFrame = "ASYNCLOADER_MAX_UPLOAD_PER_FRAME"
	envWorkerStrategy    = "ASYNCLOADER_WORKER_STRATEGY"
	envCacheLimit        = "ASYNCLOADER_CACHE_LIMIT"
	envCacheTTL          = "ASYNCLOADER_CACHE_TTL"
	envTempDir           = "ASYNCLOADER_TEMP_DIR"
	envFramesPerSecond   = "ASYNCLOADER_FPS"
	envOTelEnabled       = "ASYNCLOADER_OTEL_ENABLED"
	envS3Enabled         = "ASYNCLOADER_S3_ENABLED"
	envS3Endpoint        = "ASYNCLOADER_S3_ENDPOINT"
	envDocumentation     = "ASYNCLOADER_DOC"
)

const Unlimited = "unlimited"

type Config struct {
	sentryDSN         string
	env               environment
	numWorkers        int
	maxUploadPerFrame int // 0 for unlimited
	workerStrategy    string
	cacheLimit        uint64
	cacheTTL          time.Duration
	tempDir           string
	framesPerSecond   int
	otelEnabled       bool
	s3Enabled         bool
	s3Endpoint        string
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) Environment() string {
	return string(c.env)
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

func (c *Config) NumWorkers() int {
	return c.numWorkers
}

// MaxUploadPerFrame returns the upload budget, or false if it is unlimited
func (c *Config) MaxUploadPerFrame() (int, bool) {
	return c.maxUploadPerFrame, c.maxUploadPerFrame != 0
}

// One of auto, pool, cooperative
func (c *Config) WorkerStrategy() string {
	return c.workerStrategy
}

func (c *Config) CacheLimit() uint64 {
	return c.cacheLimit
}

func (c *Config) CacheTTL() time.Duration {
	return c.cacheTTL
}

// Empty for the OS default
func (c *Config) TempDir() string {
	return c.tempDir
}

func (c *Config) FramesPerSecond() int {
	return c.framesPerSecond
}

func (c *Config) OTelEnabled() bool {
	return c.otelEnabled
}

func (c *Config) S3Enabled() bool {
	return c.s3Enabled
}

func (c *Config) S3Endpoint() string {
	return c.s3Endpoint
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	maxUpload := strconv.Itoa(c.maxUploadPerFrame)
	if c.maxUploadPerFrame == 0 {
		maxUpload = Unlimited
	}
	return fmt.Sprintf(
		"Config{env: %s, numWorkers: %d, maxUploadPerFrame: %s, workerStrategy: %s, cacheLimit: %d, cacheTTL: %s, fps: %d, otel: %t, s3: %t, ...}",
		string(c.env), c.numWorkers, maxUpload, c.workerStrategy, c.cacheLimit, c.cacheTTL, c.framesPerSecond, c.otelEnabled, c.s3Enabled,
	)
}

// DocumentationMode reports whether the process only exists to build documentation.
//
// No loader should be constructed in this mode.
func DocumentationMode() bool {
	_, ok := os.LookupEnv(envDocumentation)
	return ok
}

type tunables struct {
	NumWorkers        int           `validate:"min=2"`
	MaxUploadPerFrame *int          `validate:"omitnil,min=1"`
	WorkerStrategy    string        `validate:"oneof=auto pool cooperative"`
	CacheLimit        uint64        `validate:"min=1"`
	CacheTTL          time.Duration `validate:"gt=0s"`
	FramesPerSecond   int           `validate:"min=1,max=1000"`
}

var tunableEnvNames = map[string]string{
	"NumWorkers":        envNumWorkers,
	"MaxUploadPerFrame": envMaxUploadPerFrame,
	"WorkerStrategy":    envWorkerStrategy,
	"CacheLimit":        envCacheLimit,
	"CacheTTL":          envCacheTTL,
	"FramesPerSecond":   envFramesPerSecond,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateTunables(values tunables) error {
	err := validate.Struct(values)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		name, ok := tunableEnvNames[fieldError.StructField()]
		if !ok {
			name = fieldError.StructField()
		}
		messages = append(messages, fmt.Sprintf("%s (%v) must satisfy %s=%s", name, fieldError.Value(), fieldError.Tag(), fieldError.Param()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidValue, strings.Join(messages, ", "))
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key, value string, err error) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s): %w", ErrInvalidValue, key, value, err)
	}

	var env environment
	rawEnv, ok := os.LookupEnv(envEnvironment)
	if !ok {
		return missingKey(envEnvironment)
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, envEnvironment, rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	sentryDSN := os.Getenv(envSentryDSN)
	if (env == production || env == staging) && sentryDSN == "" {
		return missingKey(envSentryDSN)
	}

	values := tunables{
		NumWorkers:      2,
		WorkerStrategy:  "auto",
		CacheLimit:      500,
		CacheTTL:        60 * time.Second,
		FramesPerSecond: 60,
	}
	defaultMaxUpload := 2
	values.MaxUploadPerFrame = &defaultMaxUpload

	if raw := os.Getenv(envNumWorkers); raw != "" {
		numWorkers, err := strconv.Atoi(raw)
		if err != nil {
			return invalidValue(envNumWorkers, raw, err)
		}
		values.NumWorkers = numWorkers
	}

	if raw := os.Getenv(envMaxUploadPerFrame); raw != "" {
		if strings.EqualFold(raw, Unlimited) {
			values.MaxUploadPerFrame = nil
		} else {
			maxUpload, err := strconv.Atoi(raw)
			if err != nil {
				return invalidValue(envMaxUploadPerFrame, raw, err)
			}
			values.MaxUploadPerFrame = &maxUpload
		}
	}

	if raw := os.Getenv(envWorkerStrategy); raw != "" {
		values.WorkerStrategy = strings.ToLower(raw)
	}

	if raw := os.Getenv(envCacheLimit); raw != "" {
		cacheLimit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return invalidValue(envCacheLimit, raw, err)
		}
		values.CacheLimit = cacheLimit
	}

	if raw := os.Getenv(envCacheTTL); raw != "" {
		cacheTTL, err := time.ParseDuration(raw)
		if err != nil {
			return invalidValue(envCacheTTL, raw, err)
		}
		values.CacheTTL = cacheTTL
	}

	if raw := os.Getenv(envFramesPerSecond); raw != "" {
		fps, err := strconv.Atoi(raw)
		if err != nil {
			return invalidValue(envFramesPerSecond, raw, err)
		}
		values.FramesPerSecond = fps
	}

	if err := validateTunables(values); err != nil {
		return Config{}, err
	}

	otelEnabled := false
	if raw := os.Getenv(envOTelEnabled); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return invalidValue(envOTelEnabled, raw, err)
		}
		otelEnabled = parsed
	}

	s3Enabled := false
	if raw := os.Getenv(envS3Enabled); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return invalidValue(envS3Enabled, raw, err)
		}
		s3Enabled = parsed
	}

	maxUploadPerFrame := 0
	if values.MaxUploadPerFrame != nil {
		maxUploadPerFrame = *values.MaxUploadPerFrame
	}

	return Config{
		sentryDSN:         sentryDSN,
		env:               env,
		numWorkers:        values.NumWorkers,
		maxUploadPerFrame: maxUploadPerFrame,
		workerStrategy:    values.WorkerStrategy,
		cacheLimit:        values.CacheLimit,
		cacheTTL:          values.CacheTTL,
		tempDir:           os.Getenv(envTempDir),
		framesPerSecond:   values.FramesPerSecond,
		otelEnabled:       otelEnabled,
		s3Enabled:         s3Enabled,
		s3Endpoint:        os.Getenv(envS3Endpoint),
	}, nil
}
