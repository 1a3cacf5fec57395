package loader

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

type loaderMetricsCollection struct {
	requestCount   metric.Int64Counter
	loadCount      metric.Int64Counter
	droppedCount   metric.Int64Counter
	deliveredCount metric.Int64Counter
	loadDuration   metric.Float64Histogram
}

func setupLoaderMetrics(meter metric.Meter, pendingDepth, completedDepth func() int) (loaderMetricsCollection, error) {
	requestCount, err := meter.Int64Counter(
		"loader/request_count",
		metric.WithDescription("Requests received, by cache outcome"),
	)
	if err != nil {
		return loaderMetricsCollection{}, fmt.Errorf("failed to create request count metric: %w", err)
	}

	loadCount, err := meter.Int64Counter(
		"loader/load_count",
		metric.WithDescription("Loads run by workers, by protocol and result"),
	)
	if err != nil {
		return loaderMetricsCollection{}, fmt.Errorf("failed to create load count metric: %w", err)
	}

	droppedCount, err := meter.Int64Counter(
		"loader/dropped_count",
		metric.WithDescription("Loads dropped because a protocol handler is not available"),
	)
	if err != nil {
		return loaderMetricsCollection{}, fmt.Errorf("failed to create dropped count metric: %w", err)
	}

	deliveredCount, err := meter.Int64Counter(
		"loader/delivered_count",
		metric.WithDescription("Placeholders that received their image"),
	)
	if err != nil {
		return loaderMetricsCollection{}, fmt.Errorf("failed to create delivered count metric: %w", err)
	}

	loadDuration, err := meter.Float64Histogram(
		"loader/load_duration_seconds",
		metric.WithDescription("Time spent fetching and decoding a single request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return loaderMetricsCollection{}, fmt.Errorf("failed to create load duration metric: %w", err)
	}

	_, err = meter.Int64ObservableGauge(
		"loader/pending_depth",
		metric.WithDescription("Requests waiting for a worker"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(pendingDepth()))
			return nil
		}),
	)
	if err != nil {
		return loaderMetricsCollection{}, fmt.Errorf("failed to create pending depth metric: %w", err)
	}

	_, err = meter.Int64ObservableGauge(
		"loader/completed_depth",
		metric.WithDescription("Results waiting for the frame pump"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(completedDepth()))
			return nil
		}),
	)
	if err != nil {
		return loaderMetricsCollection{}, fmt.Errorf("failed to create completed depth metric: %w", err)
	}

	return loaderMetricsCollection{
		requestCount:   requestCount,
		loadCount:      loadCount,
		droppedCount:   droppedCount,
		deliveredCount: deliveredCount,
		loadDuration:   loadDuration,
	}, nil
}
