package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AggregationMetrics holds custom metrics for aggregation requests
type AggregationMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	columnsComputed metric.Int64Histogram
	storeErrors     metric.Int64Counter
}

// InitAggregationMetrics initializes aggregation-specific metrics
func InitAggregationMetrics() (*AggregationMetrics, error) {
	meter := otel.Meter("datascope")

	requestDuration, err := meter.Float64Histogram(
		"aggregation.request.duration",
		metric.WithDescription("Duration of aggregation requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"aggregation.requests.total",
		metric.WithDescription("Total number of aggregation requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"aggregation.errors.total",
		metric.WithDescription("Total number of failed aggregation requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"aggregation.requests.active",
		metric.WithDescription("Number of active aggregation requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	columnsComputed, err := meter.Int64Histogram(
		"aggregation.columns.count",
		metric.WithDescription("Number of columns computed per aggregation request"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create columns computed histogram: %w", err)
	}

	storeErrors, err := meter.Int64Counter(
		"aggregation.store.errors",
		metric.WithDescription("Total number of analytical store query failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store error counter: %w", err)
	}

	return &AggregationMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		columnsComputed: columnsComputed,
		storeErrors:     storeErrors,
	}, nil
}

// RecordRequest records an aggregation request with its duration and outcome
func (m *AggregationMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, metricType string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("metric_type", metricType),
		attribute.Bool("has_errors", hasErrors),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("metric_type", metricType),
		))
	}
}

// RecordColumnsComputed records how many columns a request aggregated
func (m *AggregationMetrics) RecordColumnsComputed(ctx context.Context, count int64) {
	if m == nil {
		return
	}
	m.columnsComputed.Record(ctx, count)
}

// RecordStoreError records a failed analytical store query
func (m *AggregationMetrics) RecordStoreError(ctx context.Context, queryKind string) {
	if m == nil {
		return
	}
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("query_kind", queryKind),
	))
}

// IncrementActiveRequests increments the active request gauge
func (m *AggregationMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active request gauge
func (m *AggregationMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}
