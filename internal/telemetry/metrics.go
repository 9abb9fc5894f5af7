package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tabaudio"

// Metrics holds the metric instruments. All instruments are safe for
// concurrent use.
type Metrics struct {
	// Page-context calls partitioned by primitive and outcome code
	PageCalls        metric.Int64Counter
	PageCallDuration metric.Float64Histogram

	// Directory queries partitioned by outcome
	DirectoryQueries metric.Int64Counter
	AudibleTabs      metric.Int64Gauge
}

// NewMetrics creates all instruments on meter. Pass otel.Meter for the global
// provider (no-op until one is registered).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.PageCalls, err = meter.Int64Counter("page_calls.total",
		metric.WithDescription("Media primitive calls executed in a tab page context"))
	if err != nil {
		return nil, err
	}

	m.PageCallDuration, err = meter.Float64Histogram("page_calls.duration",
		metric.WithDescription("Latency of media primitive calls including attach and retry"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	m.DirectoryQueries, err = meter.Int64Counter("directory.queries",
		metric.WithDescription("Audible tab directory queries partitioned by outcome"))
	if err != nil {
		return nil, err
	}

	m.AudibleTabs, err = meter.Int64Gauge("directory.audible_tabs",
		metric.WithDescription("Audible tabs returned by the last successful directory query"),
		metric.WithUnit("{tab}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveCall records one page-context call. code is empty on success.
func (m *Metrics) ObserveCall(ctx context.Context, primitive, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	attrs := metric.WithAttributes(
		attribute.String("media.primitive", primitive),
		attribute.String("result.code", code),
	)
	m.PageCalls.Add(ctx, 1, attrs)
	m.PageCallDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// RecordDirectory records one directory query and, on success, the audible
// tab count.
func (m *Metrics) RecordDirectory(ctx context.Context, audible int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.DirectoryQueries.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))
	if err == nil {
		m.AudibleTabs.Record(ctx, int64(audible))
	}
}
