// Package observe provides application-wide observability primitives for
// duckwave: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [Setup] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all duckwave metrics.
const meterName = "github.com/mkarlsen/duckwave"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Frame pipeline ---

	// FramesProcessed counts capture frames fed through the VAD pipeline.
	FramesProcessed metric.Int64Counter

	// FrameDuration tracks per-frame VAD processing latency.
	FrameDuration metric.Float64Histogram

	// --- Speech detection ---

	// SpeechEpisodes counts completed speech episodes (one per
	// SpeechStarted/SpeechEnded pair).
	SpeechEpisodes metric.Int64Counter

	// SpeechEpisodeDuration tracks the length of completed speech episodes.
	SpeechEpisodeDuration metric.Float64Histogram

	// --- Ducking ---

	// Ducks counts duck operations (gain lowered on speech start).
	Ducks metric.Int64Counter

	// Restores counts restore operations (gain returned on speech end).
	Restores metric.Int64Counter

	// SinkFailures counts gain changes rejected by a sink. Use with
	// attribute.String("op", "duck"|"restore"|"attach").
	SinkFailures metric.Int64Counter

	// ActiveSinks tracks the number of currently registered audio sinks.
	ActiveSinks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameLatencyBuckets defines histogram bucket boundaries (in seconds) for
// the per-frame processing path, which must stay well under one callback
// period (~256 ms).
var frameLatencyBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25,
}

// episodeBuckets defines histogram bucket boundaries (in seconds) for speech
// episode lengths.
var episodeBuckets = []float64{
	0.5, 1, 2, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("duckwave.frames.processed",
		metric.WithDescription("Total capture frames fed through the VAD pipeline."),
	); err != nil {
		return nil, err
	}
	if met.SpeechEpisodes, err = m.Int64Counter("duckwave.speech.episodes",
		metric.WithDescription("Total completed speech episodes."),
	); err != nil {
		return nil, err
	}
	if met.Ducks, err = m.Int64Counter("duckwave.duck.ducks",
		metric.WithDescription("Total duck operations applied to sinks."),
	); err != nil {
		return nil, err
	}
	if met.Restores, err = m.Int64Counter("duckwave.duck.restores",
		metric.WithDescription("Total restore operations applied to sinks."),
	); err != nil {
		return nil, err
	}
	if met.SinkFailures, err = m.Int64Counter("duckwave.sink.failures",
		metric.WithDescription("Total gain changes rejected by a sink, by operation."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("duckwave.frame.duration",
		metric.WithDescription("Per-frame VAD processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechEpisodeDuration, err = m.Float64Histogram("duckwave.speech.episode.duration",
		metric.WithDescription("Length of completed speech episodes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(episodeBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSinks, err = m.Int64UpDownCounter("duckwave.active_sinks",
		metric.WithDescription("Number of currently registered audio sinks."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("duckwave.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSinkFailure is a convenience method that records a sink failure with
// the standard operation attribute ("duck", "restore", or "attach").
func (m *Metrics) RecordSinkFailure(ctx context.Context, op string) {
	m.SinkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
