// Package observe provides application-wide observability primitives for
// the chorus daemon: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all chorus metrics.
const meterName = "github.com/chorus-audio/chorus"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TickDuration tracks how long each scheduling tick takes. The loop
	// targets a 20ms cadence, so anything near that is a problem.
	TickDuration metric.Float64Histogram

	// --- Counters ---

	// VoiceFrames counts inbound voice frames per tick window. Use with
	// attribute: attribute.String("kind", "speaking"|"concealed")
	VoiceFrames metric.Int64Counter

	// InputPromotions counts inputs leaving the promotion queue. Use with
	// attribute: attribute.String("outcome", "ready"|"abandoned")
	InputPromotions metric.Int64Counter

	// --- Error counters ---

	// InputErrors counts abandoned inputs by failure class. Use with
	// attribute: attribute.String("reason", "permanent"|"retry_limit"|"panicked")
	InputErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSpeakers tracks the number of speakers currently known to the
	// voice channel.
	ActiveSpeakers metric.Int64UpDownCounter

	// ActiveInputs tracks inputs enqueued but not yet ready or abandoned.
	ActiveInputs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// tickBuckets defines histogram bucket boundaries (in seconds) for per-tick
// work. The cadence is 20ms, so the interesting range sits well below that.
var tickBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TickDuration, err = m.Float64Histogram("chorus.tick.duration",
		metric.WithDescription("Time spent per scheduling tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.VoiceFrames, err = m.Int64Counter("chorus.voice.frames",
		metric.WithDescription("Total inbound voice frames by kind."),
	); err != nil {
		return nil, err
	}
	if met.InputPromotions, err = m.Int64Counter("chorus.input.promotions",
		metric.WithDescription("Total inputs leaving the promotion queue by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.InputErrors, err = m.Int64Counter("chorus.input.errors",
		metric.WithDescription("Total abandoned inputs by failure class."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSpeakers, err = m.Int64UpDownCounter("chorus.voice.active_speakers",
		metric.WithDescription("Number of speakers currently known to the voice channel."),
	); err != nil {
		return nil, err
	}
	if met.ActiveInputs, err = m.Int64UpDownCounter("chorus.input.active",
		metric.WithDescription("Number of inputs enqueued but not yet ready or abandoned."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("chorus.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordVoiceFrames is a convenience method that adds n frames of the given
// kind to the voice frame counter.
func (m *Metrics) RecordVoiceFrames(ctx context.Context, kind string, n int64) {
	if n == 0 {
		return
	}
	m.VoiceFrames.Add(ctx, n,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordPromotion is a convenience method that records one input leaving the
// promotion queue with the given outcome.
func (m *Metrics) RecordPromotion(ctx context.Context, outcome string) {
	m.InputPromotions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordInputError is a convenience method that records one abandoned input
// with the given failure class.
func (m *Metrics) RecordInputError(ctx context.Context, reason string) {
	m.InputErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
