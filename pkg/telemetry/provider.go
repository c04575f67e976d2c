package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TelemetryProvider implements the Telemetry interface using the
// OpenTelemetry SDK: a MeterProvider backed by a periodic reader per
// configured metric exporter, and a TracerProvider backed by a batch
// span processor per configured trace exporter. Instruments are created
// lazily and cached by name, since Telemetry's RecordHistogram/
// RecordCounter take a bare metric name rather than a pre-created
// instrument handle.
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer
	resource       *sdkresource.Resource

	instrumentsMu sync.Mutex
	histograms    map[string]metric.Float64Histogram
	counters      map[string]metric.Int64Counter
}

// New creates a Telemetry backed by a real OpenTelemetry SDK pipeline
// when cfg is enabled and valid, or a NoopTelemetry when cfg.Enabled is
// false.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	res := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	metricExporters, err := createMetricExporters(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporters: %w", err)
	}
	traceExporters, err := createTraceExporters(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporters: %w", err)
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, exp := range metricExporters {
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.BatchTimeout))))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)

	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	}
	for _, exp := range traceExporters {
		tracerOpts = append(tracerOpts, sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		))
	}
	tracerProvider := sdktrace.NewTracerProvider(tracerOpts...)

	return &TelemetryProvider{
		config:         cfg,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		meter:          meterProvider.Meter(cfg.ServiceName),
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		resource:       res,
		histograms:     make(map[string]metric.Float64Histogram),
		counters:       make(map[string]metric.Int64Counter),
	}, nil
}

func (p *TelemetryProvider) getHistogram(name string) (metric.Float64Histogram, error) {
	p.instrumentsMu.Lock()
	defer p.instrumentsMu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h, nil
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	p.histograms[name] = h
	return h, nil
}

func (p *TelemetryProvider) getCounter(name string) (metric.Int64Counter, error) {
	p.instrumentsMu.Lock()
	defer p.instrumentsMu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c, nil
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	p.counters[name] = c
	return c, nil
}

// RecordHistogram records value against the named histogram instrument,
// creating it on first use. A nil ctx is treated as context.Background,
// since the SDK's instruments call methods on ctx internally and a
// literal nil interface value panics on any method call.
func (p *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	h, err := p.getHistogram(name)
	if err != nil {
		return
	}
	h.Record(nonNilContext(ctx), value, metric.WithAttributes(attrs...))
}

// RecordCounter increments the named counter instrument by value,
// creating it on first use.
func (p *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c, err := p.getCounter(name)
	if err != nil {
		return
	}
	c.Add(nonNilContext(ctx), value, metric.WithAttributes(attrs...))
}

// StartSpan starts a span named name as a child of the span (if any) in
// ctx.
func (p *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return p.tracer.Start(nonNilContext(ctx), name, oteltrace.WithAttributes(attrs...))
}

// nonNilContext substitutes context.Background for a nil ctx. Every
// TelemetryProvider method that hands ctx to the OpenTelemetry SDK routes
// through this instead of passing a caller's nil straight through.
func nonNilContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Shutdown flushes and shuts down the tracer and meter providers. A nil
// ctx (as a caller might pass when it has none handy) is treated as
// context.Background rather than propagated into the SDK, which expects
// a non-nil context at every shutdown call site.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	ctx = nonNilContext(ctx)
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
