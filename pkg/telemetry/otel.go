package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/toolgateway/registry"

// OTel is the real Recorder, backed by OpenTelemetry tracing and an
// OpenTelemetry-to-Prometheus metric bridge. Counter/Histogram are called
// from concurrent per-request code paths, so the lazily-populated
// instrument maps need a mutex the same way embedding.Cache's LRU does.
type OTel struct {
	tracer trace.Tracer
	meter  metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOTel constructs an OTel recorder, registering a Prometheus exporter as
// the metric reader. Callers expose the returned provider's registry via an
// HTTP handler (e.g. promhttp.Handler backed by the default registerer).
func NewOTel() (*OTel, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return &OTel{
		tracer:     otel.Tracer(instrumentationName),
		meter:      provider.Meter(instrumentationName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

// StartSpan implements Recorder.
func (o *OTel) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// Counter implements Recorder.
func (o *OTel) Counter(name string, delta int64, attrs ...string) {
	o.mu.Lock()
	c, ok := o.counters[name]
	if !ok {
		var err error
		c, err = o.meter.Int64Counter(name)
		if err != nil {
			o.mu.Unlock()
			return
		}
		o.counters[name] = c
	}
	o.mu.Unlock()
	c.Add(context.Background(), delta, metric.WithAttributes(toAttrs(attrs)...))
}

// Histogram implements Recorder.
func (o *OTel) Histogram(name string, value float64, attrs ...string) {
	o.mu.Lock()
	h, ok := o.histograms[name]
	if !ok {
		var err error
		h, err = o.meter.Float64Histogram(name)
		if err != nil {
			o.mu.Unlock()
			return
		}
		o.histograms[name] = h
	}
	o.mu.Unlock()
	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(attrs)...))
}

func toAttrs(kv []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return attrs
}

// Handler exposes the Prometheus scrape endpoint for the metrics this
// recorder produces.
func (*OTel) Handler() http.Handler {
	return promhttp.Handler()
}

var _ Recorder = (*OTel)(nil)
