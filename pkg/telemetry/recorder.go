// Package telemetry defines a capability interface for span and metric
// recording, selected once at boot by config rather than by conditional
// imports scattered across packages (§9 design note).
package telemetry

import "context"

// Recorder records spans, counters and histograms. Components take a
// Recorder through their constructor; outside this package, the only direct
// import of an otel or prometheus package is the composition root's
// promhttp handler for /metrics.
type Recorder interface {
	// StartSpan begins a span named name and returns a context carrying it
	// plus a function that ends the span.
	StartSpan(ctx context.Context, name string) (context.Context, func())
	// Counter increments a named counter by delta, tagged with attrs
	// (alternating key, value pairs).
	Counter(name string, delta int64, attrs ...string)
	// Histogram records a single observation for name, tagged with attrs.
	Histogram(name string, value float64, attrs ...string)
}

// NoOp is a Recorder that discards everything. It is the default when
// telemetry is disabled in config.
type NoOp struct{}

// StartSpan implements Recorder.
func (NoOp) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

// Counter implements Recorder.
func (NoOp) Counter(string, int64, ...string) {}

// Histogram implements Recorder.
func (NoOp) Histogram(string, float64, ...string) {}

var _ Recorder = NoOp{}
