package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the scope name used for the kernel's tracer and meter.
const InstrumentationName = "github.com/hupe1980/agentkernel"

// Tracer returns the kernel tracer from the global TracerProvider.
func Tracer() trace.Tracer { return otel.Tracer(InstrumentationName) }

// OTelSink counts events per type on an OpenTelemetry meter and attaches
// them as events to the span active in the emitting context.
type OTelSink struct {
	meter metric.Meter

	mu       sync.Mutex
	counters map[EventType]metric.Int64Counter
}

// OTelOptions configures an OTelSink.
type OTelOptions struct {
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
}

// NewOTelSink creates an OTelSink.
func NewOTelSink(optFns ...func(o *OTelOptions)) *OTelSink {
	opts := OTelOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return &OTelSink{
		meter:    mp.Meter(InstrumentationName),
		counters: make(map[EventType]metric.Int64Counter),
	}
}

// Emit increments the counter for e.Type and records a span event.
func (s *OTelSink) Emit(ctx context.Context, e Event) {
	attrs := eventAttrs(e)

	if c, err := s.counter(e.Type); err == nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(string(e.Type), trace.WithAttributes(attrs...))
	}
}

func (s *OTelSink) counter(t EventType) (metric.Int64Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.counters[t]; ok {
		return c, nil
	}
	c, err := s.meter.Int64Counter("agentkernel." + string(t))
	if err != nil {
		return nil, err
	}
	s.counters[t] = c
	return c, nil
}

// eventAttrs keeps low-cardinality fields only; ids stay out of metric labels.
func eventAttrs(e Event) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if e.Phase != "" {
		attrs = append(attrs, attribute.String("phase", e.Phase))
	}
	if e.Decision != "" {
		attrs = append(attrs, attribute.String("decision", e.Decision))
	}
	if e.Status != "" {
		attrs = append(attrs, attribute.String("status", e.Status))
	}
	if e.Reason != "" {
		attrs = append(attrs, attribute.String("reason", e.Reason))
	}
	return attrs
}
