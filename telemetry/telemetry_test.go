package telemetry

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/hupe1980/agentkernel/logging"
)

func TestRecorder_ConcurrentEmit(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Emit(context.Background(), Event{Type: EventTaskStart})
		}()
	}
	wg.Wait()

	events := r.Events()
	require.Len(t, events, 20)
	assert.False(t, events[0].Time.IsZero())
	assert.Len(t, r.OfType(EventTaskStart), 20)
	assert.Empty(t, r.OfType(EventTaskSettle))

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi{a, nil, b}

	m.Emit(context.Background(), Event{Type: EventHookDecision, Decision: "allow"})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestLogSink_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})

	NewLogSink(logger).Emit(context.Background(), Event{Type: EventDispatchReject, CallID: "c1", Reason: "policy violation"})

	out := buf.String()
	assert.Contains(t, out, `"event":"dispatch.reject"`)
	assert.Contains(t, out, `"call_id":"c1"`)
	assert.NotContains(t, out, "task_id")
}

func TestOTelSink_EmitWithNoopProviders(t *testing.T) {
	s := NewOTelSink(func(o *OTelOptions) { o.MeterProvider = noop.NewMeterProvider() })

	ctx, span := tracenoop.NewTracerProvider().Tracer("test").Start(context.Background(), "batch")
	defer span.End()

	assert.NotPanics(t, func() {
		s.Emit(ctx, Event{Type: EventTaskSettle, Status: "fulfilled"})
		s.Emit(ctx, Event{Type: EventTaskSettle, Status: "rejected"})
	})
	assert.Len(t, s.counters, 1)
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpSink{}, OrNoOp(nil))

	r := NewRecorder()
	assert.Same(t, r, OrNoOp(r))
}
