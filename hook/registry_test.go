package hook

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/telemetry"
)

func call(tool string, input any) core.ToolCallRequest {
	return core.ToolCallRequest{ID: "c-" + tool, ToolName: tool, Input: input}
}

func decide(d Decision) Handler {
	return HandlerFunc(func(context.Context, *CallContext) (Decision, error) { return d, nil })
}

func TestRegistry_EmptyAllows(t *testing.T) {
	r := NewRegistry()

	dec := r.Dispatch(context.Background(), BeforeCall, call("search", nil), nil, core.Session{})

	assert.Equal(t, Allow(), dec)
	assert.Empty(t, r.Audit())
}

func TestRegistry_DenyShortCircuits(t *testing.T) {
	r := NewRegistry()
	var ran []string

	r.Register(BeforeCall, nil, HandlerFunc(func(context.Context, *CallContext) (Decision, error) {
		ran = append(ran, "first")
		return Allow(), nil
	}), WithID("first"))
	r.Register(BeforeCall, MatchTools("shell.exec"), decide(Deny("blocked")), WithID("guard"))
	r.Register(BeforeCall, nil, HandlerFunc(func(context.Context, *CallContext) (Decision, error) {
		ran = append(ran, "never")
		return Allow(), nil
	}))

	dec := r.Dispatch(context.Background(), BeforeCall, call("shell.exec", nil), nil, core.Session{ID: "s1"})

	require.IsType(t, DenyDecision{}, dec)
	assert.Equal(t, "blocked", dec.(DenyDecision).Reason)
	assert.Equal(t, "guard", dec.(DenyDecision).HandlerID)
	assert.Equal(t, []string{"first"}, ran)

	audit := r.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, "first", audit[0].HandlerID)
	assert.Equal(t, "deny", audit[1].Decision.Kind())
	assert.Equal(t, "s1", audit[1].SessionID)
}

func TestRegistry_MatcherSkipsOtherTools(t *testing.T) {
	r := NewRegistry()
	r.Register(BeforeCall, MatchPrefix("shell."), decide(Deny("no shell")))

	assert.Equal(t, Allow(), r.Dispatch(context.Background(), BeforeCall, call("search", nil), nil, core.Session{}))
	assert.Equal(t, "deny", r.Dispatch(context.Background(), BeforeCall, call("shell.ls", nil), nil, core.Session{}).Kind())
}

func TestRegistry_MutationsChain(t *testing.T) {
	tests := []struct {
		name   string
		phase  Phase
		input  any
		output any
		want   any
	}{
		{"before call rewrites input", BeforeCall, 1, nil, 3},
		{"after call rewrites output", AfterCall, "in", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			inc := HandlerFunc(func(_ context.Context, cc *CallContext) (Decision, error) {
				if cc.Phase == BeforeCall {
					return Mutate(cc.Call.Input.(int) + 1), nil
				}
				return Mutate(cc.Output.(int) + 1), nil
			})
			r.Register(tt.phase, MatchAll, inc)
			r.Register(tt.phase, MatchAll, decide(Allow()))
			r.Register(tt.phase, MatchAll, inc)

			dec := r.Dispatch(context.Background(), tt.phase, call("calc", tt.input), tt.output, core.Session{})

			require.IsType(t, MutateDecision{}, dec)
			assert.Equal(t, tt.want, dec.(MutateDecision).Value)
		})
	}
}

func TestRegistry_FailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		ctx     func() context.Context
	}{
		{
			name: "handler error",
			handler: HandlerFunc(func(context.Context, *CallContext) (Decision, error) {
				return nil, errors.New("policy store offline")
			}),
			ctx: context.Background,
		},
		{
			name: "handler panic",
			handler: HandlerFunc(func(context.Context, *CallContext) (Decision, error) {
				panic("boom")
			}),
			ctx: context.Background,
		},
		{
			name:    "cancelled context",
			handler: decide(Allow()),
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Register(AfterCall, nil, tt.handler, WithID("h"))

			dec := r.Dispatch(tt.ctx(), AfterCall, call("search", nil), "out", core.Session{})

			require.IsType(t, DenyDecision{}, dec)
			assert.Equal(t, "h", dec.(DenyDecision).HandlerID)
			assert.NotEmpty(t, dec.(DenyDecision).Reason)
		})
	}
}

func TestRegistry_NilDecisionAllows(t *testing.T) {
	r := NewRegistry()
	r.Register(BeforeCall, nil, decide(nil))

	assert.Equal(t, Allow(), r.Dispatch(context.Background(), BeforeCall, call("x", nil), nil, core.Session{}))
}

func TestRegistry_PointerDecisions(t *testing.T) {
	var nilDeny *DenyDecision

	tests := []struct {
		name     string
		decision Decision
		wantKind string
		want     Decision
	}{
		{"pointer deny", &DenyDecision{Reason: "blocked"}, "deny", DenyDecision{Reason: "blocked", HandlerID: "h"}},
		{"nil pointer deny", nilDeny, "deny", DenyDecision{Reason: "nil deny decision", HandlerID: "h"}},
		{"pointer mutate", &MutateDecision{Value: "masked"}, "mutate", Mutate("masked")},
		{"pointer allow", &AllowDecision{}, "allow", Allow()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Register(AfterCall, nil, decide(tt.decision), WithID("h"))

			dec := r.Dispatch(context.Background(), AfterCall, call("search", nil), "out", core.Session{})

			assert.Equal(t, tt.want, dec)
			require.Len(t, r.Audit(), 1)
			assert.Equal(t, tt.wantKind, r.Audit()[0].Decision.Kind())
		})
	}
}

func TestRegistry_EmitsTelemetry(t *testing.T) {
	rec := telemetry.NewRecorder()
	r := NewRegistry(func(o *RegistryOptions) { o.Sink = rec })
	r.Register(BeforeCall, nil, DenyTools("blocked", "shell.exec"))

	r.Dispatch(context.Background(), BeforeCall, call("shell.exec", nil), nil, core.Session{ID: "s1"})

	events := rec.OfType(telemetry.EventHookDecision)
	require.Len(t, events, 1)
	assert.Equal(t, "deny", events[0].Decision)
	assert.Equal(t, "blocked", events[0].Reason)
	assert.Equal(t, "before_call", events[0].Phase)
	assert.Equal(t, "s1", events[0].SessionID)
}

func TestRegistry_AuditLimitAndReset(t *testing.T) {
	r := NewRegistry(func(o *RegistryOptions) { o.AuditLimit = 2 })
	r.Register(BeforeCall, nil, LoggingHandler(nil))

	for _, tool := range []string{"a", "b", "c"} {
		r.Dispatch(context.Background(), BeforeCall, call(tool, nil), nil, core.Session{})
	}

	audit := r.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, "b", audit[0].ToolName)
	assert.Equal(t, "c", audit[1].ToolName)

	r.ResetAudit()
	assert.Empty(t, r.Audit())
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	id := r.Register(BeforeCall, nil, decide(Deny("x")))
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, r.Len(BeforeCall))

	assert.True(t, r.Unregister(id))
	assert.False(t, r.Unregister(id))
	assert.Equal(t, 0, r.Len(BeforeCall))
}

func TestRegistry_RegisterRejectsProgrammingErrors(t *testing.T) {
	r := NewRegistry()

	assert.Panics(t, func() { r.Register(Phase("during"), nil, decide(Allow())) })
	assert.Panics(t, func() { r.Register(BeforeCall, nil, nil) })
}

func TestRegistry_ConcurrentDispatch(t *testing.T) {
	r := NewRegistry()
	r.Register(BeforeCall, nil, decide(Allow()))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Dispatch(context.Background(), BeforeCall, call("search", nil), nil, core.Session{})
		}()
		go func() {
			defer wg.Done()
			r.Register(AfterCall, nil, decide(Allow()))
		}()
	}
	wg.Wait()

	assert.Len(t, r.Audit(), 16)
	assert.Equal(t, 16, r.Len(AfterCall))
}

func TestMatchers(t *testing.T) {
	c := call("fs.read", nil)

	assert.True(t, MatchAll(c))
	assert.True(t, MatchTools("fs.read", "fs.write")(c))
	assert.False(t, MatchTools("fs.write")(c))
	assert.True(t, MatchPrefix("fs.")(c))
	assert.True(t, MatchAny(MatchTools("x"), MatchPrefix("fs."))(c))
	assert.False(t, MatchAny(MatchTools("x"))(c))
}
