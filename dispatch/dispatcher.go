package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/hook"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/spool"
	"github.com/hupe1980/agentkernel/telemetry"
)

// Options configures a Dispatcher.
type Options struct {
	// Hooks holds the BeforeCall/AfterCall handlers. A registry sharing the
	// dispatcher's logger and sink is created when nil.
	Hooks *hook.Registry

	// Concurrency bounds the number of calls executing at once.
	Concurrency int

	// Deadline bounds a whole dispatch round. Zero means no deadline.
	Deadline time.Duration

	// Estimator fills the cost of calls submitted with a zero estimate.
	Estimator Estimator

	// TimeoutFor derives the per-call timeout. Defaults to TimeoutFromCost.
	TimeoutFor func(call core.ToolCallRequest) time.Duration

	// StartRate and StartBurst limit how fast calls start within a round.
	StartRate  rate.Limit
	StartBurst int

	Logger logging.Logger
	Sink   telemetry.Sink
	Tracer trace.Tracer
}

// Dispatcher admits, governs and executes batches of tool calls for a session.
type Dispatcher struct {
	executor Executor
	opts     Options
}

// New creates a Dispatcher around executor.
func New(executor Executor, optFns ...func(o *Options)) (*Dispatcher, error) {
	if executor == nil {
		return nil, core.NewInvalidConfigError("executor", "must not be nil")
	}

	opts := Options{
		Concurrency: spool.DefaultConcurrency,
		TimeoutFor:  TimeoutFromCost,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	spoolOpts := opts.spoolOptions("")
	if err := spoolOpts.Validate(); err != nil {
		return nil, err
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.Sink = telemetry.OrNoOp(opts.Sink)
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}
	if opts.TimeoutFor == nil {
		opts.TimeoutFor = TimeoutFromCost
	}
	if opts.Hooks == nil {
		opts.Hooks = hook.NewRegistry(func(o *hook.RegistryOptions) {
			o.Logger = opts.Logger
			o.Sink = opts.Sink
		})
	}

	return &Dispatcher{executor: executor, opts: opts}, nil
}

func (o *Options) spoolOptions(sessionID string) spool.Options {
	return spool.Options{
		Concurrency: o.Concurrency,
		Deadline:    o.Deadline,
		StartRate:   o.StartRate,
		StartBurst:  o.StartBurst,
		SessionID:   sessionID,
		Logger:      o.Logger,
		Sink:        o.Sink,
		Tracer:      o.Tracer,
	}
}

// Hooks returns the dispatcher's hook registry.
func (d *Dispatcher) Hooks() *hook.Registry { return d.opts.Hooks }

// invocation states of an admitted call.
const (
	statePending int32 = iota
	stateInvoked
	stateAbandoned
)

type admitted struct {
	index int
	call  core.ToolCallRequest
	state atomic.Int32
}

// DispatchTools runs one round of tool calls for session.
//
// Calls outside the session allow-list are rejected with PolicyViolation and
// calls the working budget cannot cover with BudgetExceeded. The budget of
// every remaining call is reserved, in input order, before any call executes.
// Admitted calls then run on the spooler with BeforeCall and AfterCall hooks
// around the executor.
//
// The returned session carries the decremented budget; reservations of calls
// whose executor was never invoked are refunded. Settlements are in call
// order. The only returned error is an *core.InvalidConfigError.
func (d *Dispatcher) DispatchTools(ctx context.Context, session core.Session, calls []core.ToolCallRequest) (core.Session, []core.Settlement, error) {
	calls = d.estimate(calls)
	if err := core.ValidateCalls(calls); err != nil {
		return session, nil, err
	}

	batchID := core.NewID()
	start := time.Now()

	ctx, span := d.opts.Tracer.Start(ctx, "dispatch.tools", trace.WithAttributes(
		attribute.String("session.id", session.ID),
		attribute.String("dispatch.batch_id", batchID),
		attribute.Int("dispatch.call_count", len(calls)),
	))
	defer span.End()

	settlements := make([]core.Settlement, len(calls))
	ledger := core.NewBudgetLedger(session.Budget)

	var queue []*admitted
	for i, c := range calls {
		if !session.AllowedTools.Has(c.ToolName) {
			settlements[i] = core.Reject(c.ID, &core.PolicyViolationError{Tool: c.ToolName})
			d.emitReject(ctx, session.ID, c, settlements[i].Err())
			continue
		}
		if err := ledger.Reserve(c.EstimatedCost); err != nil {
			settlements[i] = core.Reject(c.ID, err)
			d.emitReject(ctx, session.ID, c, err)
			continue
		}

		queue = append(queue, &admitted{index: i, call: c})
		d.opts.Sink.Emit(ctx, telemetry.Event{
			Type:      telemetry.EventDispatchAdmit,
			SessionID: session.ID,
			CallID:    c.ID,
			Time:      time.Now(),
		})
	}

	if len(queue) > 0 {
		tasks := make([]spool.Task, len(queue))
		for k, a := range queue {
			tasks[k] = spool.Task{
				ID:             a.call.ID,
				Run:            d.runCall(session, a),
				CostEstimate:   a.call.EstimatedCost,
				PerTaskTimeout: d.opts.TimeoutFor(a.call),
			}
		}

		spoolOpts := d.opts.spoolOptions(session.ID)
		results, err := spool.Run(ctx, tasks, func(o *spool.Options) { *o = spoolOpts })
		if err != nil {
			// Calls were validated above; an error here means a bad TimeoutFor.
			for _, a := range queue {
				ledger.Release(a.call.EstimatedCost)
			}
			return session, nil, err
		}

		for k, a := range queue {
			settlements[a.index] = results[k]
			if a.state.CompareAndSwap(statePending, stateAbandoned) {
				ledger.Release(a.call.EstimatedCost)
			}
		}
	}

	out := session.WithBudget(ledger.Remaining())

	logger := d.opts.Logger
	counts := make(map[string]int, 3)
	for i, s := range settlements {
		counts[string(s.Status())]++
		args := []any{
			"session_id", session.ID,
			"batch_id", batchID,
			"tool_name", calls[i].ToolName,
			"call_id", s.TaskID,
			"status", string(s.Status()),
		}
		if err := s.Err(); err != nil {
			logger.Warn("dispatch.call.settled", append(args, "error", err.Error())...)
			continue
		}
		logger.Debug("dispatch.call.settled", args...)
	}

	span.SetAttributes(
		attribute.Int("dispatch.fulfilled", counts[string(core.StatusFulfilled)]),
		attribute.Int("dispatch.rejected", counts[string(core.StatusRejected)]),
		attribute.Int("dispatch.skipped", counts[string(core.StatusSkipped)]),
		attribute.Int64("budget.tokens_remaining", out.Budget.TokenRemaining),
	)

	logger.Info("dispatch.batch.complete",
		"session_id", session.ID,
		"batch_id", batchID,
		"call_count", len(calls),
		"fulfilled", counts[string(core.StatusFulfilled)],
		"rejected", counts[string(core.StatusRejected)],
		"skipped", counts[string(core.StatusSkipped)],
		"tokens_remaining", out.Budget.TokenRemaining,
		"time_remaining_ms", out.Budget.TimeRemainingMs,
		"duration", time.Since(start),
	)

	return out, settlements, nil
}

// runCall builds the spool task body for one admitted call. The executor is
// only invoked if the call is still pending; once the dispatcher abandons a
// call its reservation is refunded and a late start is refused.
func (d *Dispatcher) runCall(session core.Session, a *admitted) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		call := a.call

		switch dec := d.opts.Hooks.Dispatch(ctx, hook.BeforeCall, call, nil, session).(type) {
		case hook.DenyDecision:
			return nil, &core.HookDeniedError{Reason: dec.Reason, HandlerID: dec.HandlerID, Phase: string(hook.BeforeCall)}
		case hook.MutateDecision:
			call.Input = dec.Value
		}

		if !a.state.CompareAndSwap(statePending, stateInvoked) {
			return nil, fmt.Errorf("%w: call %q abandoned before execution", core.ErrCancelled, call.ID)
		}

		timeout := d.opts.TimeoutFor(call)
		out, err := d.executor.Execute(ctx, call.ToolName, call.Input, timeout)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				// The executor enforced the timeout itself.
				return nil, fmt.Errorf("%w: %v", core.ErrExecutionTimeout, err)
			}
			return nil, err
		}

		switch dec := d.opts.Hooks.Dispatch(ctx, hook.AfterCall, call, out, session).(type) {
		case hook.DenyDecision:
			return nil, &core.HookDeniedError{Reason: dec.Reason, HandlerID: dec.HandlerID, Phase: string(hook.AfterCall)}
		case hook.MutateDecision:
			out = dec.Value
		}

		return out, nil
	}
}

func (d *Dispatcher) estimate(calls []core.ToolCallRequest) []core.ToolCallRequest {
	if d.opts.Estimator == nil {
		return calls
	}

	out := make([]core.ToolCallRequest, len(calls))
	for i, c := range calls {
		if c.EstimatedCost.IsZero() {
			c.EstimatedCost = d.opts.Estimator.Estimate(c)
		}
		out[i] = c
	}
	return out
}

func (d *Dispatcher) emitReject(ctx context.Context, sessionID string, c core.ToolCallRequest, err error) {
	d.opts.Sink.Emit(ctx, telemetry.Event{
		Type:      telemetry.EventDispatchReject,
		SessionID: sessionID,
		CallID:    c.ID,
		Status:    string(core.StatusRejected),
		Reason:    err.Error(),
		Time:      time.Now(),
	})
}
