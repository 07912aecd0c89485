package spool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/telemetry"
)

// DefaultConcurrency is the worker pool size used when Options.Concurrency is not set.
const DefaultConcurrency = 4

// Task is one independent unit of work. Run receives a context that is
// cancelled on per-task timeout, batch deadline or external cancellation;
// well-behaved work returns promptly once it is done.
type Task struct {
	ID             string
	Run            func(ctx context.Context) (any, error)
	CostEstimate   core.Cost
	PerTaskTimeout time.Duration
}

// Options configures a Spooler.
type Options struct {
	// Concurrency is the number of workers. Must be at least 1.
	Concurrency int

	// Deadline bounds the whole batch, measured from the start of Run.
	// Zero means no batch deadline.
	Deadline time.Duration

	// OnStart is called once for every task that starts running.
	OnStart func(taskID string)

	// OnSettle is called once for every task when it reaches its terminal state.
	// The task id is carried in Settlement.TaskID.
	OnSettle func(s core.Settlement)

	// StartRate limits how many tasks may start per second. Zero disables
	// the limit; a positive rate requires StartBurst >= 1.
	StartRate  rate.Limit
	StartBurst int

	// SessionID tags logs and telemetry events.
	SessionID string

	Logger logging.Logger
	Sink   telemetry.Sink
	Tracer trace.Tracer
}

// Validate reports configuration errors as *core.InvalidConfigError.
func (o *Options) Validate() error {
	if o.Concurrency < 1 {
		return core.NewInvalidConfigError("concurrency", fmt.Sprintf("must be >= 1, got %d", o.Concurrency))
	}
	if o.Deadline < 0 {
		return core.NewInvalidConfigError("deadline", "must not be negative")
	}
	if o.StartRate < 0 {
		return core.NewInvalidConfigError("start_rate", "must not be negative")
	}
	if o.StartRate > 0 && o.StartBurst < 1 {
		return core.NewInvalidConfigError("start_burst", "must be >= 1 when start_rate is set")
	}
	return nil
}

// Spooler runs batches of tasks on a bounded worker pool. A Spooler holds no
// per-batch state and may run several batches concurrently; the start-rate
// limiter is shared between them.
type Spooler struct {
	opts    Options
	limiter *rate.Limiter
}

// New creates a Spooler. It returns an *core.InvalidConfigError for invalid options.
func New(optFns ...func(o *Options)) (*Spooler, error) {
	opts := Options{Concurrency: DefaultConcurrency}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.Sink = telemetry.OrNoOp(opts.Sink)
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}

	s := &Spooler{opts: opts}
	if opts.StartRate > 0 {
		s.limiter = rate.NewLimiter(opts.StartRate, opts.StartBurst)
	}

	return s, nil
}

// Run is a convenience wrapper creating a Spooler for a single batch.
func Run(ctx context.Context, tasks []Task, optFns ...func(o *Options)) ([]core.Settlement, error) {
	s, err := New(optFns...)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, tasks)
}

var (
	errBatchDeadline = fmt.Errorf("spool batch deadline: %w", core.ErrDeadlineExceeded)
	errTaskTimeout   = fmt.Errorf("spool task timeout: %w", core.ErrExecutionTimeout)
)

// Run executes tasks and returns exactly one settlement per task in
// submission order. ctx is the external cancellation signal.
//
// Individual task failures never surface as the returned error; only
// invalid input (see ValidateTasks) does, before any task starts.
func (s *Spooler) Run(ctx context.Context, tasks []Task) ([]core.Settlement, error) {
	if err := ValidateTasks(tasks); err != nil {
		return nil, err
	}

	results := make([]core.Settlement, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	ctx, span := s.opts.Tracer.Start(ctx, "spool.run", trace.WithAttributes(
		attribute.Int("spool.task_count", len(tasks)),
		attribute.Int("spool.concurrency", s.opts.Concurrency),
		attribute.String("session.id", s.opts.SessionID),
	))
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.opts.Deadline > 0 {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithTimeoutCause(runCtx, s.opts.Deadline, errBatchDeadline)
		defer cancelDeadline()
	}

	b := &batch{spooler: s, ctx: runCtx, results: results}

	queue := make(chan int, len(tasks))
	for i := range tasks {
		queue <- i
	}
	close(queue)

	workers := min(s.opts.Concurrency, len(tasks))
	start := time.Now()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				b.runTask(i, tasks[i])
			}
		}()
	}
	wg.Wait()

	counts := countStatuses(results)
	span.SetAttributes(
		attribute.Int("spool.fulfilled", counts[string(core.StatusFulfilled)]),
		attribute.Int("spool.rejected", counts[string(core.StatusRejected)]),
		attribute.Int("spool.skipped", counts[string(core.StatusSkipped)]),
	)

	args := []any{"session_id", s.opts.SessionID, "task_count", len(tasks), "workers", workers, "duration", time.Since(start)}
	for k, v := range counts {
		args = append(args, k, v)
	}
	s.opts.Logger.Info("spool.batch.complete", args...)

	return results, nil
}

// ValidateTasks checks ids, run functions and timeouts of a batch.
func ValidateTasks(tasks []Task) error {
	seen := make(map[string]struct{}, len(tasks))

	for i, t := range tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if t.ID == "" {
			return core.NewInvalidConfigError(field+".id", "must not be empty")
		}
		if _, dup := seen[t.ID]; dup {
			return core.NewInvalidConfigError(field+".id", fmt.Sprintf("duplicate id %q", t.ID))
		}
		seen[t.ID] = struct{}{}

		if t.Run == nil {
			return core.NewInvalidConfigError(field+".run", "must not be nil")
		}
		if t.PerTaskTimeout < 0 {
			return core.NewInvalidConfigError(field+".per_task_timeout", "must not be negative")
		}
		if err := t.CostEstimate.Validate(); err != nil {
			return core.NewInvalidConfigError(field+".cost_estimate", err.Error())
		}
	}

	return nil
}

func countStatuses(results []core.Settlement) map[string]int {
	counts := make(map[string]int, 3)
	for _, r := range results {
		counts[string(r.Status())]++
	}
	return counts
}

// batch is the state of one Run call.
type batch struct {
	spooler *Spooler
	ctx     context.Context

	// mu serializes result writes and user callbacks.
	mu      sync.Mutex
	results []core.Settlement
}

type taskResult struct {
	value any
	err   error
}

func (b *batch) runTask(i int, t Task) {
	opts := &b.spooler.opts

	if b.ctx.Err() != nil {
		b.settle(i, core.Skip(t.ID, skipReason(b.ctx)), 0)
		return
	}

	if !b.waitStartSlot() || b.ctx.Err() != nil {
		b.settle(i, core.Skip(t.ID, skipReason(b.ctx)), 0)
		return
	}

	b.mu.Lock()
	if opts.OnStart != nil {
		opts.OnStart(t.ID)
	}
	b.mu.Unlock()

	opts.Sink.Emit(b.ctx, telemetry.Event{
		Type:      telemetry.EventTaskStart,
		SessionID: opts.SessionID,
		TaskID:    t.ID,
		Time:      time.Now(),
	})

	start := time.Now()
	b.settle(i, b.execute(t), time.Since(start))
}

// waitStartSlot blocks until the start-rate limiter admits one more task.
// It returns false when the batch context ends first.
func (b *batch) waitStartSlot() bool {
	limiter := b.spooler.limiter
	if limiter == nil {
		return true
	}

	r := limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-b.ctx.Done():
		r.Cancel()
		return false
	}
}

func (b *batch) execute(t Task) core.Settlement {
	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if t.PerTaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeoutCause(b.ctx, t.PerTaskTimeout, errTaskTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(b.ctx)
	}
	defer cancel()

	done := make(chan taskResult, 1)

	go func() {
		defer func() {
			if v := recover(); v != nil {
				perr := core.NewPanicError(v)
				b.spooler.opts.Logger.Error("spool.task.panic",
					"task_id", t.ID,
					"panic", fmt.Sprint(v),
					"stack", string(perr.Stack),
				)
				done <- taskResult{err: &core.ExecutionError{Cause: perr}}
			}
		}()

		v, err := t.Run(taskCtx)
		done <- taskResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return core.Fulfill(t.ID, res.value)
		}
		if taskCtx.Err() != nil {
			// The task gave up because its context ended.
			return core.Reject(t.ID, interruption(taskCtx, t))
		}
		return core.Reject(t.ID, core.AsRejection(res.err))
	case <-taskCtx.Done():
		return core.Reject(t.ID, interruption(taskCtx, t))
	}
}

// interruption classifies why a running task's context ended.
func interruption(taskCtx context.Context, t Task) error {
	cause := context.Cause(taskCtx)

	switch {
	case errors.Is(cause, core.ErrExecutionTimeout):
		return fmt.Errorf("%w: task %q exceeded %s", core.ErrExecutionTimeout, t.ID, t.PerTaskTimeout)
	case errors.Is(cause, core.ErrDeadlineExceeded), errors.Is(cause, context.DeadlineExceeded):
		return fmt.Errorf("%w: task %q interrupted by batch deadline", core.ErrExecutionTimeout, t.ID)
	default:
		return fmt.Errorf("%w: task %q: %v", core.ErrCancelled, t.ID, cause)
	}
}

// skipReason classifies why a queued task will not start.
func skipReason(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, core.ErrDeadlineExceeded) || errors.Is(cause, context.DeadlineExceeded) {
		return core.ErrDeadlineExceeded
	}
	return core.ErrCancelled
}

func (b *batch) settle(i int, s core.Settlement, dur time.Duration) {
	opts := &b.spooler.opts

	b.mu.Lock()
	b.results[i] = s
	if opts.OnSettle != nil {
		opts.OnSettle(s)
	}
	b.mu.Unlock()

	reason := ""
	if err := s.Err(); err != nil {
		reason = err.Error()
	}

	opts.Sink.Emit(b.ctx, telemetry.Event{
		Type:      telemetry.EventTaskSettle,
		SessionID: opts.SessionID,
		TaskID:    s.TaskID,
		Status:    string(s.Status()),
		Reason:    reason,
		Duration:  dur,
		Time:      time.Now(),
	})

	opts.Logger.Debug("spool.task.settled",
		"session_id", opts.SessionID,
		"task_id", s.TaskID,
		"status", string(s.Status()),
		"duration", dur,
	)
}
