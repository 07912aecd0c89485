// Package agentkernel is the execution kernel for multi-agent workflows. It
// wires a session store, a hook registry, a tool dispatcher and a bounded
// worker pool from a single configuration.
//
// Most applications interact with this package by:
//  1. Creating a Kernel via New() with an Executor (for example a tool.Registry)
//  2. Registering policy hooks on Kernel.Hooks()
//  3. Creating a session with NewSession and running rounds with Dispatch
//
// Workflow graphs that manage sessions themselves call DispatchTools with an
// explicit session and merge the returned budget on their own. RunSpool runs
// arbitrary task batches (sub-agent fan-out) with the configured limits.
package agentkernel

import (
	"context"
	"io"
	"sync"

	"github.com/hupe1980/agentkernel/config"
	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/dispatch"
	"github.com/hupe1980/agentkernel/hook"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/session"
	"github.com/hupe1980/agentkernel/spool"
	"github.com/hupe1980/agentkernel/telemetry"
)

// Options configures the Kernel instance.
type Options struct {
	// Config holds spool limits, the default budget and allow-list, the
	// configured deny hooks and logging settings. Defaults to config.Default().
	Config *config.Config

	// Executor runs tool calls. Required.
	Executor dispatch.Executor

	// Estimator fills zero call cost estimates.
	Estimator dispatch.Estimator

	// Store keeps sessions between rounds (defaults to an in-memory store).
	Store session.Store

	// Logger overrides the logger built from Config.Logging. When nil and
	// LogOutput is set, a KernelLogger writing to LogOutput is created;
	// otherwise logging is disabled.
	Logger    logging.Logger
	LogOutput io.Writer

	// Sink receives kernel telemetry events (defaults to a no-op sink).
	Sink telemetry.Sink
}

// Kernel is the high-level façade aggregating dispatcher, hooks and sessions.
type Kernel struct {
	opts       Options
	hooks      *hook.Registry
	dispatcher *dispatch.Dispatcher

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes rounds of one session. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Kernel. Configured deny lists are registered as BeforeCall
// hooks ahead of any user hooks. Invalid settings yield a
// *core.InvalidConfigError.
func New(optFns ...func(o *Options)) (*Kernel, error) {
	opts := Options{
		Config: config.Default(),
		Store:  session.NewInMemoryStore(),
		Sink:   telemetry.NoOpSink{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	opts.Sink = telemetry.OrNoOp(opts.Sink)

	if opts.Logger == nil && opts.LogOutput != nil {
		opts.Logger = logging.NewLogger(opts.Config.LoggerConfig(opts.LogOutput)).WithComponent("kernel")
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	cfg := opts.Config

	hooks := hook.NewRegistry(func(o *hook.RegistryOptions) {
		o.Logger = opts.Logger
		o.Sink = opts.Sink
		o.AuditLimit = cfg.Hooks.AuditLimit
	})
	if len(cfg.Hooks.DenyTools) > 0 {
		hooks.Register(hook.BeforeCall, hook.MatchTools(cfg.Hooks.DenyTools...),
			hook.DenyTools(cfg.Hooks.DenyReason, cfg.Hooks.DenyTools...), hook.WithID("config.deny_tools"))
	}

	d, err := dispatch.New(opts.Executor, func(o *dispatch.Options) {
		o.Hooks = hooks
		o.Concurrency = cfg.Spool.Concurrency
		o.Deadline = cfg.Spool.Deadline
		o.StartRate = cfg.Spool.Limit()
		o.StartBurst = cfg.Spool.StartBurst
		o.Estimator = opts.Estimator
		o.Logger = opts.Logger
		o.Sink = opts.Sink
	})
	if err != nil {
		return nil, err
	}

	return &Kernel{
		opts:       opts,
		hooks:      hooks,
		dispatcher: d,
		locks:      make(map[string]*sessionLock),
	}, nil
}

// Hooks returns the registry consulted around every dispatched call.
func (k *Kernel) Hooks() *hook.Registry { return k.hooks }

// Store returns the session store.
func (k *Kernel) Store() session.Store { return k.opts.Store }

// NewSession creates and stores a session seeded with the configured budget
// and allow-list. An empty id is replaced with a generated one.
func (k *Kernel) NewSession(id string, optFns ...func(o *core.SessionOptions)) (core.Session, error) {
	if id == "" {
		id = core.NewID()
	}

	s, err := core.CreateInitialSession(id, k.opts.Config.AllowedTools, k.opts.Config.Budget, optFns...)
	if err != nil {
		return core.Session{}, err
	}

	if err := k.opts.Store.Create(s); err != nil {
		return core.Session{}, err
	}

	k.opts.Logger.Debug("session.created", "session_id", s.ID, "allowed_tools", s.AllowedTools.Len())

	return s, nil
}

// DispatchTools runs one round of calls against an explicit session without
// touching the store.
func (k *Kernel) DispatchTools(ctx context.Context, s core.Session, calls []core.ToolCallRequest) (core.Session, []core.Settlement, error) {
	return k.dispatcher.DispatchTools(ctx, s, calls)
}

// Dispatch runs one round for a stored session and persists the resulting
// budget. Rounds for the same session are serialized so each one reserves
// against the budget left by the previous round.
func (k *Kernel) Dispatch(ctx context.Context, sessionID string, calls []core.ToolCallRequest) (core.Session, []core.Settlement, error) {
	unlock := k.lockSession(sessionID)
	defer unlock()

	s, err := k.opts.Store.Get(sessionID)
	if err != nil {
		return core.Session{}, nil, err
	}

	out, settlements, err := k.dispatcher.DispatchTools(ctx, s, calls)
	if err != nil {
		return s, nil, err
	}

	stored, err := k.opts.Store.Apply(sessionID, core.BudgetOnly(out.Budget))
	if err != nil {
		return out, settlements, err
	}

	return stored, settlements, nil
}

// RunSpool runs tasks with the configured spool limits. optFns are applied
// after the configured defaults.
func (k *Kernel) RunSpool(ctx context.Context, tasks []spool.Task, optFns ...func(o *spool.Options)) ([]core.Settlement, error) {
	cfg := k.opts.Config.Spool

	defaults := func(o *spool.Options) {
		o.Concurrency = cfg.Concurrency
		o.Deadline = cfg.Deadline
		o.StartRate = cfg.Limit()
		o.StartBurst = cfg.StartBurst
		o.Logger = k.opts.Logger
		o.Sink = k.opts.Sink
	}

	return spool.Run(ctx, tasks, append([]func(o *spool.Options){defaults}, optFns...)...)
}

func (k *Kernel) lockSession(id string) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &sessionLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		defer k.mu.Unlock()

		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
	}
}
