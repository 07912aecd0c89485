package hook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
	"github.com/hupe1980/agentkernel/telemetry"
)

// AuditEntry records one handler decision.
type AuditEntry struct {
	Phase     Phase
	CallID    string
	ToolName  string
	SessionID string
	HandlerID string
	Decision  Decision
	Time      time.Time
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger receives handler failures and decisions. Defaults to a no-op logger.
	Logger logging.Logger

	// Sink receives a hook.decision event per handler decision.
	Sink telemetry.Sink

	// AuditLimit caps the audit log; the oldest entries are dropped first.
	// Zero keeps every entry.
	AuditLimit int
}

// RegisterOptions configures a single registration.
type RegisterOptions struct {
	// ID overrides the generated handler id.
	ID string
}

// WithID sets an explicit handler id.
func WithID(id string) func(o *RegisterOptions) {
	return func(o *RegisterOptions) { o.ID = id }
}

type registration struct {
	id      string
	matcher Matcher
	handler Handler
}

// Registry holds ordered handler lists per phase and runs them for each call.
//
// Registration and dispatch are safe for concurrent use. Dispatch works on a
// snapshot of the handler list taken when it starts, so registrations made
// while a batch is in flight apply to later calls only.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Phase][]registration

	auditMu sync.Mutex
	audit   []AuditEntry

	logger     logging.Logger
	sink       telemetry.Sink
	auditLimit int
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		handlers:   make(map[Phase][]registration),
		logger:     logging.OrNoOp(opts.Logger),
		sink:       telemetry.OrNoOp(opts.Sink),
		auditLimit: opts.AuditLimit,
	}
}

// Register appends handler to the ordered list of phase and returns its id.
// A nil matcher matches every call. Register panics on an unknown phase or a
// nil handler; both are programming errors.
func (r *Registry) Register(phase Phase, matcher Matcher, handler Handler, optFns ...func(o *RegisterOptions)) string {
	if !phase.Valid() {
		panic(fmt.Sprintf("hook: unknown phase %q", phase))
	}
	if handler == nil {
		panic("hook: nil handler")
	}

	opts := RegisterOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ID == "" {
		opts.ID = core.NewID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[phase] = append(r.handlers[phase], registration{id: opts.ID, matcher: matcher, handler: handler})

	return opts.ID
}

// Unregister removes the handler with the given id from every phase.
// It reports whether a handler was removed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for phase, regs := range r.handlers {
		kept := make([]registration, 0, len(regs))
		for _, reg := range regs {
			if reg.id == id {
				removed = true
				continue
			}
			kept = append(kept, reg)
		}
		r.handlers[phase] = kept
	}

	return removed
}

// Len returns the number of handlers registered for phase.
func (r *Registry) Len(phase Phase) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[phase])
}

// Dispatch runs the matching handlers of phase sequentially in registration
// order.
//
// The first Deny short-circuits and is returned with its HandlerID set. A
// Mutate replaces the input (BeforeCall) or output (AfterCall) seen by the
// following handlers. When no handler denied, Dispatch returns Mutate with the
// final value if any handler mutated, Allow otherwise.
//
// A handler error, a handler panic, or a context cancelled before a handler
// runs is converted to a Deny.
func (r *Registry) Dispatch(ctx context.Context, phase Phase, call core.ToolCallRequest, output any, session core.Session) Decision {
	r.mu.RLock()
	regs := r.handlers[phase]
	r.mu.RUnlock()

	cc := &CallContext{Phase: phase, Call: call, Output: output, Session: session}
	mutated := false

	for _, reg := range regs {
		if reg.matcher != nil && !reg.matcher(cc.Call) {
			continue
		}

		var dec Decision
		if err := ctx.Err(); err != nil {
			dec = Deny(fmt.Sprintf("context done before handler ran: %v", err))
		} else {
			dec = r.invoke(ctx, reg, cc)
		}

		r.record(ctx, phase, cc, reg.id, dec)

		switch d := dec.(type) {
		case DenyDecision:
			d.HandlerID = reg.id
			return d
		case MutateDecision:
			mutated = true
			if phase == BeforeCall {
				cc.Call.Input = d.Value
			} else {
				cc.Output = d.Value
			}
		case AllowDecision:
		default:
			return DenyDecision{Reason: fmt.Sprintf("unknown decision type %T", dec), HandlerID: reg.id}
		}
	}

	if !mutated {
		return Allow()
	}
	if phase == BeforeCall {
		return Mutate(cc.Call.Input)
	}
	return Mutate(cc.Output)
}

// invoke calls a handler on a private copy of the context so handlers cannot
// see each other's scratch changes, and converts failures to Deny.
func (r *Registry) invoke(ctx context.Context, reg registration, cc *CallContext) (dec Decision) {
	view := *cc

	defer func() {
		if v := recover(); v != nil {
			perr := core.NewPanicError(v)
			r.logger.Error("hook handler panicked",
				"handler_id", reg.id,
				"call_id", cc.Call.ID,
				"panic", fmt.Sprint(v),
				"stack", string(perr.Stack),
			)
			dec = Deny(fmt.Sprintf("handler %s failed: %v", reg.id, perr))
		}
	}()

	d, err := reg.handler.Handle(ctx, &view)
	if err != nil {
		r.logger.Warn("hook handler failed", "handler_id", reg.id, "call_id", cc.Call.ID, "error", err.Error())
		return Deny(fmt.Sprintf("handler %s failed: %v", reg.id, err))
	}
	if d == nil {
		return Allow()
	}

	return normalize(d)
}

// normalize maps pointer variants onto the value decisions Dispatch switches
// on. Anything else is denied.
func normalize(d Decision) Decision {
	switch v := d.(type) {
	case AllowDecision, DenyDecision, MutateDecision:
		return v
	case *AllowDecision:
		return Allow()
	case *DenyDecision:
		if v == nil {
			return Deny("nil deny decision")
		}
		return DenyDecision{Reason: v.Reason}
	case *MutateDecision:
		if v == nil {
			return Deny("nil mutate decision")
		}
		return Mutate(v.Value)
	default:
		return Deny(fmt.Sprintf("unknown decision type %T", d))
	}
}

func (r *Registry) record(ctx context.Context, phase Phase, cc *CallContext, handlerID string, dec Decision) {
	now := time.Now()
	entry := AuditEntry{
		Phase:     phase,
		CallID:    cc.Call.ID,
		ToolName:  cc.Call.ToolName,
		SessionID: cc.Session.ID,
		HandlerID: handlerID,
		Decision:  dec,
		Time:      now,
	}

	r.auditMu.Lock()
	r.audit = append(r.audit, entry)
	if r.auditLimit > 0 && len(r.audit) > r.auditLimit {
		r.audit = append([]AuditEntry(nil), r.audit[len(r.audit)-r.auditLimit:]...)
	}
	r.auditMu.Unlock()

	reason := ""
	if d, ok := dec.(DenyDecision); ok {
		reason = d.Reason
	}

	r.logger.Debug("hook decision",
		"phase", string(phase),
		"call_id", cc.Call.ID,
		"handler_id", handlerID,
		"decision", dec.Kind(),
	)

	r.sink.Emit(ctx, telemetry.Event{
		Type:      telemetry.EventHookDecision,
		SessionID: cc.Session.ID,
		CallID:    cc.Call.ID,
		Phase:     string(phase),
		Decision:  dec.Kind(),
		Reason:    reason,
		Time:      now,
	})
}

// Audit returns a copy of the audit log in decision order.
func (r *Registry) Audit() []AuditEntry {
	r.auditMu.Lock()
	defer r.auditMu.Unlock()
	return append([]AuditEntry(nil), r.audit...)
}

// ResetAudit clears the audit log.
func (r *Registry) ResetAudit() {
	r.auditMu.Lock()
	r.audit = nil
	r.auditMu.Unlock()
}
