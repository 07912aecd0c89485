package hook

import (
	"context"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/logging"
)

// CallContext is the read-only view a handler receives.
//
// Call.Input reflects mutations applied by earlier BeforeCall handlers.
// Output is nil in the BeforeCall phase and reflects earlier AfterCall
// mutations in the AfterCall phase. Handlers must not modify Session.
type CallContext struct {
	Phase   Phase
	Call    core.ToolCallRequest
	Output  any
	Session core.Session
}

// Handler decides on a single call.
//
// Returning an error is treated like a Deny: the registry fails closed.
// Handlers run sequentially on the dispatching goroutine and should be fast.
type Handler interface {
	Handle(ctx context.Context, cc *CallContext) (Decision, error)
}

// HandlerFunc adapts a function to Handler.
//
// Example:
//
//	reg.Register(hook.BeforeCall, hook.MatchPrefix("shell."), hook.HandlerFunc(
//	    func(ctx context.Context, cc *hook.CallContext) (hook.Decision, error) {
//	        return hook.Deny("shell access disabled"), nil
//	    },
//	))
type HandlerFunc func(ctx context.Context, cc *CallContext) (Decision, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cc *CallContext) (Decision, error) {
	return f(ctx, cc)
}

// LoggingHandler allows every call and logs it at debug level.
func LoggingHandler(logger logging.Logger) Handler {
	logger = logging.OrNoOp(logger)

	return HandlerFunc(func(_ context.Context, cc *CallContext) (Decision, error) {
		logger.Debug("hook observed call",
			"phase", string(cc.Phase),
			"tool_name", cc.Call.ToolName,
			"call_id", cc.Call.ID,
			"session_id", cc.Session.ID,
		)
		return Allow(), nil
	})
}

// DenyTools denies calls to any of the named tools with the given reason.
// Calls to other tools are allowed.
func DenyTools(reason string, names ...string) Handler {
	set := core.NewToolSet(names...)

	return HandlerFunc(func(_ context.Context, cc *CallContext) (Decision, error) {
		if set.Has(cc.Call.ToolName) {
			return Deny(reason), nil
		}
		return Allow(), nil
	})
}
