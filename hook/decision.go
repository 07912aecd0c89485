package hook

import (
	"slices"
	"strings"

	"github.com/hupe1980/agentkernel/core"
)

// Phase identifies the interception point around a tool call.
type Phase string

const (
	// BeforeCall runs immediately before the executor is invoked.
	// Handlers can veto the call or rewrite its input.
	BeforeCall Phase = "before_call"

	// AfterCall runs after the executor returned successfully.
	// Handlers can rewrite the output or veto it at reporting level;
	// side effects of the call have already happened.
	AfterCall Phase = "after_call"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p == BeforeCall || p == AfterCall }

// Decision is the closed set of handler verdicts. Decisions are values and
// never change after creation.
type Decision interface {
	// Kind returns "allow", "deny" or "mutate".
	Kind() string
	isDecision()
}

// AllowDecision lets the call proceed unchanged.
type AllowDecision struct{}

// Kind implements Decision.
func (AllowDecision) Kind() string { return "allow" }
func (AllowDecision) isDecision()  {}

// DenyDecision vetoes the call. HandlerID is set by the registry to the
// handler that produced the veto.
type DenyDecision struct {
	Reason    string
	HandlerID string
}

// Kind implements Decision.
func (DenyDecision) Kind() string { return "deny" }
func (DenyDecision) isDecision()  {}

// MutateDecision replaces the call input (BeforeCall) or output (AfterCall).
type MutateDecision struct {
	Value any
}

// Kind implements Decision.
func (MutateDecision) Kind() string { return "mutate" }
func (MutateDecision) isDecision()  {}

// Allow returns an AllowDecision.
func Allow() Decision { return AllowDecision{} }

// Deny returns a DenyDecision with the given reason.
func Deny(reason string) Decision { return DenyDecision{Reason: reason} }

// Mutate returns a MutateDecision carrying the replacement value.
func Mutate(v any) Decision { return MutateDecision{Value: v} }

// Matcher selects the calls a handler applies to. A nil Matcher matches every call.
type Matcher func(call core.ToolCallRequest) bool

// MatchAll matches every call.
func MatchAll(core.ToolCallRequest) bool { return true }

// MatchTools matches calls to any of the named tools.
func MatchTools(names ...string) Matcher {
	set := core.NewToolSet(names...)
	return func(call core.ToolCallRequest) bool { return set.Has(call.ToolName) }
}

// MatchPrefix matches calls whose tool name starts with prefix, e.g. "shell.".
func MatchPrefix(prefix string) Matcher {
	return func(call core.ToolCallRequest) bool { return strings.HasPrefix(call.ToolName, prefix) }
}

// MatchAny matches when at least one of the matchers does.
func MatchAny(matchers ...Matcher) Matcher {
	matchers = slices.Clone(matchers)
	return func(call core.ToolCallRequest) bool {
		for _, m := range matchers {
			if m == nil || m(call) {
				return true
			}
		}
		return false
	}
}
