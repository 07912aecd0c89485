package core

import "maps"

// ToolConflictPolicy decides how a patch's allow-list combines with the base.
// The zero value ignores patch tools, so reconfiguring the allow-list always
// takes an explicit choice.
type ToolConflictPolicy int

const (
	// ToolPolicyUnset ignores SessionPatch.AllowedTools.
	ToolPolicyUnset ToolConflictPolicy = iota
	// ToolPolicyReplace replaces the base allow-list.
	ToolPolicyReplace
	// ToolPolicyUnion adds the patch tools to the base allow-list.
	ToolPolicyUnion
	// ToolPolicyIntersect narrows the base allow-list to the patch tools.
	ToolPolicyIntersect
)

// String returns the policy name used in configuration files.
func (p ToolConflictPolicy) String() string {
	switch p {
	case ToolPolicyReplace:
		return "replace"
	case ToolPolicyUnion:
		return "union"
	case ToolPolicyIntersect:
		return "intersect"
	default:
		return "unset"
	}
}

// ParseToolConflictPolicy maps a configuration name to a policy.
func ParseToolConflictPolicy(s string) (ToolConflictPolicy, error) {
	switch s {
	case "", "unset":
		return ToolPolicyUnset, nil
	case "replace":
		return ToolPolicyReplace, nil
	case "union":
		return ToolPolicyUnion, nil
	case "intersect":
		return ToolPolicyIntersect, nil
	default:
		return ToolPolicyUnset, NewInvalidConfigError("tool_policy", "unknown policy "+s)
	}
}

// BudgetPatch overrides individual budget fields; nil fields keep the base.
type BudgetPatch struct {
	TimeRemainingMs *int64
	TokenRemaining  *int64
}

// SessionPatch is a partial update applied with MergeSession. The session ID
// has no patch field because it never changes.
type SessionPatch struct {
	Budget       *BudgetPatch
	Messages     []Message
	AllowedTools ToolSet
	ToolPolicy   ToolConflictPolicy
	Extension    map[string]any
}

// IsEmpty reports whether applying the patch is a no-op.
func (p SessionPatch) IsEmpty() bool {
	return (p.Budget == nil || (p.Budget.TimeRemainingMs == nil && p.Budget.TokenRemaining == nil)) &&
		len(p.Messages) == 0 &&
		p.ToolPolicy == ToolPolicyUnset &&
		len(p.Extension) == 0
}

// BudgetOnly returns a patch that sets both budget fields to b.
func BudgetOnly(b Budget) SessionPatch {
	t, k := b.TimeRemainingMs, b.TokenRemaining
	return SessionPatch{Budget: &BudgetPatch{TimeRemainingMs: &t, TokenRemaining: &k}}
}

// PatchFrom turns a whole session into a patch with replace semantics, so one
// session can be merged on top of another.
func PatchFrom(s Session) SessionPatch {
	p := BudgetOnly(s.Budget)
	p.Messages = cloneMessages(s.Messages)
	p.AllowedTools = NewToolSet(s.AllowedTools...)
	p.ToolPolicy = ToolPolicyReplace
	p.Extension = maps.Clone(s.Extension)
	return p
}

// MergeSession applies patch on top of base. It is pure, deterministic and
// total:
//   - scalar budget fields take the patch value when present (clamped at 0)
//   - messages are base followed by patch
//   - allowed tools follow patch.ToolPolicy
//   - extension keys from both sides survive, patch wins per key
func MergeSession(base Session, patch SessionPatch) Session {
	out := base.Clone()

	if patch.Budget != nil {
		if v := patch.Budget.TimeRemainingMs; v != nil {
			out.Budget.TimeRemainingMs = max(*v, 0)
		}
		if v := patch.Budget.TokenRemaining; v != nil {
			out.Budget.TokenRemaining = max(*v, 0)
		}
	}

	if len(patch.Messages) > 0 {
		out.Messages = append(out.Messages, cloneMessages(patch.Messages)...)
	}

	switch patch.ToolPolicy {
	case ToolPolicyReplace:
		out.AllowedTools = NewToolSet(patch.AllowedTools...)
	case ToolPolicyUnion:
		out.AllowedTools = out.AllowedTools.Union(patch.AllowedTools)
	case ToolPolicyIntersect:
		out.AllowedTools = out.AllowedTools.Intersect(patch.AllowedTools)
	}

	if len(patch.Extension) > 0 {
		if out.Extension == nil {
			out.Extension = make(map[string]any, len(patch.Extension))
		}
		maps.Copy(out.Extension, patch.Extension)
	}

	return out
}
