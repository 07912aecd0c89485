package core

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Message is one entry of the append-only conversation / tool-result log.
type Message struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Data       any            `json:"data,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToolSet is a set of tool names. NewToolSet and the JSON/YAML decoders keep
// it sorted and de-duplicated so equality and merges stay deterministic;
// lookups do not depend on that order.
type ToolSet []string

// NewToolSet builds a normalized set from names, dropping blanks.
func NewToolSet(names ...string) ToolSet {
	if len(names) == 0 {
		return nil
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}

	slices.Sort(out)
	out = slices.Compact(out)

	if len(out) == 0 {
		return nil
	}

	return ToolSet(out)
}

// Has reports whether name is in the set. Sets built as literals may be
// unsorted, so this scans.
func (ts ToolSet) Has(name string) bool {
	return slices.Contains(ts, name)
}

// UnmarshalJSON decodes a list of names into a normalized set.
func (ts *ToolSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*ts = NewToolSet(names...)
	return nil
}

// UnmarshalYAML decodes a sequence of names into a normalized set.
func (ts *ToolSet) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return err
	}
	*ts = NewToolSet(names...)
	return nil
}

// Len returns the number of tools.
func (ts ToolSet) Len() int { return len(ts) }

// Names returns a copy of the tool names in sorted order.
func (ts ToolSet) Names() []string { return slices.Clone([]string(ts)) }

// Union returns the names present in either set.
func (ts ToolSet) Union(o ToolSet) ToolSet {
	all := make([]string, 0, len(ts)+len(o))
	all = append(all, ts...)
	all = append(all, o...)
	return NewToolSet(all...)
}

// Intersect returns the names present in both sets.
func (ts ToolSet) Intersect(o ToolSet) ToolSet {
	var out []string
	for _, n := range ts {
		if o.Has(n) {
			out = append(out, n)
		}
	}
	return NewToolSet(out...)
}

// Session is the canonical state threaded through a workflow run. It is a
// value type: kernel operations return updated copies and never mutate their
// arguments.
//
// Contract:
//   - ID is immutable for the session's lifetime
//   - Budget fields never go negative
//   - Messages only grow within the kernel
//   - Extension holds consumer-owned fields the kernel preserves untouched
type Session struct {
	ID           string         `json:"id"`
	Budget       Budget         `json:"budget"`
	Messages     []Message      `json:"messages,omitempty"`
	AllowedTools ToolSet        `json:"allowed_tools,omitempty"`
	Extension    map[string]any `json:"extension,omitempty"`
}

// SessionOptions tunes CreateInitialSession.
type SessionOptions struct {
	// ToolUsing declares the session will dispatch tool calls, which requires
	// a non-empty allow-list. Defaults to true.
	ToolUsing bool
	// Extension seeds consumer-owned fields.
	Extension map[string]any
}

// CreateInitialSession builds the session for a new workflow run.
func CreateInitialSession(id string, allowedTools []string, budget Budget, optFns ...func(o *SessionOptions)) (Session, error) {
	opts := SessionOptions{ToolUsing: true}

	for _, fn := range optFns {
		fn(&opts)
	}

	if strings.TrimSpace(id) == "" {
		return Session{}, NewInvalidConfigError("session.id", "must not be empty")
	}

	if err := budget.Validate(); err != nil {
		return Session{}, err
	}

	tools := NewToolSet(allowedTools...)
	if opts.ToolUsing && tools.Len() == 0 {
		return Session{}, NewInvalidConfigError("session.allowed_tools", "tool-using session needs at least one allowed tool")
	}

	return Session{
		ID:           id,
		Budget:       budget,
		AllowedTools: tools,
		Extension:    maps.Clone(opts.Extension),
	}, nil
}

// Clone returns a deep copy of slices and the extension map. Extension values
// themselves are shared; they are opaque to the kernel.
func (s Session) Clone() Session {
	c := s
	c.Messages = cloneMessages(s.Messages)
	c.AllowedTools = ToolSet(slices.Clone([]string(s.AllowedTools)))
	c.Extension = maps.Clone(s.Extension)
	return c
}

// WithBudget returns a copy of s carrying b.
func (s Session) WithBudget(b Budget) Session {
	c := s.Clone()
	c.Budget = b
	return c
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}

	out := make([]Message, len(in))
	for i, m := range in {
		m.Metadata = maps.Clone(m.Metadata)
		out[i] = m
	}

	return out
}
