package testutil

import (
	"github.com/hupe1980/agentkernel/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").Tools("search").Tokens(25).Build()
type SessionBuilder struct {
	id        string
	budget    core.Budget
	tools     []string
	messages  []core.Message
	extension map[string]any
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id}
}

// Tools adds names to the allow-list (chainable).
func (b *SessionBuilder) Tools(names ...string) *SessionBuilder {
	b.tools = append(b.tools, names...)
	return b
}

// Tokens sets the token budget (chainable).
func (b *SessionBuilder) Tokens(n int64) *SessionBuilder { b.budget.TokenRemaining = n; return b }

// TimeMs sets the time budget in milliseconds (chainable).
func (b *SessionBuilder) TimeMs(n int64) *SessionBuilder { b.budget.TimeRemainingMs = n; return b }

// Message appends a message with the given role and text (chainable).
func (b *SessionBuilder) Message(role, text string) *SessionBuilder {
	b.messages = append(b.messages, core.Message{ID: core.NewID(), Role: role, Text: text})
	return b
}

// Extension sets a consumer-owned field (chainable).
func (b *SessionBuilder) Extension(key string, val any) *SessionBuilder {
	if b.extension == nil {
		b.extension = map[string]any{}
	}
	b.extension[key] = val
	return b
}

// Build returns the session. It bypasses CreateInitialSession validation so
// tests can build sessions with empty allow-lists.
func (b *SessionBuilder) Build() core.Session {
	return core.Session{
		ID:           b.id,
		Budget:       b.budget,
		Messages:     b.messages,
		AllowedTools: core.NewToolSet(b.tools...),
		Extension:    b.extension,
	}
}
