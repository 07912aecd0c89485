package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentkernel/core"
)

// Request is a single completion request.
type Request struct {
	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitempty"`
	// Messages is optional prior conversation; roles are "system", "user" and "assistant".
	Messages []core.Message `json:"messages,omitempty"`
	// Prompt is appended as the final user turn when not empty.
	Prompt string `json:"prompt,omitempty"`
	// MaxTokens overrides the adapter default when positive.
	MaxTokens int64 `json:"max_tokens,omitempty"`
	// Vars fill {{ .key }} references in Instructions and Prompt.
	Vars map[string]any `json:"vars,omitempty"`
}

// Usage captures token usage reported by the provider.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Cost converts usage and elapsed time into a kernel cost.
func (u Usage) Cost(elapsed time.Duration) core.Cost {
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	return core.Cost{TimeMs: elapsed.Milliseconds(), Tokens: total}
}

// Response is a completed model turn.
type Response struct {
	ID           string `json:"id,omitempty"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Completer is the minimal interface a model provider implements.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Completer useful for tests & examples.
type MockModel struct {
	info Info

	mu        sync.RWMutex
	responses map[string]string
	delay     time.Duration
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	m.responses[prompt] = response
	m.mu.Unlock()
}

// SetDelay makes Complete wait d (or until ctx is done) before answering.
func (m *MockModel) SetDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// Complete implements Completer. Usage counts one token per byte.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	m.mu.RLock()
	full, ok := m.responses[req.Prompt]
	delay := m.delay
	m.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	}

	if !ok {
		full = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}

	in := int64(len(req.Instructions) + len(req.Prompt))
	out := int64(len(full))

	return Response{
		ID:           core.NewID(),
		Text:         full,
		FinishReason: "stop",
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}, nil
}

// Info implements Completer.
func (m *MockModel) Info() Info { return m.info }
