package testutil

import (
	"context"
	"sync"
	"time"
)

// Invocation is one recorded executor call.
type Invocation struct {
	Tool    string
	Input   any
	Timeout time.Duration
}

// CountingExecutor records every invocation and delegates to Fn. With a nil
// Fn it echoes the input back.
type CountingExecutor struct {
	Fn func(ctx context.Context, tool string, input any) (any, error)

	mu    sync.Mutex
	calls []Invocation
}

// Execute records the call and runs Fn.
func (e *CountingExecutor) Execute(ctx context.Context, tool string, input any, timeout time.Duration) (any, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Invocation{Tool: tool, Input: input, Timeout: timeout})
	e.mu.Unlock()

	if e.Fn == nil {
		return input, nil
	}
	return e.Fn(ctx, tool, input)
}

// Count returns the number of invocations so far.
func (e *CountingExecutor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// CountFor returns the number of invocations of tool.
func (e *CountingExecutor) CountFor(tool string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, c := range e.calls {
		if c.Tool == tool {
			n++
		}
	}
	return n
}

// Invocations returns a copy of the recorded invocations.
func (e *CountingExecutor) Invocations() []Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Invocation(nil), e.calls...)
}
