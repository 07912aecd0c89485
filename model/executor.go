package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ToolExecutor exposes completers as tools. It satisfies dispatch.Executor,
// so a batch of sub-agent prompts fans out through the spooler like any
// other tool calls.
type ToolExecutor struct {
	completers map[string]Completer
}

// NewToolExecutor maps tool names to completers.
func NewToolExecutor(completers map[string]Completer) *ToolExecutor {
	m := make(map[string]Completer, len(completers))
	for name, c := range completers {
		m[name] = c
	}
	return &ToolExecutor{completers: m}
}

// Names returns the tool names in sorted order.
func (e *ToolExecutor) Names() []string {
	names := make([]string, 0, len(e.completers))
	for name := range e.completers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute runs the completer registered as toolName and returns its Response.
//
// Input may be a Request, *Request, a prompt string, or a JSON object / map
// with Request fields. Instructions and prompt are rendered from Vars first.
func (e *ToolExecutor) Execute(ctx context.Context, toolName string, input any, timeout time.Duration) (any, error) {
	c, ok := e.completers[toolName]
	if !ok {
		return nil, fmt.Errorf("model tool %q not found", toolName)
	}

	req, err := toRequest(input)
	if err != nil {
		return nil, fmt.Errorf("model tool %q: %w", toolName, err)
	}

	if req, err = req.Render(); err != nil {
		return nil, fmt.Errorf("model tool %q: %w", toolName, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model tool %q: %w", toolName, err)
	}

	return resp, nil
}

func toRequest(input any) (Request, error) {
	switch v := input.(type) {
	case Request:
		return v, nil
	case *Request:
		if v == nil {
			return Request{}, fmt.Errorf("nil request")
		}
		return *v, nil
	case string:
		return Request{Prompt: v}, nil
	case nil:
		return Request{}, fmt.Errorf("missing input")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Request{}, fmt.Errorf("encode input: %w", err)
		}
		var req Request
		if err := json.Unmarshal(b, &req); err != nil {
			return Request{}, fmt.Errorf("decode input: %w", err)
		}
		return req, nil
	}
}
