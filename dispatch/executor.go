package dispatch

import (
	"context"
	"time"

	"github.com/hupe1980/agentkernel/core"
)

// Executor runs one tool call against a real backend (a model, a sub-agent,
// a function). The context is cancelled when the call times out or the batch
// is cancelled; timeout is the time budget the kernel allotted to the call
// and is zero when the call has no limit of its own.
type Executor interface {
	Execute(ctx context.Context, toolName string, input any, timeout time.Duration) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, toolName string, input any, timeout time.Duration) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, toolName string, input any, timeout time.Duration) (any, error) {
	return f(ctx, toolName, input, timeout)
}

// Estimator fills the estimated cost of calls submitted without one.
type Estimator interface {
	Estimate(call core.ToolCallRequest) core.Cost
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(call core.ToolCallRequest) core.Cost

// Estimate calls f.
func (f EstimatorFunc) Estimate(call core.ToolCallRequest) core.Cost { return f(call) }

// FixedEstimator assigns the same cost to every call, optionally overridden per tool.
type FixedEstimator struct {
	Default core.Cost
	PerTool map[string]core.Cost
}

// Estimate returns the per-tool cost when configured, the default otherwise.
func (e FixedEstimator) Estimate(call core.ToolCallRequest) core.Cost {
	if c, ok := e.PerTool[call.ToolName]; ok {
		return c
	}
	return e.Default
}

// TimeoutFromCost derives the per-call timeout from the estimated time cost.
func TimeoutFromCost(call core.ToolCallRequest) time.Duration {
	return time.Duration(call.EstimatedCost.TimeMs) * time.Millisecond
}
