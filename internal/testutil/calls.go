package testutil

import (
	"fmt"

	"github.com/hupe1980/agentkernel/core"
)

// Call builds a tool call with a deterministic id.
func Call(id, tool string, tokens int64) core.ToolCallRequest {
	return core.ToolCallRequest{ID: id, ToolName: tool, EstimatedCost: core.Cost{Tokens: tokens}}
}

// Calls builds n calls to tool costing tokens each, with ids "<tool>-0" ... .
func Calls(tool string, n int, tokens int64) []core.ToolCallRequest {
	out := make([]core.ToolCallRequest, n)
	for i := range out {
		out[i] = Call(fmt.Sprintf("%s-%d", tool, i), tool, tokens)
	}
	return out
}
