package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ToolCallRequest is one tool invocation requested by the workflow graph for
// a dispatch round. It is single-use.
type ToolCallRequest struct {
	ID            string `json:"id"`
	ToolName      string `json:"tool_name"`
	Input         any    `json:"input,omitempty"`
	EstimatedCost Cost   `json:"estimated_cost"`
}

// NewToolCall creates a request with a fresh id.
func NewToolCall(toolName string, input any, cost Cost) ToolCallRequest {
	return ToolCallRequest{ID: NewID(), ToolName: toolName, Input: input, EstimatedCost: cost}
}

// ValidateCalls checks a batch before any work starts: ids must be present
// and unique and costs non-negative.
func ValidateCalls(calls []ToolCallRequest) error {
	seen := make(map[string]struct{}, len(calls))

	for i, c := range calls {
		if c.ID == "" {
			return NewInvalidConfigError(fmt.Sprintf("calls[%d].id", i), "must not be empty")
		}
		if _, dup := seen[c.ID]; dup {
			return NewInvalidConfigError(fmt.Sprintf("calls[%d].id", i), fmt.Sprintf("duplicate id %q", c.ID))
		}
		seen[c.ID] = struct{}{}

		if err := c.EstimatedCost.Validate(); err != nil {
			return NewInvalidConfigError(fmt.Sprintf("calls[%d].estimated_cost", i), err.Error())
		}
	}

	return nil
}

// NewID generates a new unique identifier.
//
// Uses github.com/google/uuid (RFC 4122 v4) and returns the canonical string form.
// Example: 3f1e2d4c-5b6a-7980-1a2b-3c4d5e6f7a8b
func NewID() string { return uuid.NewString() }
