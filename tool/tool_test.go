package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Schema Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
	d int
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.NotContains(t, props, "d")
	assert.Equal(t, "integer", props["b"].(map[string]any)["type"])
	assert.Equal(t, []string{"a"}, schema["required"])
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "required")
}

// -------------------- FunctionTool Tests --------------------

func sumTool() *FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	return NewFunctionTool("sum", "Add numbers", params, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool("fail", "Fails", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(context.Background(), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.EqualError(t, toolErr.Cause, "boom")
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("quota", "rate limited", "RATE_LIMITED")
	execTool := NewFunctionTool("quota", "Quota", nil, func(context.Context, map[string]any) (any, error) {
		return nil, custom
	})

	_, err := execTool.Call(context.Background(), nil)
	assert.Same(t, custom, err)
}

// -------------------- Registry Tests --------------------

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sumTool()))

	tests := []struct {
		name  string
		input any
	}{
		{"map", map[string]any{"a": 1.0, "b": 2.0}},
		{"json string", `{"a":1,"b":2}`},
		{"raw message", json.RawMessage(`{"a":1,"b":2}`)},
		{"struct", struct {
			A float64 `json:"a"`
			B float64 `json:"b"`
		}{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Execute(context.Background(), "sum", tt.input, 0)
			require.NoError(t, err)
			assert.Equal(t, 3.0, got)
		})
	}
}

func TestRegistry_ExecuteFailures(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sumTool()))

	tests := []struct {
		name     string
		tool     string
		input    any
		wantCode string
	}{
		{"unknown tool", "nope", nil, CodeNotFound},
		{"missing field", "sum", map[string]any{"a": 1.0}, CodeValidation},
		{"wrong type", "sum", map[string]any{"a": "x", "b": 1.0}, CodeValidation},
		{"not json", "sum", "{", CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), tt.tool, tt.input, 0)

			var toolErr *ToolError
			require.ErrorAs(t, err, &toolErr)
			assert.Equal(t, tt.wantCode, toolErr.Code)
		})
	}
}

func TestRegistry_TimeoutBecomesDeadline(t *testing.T) {
	r := NewRegistry()
	slow := NewFunctionTool("slow", "Waits", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, r.Register(slow))

	_, err := r.Execute(context.Background(), "slow", nil, 10*time.Millisecond)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeTimeout, toolErr.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(sumTool()))

	err := r.Register(sumTool())
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeDuplicate, toolErr.Code)

	bad := NewFunctionTool("bad", "Bad schema", map[string]any{"type": 12}, nil)
	err = r.Register(bad)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeSchema, toolErr.Code)

	_, ok := r.Get("sum")
	assert.True(t, ok)
	_, ok = r.Get("bad")
	assert.False(t, ok)
	assert.Equal(t, []string{"sum"}, r.Names())
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
	assert.Equal(t, "tool error in demo: x", (&ToolError{Tool: "demo", Message: "x"}).Error())
}
