package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/agentkernel/logging"
)

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry maps tool names to tools and executes calls against them. It
// satisfies dispatch.Executor.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		tools:  make(map[string]entry),
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Register adds tools, compiling their parameter schemas. It fails on a
// duplicate name or an invalid schema and registers nothing in that case.
func (r *Registry) Register(tools ...Tool) error {
	compiled := make([]entry, 0, len(tools))

	for _, t := range tools {
		schema, err := compileSchema(t.Name(), t.Parameters())
		if err != nil {
			return &ToolError{Tool: t.Name(), Message: err.Error(), Code: CodeSchema, Cause: err}
		}
		compiled = append(compiled, entry{tool: t, schema: schema})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(compiled))
	for _, e := range compiled {
		name := e.tool.Name()
		_, exists := r.tools[name]
		_, dup := seen[name]
		if exists || dup {
			return NewToolError(name, "tool already registered", CodeDuplicate)
		}
		seen[name] = struct{}{}
	}

	for _, e := range compiled {
		r.tools[e.tool.Name()] = e
	}

	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	return e.tool, ok
}

// Names returns the registered tool names in sorted order, suitable for a
// session allow-list.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Execute validates input against the tool's schema and calls the tool. A
// positive timeout is applied as a context deadline.
//
// Input may be nil, a map[string]any, a JSON string, []byte or
// json.RawMessage, or any value that marshals to a JSON object.
func (r *Registry) Execute(ctx context.Context, toolName string, input any, timeout time.Duration) (any, error) {
	r.mu.RLock()
	e, ok := r.tools[toolName]
	r.mu.RUnlock()

	if !ok {
		return nil, NewToolError(toolName, "tool not found", CodeNotFound)
	}

	args, err := toArgs(input)
	if err != nil {
		return nil, &ToolError{Tool: toolName, Message: err.Error(), Code: CodeInvalidInput, Cause: err}
	}

	if e.schema != nil {
		if err := validate(e.schema, args); err != nil {
			r.logger.Warn("tool.call.validation_failed", "tool", toolName, "error", err.Error())
			return nil, &ToolError{
				Tool:    toolName,
				Message: fmt.Sprintf("parameter validation failed: %v", err),
				Code:    CodeValidation,
				Details: err,
				Cause:   err,
			}
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	r.logger.Debug("tool.call.start", "tool", toolName)

	result, err := e.tool.Call(ctx, args)
	if err != nil {
		r.logger.Error("tool.call.error", "tool", toolName, "error", err.Error())

		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			err = &ToolError{Tool: toolName, Message: err.Error(), Code: CodeExecution, Cause: err}
		}
		return nil, err
	}

	r.logger.Info("tool.call.success", "tool", toolName, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func validate(schema *jsonschema.Schema, args map[string]any) error {
	inst, err := normalizeJSON(args)
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}

func toArgs(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return decodeArgs([]byte(v))
	case []byte:
		return decodeArgs(v)
	case json.RawMessage:
		return decodeArgs(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode input: %w", err)
		}
		return decodeArgs(b)
	}
}

func decodeArgs(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(b, &args); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}

	return args, nil
}
