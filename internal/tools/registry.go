// Package tools holds the closed set of tools the agent may call.
//
// Tools are registered once at startup, after which the registry is sealed and
// only read. Lookups of names that were never registered fail fast with
// ErrUnknownTool.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dotcommander/betbox/internal/proto"
)

var (
	// ErrUnknownTool is returned when a call names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when call arguments are malformed or do
	// not satisfy the tool's input schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrToolInvocation matches every *ToolError.
	ErrToolInvocation = errors.New("tool invocation failed")
	// ErrSealed is returned by Register once the registry has been sealed.
	ErrSealed = errors.New("tool registry is sealed")
)

// InvokeFunc runs a tool. The result is coerced into text: strings are used
// as-is, anything else is encoded as JSON.
type InvokeFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Spec describes a tool.
type Spec struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Invoke      InvokeFunc
}

// ToolError reports a failed invocation.
type ToolError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s (call %s): %v", e.Tool, e.CallID, e.Err)
}

// Unwrap exposes both ErrToolInvocation and the underlying cause.
func (e *ToolError) Unwrap() []error {
	return []error{ErrToolInvocation, e.Err}
}

type entry struct {
	spec     Spec
	resolved *jsonschema.Resolved
}

// Registry maps tool names to specs.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds spec. Names must be unique and non-empty.
func (r *Registry) Register(spec Spec) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return errors.New("register tool: empty name")
	}
	if spec.Invoke == nil {
		return fmt.Errorf("register tool %s: nil invoke func", name)
	}

	var resolved *jsonschema.Resolved
	if spec.Schema != nil {
		var err error
		resolved, err = spec.Schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("register tool %s: resolve schema: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register tool %s: %w", name, ErrSealed)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool %s: already registered", name)
	}
	spec.Name = name
	r.tools[name] = entry{spec: spec, resolved: resolved}
	return nil
}

// MustRegister is Register for startup wiring that cannot fail.
func (r *Registry) MustRegister(specs ...Spec) {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
}

// Seal freezes the registry. Further registrations fail with ErrSealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return e.spec, nil
}

// Specs returns every registered spec sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.tools))
	for _, e := range r.tools {
		specs = append(specs, e.spec)
	}
	slices.SortFunc(specs, func(a, b Spec) int { return strings.Compare(a.Name, b.Name) })
	return specs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke validates the call's arguments and runs the named tool, returning the
// textual result.
func (r *Registry) Invoke(ctx context.Context, call proto.ToolCall) (string, error) {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	args, err := normalizeArgs(call.Arguments)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", call.Name, ErrInvalidArguments, err)
	}
	if e.resolved != nil {
		var instance any
		if err := json.Unmarshal(args, &instance); err != nil {
			return "", fmt.Errorf("%s: %w: %w", call.Name, ErrInvalidArguments, err)
		}
		if err := e.resolved.Validate(instance); err != nil {
			return "", fmt.Errorf("%s: %w: %w", call.Name, ErrInvalidArguments, err)
		}
	}

	out, err := e.spec.Invoke(ctx, args)
	if err != nil {
		return "", &ToolError{Tool: call.Name, CallID: call.ID, Err: err}
	}
	text, err := Text(out)
	if err != nil {
		return "", &ToolError{Tool: call.Name, CallID: call.ID, Err: err}
	}
	return text, nil
}

// Text coerces a tool result into the content of a tool message.
func Text(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		bts, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode tool result: %w", err)
		}
		return string(bts), nil
	}
}

func normalizeArgs(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] != '{' {
		return nil, errors.New("arguments must be a JSON object")
	}
	if !json.Valid(trimmed) {
		return nil, errors.New("arguments are not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}
