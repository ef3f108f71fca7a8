package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"orbit/internal/dispatch"
	"orbit/internal/registry"
)

// Dispatcher executes a validated call against the remote registry.
type Dispatcher interface {
	Execute(ctx context.Context, name string, args map[string]any) dispatch.Result
}

// Action wraps one remote tool descriptor as a uniformly callable Tool:
// text in, text out. The raw payload is parsed and validated against the
// descriptor's schema before anything touches the remote side, and every
// failure comes back as a tagged result the reasoning engine can read.
type Action struct {
	desc       registry.ToolDescriptor
	schema     *jsonschema.Schema
	parameters map[string]any
	bridge     Dispatcher
}

func NewAction(desc registry.ToolDescriptor, bridge Dispatcher) (*Action, error) {
	a := &Action{desc: desc, bridge: bridge}

	if len(desc.InputSchema) > 0 && string(desc.InputSchema) != "null" {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(desc.InputSchema)))
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid input schema: %w", desc.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("tool.json", doc); err != nil {
			return nil, fmt.Errorf("tool %s: %w", desc.Name, err)
		}
		schema, err := compiler.Compile("tool.json")
		if err != nil {
			return nil, fmt.Errorf("tool %s: schema does not compile: %w", desc.Name, err)
		}
		a.schema = schema

		if err := json.Unmarshal(desc.InputSchema, &a.parameters); err != nil {
			return nil, fmt.Errorf("tool %s: %w", desc.Name, err)
		}
	}
	if a.parameters == nil {
		a.parameters = map[string]any{"type": "object"}
	}
	return a, nil
}

func (a *Action) Name() string {
	return a.desc.Name
}

func (a *Action) Description() string {
	return a.desc.Description
}

func (a *Action) Parameters() map[string]any {
	return a.parameters
}

// Execute satisfies the Tool interface. Recoverable failures are rendered
// into the observation text rather than returned as errors, so the loop
// treats remote and builtin tools the same way.
func (a *Action) Execute(ctx context.Context, input string) (string, error) {
	return a.Invoke(ctx, input).Observation(), nil
}

// Invoke parses and validates the raw payload, then delegates to the
// dispatch bridge. Malformed input never reaches the remote system.
func (a *Action) Invoke(ctx context.Context, input string) dispatch.Result {
	args, err := a.parseInput(input)
	if err != nil {
		return dispatch.Failure(dispatch.KindInvalidArgument, err.Error())
	}
	return a.bridge.Execute(ctx, a.desc.Name, args)
}

func (a *Action) parseInput(input string) (map[string]any, error) {
	stripped := stripFences(input)
	// A tool without required parameters accepts an empty payload.
	if stripped == "" {
		stripped = "{}"
	}

	value, err := jsonschema.UnmarshalJSON(strings.NewReader(stripped))
	if err != nil {
		return nil, fmt.Errorf("input is not valid JSON: %v", err)
	}
	args, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input must be a JSON object, got %T", value)
	}
	if a.schema != nil {
		if err := a.schema.Validate(value); err != nil {
			return nil, fmt.Errorf("input does not match the tool schema: %v", err)
		}
	}
	return args, nil
}

// stripFences tolerates the code fencing language models wrap JSON in.
func stripFences(input string) string {
	s := strings.TrimSpace(input)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") && len(s) >= 2 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
