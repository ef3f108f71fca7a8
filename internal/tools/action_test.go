package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"orbit/internal/dispatch"
	"orbit/internal/registry"
)

type fakeDispatcher struct {
	calls    int
	lastName string
	lastArgs map[string]any
	result   dispatch.Result
}

func (f *fakeDispatcher) Execute(ctx context.Context, name string, args map[string]any) dispatch.Result {
	f.calls++
	f.lastName = name
	f.lastArgs = args
	return f.result
}

func addDescriptor(t *testing.T) registry.ToolDescriptor {
	t.Helper()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "integer"},
			"b": map[string]any{"type": "integer"},
		},
		"required":             []string{"a", "b"},
		"additionalProperties": false,
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	return registry.ToolDescriptor{
		Name:        "add",
		Description: "adds two integers",
		InputSchema: raw,
	}
}

func TestInvokeValidInput(t *testing.T) {
	d := &fakeDispatcher{result: dispatch.Success("5")}
	a, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	r := a.Invoke(context.Background(), `{"a": 2, "b": 3}`)
	if !r.OK || r.Output != "5" {
		t.Fatalf("expected Success(5), got %+v", r)
	}
	if d.lastName != "add" {
		t.Errorf("dispatched wrong tool: %q", d.lastName)
	}
	if len(d.lastArgs) != 2 {
		t.Errorf("expected two arguments, got %v", d.lastArgs)
	}
}

func TestInvokeMalformedJSON(t *testing.T) {
	d := &fakeDispatcher{result: dispatch.Success("never")}
	a, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	r := a.Invoke(context.Background(), `{"a": 2,`)
	if r.OK || r.Kind != dispatch.KindInvalidArgument {
		t.Fatalf("expected invalid_argument failure, got %+v", r)
	}
	if d.calls != 0 {
		t.Error("malformed input must not reach the remote side")
	}
}

func TestInvokeWrongFieldType(t *testing.T) {
	d := &fakeDispatcher{result: dispatch.Success("never")}
	a, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	r := a.Invoke(context.Background(), `{"a": "x", "b": 3}`)
	if r.OK || r.Kind != dispatch.KindInvalidArgument {
		t.Fatalf("expected invalid_argument failure, got %+v", r)
	}
	if !strings.Contains(r.Message, "a") {
		t.Errorf("failure message should name the violated field: %q", r.Message)
	}
	if d.calls != 0 {
		t.Error("invalid input must not reach the remote side")
	}
}

func TestInvokeMissingRequiredField(t *testing.T) {
	d := &fakeDispatcher{}
	a, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	r := a.Invoke(context.Background(), `{"a": 2}`)
	if r.OK || r.Kind != dispatch.KindInvalidArgument {
		t.Fatalf("expected invalid_argument failure, got %+v", r)
	}
}

func TestInvokeNonObjectInput(t *testing.T) {
	d := &fakeDispatcher{}
	a, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	r := a.Invoke(context.Background(), `[1, 2]`)
	if r.OK || r.Kind != dispatch.KindInvalidArgument {
		t.Fatalf("expected invalid_argument failure, got %+v", r)
	}
}

func TestInvokeEmptyInputWithoutRequiredParams(t *testing.T) {
	desc := registry.ToolDescriptor{
		Name:        "ping",
		Description: "pings the server",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}
	d := &fakeDispatcher{result: dispatch.Success("pong")}
	a, err := NewAction(desc, d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	for _, input := range []string{"", "   ", "\n\t"} {
		r := a.Invoke(context.Background(), input)
		if !r.OK {
			t.Errorf("input %q: expected success, got %+v", input, r)
		}
	}
	if d.calls != 3 {
		t.Errorf("expected 3 dispatches, got %d", d.calls)
	}
}

func TestInvokeNoSchemaAtAll(t *testing.T) {
	desc := registry.ToolDescriptor{Name: "anything", Description: "no schema declared"}
	d := &fakeDispatcher{result: dispatch.Success("ok")}
	a, err := NewAction(desc, d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	if r := a.Invoke(context.Background(), `{"whatever": true}`); !r.OK {
		t.Errorf("expected success without schema, got %+v", r)
	}
	if params := a.Parameters(); params["type"] != "object" {
		t.Errorf("expected default object parameters, got %v", params)
	}
}

func TestInvokeStripsCodeFences(t *testing.T) {
	d := &fakeDispatcher{result: dispatch.Success("5")}
	a, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	inputs := []string{
		"```json\n{\"a\": 2, \"b\": 3}\n```",
		"```\n{\"a\": 2, \"b\": 3}\n```",
		"`{\"a\": 2, \"b\": 3}`",
	}
	for _, in := range inputs {
		if r := a.Invoke(context.Background(), in); !r.OK {
			t.Errorf("input %q: expected success, got %+v", in, r)
		}
	}
}

func TestExecuteNeverReturnsError(t *testing.T) {
	d := &fakeDispatcher{result: dispatch.Failure(dispatch.KindTimeout, "too slow")}
	a, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	out, err := a.Execute(context.Background(), `{"a": 2, "b": 3}`)
	if err != nil {
		t.Fatalf("Execute must not return an error for recoverable failures: %v", err)
	}
	if !strings.Contains(out, "timeout") {
		t.Errorf("observation should carry the failure kind: %q", out)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	d := &fakeDispatcher{}

	a1, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}
	a2, err := NewAction(addDescriptor(t), d)
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}

	if err := r.Register(a1); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(a2); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 registered tool, got %d", r.Len())
	}
}
