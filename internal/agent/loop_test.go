package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"orbit/internal/governance"
	"orbit/internal/tools"
)

// scriptedEngine replays a fixed decision sequence and records what it saw.
type scriptedEngine struct {
	decisions []Decision
	histories [][]Turn
}

func (e *scriptedEngine) Decide(ctx context.Context, history []Turn, actions []ActionSpec) (Decision, error) {
	snapshot := make([]Turn, len(history))
	copy(snapshot, history)
	e.histories = append(e.histories, snapshot)

	if len(e.decisions) == 0 {
		return Decision{}, errors.New("script exhausted")
	}
	d := e.decisions[0]
	e.decisions = e.decisions[1:]
	return d, nil
}

// addTool is a builtin-style tool summing two integers from JSON input.
type addTool struct {
	calls []string
	block chan struct{} // when set, Execute waits for ctx cancellation
}

func (a *addTool) Name() string               { return "add" }
func (a *addTool) Description() string        { return "adds two integers" }
func (a *addTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (a *addTool) Execute(ctx context.Context, input string) (string, error) {
	a.calls = append(a.calls, input)
	if a.block != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-a.block:
		}
	}
	var args struct {
		A *int `json:"a"`
		B *int `json:"b"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil || args.A == nil || args.B == nil {
		return "Error (invalid_argument): a and b must be integers", nil
	}
	return fmt.Sprintf("%d", *args.A+*args.B), nil
}

func newTestLoop(t *testing.T, engine Engine, tool tools.Tool) *Loop {
	t.Helper()
	reg := tools.NewRegistry()
	if tool != nil {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	return NewLoop(LoopOptions{
		SessionID: "test-session",
		Engine:    engine,
		Registry:  reg,
		MaxSteps:  5,
	})
}

func TestHandleUserTurnWithToolCall(t *testing.T) {
	engine := &scriptedEngine{decisions: []Decision{
		{Action: "add", Input: `{"a": 2, "b": 3}`, CallID: "call-1"},
		{Answer: "5"},
	}}
	tool := &addTool{}
	loop := newTestLoop(t, engine, tool)

	answer, err := loop.HandleUserTurn(context.Background(), "what is 2+3?")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if answer != "5" {
		t.Errorf("expected answer 5, got %q", answer)
	}
	if len(tool.calls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(tool.calls))
	}

	turns := loop.Memory().Snapshot()
	if len(turns) != 4 {
		t.Fatalf("expected 4 committed turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "what is 2+3?" {
		t.Errorf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Call == nil || turns[1].Call.Name != "add" {
		t.Errorf("second turn should record the action selection: %+v", turns[1])
	}
	if turns[2].Role != RoleObservation || turns[2].Content != "5" || turns[2].CallID != "call-1" {
		t.Errorf("unexpected observation turn: %+v", turns[2])
	}
	if turns[3].Role != RoleAssistant || turns[3].Content != "5" {
		t.Errorf("unexpected final turn: %+v", turns[3])
	}
}

func TestHandleUserTurnDirectAnswer(t *testing.T) {
	engine := &scriptedEngine{decisions: []Decision{{Answer: "hello"}}}
	loop := newTestLoop(t, engine, &addTool{})

	answer, err := loop.HandleUserTurn(context.Background(), "hi")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if answer != "hello" {
		t.Errorf("expected hello, got %q", answer)
	}
	if loop.Memory().Len() != 2 {
		t.Errorf("expected 2 committed turns, got %d", loop.Memory().Len())
	}
}

func TestFailureObservationContinuesReasoning(t *testing.T) {
	engine := &scriptedEngine{decisions: []Decision{
		{Action: "add", Input: `{"a": "x", "b": 3}`, CallID: "call-1"},
		{Action: "add", Input: `{"a": 2, "b": 3}`, CallID: "call-2"},
		{Answer: "5"},
	}}
	tool := &addTool{}
	loop := newTestLoop(t, engine, tool)

	answer, err := loop.HandleUserTurn(context.Background(), "add x and 3")
	if err != nil {
		t.Fatalf("a recoverable failure must not abort the turn: %v", err)
	}
	if answer != "5" {
		t.Errorf("expected the engine to recover and answer 5, got %q", answer)
	}

	// The failure surfaced as an observation the engine saw on its retry.
	secondHistory := engine.histories[1]
	last := secondHistory[len(secondHistory)-1]
	if last.Role != RoleObservation || !strings.Contains(last.Content, "Error") {
		t.Errorf("expected an error observation in the replayed history, got %+v", last)
	}
}

func TestUnknownActionBecomesObservation(t *testing.T) {
	engine := &scriptedEngine{decisions: []Decision{
		{Action: "subtract", Input: `{}`, CallID: "call-1"},
		{Answer: "sorry"},
	}}
	loop := newTestLoop(t, engine, &addTool{})

	answer, err := loop.HandleUserTurn(context.Background(), "subtract")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if answer != "sorry" {
		t.Errorf("unexpected answer %q", answer)
	}

	turns := loop.Memory().Snapshot()
	if !strings.Contains(turns[2].Content, "not available") {
		t.Errorf("expected an unknown-tool observation, got %q", turns[2].Content)
	}
}

func TestMaxStepsSynthesizesAnswer(t *testing.T) {
	var decisions []Decision
	for i := 0; i < 20; i++ {
		decisions = append(decisions, Decision{Action: "add", Input: `{"a": 1, "b": 1}`, CallID: fmt.Sprintf("call-%d", i)})
	}
	engine := &scriptedEngine{decisions: decisions}
	tool := &addTool{}
	loop := newTestLoop(t, engine, tool)

	answer, err := loop.HandleUserTurn(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if answer != exhaustedAnswer {
		t.Errorf("expected the synthesized answer, got %q", answer)
	}
	if len(tool.calls) != 5 {
		t.Errorf("expected exactly maxSteps tool calls, got %d", len(tool.calls))
	}
}

func TestInterruptDiscardsPartialTurn(t *testing.T) {
	engine := &scriptedEngine{decisions: []Decision{
		{Action: "add", Input: `{"a": 1, "b": 1}`, CallID: "call-1"},
	}}
	tool := &addTool{block: make(chan struct{})}
	loop := newTestLoop(t, engine, tool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := loop.HandleUserTurn(ctx, "slow add")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if loop.Memory().Len() != 0 {
		t.Errorf("interrupted turn must not be committed, got %d turns", loop.Memory().Len())
	}
}

func TestEmptyInput(t *testing.T) {
	loop := newTestLoop(t, &scriptedEngine{}, nil)
	if _, err := loop.HandleUserTurn(context.Background(), "   "); !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestPolicyDenialBecomesObservation(t *testing.T) {
	engine := &scriptedEngine{decisions: []Decision{
		{Action: "add", Input: `{"a": 1, "b": 1}`, CallID: "call-1"},
		{Answer: "blocked"},
	}}
	tool := &addTool{}
	reg := tools.NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	policy := governance.NewDefaultPolicyEngine()
	policy.DenyTool("add")

	loop := NewLoop(LoopOptions{
		Engine:   engine,
		Registry: reg,
		Policy:   policy,
		MaxSteps: 5,
	})

	if _, err := loop.HandleUserTurn(context.Background(), "add"); err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if len(tool.calls) != 0 {
		t.Error("denied tool must not execute")
	}
	turns := loop.Memory().Snapshot()
	if !strings.Contains(turns[2].Content, "blocked by policy") {
		t.Errorf("expected a policy observation, got %q", turns[2].Content)
	}
}

func TestDeterministicReplay(t *testing.T) {
	script := []Decision{
		{Action: "add", Input: `{"a": 2, "b": 3}`, CallID: "call-1"},
		{Answer: "5"},
	}

	run := func() ([]string, []Turn) {
		decisions := make([]Decision, len(script))
		copy(decisions, script)
		tool := &addTool{}
		loop := newTestLoop(t, &scriptedEngine{decisions: decisions}, tool)
		if _, err := loop.HandleUserTurn(context.Background(), "what is 2+3?"); err != nil {
			t.Fatalf("HandleUserTurn failed: %v", err)
		}
		return tool.calls, loop.Memory().Snapshot()
	}

	calls1, turns1 := run()
	calls2, turns2 := run()

	if fmt.Sprint(calls1) != fmt.Sprint(calls2) {
		t.Errorf("dispatched action sequences diverged: %v vs %v", calls1, calls2)
	}
	if len(turns1) != len(turns2) {
		t.Fatalf("history lengths diverged: %d vs %d", len(turns1), len(turns2))
	}
	for i := range turns1 {
		if turns1[i].Role != turns2[i].Role || turns1[i].Content != turns2[i].Content {
			t.Errorf("turn %d diverged: %+v vs %+v", i, turns1[i], turns2[i])
		}
	}
}

type recordingTranscript struct {
	rows []string
}

func (r *recordingTranscript) AddTurn(sessionID, role, content string) error {
	r.rows = append(r.rows, role+": "+content)
	return nil
}

func TestTranscriptReceivesCommittedTurns(t *testing.T) {
	engine := &scriptedEngine{decisions: []Decision{
		{Action: "add", Input: `{"a": 2, "b": 3}`, CallID: "call-1"},
		{Answer: "5"},
	}}
	tool := &addTool{}
	reg := tools.NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	transcript := &recordingTranscript{}
	loop := NewLoop(LoopOptions{
		Engine:     engine,
		Registry:   reg,
		Transcript: transcript,
		MaxSteps:   5,
	})

	if _, err := loop.HandleUserTurn(context.Background(), "what is 2+3?"); err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if len(transcript.rows) != 4 {
		t.Fatalf("expected 4 persisted rows, got %d: %v", len(transcript.rows), transcript.rows)
	}
	if transcript.rows[1] != `assistant: add({"a": 2, "b": 3})` {
		t.Errorf("unexpected action row: %q", transcript.rows[1])
	}
}
