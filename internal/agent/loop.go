package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"orbit/internal/governance"
	"orbit/internal/observability"
	"orbit/internal/tools"
)

// ErrNoInput is returned for empty user input; gateways treat it as
// session termination.
var ErrNoInput = errors.New("empty user input")

const exhaustedAnswer = "I wasn't able to complete that within my reasoning step limit. Please try a simpler request."

// Transcript persists committed turns for later inspection.
type Transcript interface {
	AddTurn(sessionID, role, content string) error
}

// Loop drives the reason-act cycle for one session: it offers the action
// catalog to the engine, executes selected actions, feeds observations
// back, and commits the finished turn to memory.
type Loop struct {
	sessionID  string
	engine     Engine
	registry   *tools.Registry
	policy     governance.PolicyEngine
	logger     *observability.Logger
	memory     *Memory
	transcript Transcript
	maxSteps   int

	mu sync.Mutex // turns are strictly serial
}

type LoopOptions struct {
	SessionID  string
	Engine     Engine
	Registry   *tools.Registry
	Policy     governance.PolicyEngine
	Logger     *observability.Logger
	Transcript Transcript
	MaxSteps   int
}

func NewLoop(opts LoopOptions) *Loop {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 10
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	return &Loop{
		sessionID:  opts.SessionID,
		engine:     opts.Engine,
		registry:   opts.Registry,
		policy:     opts.Policy,
		logger:     opts.Logger,
		memory:     NewMemory(),
		transcript: opts.Transcript,
		maxSteps:   opts.MaxSteps,
	}
}

func (l *Loop) SessionID() string {
	return l.sessionID
}

func (l *Loop) Memory() *Memory {
	return l.memory
}

// HandleUserTurn runs one full user turn and returns the assistant answer.
// Turns accumulate in a pending buffer and are committed to memory only
// when the turn completes, so an aborted turn leaves the history untouched.
func (l *Loop) HandleUserTurn(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrNoInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pending := []Turn{{Role: RoleUser, Content: input}}
	specs := l.actionSpecs()

	for step := 0; step < l.maxSteps; step++ {
		decision, err := l.engine.Decide(ctx, l.historyWith(pending), specs)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}

		if decision.IsFinal() {
			pending = append(pending, Turn{Role: RoleAssistant, Content: decision.Answer})
			l.commit(pending)
			l.logger.LogReasoning(l.sessionID, decision.Answer)
			return decision.Answer, nil
		}

		if decision.CallID == "" {
			decision.CallID = uuid.NewString()
		}
		pending = append(pending, Turn{
			Role: RoleAssistant,
			Call: &ActionCall{ID: decision.CallID, Name: decision.Action, Input: decision.Input},
		})

		observation := l.performAction(ctx, decision)
		if ctx.Err() != nil {
			// User interrupt: discard the partial turn.
			return "", ctx.Err()
		}
		pending = append(pending, Turn{
			Role:    RoleObservation,
			Content: observation,
			CallID:  decision.CallID,
		})
	}

	pending = append(pending, Turn{Role: RoleAssistant, Content: exhaustedAnswer})
	l.commit(pending)
	return exhaustedAnswer, nil
}

func (l *Loop) performAction(ctx context.Context, decision Decision) string {
	l.logger.LogToolCall(l.sessionID, decision.Action, decision.Input)

	if l.policy != nil {
		res, err := l.policy.Evaluate(ctx, governance.Request{
			Tool:      decision.Action,
			Arguments: decision.Input,
		})
		if err == nil && res.Effect == governance.EffectDeny {
			l.logger.LogPolicyCheck(l.sessionID, decision.Action, string(res.Effect), res.Reason)
			return fmt.Sprintf("Error: the call was blocked by policy: %s", res.Reason)
		}
	}

	tool := l.registry.Get(decision.Action)
	if tool == nil {
		return fmt.Sprintf("Error: tool %q is not available", decision.Action)
	}

	out, err := tool.Execute(ctx, decision.Input)
	if err != nil {
		out = fmt.Sprintf("Error: %v", err)
	}
	l.logger.LogToolResult(l.sessionID, decision.Action, out)
	return out
}

func (l *Loop) actionSpecs() []ActionSpec {
	all := l.registry.All()
	specs := make([]ActionSpec, 0, len(all))
	for _, t := range all {
		specs = append(specs, ActionSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

func (l *Loop) historyWith(pending []Turn) []Turn {
	history := l.memory.Snapshot()
	return append(history, pending...)
}

func (l *Loop) commit(pending []Turn) {
	l.memory.Append(pending...)
	if l.transcript == nil {
		return
	}
	for _, turn := range pending {
		content := turn.Content
		if turn.Call != nil {
			content = fmt.Sprintf("%s(%s)", turn.Call.Name, turn.Call.Input)
		}
		// Persistence is best-effort; a transcript fault must not fail the turn.
		_ = l.transcript.AddTurn(l.sessionID, string(turn.Role), content)
	}
}
