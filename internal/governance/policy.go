package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls before they are dispatched.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by tool name or by argument pattern.
type DefaultPolicyEngine struct {
	deniedTools map[string]bool
	deniedArgs  []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		deniedTools: make(map[string]bool),
	}
}

// FromRules builds an engine from config-supplied deny rules.
func FromRules(deniedTools, deniedPatterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, name := range deniedTools {
		e.DenyTool(name)
	}
	for _, pattern := range deniedPatterns {
		if err := e.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("invalid policy pattern %q: %w", pattern, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.deniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.deniedArgs = append(e.deniedArgs, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.deniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("tool '%s' is restricted by policy", req.Tool),
		}, nil
	}

	for _, re := range e.deniedArgs {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{Effect: EffectAllow, Reason: "approved by default policy"}, nil
}
