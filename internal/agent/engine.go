package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// ActionSpec describes one catalog entry to the reasoning engine.
type ActionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Decision is the engine's output for one reasoning step: either an action
// selection (Action + Input) or a final answer.
type Decision struct {
	Action string
	Input  string
	CallID string
	Answer string
}

func (d Decision) IsFinal() bool {
	return d.Action == ""
}

// Engine is the pluggable decision-maker. Given the full conversation
// history and the action catalog it returns the next Decision.
type Engine interface {
	Decide(ctx context.Context, history []Turn, actions []ActionSpec) (Decision, error)
}

// LLMEngine implements Engine on top of a langchaingo model with native
// tool calling. When the model requests several calls at once only the
// first is taken; the loop issues one action per reasoning step.
type LLMEngine struct {
	model        llms.Model
	systemPrompt string
}

func NewLLMEngine(model llms.Model, systemPrompt string) *LLMEngine {
	return &LLMEngine{model: model, systemPrompt: systemPrompt}
}

func (e *LLMEngine) Decide(ctx context.Context, history []Turn, actions []ActionSpec) (Decision, error) {
	messages := e.toMessages(history)

	llmTools := make([]llms.Tool, 0, len(actions))
	for _, a := range actions {
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        a.Name,
				Description: a.Description,
				Parameters:  a.Parameters,
			},
		})
	}

	resp, err := e.model.GenerateContent(ctx, messages, llms.WithTools(llmTools))
	if err != nil {
		return Decision{}, fmt.Errorf("reasoning engine failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, fmt.Errorf("reasoning engine returned no choices")
	}
	choice := resp.Choices[0]

	if len(choice.ToolCalls) > 0 {
		tc := choice.ToolCalls[0]
		return Decision{
			Action: tc.FunctionCall.Name,
			Input:  tc.FunctionCall.Arguments,
			CallID: tc.ID,
		}, nil
	}
	return Decision{Answer: choice.Content}, nil
}

func (e *LLMEngine) toMessages(history []Turn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+1)
	if e.systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(e.systemPrompt)},
		})
	}

	for _, turn := range history {
		switch turn.Role {
		case RoleUser:
			messages = append(messages, llms.MessageContent{
				Role:  llms.ChatMessageTypeHuman,
				Parts: []llms.ContentPart{llms.TextPart(turn.Content)},
			})
		case RoleAssistant:
			var parts []llms.ContentPart
			if turn.Content != "" {
				parts = append(parts, llms.TextContent{Text: turn.Content})
			}
			if turn.Call != nil {
				parts = append(parts, llms.ToolCall{
					ID:   turn.Call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      turn.Call.Name,
						Arguments: turn.Call.Input,
					},
				})
			}
			messages = append(messages, llms.MessageContent{
				Role:  llms.ChatMessageTypeAI,
				Parts: parts,
			})
		case RoleObservation:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: turn.CallID,
						Content:    turn.Content,
					},
				},
			})
		}
	}
	return messages
}
