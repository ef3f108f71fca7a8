package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// SearchTool is a builtin web search backed by DuckDuckGo.
type SearchTool struct {
	client *duckduckgo.Tool
}

func NewSearchTool() (*SearchTool, error) {
	ddg, err := duckduckgo.New(5, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize search backend: %w", err)
	}
	return &SearchTool{client: ddg}, nil
}

func (s *SearchTool) Name() string {
	return "web_search"
}

func (s *SearchTool) Description() string {
	return "Search the web for up-to-date information. Returns a short list of results."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	res, err := s.client.Call(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}
