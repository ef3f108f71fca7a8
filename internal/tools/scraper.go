package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const scraperContentCap = 40000

// ScraperTool fetches a page and reduces it to readable, sanitized text.
type ScraperTool struct {
	client    *http.Client
	sanitizer *bluemonday.Policy
	userAgent string
}

func NewScraperTool() *ScraperTool {
	return &ScraperTool{
		client:    &http.Client{Timeout: 30 * time.Second},
		sanitizer: bluemonday.StrictPolicy(),
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	}
}

func (s *ScraperTool) Name() string {
	return "read_page"
}

func (s *ScraperTool) Description() string {
	return "Fetch a URL and extract its main content as clean plain text."
}

func (s *ScraperTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the page to read",
			},
		},
		"required": []string{"url"},
	}
}

func (s *ScraperTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	target, err := url.Parse(args.URL)
	if err != nil || target.Scheme == "" {
		return "", fmt.Errorf("invalid url: %s", args.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch failed: status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, target)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	content := s.sanitizer.Sanitize(article.TextContent)
	if len(content) > scraperContentCap {
		content = content[:scraperContentCap] + "\n... (truncated)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", article.Title)
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", article.Excerpt)
	}
	b.WriteString("\n")
	b.WriteString(content)
	return b.String(), nil
}
