package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserTool drives a headless browser for pages the plain scraper cannot
// handle. The browser process is started lazily on first use and lives
// until 'close' or process exit.
type BrowserTool struct {
	mu         sync.Mutex
	browserCtx context.Context
	cancels    []context.CancelFunc
}

func NewBrowserTool() *BrowserTool {
	return &BrowserTool{}
}

func (b *BrowserTool) Name() string {
	return "browser"
}

func (b *BrowserTool) Description() string {
	return "Control a headless browser. Actions: 'navigate' (loads a URL and returns page text), 'click' (clicks a CSS selector and returns updated text), 'close' (shuts the browser down)."
}

func (b *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"navigate", "click", "close"},
				"description": "The action to perform",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "URL to load (required for 'navigate')",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector of the element to click (required for 'click')",
			},
		},
		"required": []string{"action"},
	}
}

func (b *BrowserTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action   string `json:"action"`
		URL      string `json:"url"`
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	switch args.Action {
	case "navigate":
		if args.URL == "" {
			return "", fmt.Errorf("'navigate' requires a url")
		}
		return b.run(ctx, chromedp.Navigate(args.URL))
	case "click":
		if args.Selector == "" {
			return "", fmt.Errorf("'click' requires a selector")
		}
		return b.run(ctx, chromedp.Click(args.Selector, chromedp.ByQuery))
	case "close":
		b.Close()
		return "browser closed", nil
	default:
		return "", fmt.Errorf("unknown browser action %q", args.Action)
	}
}

// run performs the action followed by a text capture of the page body.
func (b *BrowserTool) run(ctx context.Context, action chromedp.Action) (string, error) {
	bctx, err := b.ensureBrowser()
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(bctx, 60*time.Second)
	defer cancel()
	// Stop early if the caller's context goes away.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	var text string
	err = chromedp.Run(runCtx,
		action,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("browser action failed: %w", err)
	}
	if len(text) > scraperContentCap {
		text = text[:scraperContentCap] + "\n... (truncated)"
	}
	return text, nil
}

func (b *BrowserTool) ensureBrowser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.teardownLocked()
		default:
			return b.browserCtx, nil
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		chromedp.DefaultExecAllocatorOptions[:]...)
	bctx, browserCancel := chromedp.NewContext(allocCtx)

	// First Run starts the browser process.
	if err := chromedp.Run(bctx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	b.browserCtx = bctx
	b.cancels = []context.CancelFunc{browserCancel, allocCancel}
	return bctx, nil
}

// Close shuts the browser process down. Safe to call when never started.
func (b *BrowserTool) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

func (b *BrowserTool) teardownLocked() {
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	b.browserCtx = nil
}
