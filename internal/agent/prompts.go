package agent

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSystemPrompt is used when no prompts directory is configured.
const DefaultSystemPrompt = `You are a capable assistant with access to tools.
- When a tool is needed, call it with arguments as valid JSON matching its schema.
- Read tool results carefully; if a call fails, correct your arguments and try again or explain the problem.
- Do not call a tool when the answer is already in the conversation.
- When you have the answer, reply to the user directly and completely.`

// LoadSystemPrompt assembles the system prompt from the .md files of a
// directory, concatenated in name order so the result is deterministic.
// Missing or empty directories fall back to the default prompt.
func LoadSystemPrompt(dir string) string {
	if dir == "" {
		return DefaultSystemPrompt
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DefaultSystemPrompt
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return DefaultSystemPrompt
	}
	return strings.Join(parts, "\n\n")
}
