package token

import "strings"

// DefaultContextWindow is used when a model is entirely unknown.
const DefaultContextWindow = 4096

// contextWindows maps known model identifiers to their context window size
// in tokens.
var contextWindows = map[string]int{
	"gpt-3.5-turbo":     4096,
	"gpt-3.5-turbo-16k": 16384,
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
}

// ContextWindow returns the context window size for the given model.
//
// Lookup order: exact match, then the longest known identifier contained
// in the model string ("gpt-4-turbo-2024-04-09" matches "gpt-4-turbo"
// rather than "gpt-4"), then DefaultContextWindow. Never fails.
func ContextWindow(model string) int {
	if limit, ok := contextWindows[model]; ok {
		return limit
	}

	best := ""
	for key := range contextWindows {
		if !strings.Contains(model, key) {
			continue
		}
		if len(key) > len(best) || (len(key) == len(best) && key < best) {
			best = key
		}
	}
	if best != "" {
		return contextWindows[best]
	}

	return DefaultContextWindow
}
