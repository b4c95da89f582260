package thread

// TruncationStrategy selects how context assembly trims an over-budget
// candidate set.
type TruncationStrategy string

// Supported truncation strategies.
const (
	// StrategyRecent keeps the newest messages that fit the budget.
	StrategyRecent TruncationStrategy = "recent"
	// StrategyRelevant scores messages by role, position, length, and age,
	// and keeps the highest-scoring ones that fit.
	StrategyRelevant TruncationStrategy = "relevant"
	// StrategyBalanced splits the budget between the earliest messages,
	// the latest messages, and a sample of the middle.
	StrategyBalanced TruncationStrategy = "balanced"
)

// Valid reports whether s is one of the known strategies.
func (s TruncationStrategy) Valid() bool {
	switch s {
	case StrategyRecent, StrategyRelevant, StrategyBalanced:
		return true
	}
	return false
}

// ContextConfig is the per-conversation context assembly configuration.
// A conversation without a stored config behaves as if WithDefaults had
// been applied to the zero value.
type ContextConfig struct {
	// ConversationID names the conversation this config belongs to.
	ConversationID string `json:"conversation_id"`

	// IncludedLinks lists link IDs whose opposite endpoints are always
	// pulled into context, regardless of AutoLoadLinks.
	IncludedLinks []string `json:"included_links,omitempty"`

	// AutoLoadParent pulls the parent conversation's messages into context.
	AutoLoadParent bool `json:"auto_load_parent"`

	// AutoLoadLinks pulls every linked conversation's messages into context.
	AutoLoadLinks bool `json:"auto_load_links"`

	// Strategy selects the truncation strategy for over-budget contexts.
	Strategy TruncationStrategy `json:"strategy"`

	// MaxTokens caps the assembled context. Zero means derive the budget
	// from the conversation's model context window.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// DefaultContextConfig returns the config applied when a conversation has
// none stored: load the parent, skip other links, balanced truncation,
// budget derived from the model window.
func DefaultContextConfig(conversationID string) ContextConfig {
	return ContextConfig{
		ConversationID: conversationID,
		AutoLoadParent: true,
		AutoLoadLinks:  false,
		Strategy:       StrategyBalanced,
	}
}

// WithDefaults returns a copy of cfg with invalid or missing fields
// replaced by defaults.
func (cfg ContextConfig) WithDefaults() ContextConfig {
	if !cfg.Strategy.Valid() {
		cfg.Strategy = StrategyBalanced
	}
	if cfg.MaxTokens < 0 {
		cfg.MaxTokens = 0
	}
	return cfg
}

// IncludesLink reports whether the given link ID is explicitly included.
func (cfg ContextConfig) IncludesLink(linkID string) bool {
	for _, id := range cfg.IncludedLinks {
		if id == linkID {
			return true
		}
	}
	return false
}
