// Package ctxengine assembles token-budgeted context windows from a
// conversation and its linked neighbors: candidate gathering across the
// link graph, budget resolution, and greedy truncation strategies.
package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/flemzord/loom/internal/graph"
	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/internal/token"
	"github.com/flemzord/loom/pkg/thread"
)

// DefaultBudgetRatio is the share of the model context window used when no
// explicit token budget is configured, leaving room for the reply and the
// system prompt.
const DefaultBudgetRatio = 0.7

// AssembleOptions are per-call overrides for Assemble. Zero values defer
// to the conversation's stored ContextConfig.
type AssembleOptions struct {
	// MaxTokens overrides the token budget when > 0.
	MaxTokens int

	// Strategy overrides the truncation strategy when valid.
	Strategy thread.TruncationStrategy

	// IncludeLinks names link IDs whose opposite endpoints are pulled in
	// for this call, in addition to the stored config's included links.
	IncludeLinks []string
}

// SourceStats aggregates the selected messages originating from one
// conversation.
type SourceStats struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	MessageCount   int    `json:"message_count"`
	Tokens         int    `json:"tokens"`
}

// AssemblyResult is the output of Assemble.
type AssemblyResult struct {
	// Messages is the selected subset, in ascending timestamp order.
	Messages []thread.Message `json:"messages"`

	// TotalTokens is the estimated cost of Messages including wrapper
	// overhead; 0 when Messages is empty.
	TotalTokens int `json:"total_tokens"`

	// Sources describes where the selected messages came from, ordered
	// by conversation ID.
	Sources []SourceStats `json:"sources"`

	// Truncated is true when the candidate set exceeded the budget.
	Truncated bool `json:"truncated"`

	// TruncationReason is a human-readable explanation, set only when
	// Truncated.
	TruncationReason string `json:"truncation_reason,omitempty"`
}

// candidate is one message tagged with its originating conversation and
// pre-computed token cost. idx preserves collection order for stable
// sorting.
type candidate struct {
	msg      thread.Message
	sourceID string
	tokens   int
	idx      int
}

// Assembler gathers candidate messages for a conversation and selects a
// token-bounded subset. It is a stateless pipeline: one invocation per
// call, nothing persisted in between.
type Assembler struct {
	graph         *graph.Service
	conversations store.ConversationStore
	configs       store.ContextConfigStore
	estimator     token.Estimator
	logger        *slog.Logger

	// now is injectable for deterministic relevance scoring in tests.
	now func() time.Time
}

// NewAssembler creates an Assembler over the given collaborators.
func NewAssembler(
	g *graph.Service,
	conversations store.ConversationStore,
	configs store.ContextConfigStore,
	estimator token.Estimator,
	logger *slog.Logger,
) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		graph:         g,
		conversations: conversations,
		configs:       configs,
		estimator:     estimator,
		logger:        logger,
		now:           time.Now,
	}
}

// SetNow overrides the clock. Intended for tests.
func (a *Assembler) SetNow(now func() time.Time) {
	a.now = now
}

// Assemble builds a context window for the conversation.
//
// Candidates are the conversation's own messages, the parent's messages
// when AutoLoadParent is set, and the opposite endpoints of links that are
// auto-loaded or explicitly included. Missing linked conversations are
// skipped silently; only the initial conversation lookup can fail.
//
// When the candidates exceed the budget, the configured strategy selects
// a subset. A budget too small for even one message still yields the
// single most recent candidate: assembly never returns an empty context
// while material exists.
func (a *Assembler) Assemble(ctx context.Context, conversationID string, opts AssembleOptions) (AssemblyResult, error) {
	conv, err := a.conversations.Get(ctx, conversationID)
	if err != nil {
		return AssemblyResult{}, fmt.Errorf("ctxengine: assemble %s: %w", conversationID, err)
	}

	cfg := a.loadConfig(ctx, conversationID)
	budget := a.resolveBudget(conv, cfg, opts)
	strategy := cfg.Strategy
	if opts.Strategy.Valid() {
		strategy = opts.Strategy
	}

	candidates, titles, err := a.collect(ctx, conv, cfg, opts)
	if err != nil {
		return AssemblyResult{}, err
	}
	if len(candidates) == 0 {
		return AssemblyResult{Messages: []thread.Message{}}, nil
	}

	total := totalTokens(candidates)
	if total <= budget {
		sortChronological(candidates)
		return a.finish(candidates, titles, total, false, ""), nil
	}

	selected := selectCandidates(strategy, candidates, budget, a.now())
	if len(selected) == 0 {
		// Unsatisfiable budget: keep the single most recent message
		// rather than returning an empty context.
		selected = []candidate{mostRecent(candidates)}
	}
	sortChronological(selected)

	reason := fmt.Sprintf("%s strategy reduced context from %d to %d messages to fit %d tokens",
		strategy, len(candidates), len(selected), budget)

	a.logger.Debug("context truncated",
		"conversation", conversationID,
		"strategy", string(strategy),
		"candidates", len(candidates),
		"selected", len(selected),
		"budget", budget,
	)

	return a.finish(selected, titles, totalTokens(selected), true, reason), nil
}

// loadConfig returns the stored config with defaults applied, or the
// default config when none is stored. Store read failures degrade to
// defaults: assembly only fails on the initial conversation lookup.
func (a *Assembler) loadConfig(ctx context.Context, conversationID string) thread.ContextConfig {
	cfg, err := a.configs.Get(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, store.ErrConfigNotFound) {
			a.logger.Warn("context config read failed, using defaults",
				"conversation", conversationID,
				"error", err,
			)
		}
		return thread.DefaultContextConfig(conversationID)
	}
	return cfg.WithDefaults()
}

// resolveBudget picks the token budget: per-call override, then stored
// config, then DefaultBudgetRatio of the model's context window.
func (a *Assembler) resolveBudget(conv *thread.Conversation, cfg thread.ContextConfig, opts AssembleOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return int(DefaultBudgetRatio * float64(token.ContextWindow(conv.Model)))
}

// collect gathers (message, source) candidates and the source titles.
func (a *Assembler) collect(ctx context.Context, conv *thread.Conversation, cfg thread.ContextConfig, opts AssembleOptions) ([]candidate, map[string]string, error) {
	var candidates []candidate
	titles := make(map[string]string)
	loaded := map[string]struct{}{conv.ID: {}}

	addAll := func(src *thread.Conversation) {
		titles[src.ID] = src.Title
		for i := range src.Messages {
			candidates = append(candidates, candidate{
				msg:      src.Messages[i],
				sourceID: src.ID,
				tokens:   token.EstimateMessage(a.estimator, src.Messages[i]),
				idx:      len(candidates),
			})
		}
	}

	// addByID loads and adds a conversation unless already present.
	// Missing conversations are tolerated and skipped.
	addByID := func(id string) error {
		if _, dup := loaded[id]; dup {
			return nil
		}
		src, err := a.conversations.Get(ctx, id)
		if errors.Is(err, store.ErrConversationNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ctxengine: load source %s: %w", id, err)
		}
		loaded[id] = struct{}{}
		addAll(src)
		return nil
	}

	addAll(conv)

	if cfg.AutoLoadParent && conv.ParentID != "" {
		if err := addByID(conv.ParentID); err != nil {
			return nil, nil, err
		}
	}

	set, err := a.graph.Links(ctx, conv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("ctxengine: links of %s: %w", conv.ID, err)
	}
	included := func(linkID string) bool {
		if cfg.AutoLoadLinks || cfg.IncludesLink(linkID) {
			return true
		}
		for _, id := range opts.IncludeLinks {
			if id == linkID {
				return true
			}
		}
		return false
	}
	for _, link := range append(append([]thread.Link(nil), set.Outgoing...), set.Incoming...) {
		if !included(link.ID) {
			continue
		}
		other := link.TargetID
		if other == conv.ID {
			other = link.SourceID
		}
		if err := addByID(other); err != nil {
			return nil, nil, err
		}
	}

	return candidates, titles, nil
}

// finish builds the result from a selected candidate set.
func (a *Assembler) finish(selected []candidate, titles map[string]string, total int, truncated bool, reason string) AssemblyResult {
	messages := make([]thread.Message, len(selected))
	perSource := make(map[string]*SourceStats)
	for i, c := range selected {
		messages[i] = c.msg
		stats, ok := perSource[c.sourceID]
		if !ok {
			stats = &SourceStats{ConversationID: c.sourceID, Title: titles[c.sourceID]}
			perSource[c.sourceID] = stats
		}
		stats.MessageCount++
		stats.Tokens += c.tokens
	}

	sources := make([]SourceStats, 0, len(perSource))
	for _, stats := range perSource {
		sources = append(sources, *stats)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].ConversationID < sources[j].ConversationID
	})

	return AssemblyResult{
		Messages:         messages,
		TotalTokens:      total,
		Sources:          sources,
		Truncated:        truncated,
		TruncationReason: reason,
	}
}

// totalTokens is the wrapped cost of a candidate set; 0 when empty.
func totalTokens(candidates []candidate) int {
	if len(candidates) == 0 {
		return 0
	}
	total := token.WrapperOverhead
	for _, c := range candidates {
		total += c.tokens
	}
	return total
}

// sortChronological orders candidates by timestamp ascending, breaking
// ties by collection order.
func sortChronological(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].msg.Timestamp.Equal(candidates[j].msg.Timestamp) {
			return candidates[i].msg.Timestamp.Before(candidates[j].msg.Timestamp)
		}
		return candidates[i].idx < candidates[j].idx
	})
}

// mostRecent returns the candidate with the latest timestamp.
func mostRecent(candidates []candidate) candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.msg.Timestamp.After(best.msg.Timestamp) {
			best = c
		}
	}
	return best
}
