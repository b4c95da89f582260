// Package token provides heuristic token-cost estimation for context
// budgeting. The estimates approximate LLM tokenizer output closely enough
// for budget decisions; they are not billing-accurate.
package token

import (
	"math"
	"strings"

	"github.com/flemzord/loom/pkg/thread"
)

// Per-unit structural overheads, in tokens.
const (
	// MessageOverhead covers role markers and message framing.
	MessageOverhead = 4
	// AttachmentOverhead covers attachment framing and metadata.
	AttachmentOverhead = 10
	// WrapperOverhead covers the request-level message wrapper.
	WrapperOverhead = 3
)

// Estimator estimates the token count of a string. A production tokenizer
// can be substituted without touching the context engine.
type Estimator interface {
	Estimate(text string) int
}

// HeuristicEstimator averages a character-based and a word-based estimate:
// English text runs ~4 characters per token and ~0.75 words per token.
// Averaging the two tracks real tokenizers better than either alone on
// both prose and code.
type HeuristicEstimator struct{}

// NewHeuristicEstimator creates a HeuristicEstimator.
func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{}
}

// Compile-time interface check.
var _ Estimator = (*HeuristicEstimator)(nil)

// Estimate returns the estimated token count for the given text.
// Estimate("") == 0. The result is monotonically non-decreasing in the
// length of the input.
func (e *HeuristicEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	byChars := (len(text) + 3) / 4
	byWords := int(math.Ceil(float64(len(strings.Fields(text))) / 0.75))
	// Ceiling of the mean of the two estimates.
	return (byChars + byWords + 1) / 2
}

// EstimateMessage returns the estimated tokens for a single message,
// including structural overhead and attachments.
func EstimateMessage(estimator Estimator, msg thread.Message) int {
	total := estimator.Estimate(msg.Content) + MessageOverhead
	for _, att := range msg.Attachments {
		total += estimator.Estimate(att.Content) + AttachmentOverhead
	}
	return total
}

// EstimateMessages returns the estimated tokens for a message sequence,
// including the request wrapper overhead. An empty sequence still costs
// the wrapper.
func EstimateMessages(estimator Estimator, msgs []thread.Message) int {
	total := WrapperOverhead
	for i := range msgs {
		total += EstimateMessage(estimator, msgs[i])
	}
	return total
}
