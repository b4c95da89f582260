package ctxengine

import (
	"sort"
	"time"

	"github.com/flemzord/loom/internal/token"
	"github.com/flemzord/loom/pkg/thread"
)

// Balanced-strategy budget split, in percent.
const (
	balancedEarlyShare = 40
	balancedLateShare  = 40
	// The remaining 20% goes to a strided sample of the middle.

	// balancedMinMessages is the candidate count below which balanced
	// falls back to recent: with so few messages a split adds nothing.
	balancedMinMessages = 4

	// middleSampleCount is the target number of middle samples; the
	// stride is ceil(middle/middleSampleCount).
	middleSampleCount = 3
)

// selectCandidates applies the strategy to an over-budget candidate set.
// The returned selection is unordered; callers re-sort chronologically.
// Message costs are compared against the budget net of the request
// wrapper overhead, so the final wrapped total stays within budget.
func selectCandidates(strategy thread.TruncationStrategy, candidates []candidate, budget int, now time.Time) []candidate {
	effective := budget - token.WrapperOverhead
	if effective < 0 {
		effective = 0
	}

	switch strategy {
	case thread.StrategyRelevant:
		return selectRelevant(candidates, effective, now)
	case thread.StrategyBalanced:
		return selectBalanced(candidates, effective)
	default:
		return selectRecent(candidates, effective)
	}
}

// selectRecent keeps the newest messages: candidates sorted by descending
// timestamp, accepted greedily until the next one would overflow.
func selectRecent(candidates []candidate, budget int) []candidate {
	ordered := make([]candidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].msg.Timestamp.Equal(ordered[j].msg.Timestamp) {
			return ordered[i].msg.Timestamp.After(ordered[j].msg.Timestamp)
		}
		return ordered[i].idx > ordered[j].idx
	})

	var selected []candidate
	used := 0
	for _, c := range ordered {
		if used+c.tokens > budget {
			break
		}
		used += c.tokens
		selected = append(selected, c)
	}
	return selected
}

// selectRelevant scores every candidate and keeps the highest-scoring ones
// that fit. Unlike recent, an oversized high scorer is skipped rather than
// ending the scan: score order says nothing about cost.
func selectRelevant(candidates []candidate, budget int, now time.Time) []candidate {
	chrono := make([]candidate, len(candidates))
	copy(chrono, candidates)
	sortChronological(chrono)
	first, last := chrono[0].idx, chrono[len(chrono)-1].idx

	type scored struct {
		candidate
		score float64
	}
	ordered := make([]scored, len(candidates))
	for i, c := range candidates {
		ordered[i] = scored{candidate: c, score: relevanceScore(c, first, last, now)}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].idx < ordered[j].idx
	})

	var selected []candidate
	used := 0
	for _, c := range ordered {
		if used+c.tokens > budget {
			continue
		}
		used += c.tokens
		selected = append(selected, c.candidate)
	}
	return selected
}

// relevanceScore rates a message: system role dominates, the endpoints of
// the conversation anchor it, longer messages carry more signal, and
// recency decays over twenty days.
func relevanceScore(c candidate, firstIdx, lastIdx int, now time.Time) float64 {
	var score float64
	if c.msg.Role == thread.RoleSystem {
		score += 100
	}
	if c.idx == firstIdx || c.idx == lastIdx {
		score += 50
	}

	length := float64(len(c.msg.Content)) / 100
	if length > 30 {
		length = 30
	}
	score += length

	ageDays := now.Sub(c.msg.Timestamp).Hours() / 24
	if recency := 20 - ageDays; recency > 0 {
		score += recency
	}
	return score
}

// selectBalanced reserves 40% of the budget for the earliest messages,
// 40% for the latest, and the rest for a fixed-stride sample of the
// middle, so the selection keeps the opening context, the recent tail,
// and a sketch of what happened in between.
func selectBalanced(candidates []candidate, budget int) []candidate {
	if len(candidates) <= balancedMinMessages {
		return selectRecent(candidates, budget)
	}

	chrono := make([]candidate, len(candidates))
	copy(chrono, candidates)
	sortChronological(chrono)

	earlyBudget := budget * balancedEarlyShare / 100
	lateBudget := budget * balancedLateShare / 100

	var selected []candidate
	used := 0

	// Earliest messages, forward until the early sub-budget is hit.
	earlyEnd := 0 // exclusive
	for ; earlyEnd < len(chrono); earlyEnd++ {
		c := chrono[earlyEnd]
		if used+c.tokens > earlyBudget {
			break
		}
		used += c.tokens
		selected = append(selected, c)
	}

	// Latest messages, backward, never overlapping the early picks.
	lateUsed := 0
	lateStart := len(chrono) // inclusive
	for i := len(chrono) - 1; i >= earlyEnd; i-- {
		c := chrono[i]
		if lateUsed+c.tokens > lateBudget {
			break
		}
		lateUsed += c.tokens
		lateStart = i
		selected = append(selected, c)
	}
	used += lateUsed

	// Strided sample of the remaining middle, up to whatever budget the
	// two ends left over.
	middle := chrono[earlyEnd:lateStart]
	if len(middle) > 0 {
		stride := (len(middle) + middleSampleCount - 1) / middleSampleCount
		for i := 0; i < len(middle); i += stride {
			c := middle[i]
			if used+c.tokens > budget {
				continue
			}
			used += c.tokens
			selected = append(selected, c)
		}
	}

	return selected
}
