package thread

import "time"

// LinkType discriminates the relationship a Link records.
type LinkType string

// Supported link types.
const (
	// LinkFork marks a conversation seeded with a prefix of its source,
	// up to and including a chosen fork message.
	LinkFork LinkType = "fork"
	// LinkContinuation marks a conversation that picks up where its
	// source left off, optionally seeded with the full source history.
	LinkContinuation LinkType = "continuation"
	// LinkReference is a non-hierarchical annotation between two
	// conversations. Reference edges are exempt from cycle prevention.
	LinkReference LinkType = "reference"
)

// IsParent reports whether the link type establishes a parent/child
// relationship. Parent-type edges must never form a cycle.
func (t LinkType) IsParent() bool {
	return t == LinkFork || t == LinkContinuation
}

// Valid reports whether t is one of the known link types.
func (t LinkType) Valid() bool {
	switch t {
	case LinkFork, LinkContinuation, LinkReference:
		return true
	}
	return false
}

// LinkMetadata is a flat union of per-type link annotations. The owning
// Link's Type discriminates which fields are meaningful: fork links carry
// ForkMessagePreview, continuation and reference links carry Reason.
type LinkMetadata struct {
	ForkMessagePreview string `json:"fork_message_preview,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// NewForkMetadata creates metadata for a fork link, recording a preview of
// the fork-point message.
func NewForkMetadata(preview string) *LinkMetadata {
	return &LinkMetadata{ForkMessagePreview: preview}
}

// NewContinuationMetadata creates metadata for a continuation link.
func NewContinuationMetadata(reason string) *LinkMetadata {
	return &LinkMetadata{Reason: reason}
}

// NewReferenceMetadata creates metadata for a reference link.
func NewReferenceMetadata(reason string) *LinkMetadata {
	return &LinkMetadata{Reason: reason}
}

// Link is a directed edge between two conversations. Links never cascade
// from conversation edits; they are created and deleted explicitly.
type Link struct {
	ID       string   `json:"id"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Type     LinkType `json:"type"`

	// ForkMessageID is set only on fork links and names the message in the
	// source conversation at which the fork was taken.
	ForkMessageID string `json:"fork_message_id,omitempty"`

	CreatedAt time.Time     `json:"created_at"`
	Metadata  *LinkMetadata `json:"metadata,omitempty"`
}
