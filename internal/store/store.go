// Package store defines the persistence contracts the graph and context
// engines sit on, with in-memory implementations suitable for tests and
// single-process deployments.
package store

import (
	"context"
	"errors"

	"github.com/flemzord/loom/pkg/thread"
)

// Sentinel errors returned by store implementations.
var (
	ErrConversationNotFound = errors.New("store: conversation not found")
	ErrLinkNotFound         = errors.New("store: link not found")
	ErrConfigNotFound       = errors.New("store: context config not found")
)

// ConversationPatch is a partial conversation update. Nil fields are left
// unchanged.
type ConversationPatch struct {
	Title    *string
	Model    *string
	Archived *bool
	Favorite *bool
	Tags     []string // nil = unchanged, empty = clear
}

// ConversationStore manages saved conversations.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Get returns the conversation with the given ID.
	// Returns ErrConversationNotFound if it does not exist.
	Get(ctx context.Context, id string) (*thread.Conversation, error)

	// Save inserts the conversation, replacing any existing one with the
	// same ID.
	Save(ctx context.Context, conv *thread.Conversation) error

	// Update applies a partial update and refreshes UpdatedAt.
	// Returns ErrConversationNotFound if the conversation does not exist.
	Update(ctx context.Context, id string, patch ConversationPatch) error

	// AppendMessages appends messages to the conversation and refreshes
	// UpdatedAt. Returns ErrConversationNotFound if it does not exist.
	AppendMessages(ctx context.Context, id string, msgs ...thread.Message) error

	// List returns all conversations. Ordering is implementation-defined.
	List(ctx context.Context) ([]*thread.Conversation, error)

	// Delete removes the conversation. Links referencing it are NOT
	// cascade-deleted; readers tolerate and skip orphaned links.
	// Returns ErrConversationNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// LinkStore manages directed link edges between conversations.
// Implementations must be safe for concurrent use.
type LinkStore interface {
	// Save inserts the link, replacing any existing one with the same ID.
	Save(ctx context.Context, link thread.Link) error

	// Delete removes the link. Returns ErrLinkNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Get returns the link with the given ID.
	// Returns ErrLinkNotFound if it does not exist.
	Get(ctx context.Context, id string) (thread.Link, error)

	// ByConversation returns every link touching the conversation in
	// either direction.
	ByConversation(ctx context.Context, conversationID string) ([]thread.Link, error)

	// BySource returns links whose SourceID matches.
	BySource(ctx context.Context, conversationID string) ([]thread.Link, error)

	// ByTarget returns links whose TargetID matches.
	ByTarget(ctx context.Context, conversationID string) ([]thread.Link, error)

	// List returns all links.
	List(ctx context.Context) ([]thread.Link, error)
}

// ContextConfigStore manages per-conversation context assembly settings.
// Implementations must be safe for concurrent use.
type ContextConfigStore interface {
	// Get returns the stored config for the conversation.
	// Returns ErrConfigNotFound if none has been stored; callers fall
	// back to thread.DefaultContextConfig.
	Get(ctx context.Context, conversationID string) (thread.ContextConfig, error)

	// Put stores the config, replacing any existing one.
	Put(ctx context.Context, cfg thread.ContextConfig) error

	// Delete removes the stored config. Deleting an absent config is a no-op.
	Delete(ctx context.Context, conversationID string) error
}
