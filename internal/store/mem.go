package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flemzord/loom/pkg/thread"
)

// Compile-time interface checks.
var (
	_ ConversationStore  = (*InMemoryConversationStore)(nil)
	_ LinkStore          = (*InMemoryLinkStore)(nil)
	_ ContextConfigStore = (*InMemoryContextConfigStore)(nil)
)

// InMemoryConversationStore is a concurrency-safe, in-memory
// ConversationStore. The `now` function is injectable for deterministic
// testing.
type InMemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*thread.Conversation

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// NewInMemoryConversationStore creates a ready-to-use conversation store.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{
		conversations: make(map[string]*thread.Conversation),
		now:           time.Now,
	}
}

// SetNow overrides the clock. Intended for tests.
func (s *InMemoryConversationStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns a copy of the conversation so callers cannot mutate stored
// state through the returned pointer.
func (s *InMemoryConversationStore) Get(_ context.Context, id string) (*thread.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return copyConversation(conv), nil
}

// Save inserts or replaces the conversation.
func (s *InMemoryConversationStore) Save(_ context.Context, conv *thread.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = copyConversation(conv)
	return nil
}

// Update applies a partial update and refreshes UpdatedAt.
func (s *InMemoryConversationStore) Update(_ context.Context, id string, patch ConversationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}

	if patch.Title != nil {
		conv.Title = *patch.Title
	}
	if patch.Model != nil {
		conv.Model = *patch.Model
	}
	if patch.Archived != nil {
		conv.Archived = *patch.Archived
	}
	if patch.Favorite != nil {
		conv.Favorite = *patch.Favorite
	}
	if patch.Tags != nil {
		conv.Tags = append([]string(nil), patch.Tags...)
	}
	conv.UpdatedAt = s.now()
	return nil
}

// AppendMessages appends messages and refreshes UpdatedAt.
func (s *InMemoryConversationStore) AppendMessages(_ context.Context, id string, msgs ...thread.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = s.now()
	return nil
}

// List returns copies of all conversations, ordered by CreatedAt then ID
// for deterministic output.
func (s *InMemoryConversationStore) List(_ context.Context) ([]*thread.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*thread.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, copyConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes the conversation. Links are left untouched.
func (s *InMemoryConversationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

// Len returns the number of stored conversations.
func (s *InMemoryConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func copyConversation(conv *thread.Conversation) *thread.Conversation {
	cp := *conv
	if conv.Messages != nil {
		cp.Messages = make([]thread.Message, len(conv.Messages))
		copy(cp.Messages, conv.Messages)
	}
	if conv.Tags != nil {
		cp.Tags = append([]string(nil), conv.Tags...)
	}
	return &cp
}

// InMemoryLinkStore is a concurrency-safe, in-memory LinkStore with
// secondary indexes by source and target for O(1) directional lookups.
type InMemoryLinkStore struct {
	mu       sync.RWMutex
	links    map[string]thread.Link
	bySource map[string][]string // conversation ID -> link IDs
	byTarget map[string][]string
}

// NewInMemoryLinkStore creates a ready-to-use link store.
func NewInMemoryLinkStore() *InMemoryLinkStore {
	return &InMemoryLinkStore{
		links:    make(map[string]thread.Link),
		bySource: make(map[string][]string),
		byTarget: make(map[string][]string),
	}
}

// Save inserts or replaces the link and maintains the indexes.
func (s *InMemoryLinkStore) Save(_ context.Context, link thread.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.links[link.ID]; ok {
		s.bySource[old.SourceID] = removeID(s.bySource[old.SourceID], link.ID)
		s.byTarget[old.TargetID] = removeID(s.byTarget[old.TargetID], link.ID)
	}
	s.links[link.ID] = link
	s.bySource[link.SourceID] = append(s.bySource[link.SourceID], link.ID)
	s.byTarget[link.TargetID] = append(s.byTarget[link.TargetID], link.ID)
	return nil
}

// Delete removes the link and its index entries.
func (s *InMemoryLinkStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return ErrLinkNotFound
	}
	delete(s.links, id)
	s.bySource[link.SourceID] = removeID(s.bySource[link.SourceID], id)
	s.byTarget[link.TargetID] = removeID(s.byTarget[link.TargetID], id)
	return nil
}

// Get returns the link with the given ID.
func (s *InMemoryLinkStore) Get(_ context.Context, id string) (thread.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[id]
	if !ok {
		return thread.Link{}, ErrLinkNotFound
	}
	return link, nil
}

// ByConversation returns links touching the conversation in either
// direction. A self-referential index hit is returned once.
func (s *InMemoryLinkStore) ByConversation(_ context.Context, conversationID string) ([]thread.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []thread.Link
	for _, id := range s.bySource[conversationID] {
		seen[id] = struct{}{}
		out = append(out, s.links[id])
	}
	for _, id := range s.byTarget[conversationID] {
		if _, dup := seen[id]; dup {
			continue
		}
		out = append(out, s.links[id])
	}
	sortLinks(out)
	return out, nil
}

// BySource returns links originating at the conversation.
func (s *InMemoryLinkStore) BySource(_ context.Context, conversationID string) ([]thread.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]thread.Link, 0, len(s.bySource[conversationID]))
	for _, id := range s.bySource[conversationID] {
		out = append(out, s.links[id])
	}
	sortLinks(out)
	return out, nil
}

// ByTarget returns links pointing at the conversation.
func (s *InMemoryLinkStore) ByTarget(_ context.Context, conversationID string) ([]thread.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]thread.Link, 0, len(s.byTarget[conversationID]))
	for _, id := range s.byTarget[conversationID] {
		out = append(out, s.links[id])
	}
	sortLinks(out)
	return out, nil
}

// List returns all links ordered by CreatedAt then ID.
func (s *InMemoryLinkStore) List(_ context.Context) ([]thread.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]thread.Link, 0, len(s.links))
	for _, link := range s.links {
		out = append(out, link)
	}
	sortLinks(out)
	return out, nil
}

// Len returns the number of stored links.
func (s *InMemoryLinkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func sortLinks(links []thread.Link) {
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.Before(links[j].CreatedAt)
		}
		return links[i].ID < links[j].ID
	})
}

// InMemoryContextConfigStore is a concurrency-safe, in-memory
// ContextConfigStore.
type InMemoryContextConfigStore struct {
	mu      sync.RWMutex
	configs map[string]thread.ContextConfig
}

// NewInMemoryContextConfigStore creates a ready-to-use config store.
func NewInMemoryContextConfigStore() *InMemoryContextConfigStore {
	return &InMemoryContextConfigStore{
		configs: make(map[string]thread.ContextConfig),
	}
}

// Get returns the stored config for the conversation.
func (s *InMemoryContextConfigStore) Get(_ context.Context, conversationID string) (thread.ContextConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[conversationID]
	if !ok {
		return thread.ContextConfig{}, ErrConfigNotFound
	}
	cfg.IncludedLinks = append([]string(nil), cfg.IncludedLinks...)
	return cfg, nil
}

// Put stores the config keyed by its ConversationID.
func (s *InMemoryContextConfigStore) Put(_ context.Context, cfg thread.ContextConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.IncludedLinks = append([]string(nil), cfg.IncludedLinks...)
	s.configs[cfg.ConversationID] = cfg
	return nil
}

// Delete removes the stored config. Absent configs are a no-op.
func (s *InMemoryContextConfigStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, conversationID)
	return nil
}
