// Package graph manages the directed link graph between conversations:
// fork and continuation edges form parent/child hierarchies that must stay
// acyclic, while reference edges are free-form annotations. All traversal
// is iterative with explicit visited sets, so cyclic reference data and
// malformed stores never cause unbounded recursion.
package graph

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

// Sentinel errors for invalid link operations.
var (
	// ErrSelfLink is returned when a link's source and target are the
	// same conversation.
	ErrSelfLink = errors.New("graph: self-referential link")

	// ErrForkMessageNotFound is returned when the fork point does not
	// exist in the source conversation.
	ErrForkMessageNotFound = errors.New("graph: fork message not found in source conversation")
)

// forkPreviewLen caps the fork-point preview recorded in link metadata.
const forkPreviewLen = 100

// AtomicPairWriter is implemented by storage backends that can persist a
// conversation and a link in a single transaction. When available, Fork
// and ContinueFrom use it; otherwise the conversation is written first and
// a link-write failure is surfaced without rolling the conversation back.
type AtomicPairWriter interface {
	SaveConversationAndLink(ctx context.Context, conv *thread.Conversation, link thread.Link) error
}

// NewConversationMeta describes the conversation created by Fork or
// ContinueFrom.
type NewConversationMeta struct {
	// Title for the new conversation. Empty derives one from the source
	// ("Fork of ..." / "Continuation of ...").
	Title string

	// Reason is recorded in continuation link metadata.
	Reason string
}

// LinkSet groups a conversation's links by direction.
type LinkSet struct {
	Outgoing []thread.Link `json:"outgoing"`
	Incoming []thread.Link `json:"incoming"`
}

// Neighbors groups the conversations adjacent to one conversation by
// relationship.
type Neighbors struct {
	// Parents are sources of incoming fork/continuation edges.
	Parents []*thread.Conversation `json:"parents"`
	// Children are targets of outgoing fork/continuation edges.
	Children []*thread.Conversation `json:"children"`
	// Related are opposite endpoints of reference edges, either direction.
	Related []*thread.Conversation `json:"related"`
}

// Service creates and deletes link edges and answers graph queries. It owns
// no state beyond its injected stores; every operation runs to completion
// against the stores and returns plain data.
type Service struct {
	conversations store.ConversationStore
	links         store.LinkStore
	atomic        AtomicPairWriter
	logger        *slog.Logger

	// Injectable for deterministic testing.
	now   func() time.Time
	newID func() (string, error)
}

// NewService creates a Service over the given stores.
func NewService(conversations store.ConversationStore, links store.LinkStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conversations: conversations,
		links:         links,
		logger:        logger,
		now:           time.Now,
		newID:         generateID,
	}
}

// SetAtomicWriter attaches a backend capable of transactional
// conversation+link writes. Optional.
func (s *Service) SetAtomicWriter(w AtomicPairWriter) {
	s.atomic = w
}

// SetNow overrides the clock. Intended for tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// SetIDGenerator overrides ID generation. Intended for tests.
func (s *Service) SetIDGenerator(gen func() (string, error)) {
	s.newID = gen
}

// Fork creates a new conversation seeded with the source's messages up to
// and including the fork point, plus a fork link from the source to the
// new conversation.
//
// If the link write fails after the conversation write succeeded, the new
// conversation is returned together with the error; it stays valid on its
// own and cleanup is the caller's decision.
func (s *Service) Fork(ctx context.Context, sourceID, forkMessageID string, meta NewConversationMeta) (*thread.Conversation, thread.Link, error) {
	source, err := s.conversations.Get(ctx, sourceID)
	if err != nil {
		return nil, thread.Link{}, fmt.Errorf("graph: fork source: %w", err)
	}

	idx := source.MessageIndex(forkMessageID)
	if idx < 0 {
		return nil, thread.Link{}, fmt.Errorf("graph: fork %s at %s: %w", sourceID, forkMessageID, ErrForkMessageNotFound)
	}

	title := meta.Title
	if title == "" {
		title = "Fork of " + source.Title
	}

	now := s.now()
	conv := &thread.Conversation{
		Title:     title,
		Model:     source.Model,
		Messages:  source.CloneMessages(idx + 1),
		CreatedAt: now,
		UpdatedAt: now,
		ParentID:  sourceID,
	}
	if conv.ID, err = s.newID(); err != nil {
		return nil, thread.Link{}, fmt.Errorf("graph: fork: %w", err)
	}

	link := thread.Link{
		SourceID:      sourceID,
		TargetID:      conv.ID,
		Type:          thread.LinkFork,
		ForkMessageID: forkMessageID,
		CreatedAt:     now,
		Metadata:      thread.NewForkMetadata(preview(source.Messages[idx].Content)),
	}
	if link.ID, err = s.newID(); err != nil {
		return nil, thread.Link{}, fmt.Errorf("graph: fork: %w", err)
	}

	if err := s.persistPair(ctx, conv, link); err != nil {
		return conv, thread.Link{}, err
	}

	s.logger.Info("conversation forked",
		"source", sourceID,
		"fork", conv.ID,
		"at_message", forkMessageID,
		"messages", len(conv.Messages),
	)
	return conv, link, nil
}

// ContinueFrom creates a new conversation linked to the source by a
// continuation edge. With copyAll the new conversation starts with a full
// copy of the source's messages, otherwise it starts empty.
//
// Failure semantics match Fork: a link-write failure after the
// conversation write returns the conversation together with the error.
func (s *Service) ContinueFrom(ctx context.Context, sourceID string, meta NewConversationMeta, copyAll bool) (*thread.Conversation, thread.Link, error) {
	source, err := s.conversations.Get(ctx, sourceID)
	if err != nil {
		return nil, thread.Link{}, fmt.Errorf("graph: continuation source: %w", err)
	}

	title := meta.Title
	if title == "" {
		title = "Continuation of " + source.Title
	}

	now := s.now()
	conv := &thread.Conversation{
		Title:     title,
		Model:     source.Model,
		CreatedAt: now,
		UpdatedAt: now,
		ParentID:  sourceID,
	}
	if copyAll {
		conv.Messages = source.CloneMessages(len(source.Messages))
	}
	if conv.ID, err = s.newID(); err != nil {
		return nil, thread.Link{}, fmt.Errorf("graph: continuation: %w", err)
	}

	link := thread.Link{
		SourceID:  sourceID,
		TargetID:  conv.ID,
		Type:      thread.LinkContinuation,
		CreatedAt: now,
		Metadata:  thread.NewContinuationMetadata(meta.Reason),
	}
	if link.ID, err = s.newID(); err != nil {
		return nil, thread.Link{}, fmt.Errorf("graph: continuation: %w", err)
	}

	if err := s.persistPair(ctx, conv, link); err != nil {
		return conv, thread.Link{}, err
	}

	s.logger.Info("conversation continued",
		"source", sourceID,
		"continuation", conv.ID,
		"copied_messages", len(conv.Messages),
	)
	return conv, link, nil
}

// Reference creates an annotation link between two existing conversations.
// Both endpoints must exist. Reference edges bypass cycle prevention by
// design; only self-links are rejected.
func (s *Service) Reference(ctx context.Context, sourceID, targetID, reason string) (thread.Link, error) {
	if sourceID == targetID {
		return thread.Link{}, fmt.Errorf("graph: reference %s: %w", sourceID, ErrSelfLink)
	}

	if _, err := s.conversations.Get(ctx, sourceID); err != nil {
		return thread.Link{}, fmt.Errorf("graph: reference source: %w", err)
	}
	if _, err := s.conversations.Get(ctx, targetID); err != nil {
		return thread.Link{}, fmt.Errorf("graph: reference target: %w", err)
	}

	link := thread.Link{
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      thread.LinkReference,
		CreatedAt: s.now(),
		Metadata:  thread.NewReferenceMetadata(reason),
	}
	var err error
	if link.ID, err = s.newID(); err != nil {
		return thread.Link{}, fmt.Errorf("graph: reference: %w", err)
	}

	if err := s.links.Save(ctx, link); err != nil {
		return thread.Link{}, fmt.Errorf("graph: save reference link: %w", err)
	}

	s.logger.Info("reference created", "source", sourceID, "target", targetID)
	return link, nil
}

// DeleteLink removes the edge only; neither endpoint conversation is
// touched.
func (s *Service) DeleteLink(ctx context.Context, linkID string) error {
	if err := s.links.Delete(ctx, linkID); err != nil {
		return fmt.Errorf("graph: delete link %s: %w", linkID, err)
	}
	return nil
}

// Links returns the conversation's links grouped by direction.
func (s *Service) Links(ctx context.Context, conversationID string) (LinkSet, error) {
	outgoing, err := s.links.BySource(ctx, conversationID)
	if err != nil {
		return LinkSet{}, fmt.Errorf("graph: outgoing links: %w", err)
	}
	incoming, err := s.links.ByTarget(ctx, conversationID)
	if err != nil {
		return LinkSet{}, fmt.Errorf("graph: incoming links: %w", err)
	}
	return LinkSet{Outgoing: outgoing, Incoming: incoming}, nil
}

// LinkedConversations resolves the conversations adjacent to the given one.
// Links whose opposite endpoint no longer exists are skipped silently.
func (s *Service) LinkedConversations(ctx context.Context, conversationID string) (Neighbors, error) {
	set, err := s.Links(ctx, conversationID)
	if err != nil {
		return Neighbors{}, err
	}

	var neighbors Neighbors
	seen := make(map[string]struct{})

	add := func(dst *[]*thread.Conversation, id string) error {
		if _, dup := seen[id]; dup {
			return nil
		}
		conv, err := s.conversations.Get(ctx, id)
		if errors.Is(err, store.ErrConversationNotFound) {
			return nil // orphaned link, tolerated
		}
		if err != nil {
			return fmt.Errorf("graph: resolve neighbor %s: %w", id, err)
		}
		seen[id] = struct{}{}
		*dst = append(*dst, conv)
		return nil
	}

	for _, link := range set.Incoming {
		if !link.Type.IsParent() {
			continue
		}
		if err := add(&neighbors.Parents, link.SourceID); err != nil {
			return Neighbors{}, err
		}
	}
	for _, link := range set.Outgoing {
		if !link.Type.IsParent() {
			continue
		}
		if err := add(&neighbors.Children, link.TargetID); err != nil {
			return Neighbors{}, err
		}
	}
	for _, link := range append(append([]thread.Link(nil), set.Outgoing...), set.Incoming...) {
		if link.Type != thread.LinkReference {
			continue
		}
		other := link.TargetID
		if other == conversationID {
			other = link.SourceID
		}
		if err := add(&neighbors.Related, other); err != nil {
			return Neighbors{}, err
		}
	}

	return neighbors, nil
}

// persistPair writes the conversation and link, transactionally when the
// backend supports it.
func (s *Service) persistPair(ctx context.Context, conv *thread.Conversation, link thread.Link) error {
	if s.atomic != nil {
		if err := s.atomic.SaveConversationAndLink(ctx, conv, link); err != nil {
			return fmt.Errorf("graph: save conversation and link: %w", err)
		}
		return nil
	}

	if err := s.conversations.Save(ctx, conv); err != nil {
		return fmt.Errorf("graph: save conversation: %w", err)
	}
	if err := s.links.Save(ctx, link); err != nil {
		// The conversation is already persisted and stays valid on its
		// own. No automatic rollback; cleanup is the caller's call.
		s.logger.Error("link write failed after conversation write",
			"conversation", conv.ID,
			"link", link.ID,
			"error", err,
		)
		return fmt.Errorf("graph: save link: %w", err)
	}
	return nil
}

// preview returns the first forkPreviewLen bytes of text, cut on a rune
// boundary.
func preview(text string) string {
	if len(text) <= forkPreviewLen {
		return text
	}
	cut := forkPreviewLen
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}

// generateID produces a 32-character hex string from 16 random bytes.
func generateID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("graph: crypto/rand unavailable: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
