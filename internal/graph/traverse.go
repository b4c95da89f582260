package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

// Node is one conversation in a traversed graph together with its links.
type Node struct {
	Conversation *thread.Conversation `json:"conversation"`
	Outgoing     []thread.Link        `json:"outgoing"`
	Incoming     []thread.Link        `json:"incoming"`
}

// Graph is a materialized connected component (or the whole store).
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	// Roots lists node IDs with zero incoming links, sorted.
	Roots []string `json:"roots"`
}

// Walk visits the connected component containing rootID, treating every
// link as bidirectional so the full component is collected regardless of
// edge direction or reference cycles. Traversal is breadth-first with an
// explicit queue and visited set. The callback returning false stops the
// walk; abandoning a long traversal is just returning false early.
//
// An empty rootID walks every conversation in the store instead, with no
// connectivity requirement.
//
// Links whose opposite endpoint no longer exists are kept on the node but
// never followed.
func (s *Service) Walk(ctx context.Context, rootID string, fn func(*Node) bool) error {
	if rootID == "" {
		return s.walkAll(ctx, fn)
	}

	visited := map[string]struct{}{rootID: {}}
	queue := []string{rootID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		conv, err := s.conversations.Get(ctx, id)
		if errors.Is(err, store.ErrConversationNotFound) {
			continue // orphaned link endpoint
		}
		if err != nil {
			return fmt.Errorf("graph: walk %s: %w", id, err)
		}

		node, err := s.loadNode(ctx, conv)
		if err != nil {
			return err
		}

		for _, link := range node.Outgoing {
			if _, seen := visited[link.TargetID]; !seen {
				visited[link.TargetID] = struct{}{}
				queue = append(queue, link.TargetID)
			}
		}
		for _, link := range node.Incoming {
			if _, seen := visited[link.SourceID]; !seen {
				visited[link.SourceID] = struct{}{}
				queue = append(queue, link.SourceID)
			}
		}

		if !fn(node) {
			return nil
		}
	}
	return nil
}

// walkAll yields a node for every conversation in the store.
func (s *Service) walkAll(ctx context.Context, fn func(*Node) bool) error {
	convs, err := s.conversations.List(ctx)
	if err != nil {
		return fmt.Errorf("graph: list conversations: %w", err)
	}
	for _, conv := range convs {
		node, err := s.loadNode(ctx, conv)
		if err != nil {
			return err
		}
		if !fn(node) {
			return nil
		}
	}
	return nil
}

// BuildGraph materializes Walk into a node map plus the set of roots
// (nodes with no incoming links).
func (s *Service) BuildGraph(ctx context.Context, rootID string) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*Node)}

	err := s.Walk(ctx, rootID, func(node *Node) bool {
		g.Nodes[node.Conversation.ID] = node
		return true
	})
	if err != nil {
		return nil, err
	}

	for id, node := range g.Nodes {
		if len(node.Incoming) == 0 {
			g.Roots = append(g.Roots, id)
		}
	}
	sort.Strings(g.Roots)
	return g, nil
}

// Path reconstructs the parent chain of a conversation by walking incoming
// fork/continuation edges backward, returning a root-to-target ordered
// list. The list is empty when the conversation has no parent edge.
//
// When a conversation has several incoming parent-type edges the first
// candidate in store order (CreatedAt, then ID) wins; the data model does
// not enforce single parents. A visited guard stops on malformed cyclic
// parent data instead of looping.
func (s *Service) Path(ctx context.Context, conversationID string) ([]*thread.Conversation, error) {
	target, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("graph: path target: %w", err)
	}

	var parents []*thread.Conversation
	visited := map[string]struct{}{conversationID: {}}
	current := conversationID

	for {
		incoming, err := s.links.ByTarget(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("graph: path links of %s: %w", current, err)
		}

		parentID := ""
		for _, link := range incoming {
			if link.Type.IsParent() {
				parentID = link.SourceID
				break
			}
		}
		if parentID == "" {
			break
		}
		if _, seen := visited[parentID]; seen {
			s.logger.Warn("parent cycle in stored links, truncating path", "conversation", parentID)
			break
		}
		visited[parentID] = struct{}{}

		conv, err := s.conversations.Get(ctx, parentID)
		if errors.Is(err, store.ErrConversationNotFound) {
			break // orphaned parent link, chain ends here
		}
		if err != nil {
			return nil, fmt.Errorf("graph: path parent %s: %w", parentID, err)
		}

		parents = append(parents, conv)
		current = parentID
	}

	if len(parents) == 0 {
		return nil, nil
	}

	// parents is nearest-first; reverse into root-first order and close
	// with the target itself.
	path := make([]*thread.Conversation, 0, len(parents)+1)
	for i := len(parents) - 1; i >= 0; i-- {
		path = append(path, parents[i])
	}
	return append(path, target), nil
}

// WouldCreateCycle reports whether adding a parent-type edge
// sourceID -> targetID would close a cycle: it BFS-walks outgoing
// fork/continuation edges from targetID and checks whether sourceID is
// reachable. Reference edges are ignored; they are allowed to cycle.
//
// Callers must check this before persisting any new parent-type edge and
// reject the edge on true.
func (s *Service) WouldCreateCycle(ctx context.Context, sourceID, targetID string) (bool, error) {
	if sourceID == targetID {
		return true, nil
	}

	visited := map[string]struct{}{targetID: {}}
	queue := []string{targetID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		outgoing, err := s.links.BySource(ctx, id)
		if err != nil {
			return false, fmt.Errorf("graph: cycle check at %s: %w", id, err)
		}
		for _, link := range outgoing {
			if !link.Type.IsParent() {
				continue
			}
			if link.TargetID == sourceID {
				return true, nil
			}
			if _, seen := visited[link.TargetID]; !seen {
				visited[link.TargetID] = struct{}{}
				queue = append(queue, link.TargetID)
			}
		}
	}
	return false, nil
}

// loadNode assembles a Node for a loaded conversation.
func (s *Service) loadNode(ctx context.Context, conv *thread.Conversation) (*Node, error) {
	outgoing, err := s.links.BySource(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("graph: links of %s: %w", conv.ID, err)
	}
	incoming, err := s.links.ByTarget(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("graph: links of %s: %w", conv.ID, err)
	}
	return &Node{Conversation: conv, Outgoing: outgoing, Incoming: incoming}, nil
}
