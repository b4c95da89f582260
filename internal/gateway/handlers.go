package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	ctxengine "github.com/flemzord/loom/internal/context"
	"github.com/flemzord/loom/internal/graph"
	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

// conversationJSON is a list-view conversation snapshot, without the
// message bodies.
type conversationJSON struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Model        string   `json:"model"`
	ParentID     string   `json:"parent_id,omitempty"`
	Archived     bool     `json:"archived"`
	Favorite     bool     `json:"favorite"`
	Tags         []string `json:"tags,omitempty"`
	MessageCount int      `json:"message_count"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func toConversationJSON(conv *thread.Conversation) conversationJSON {
	return conversationJSON{
		ID:           conv.ID,
		Title:        conv.Title,
		Model:        conv.Model,
		ParentID:     conv.ParentID,
		Archived:     conv.Archived,
		Favorite:     conv.Favorite,
		Tags:         conv.Tags,
		MessageCount: len(conv.Messages),
		CreatedAt:    conv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    conv.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// handleListConversations returns all conversations as list snapshots.
func (g *Gateway) handleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := g.deps.Conversations.List(r.Context())
		if err != nil {
			g.fail(w, err)
			return
		}
		out := make([]conversationJSON, 0, len(convs))
		for _, conv := range convs {
			out = append(out, toConversationJSON(conv))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetConversation returns one conversation with its messages.
func (g *Gateway) handleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := g.deps.Conversations.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// patchRequest is the body for PATCH /api/conversations/{id}.
type patchRequest struct {
	Title    *string  `json:"title"`
	Archived *bool    `json:"archived"`
	Favorite *bool    `json:"favorite"`
	Tags     []string `json:"tags"`
}

// handlePatchConversation applies a partial update (title, archived,
// favorite, tags).
func (g *Gateway) handlePatchConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		id := chi.URLParam(r, "id")
		err := g.deps.Conversations.Update(r.Context(), id, store.ConversationPatch{
			Title:    req.Title,
			Archived: req.Archived,
			Favorite: req.Favorite,
			Tags:     req.Tags,
		})
		if err != nil {
			g.fail(w, err)
			return
		}

		g.hub.Publish(Event{Type: EventConversationUpdated, ConversationID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDeleteConversation removes a conversation. Its links are not
// cascade-deleted; the janitor sweeps them.
func (g *Gateway) handleDeleteConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.deps.Conversations.Delete(r.Context(), id); err != nil {
			g.fail(w, err)
			return
		}
		g.hub.Publish(Event{Type: EventConversationDeleted, ConversationID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

// forkRequest is the body for POST /api/conversations/{id}/fork.
type forkRequest struct {
	MessageID string `json:"message_id"`
	Title     string `json:"title"`
}

// forkResponse carries the new conversation and its link.
type forkResponse struct {
	Conversation *thread.Conversation `json:"conversation"`
	Link         thread.Link          `json:"link"`
}

// handleFork forks a conversation at a message.
func (g *Gateway) handleFork() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		conv, link, err := g.deps.Graph.Fork(r.Context(), chi.URLParam(r, "id"), req.MessageID,
			graph.NewConversationMeta{Title: req.Title})
		if err != nil {
			g.fail(w, err)
			return
		}

		g.metrics.RecordFork()
		g.hub.Publish(Event{Type: EventLinkCreated, ConversationID: conv.ID, LinkID: link.ID})
		writeJSON(w, http.StatusCreated, forkResponse{Conversation: conv, Link: link})
	}
}

// continueRequest is the body for POST /api/conversations/{id}/continue.
type continueRequest struct {
	Title           string `json:"title"`
	Reason          string `json:"reason"`
	CopyAllMessages bool   `json:"copy_all_messages"`
}

// handleContinue creates a continuation conversation.
func (g *Gateway) handleContinue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req continueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		conv, link, err := g.deps.Graph.ContinueFrom(r.Context(), chi.URLParam(r, "id"),
			graph.NewConversationMeta{Title: req.Title, Reason: req.Reason}, req.CopyAllMessages)
		if err != nil {
			g.fail(w, err)
			return
		}

		g.metrics.RecordContinuation()
		g.hub.Publish(Event{Type: EventLinkCreated, ConversationID: conv.ID, LinkID: link.ID})
		writeJSON(w, http.StatusCreated, forkResponse{Conversation: conv, Link: link})
	}
}

// referenceRequest is the body for POST /api/links.
type referenceRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Reason   string `json:"reason"`
}

// handleReference creates a reference link between two conversations.
func (g *Gateway) handleReference() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req referenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		link, err := g.deps.Graph.Reference(r.Context(), req.SourceID, req.TargetID, req.Reason)
		if err != nil {
			g.fail(w, err)
			return
		}

		g.metrics.RecordReference()
		g.hub.Publish(Event{Type: EventLinkCreated, ConversationID: req.SourceID, LinkID: link.ID})
		writeJSON(w, http.StatusCreated, link)
	}
}

// handleDeleteLink removes an edge; endpoints are untouched.
func (g *Gateway) handleDeleteLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := g.deps.Graph.DeleteLink(r.Context(), id); err != nil {
			g.fail(w, err)
			return
		}
		g.metrics.RecordLinkDelete()
		g.hub.Publish(Event{Type: EventLinkDeleted, LinkID: id})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleLinks returns a conversation's links grouped by direction.
func (g *Gateway) handleLinks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := g.deps.Graph.Links(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}

// handleRelated returns the conversations adjacent to one conversation.
func (g *Gateway) handleRelated() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		neighbors, err := g.deps.Graph.LinkedConversations(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, neighbors)
	}
}

// handlePath returns the root-to-target parent chain, as list snapshots.
func (g *Gateway) handlePath() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := g.deps.Graph.Path(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, err)
			return
		}
		out := make([]conversationJSON, 0, len(path))
		for _, conv := range path {
			out = append(out, toConversationJSON(conv))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// graphJSON flattens a graph for transport: message bodies are dropped.
type graphJSON struct {
	Nodes map[string]graphNodeJSON `json:"nodes"`
	Roots []string                 `json:"roots"`
}

type graphNodeJSON struct {
	Conversation conversationJSON `json:"conversation"`
	Outgoing     []thread.Link    `json:"outgoing"`
	Incoming     []thread.Link    `json:"incoming"`
}

// handleGraph materializes the link graph: the connected component of
// {id} when mounted under a conversation, the whole store on /api/graph.
func (g *Gateway) handleGraph() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		built, err := g.deps.Graph.BuildGraph(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, err)
			return
		}

		out := graphJSON{Nodes: make(map[string]graphNodeJSON, len(built.Nodes)), Roots: built.Roots}
		if out.Roots == nil {
			out.Roots = []string{}
		}
		for id, node := range built.Nodes {
			out.Nodes[id] = graphNodeJSON{
				Conversation: toConversationJSON(node.Conversation),
				Outgoing:     node.Outgoing,
				Incoming:     node.Incoming,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// assembleRequest is the body for POST /api/conversations/{id}/context.
type assembleRequest struct {
	MaxTokens    int                       `json:"max_tokens"`
	Strategy     thread.TruncationStrategy `json:"strategy"`
	IncludeLinks []string                  `json:"include_links"`
}

// handleAssemble runs context assembly for a conversation.
func (g *Gateway) handleAssemble() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assembleRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		result, err := g.deps.Assembler.Assemble(r.Context(), chi.URLParam(r, "id"), ctxengine.AssembleOptions{
			MaxTokens:    req.MaxTokens,
			Strategy:     req.Strategy,
			IncludeLinks: req.IncludeLinks,
		})
		if err != nil {
			g.fail(w, err)
			return
		}

		g.metrics.RecordAssembly(result.TotalTokens, result.Truncated)
		writeJSON(w, http.StatusOK, result)
	}
}

// handleGetContextConfig returns the stored context config, or the
// defaults when none is stored.
func (g *Gateway) handleGetContextConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		cfg, err := g.deps.Configs.Get(r.Context(), id)
		if errors.Is(err, store.ErrConfigNotFound) {
			cfg = thread.DefaultContextConfig(id)
		} else if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// handlePutContextConfig stores the context config for a conversation.
func (g *Gateway) handlePutContextConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg thread.ContextConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		cfg.ConversationID = chi.URLParam(r, "id")
		if err := g.deps.Configs.Put(r.Context(), cfg.WithDefaults()); err != nil {
			g.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// fail maps domain errors to HTTP status codes and records the error.
func (g *Gateway) fail(w http.ResponseWriter, err error) {
	g.metrics.RecordError()

	switch {
	case errors.Is(err, store.ErrConversationNotFound),
		errors.Is(err, store.ErrLinkNotFound),
		errors.Is(err, graph.ErrForkMessageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, graph.ErrSelfLink):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		g.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
