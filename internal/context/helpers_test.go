package ctxengine_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	ctxengine "github.com/flemzord/loom/internal/context"
	"github.com/flemzord/loom/internal/graph"
	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/internal/token"
	"github.com/flemzord/loom/pkg/thread"
)

var testBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func estimatorForTest() token.Estimator {
	return token.NewHeuristicEstimator()
}

type fixture struct {
	conversations *store.InMemoryConversationStore
	links         *store.InMemoryLinkStore
	configs       *store.InMemoryContextConfigStore
	graph         *graph.Service
	assembler     *ctxengine.Assembler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		conversations: store.NewInMemoryConversationStore(),
		links:         store.NewInMemoryLinkStore(),
		configs:       store.NewInMemoryContextConfigStore(),
	}
	f.graph = graph.NewService(f.conversations, f.links, testLogger())
	f.assembler = ctxengine.NewAssembler(f.graph, f.conversations, f.configs, token.NewHeuristicEstimator(), testLogger())
	f.assembler.SetNow(func() time.Time { return testBase.Add(24 * time.Hour) })
	return f
}

func (f *fixture) saveConv(t *testing.T, conv *thread.Conversation) {
	t.Helper()
	if err := f.conversations.Save(context.Background(), conv); err != nil {
		t.Fatalf("seed conversation %s: %v", conv.ID, err)
	}
}

func (f *fixture) saveLink(t *testing.T, link thread.Link) {
	t.Helper()
	if err := f.links.Save(context.Background(), link); err != nil {
		t.Fatalf("seed link %s: %v", link.ID, err)
	}
}

func (f *fixture) putConfig(t *testing.T, cfg thread.ContextConfig) {
	t.Helper()
	if err := f.configs.Put(context.Background(), cfg); err != nil {
		t.Fatalf("seed config: %v", cfg)
	}
}

// bigMsg costs 82 tokens: content estimates to 78, plus message overhead.
func bigMsg(id string, ts time.Time) thread.Message {
	return thread.Message{
		ID:        id,
		Role:      thread.RoleUser,
		Content:   strings.Repeat("word ", 60),
		Timestamp: ts,
	}
}

// smallMsg costs 6 tokens: content estimates to 2, plus message overhead.
func smallMsg(id string, ts time.Time) thread.Message {
	return thread.Message{
		ID:        id,
		Role:      thread.RoleUser,
		Content:   "word",
		Timestamp: ts,
	}
}

func messageIDs(msgs []thread.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func hasMessage(msgs []thread.Message, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

func assertChronological(t *testing.T, msgs []thread.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("messages out of order at %d: %v after %v", i, msgs[i].Timestamp, msgs[i-1].Timestamp)
		}
	}
}
