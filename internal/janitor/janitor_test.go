package janitor_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/loom/internal/janitor"
	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJanitor(t *testing.T) (*janitor.Janitor, *store.InMemoryConversationStore, *store.InMemoryLinkStore, *store.InMemoryContextConfigStore) {
	t.Helper()

	conversations := store.NewInMemoryConversationStore()
	links := store.NewInMemoryLinkStore()
	configs := store.NewInMemoryContextConfigStore()
	j := janitor.New(janitor.Config{}, conversations, links, configs, testLogger())
	return j, conversations, links, configs
}

func TestJanitor_Sweep_RemovesOrphanedLinks(t *testing.T) {
	t.Parallel()

	j, conversations, links, _ := newJanitor(t)
	ctx := context.Background()

	_ = conversations.Save(ctx, &thread.Conversation{ID: "a"})
	_ = conversations.Save(ctx, &thread.Conversation{ID: "b"})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	_ = links.Save(ctx, thread.Link{ID: "alive", SourceID: "a", TargetID: "b", Type: thread.LinkReference, CreatedAt: base})
	_ = links.Save(ctx, thread.Link{ID: "dead-target", SourceID: "a", TargetID: "gone", Type: thread.LinkFork, CreatedAt: base})
	_ = links.Save(ctx, thread.Link{ID: "dead-source", SourceID: "gone", TargetID: "b", Type: thread.LinkReference, CreatedAt: base})

	report, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.LinksRemoved != 2 {
		t.Errorf("LinksRemoved = %d, want 2", report.LinksRemoved)
	}

	if _, err := links.Get(ctx, "alive"); err != nil {
		t.Errorf("healthy link removed: %v", err)
	}
	if _, err := links.Get(ctx, "dead-target"); err == nil {
		t.Error("orphaned link survived the sweep")
	}
}

func TestJanitor_Sweep_RemovesStaleConfigs(t *testing.T) {
	t.Parallel()

	j, conversations, links, configs := newJanitor(t)
	ctx := context.Background()

	_ = conversations.Save(ctx, &thread.Conversation{ID: "a"})
	_ = links.Save(ctx, thread.Link{ID: "l1", SourceID: "a", TargetID: "gone", Type: thread.LinkFork})
	_ = configs.Put(ctx, thread.ContextConfig{ConversationID: "gone"})
	_ = configs.Put(ctx, thread.ContextConfig{ConversationID: "a"})

	report, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.ConfigsRemoved != 1 {
		t.Errorf("ConfigsRemoved = %d, want 1", report.ConfigsRemoved)
	}

	if _, err := configs.Get(ctx, "a"); err != nil {
		t.Errorf("live config removed: %v", err)
	}
	if _, err := configs.Get(ctx, "gone"); err == nil {
		t.Error("stale config survived the sweep")
	}
}

func TestJanitor_Sweep_EmptyStore(t *testing.T) {
	t.Parallel()

	j, _, _, _ := newJanitor(t)
	report, err := j.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.LinksRemoved != 0 || report.ConfigsRemoved != 0 {
		t.Errorf("report = %+v, want zero", report)
	}
}

func TestJanitor_StartStop(t *testing.T) {
	t.Parallel()

	j, _, _, _ := newJanitor(t)
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestJanitor_Start_Disabled(t *testing.T) {
	t.Parallel()

	disabled := false
	conversations := store.NewInMemoryConversationStore()
	links := store.NewInMemoryLinkStore()
	configs := store.NewInMemoryContextConfigStore()
	j := janitor.New(janitor.Config{Enabled: &disabled}, conversations, links, configs, testLogger())

	if err := j.Start(); err != nil {
		t.Fatalf("Start disabled: %v", err)
	}
	if err := j.Stop(context.Background()); err != nil {
		t.Fatalf("Stop disabled: %v", err)
	}
}

func TestJanitor_Start_InvalidSchedule(t *testing.T) {
	t.Parallel()

	conversations := store.NewInMemoryConversationStore()
	links := store.NewInMemoryLinkStore()
	configs := store.NewInMemoryContextConfigStore()
	j := janitor.New(janitor.Config{Schedule: "not a schedule"}, conversations, links, configs, testLogger())

	if err := j.Start(); err == nil {
		_ = j.Stop(context.Background())
		t.Fatal("Start succeeded with an invalid schedule")
	}
}

func TestJanitorConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := janitor.Config{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config (defaults) rejected: %v", err)
	}

	cfg = janitor.Config{Schedule: "*/5 * * * *"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid schedule rejected: %v", err)
	}

	cfg = janitor.Config{Schedule: "every day"}
	if err := cfg.Validate(); err == nil {
		t.Error("invalid schedule accepted")
	}
}
