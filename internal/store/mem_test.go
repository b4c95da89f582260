package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// Conversation store
// ---------------------------------------------------------------------------

func TestInMemoryConversationStore_SaveGet(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	ctx := context.Background()

	conv := &thread.Conversation{
		ID:    "c1",
		Title: "First",
		Messages: []thread.Message{
			{ID: "m1", Role: thread.RoleUser, Content: "hi"},
		},
	}
	if err := s.Save(ctx, conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "First" || len(got.Messages) != 1 {
		t.Errorf("Get = %+v", got)
	}
}

func TestInMemoryConversationStore_Get_NotFound(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrConversationNotFound) {
		t.Errorf("Get error = %v, want ErrConversationNotFound", err)
	}
}

func TestInMemoryConversationStore_CopyOnRead(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	ctx := context.Background()

	conv := &thread.Conversation{ID: "c1", Messages: []thread.Message{{ID: "m1", Content: "orig"}}}
	if err := s.Save(ctx, conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating a returned copy must not affect stored state.
	got, _ := s.Get(ctx, "c1")
	got.Messages[0].Content = "mutated"
	got.Title = "mutated"

	again, _ := s.Get(ctx, "c1")
	if again.Messages[0].Content != "orig" || again.Title != "" {
		t.Errorf("stored state mutated through returned copy: %+v", again)
	}

	// Mutating the saved pointer afterwards must not affect stored state.
	conv.Messages[0].Content = "mutated"
	again, _ = s.Get(ctx, "c1")
	if again.Messages[0].Content != "orig" {
		t.Error("stored state shares backing array with caller")
	}
}

func TestInMemoryConversationStore_Update(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	s.SetNow(fixedNow)
	ctx := context.Background()

	if err := s.Save(ctx, &thread.Conversation{ID: "c1", Title: "old", Tags: []string{"a"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	title := "new"
	fav := true
	err := s.Update(ctx, "c1", store.ConversationPatch{Title: &title, Favorite: &fav, Tags: []string{"x", "y"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ctx, "c1")
	if got.Title != "new" || !got.Favorite {
		t.Errorf("patch not applied: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "x" {
		t.Errorf("Tags = %v, want [x y]", got.Tags)
	}
	if !got.UpdatedAt.Equal(fixedNow()) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixedNow())
	}

	// Nil fields stay untouched.
	if err := s.Update(ctx, "c1", store.ConversationPatch{}); err != nil {
		t.Fatalf("empty Update: %v", err)
	}
	got, _ = s.Get(ctx, "c1")
	if got.Title != "new" || len(got.Tags) != 2 {
		t.Errorf("empty patch changed fields: %+v", got)
	}
}

func TestInMemoryConversationStore_Update_NotFound(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	err := s.Update(context.Background(), "missing", store.ConversationPatch{})
	if !errors.Is(err, store.ErrConversationNotFound) {
		t.Errorf("Update error = %v, want ErrConversationNotFound", err)
	}
}

func TestInMemoryConversationStore_AppendMessages(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	s.SetNow(fixedNow)
	ctx := context.Background()

	if err := s.Save(ctx, &thread.Conversation{ID: "c1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	err := s.AppendMessages(ctx, "c1",
		thread.Message{ID: "m1", Content: "one"},
		thread.Message{ID: "m2", Content: "two"},
	)
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	got, _ := s.Get(ctx, "c1")
	if len(got.Messages) != 2 || got.Messages[1].ID != "m2" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if !got.UpdatedAt.Equal(fixedNow()) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixedNow())
	}
}

func TestInMemoryConversationStore_List_Ordered(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	ctx := context.Background()

	base := fixedNow()
	_ = s.Save(ctx, &thread.Conversation{ID: "b", CreatedAt: base})
	_ = s.Save(ctx, &thread.Conversation{ID: "a", CreatedAt: base})
	_ = s.Save(ctx, &thread.Conversation{ID: "c", CreatedAt: base.Add(-time.Hour)})

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, conv := range got {
		ids = append(ids, conv.ID)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("List order = %v, want %v", ids, want)
		}
	}
}

func TestInMemoryConversationStore_Delete(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryConversationStore()
	ctx := context.Background()

	_ = s.Save(ctx, &thread.Conversation{ID: "c1"})
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
	if err := s.Delete(ctx, "c1"); !errors.Is(err, store.ErrConversationNotFound) {
		t.Errorf("second Delete error = %v, want ErrConversationNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Link store
// ---------------------------------------------------------------------------

func TestInMemoryLinkStore_SaveGetDelete(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryLinkStore()
	ctx := context.Background()

	link := thread.Link{ID: "l1", SourceID: "a", TargetID: "b", Type: thread.LinkFork}
	if err := s.Save(ctx, link); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "l1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SourceID != "a" || got.TargetID != "b" {
		t.Errorf("Get = %+v", got)
	}

	if err := s.Delete(ctx, "l1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "l1"); !errors.Is(err, store.ErrLinkNotFound) {
		t.Errorf("Get after Delete = %v, want ErrLinkNotFound", err)
	}
	if err := s.Delete(ctx, "l1"); !errors.Is(err, store.ErrLinkNotFound) {
		t.Errorf("second Delete = %v, want ErrLinkNotFound", err)
	}
}

func TestInMemoryLinkStore_DirectionalIndexes(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryLinkStore()
	ctx := context.Background()

	base := fixedNow()
	_ = s.Save(ctx, thread.Link{ID: "l1", SourceID: "a", TargetID: "b", CreatedAt: base})
	_ = s.Save(ctx, thread.Link{ID: "l2", SourceID: "a", TargetID: "c", CreatedAt: base.Add(time.Minute)})
	_ = s.Save(ctx, thread.Link{ID: "l3", SourceID: "c", TargetID: "a", CreatedAt: base.Add(2 * time.Minute)})

	bySource, err := s.BySource(ctx, "a")
	if err != nil {
		t.Fatalf("BySource: %v", err)
	}
	if len(bySource) != 2 || bySource[0].ID != "l1" || bySource[1].ID != "l2" {
		t.Errorf("BySource(a) = %+v", bySource)
	}

	byTarget, err := s.ByTarget(ctx, "a")
	if err != nil {
		t.Fatalf("ByTarget: %v", err)
	}
	if len(byTarget) != 1 || byTarget[0].ID != "l3" {
		t.Errorf("ByTarget(a) = %+v", byTarget)
	}

	both, err := s.ByConversation(ctx, "a")
	if err != nil {
		t.Fatalf("ByConversation: %v", err)
	}
	if len(both) != 3 {
		t.Errorf("ByConversation(a) len = %d, want 3", len(both))
	}
}

func TestInMemoryLinkStore_Save_Replace(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryLinkStore()
	ctx := context.Background()

	_ = s.Save(ctx, thread.Link{ID: "l1", SourceID: "a", TargetID: "b"})
	// Re-saving the same ID with a new endpoint must move the index entry.
	_ = s.Save(ctx, thread.Link{ID: "l1", SourceID: "x", TargetID: "b"})

	old, _ := s.BySource(ctx, "a")
	if len(old) != 0 {
		t.Errorf("stale index entry for old source: %+v", old)
	}
	moved, _ := s.BySource(ctx, "x")
	if len(moved) != 1 {
		t.Errorf("BySource(x) len = %d, want 1", len(moved))
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestInMemoryLinkStore_List_Ordered(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryLinkStore()
	ctx := context.Background()

	base := fixedNow()
	_ = s.Save(ctx, thread.Link{ID: "l2", CreatedAt: base})
	_ = s.Save(ctx, thread.Link{ID: "l1", CreatedAt: base})
	_ = s.Save(ctx, thread.Link{ID: "l3", CreatedAt: base.Add(-time.Minute)})

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"l3", "l1", "l2"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("List order = %v..., want %v", got[i].ID, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Context config store
// ---------------------------------------------------------------------------

func TestInMemoryContextConfigStore_PutGetDelete(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryContextConfigStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "c1"); !errors.Is(err, store.ErrConfigNotFound) {
		t.Errorf("Get before Put = %v, want ErrConfigNotFound", err)
	}

	cfg := thread.ContextConfig{
		ConversationID: "c1",
		Strategy:       thread.StrategyRecent,
		IncludedLinks:  []string{"l1"},
	}
	if err := s.Put(ctx, cfg); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Strategy != thread.StrategyRecent || len(got.IncludedLinks) != 1 {
		t.Errorf("Get = %+v", got)
	}

	// The returned slice is a copy.
	got.IncludedLinks[0] = "mutated"
	again, _ := s.Get(ctx, "c1")
	if again.IncludedLinks[0] != "l1" {
		t.Error("stored IncludedLinks mutated through returned copy")
	}

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "c1"); !errors.Is(err, store.ErrConfigNotFound) {
		t.Errorf("Get after Delete = %v, want ErrConfigNotFound", err)
	}
	// Deleting an absent config is a no-op.
	if err := s.Delete(ctx, "c1"); err != nil {
		t.Errorf("Delete of absent config = %v, want nil", err)
	}
}
