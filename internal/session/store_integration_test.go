//go:build integration

package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/log"
	"github.com/cloneai/cloneai/internal/session"
	"github.com/cloneai/cloneai/internal/testutil"
)

func seedClone(t *testing.T, clones *clone.Store) *clone.Clone {
	t.Helper()
	c, err := clones.Create(context.Background(), clone.CreateParams{OwnerID: "o", Name: "Ada"})
	if err != nil {
		t.Fatalf("seeding clone: %v", err)
	}
	return c
}

func TestStore_SessionLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := session.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c := seedClone(t, clones)

	sess, err := store.Create(ctx, c.ID, "First chat")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "First chat" || got.MessageCount != 0 {
		t.Errorf("session = %+v, want empty session titled First chat", got)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestStore_MessageSequencing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := session.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c := seedClone(t, clones)
	sess, err := store.Create(ctx, c.ID, "chat")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	contents := []struct {
		role, content, source string
	}{
		{session.RoleUser, "who are you", ""},
		{session.RoleAssistant, "I am Ada.", session.SourceRAG},
		{session.RoleUser, "what did you write", ""},
		{session.RoleAssistant, "Notes on the Analytical Engine.", session.SourceFallback},
	}
	for _, m := range contents {
		if _, err := store.AddMessage(ctx, session.AddMessageParams{
			SessionID: sess.ID, Role: m.role, Content: m.content, Source: m.source,
		}); err != nil {
			t.Fatalf("AddMessage(%q): %v", m.content, err)
		}
	}

	msgs, err := store.Messages(ctx, sess.ID, 100, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	for i, m := range msgs {
		if m.SequenceNumber != i+1 {
			t.Errorf("message %d has sequence %d, want %d", i, m.SequenceNumber, i+1)
		}
	}
	if msgs[1].Source != session.SourceRAG || msgs[3].Source != session.SourceFallback {
		t.Errorf("assistant sources = %q/%q, want rag/llm_fallback", msgs[1].Source, msgs[3].Source)
	}
	if msgs[0].Source != "" {
		t.Errorf("user message source = %q, want empty", msgs[0].Source)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MessageCount != 4 {
		t.Errorf("MessageCount = %d, want 4", got.MessageCount)
	}
}

func TestStore_AddMessage_RejectsBadRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := session.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c := seedClone(t, clones)
	sess, err := store.Create(ctx, c.ID, "chat")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = store.AddMessage(ctx, session.AddMessageParams{
		SessionID: sess.ID, Role: "system", Content: "x",
	})
	if !errors.Is(err, session.ErrInvalidRole) {
		t.Errorf("AddMessage = %v, want ErrInvalidRole", err)
	}
}

func TestStore_DeleteCascadesMessages(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := session.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c := seedClone(t, clones)
	sess, err := store.Create(ctx, c.ID, "chat")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.AddMessage(ctx, session.AddMessageParams{
		SessionID: sess.ID, Role: session.RoleUser, Content: "hi",
	}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	msgs, err := store.Messages(ctx, sess.ID, 100, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after session delete, want 0", len(msgs))
	}
}

func TestStore_ListByClone_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := session.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c := seedClone(t, clones)
	first, err := store.Create(ctx, c.ID, "first")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, c.ID, "second"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Touch the first session; it should move to the top.
	if _, err := store.AddMessage(ctx, session.AddMessageParams{
		SessionID: first.ID, Role: session.RoleUser, Content: "hi",
	}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	sessions, err := store.ListByClone(ctx, c.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByClone: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].Title != "first" {
		t.Errorf("top session = %q, want the recently touched one", sessions[0].Title)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := session.NewStore(db.Pool, log.NewNop())

	if _, err := store.Get(context.Background(), uuid.New()); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}
