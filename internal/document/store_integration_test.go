//go:build integration

package document_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/document"
	"github.com/cloneai/cloneai/internal/log"
	"github.com/cloneai/cloneai/internal/testutil"
)

func TestStore_Lifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := document.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c, err := clones.Create(ctx, clone.CreateParams{OwnerID: "o", Name: "Ada"})
	if err != nil {
		t.Fatalf("seeding clone: %v", err)
	}

	d, err := store.Create(ctx, document.CreateParams{
		CloneID:     c.ID,
		Name:        "notes.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
		StoragePath: "clones/" + c.ID.String() + "/notes.pdf",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "notes.pdf" || got.SizeBytes != 1024 {
		t.Errorf("document = %+v, want the registered one", got)
	}

	docs, err := store.ListByClone(ctx, c.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByClone: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("got %d documents, want 1", len(docs))
	}

	if err := store.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, d.ID); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestStore_Create_EnforcesSizeLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := document.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c, err := clones.Create(ctx, clone.CreateParams{OwnerID: "o", Name: "Ada"})
	if err != nil {
		t.Fatalf("seeding clone: %v", err)
	}

	_, err = store.Create(ctx, document.CreateParams{
		CloneID:     c.ID,
		Name:        "huge.bin",
		ContentType: "application/octet-stream",
		SizeBytes:   document.MaxDocumentSize + 1,
		StoragePath: "x",
	})
	if err == nil {
		t.Error("Create accepted a document over the size limit")
	}
}

func TestStore_CascadeDeleteWithClone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clones := clone.NewStore(db.Pool, log.NewNop())
	store := document.NewStore(db.Pool, log.NewNop())
	ctx := context.Background()

	c, err := clones.Create(ctx, clone.CreateParams{OwnerID: "o", Name: "Ada"})
	if err != nil {
		t.Fatalf("seeding clone: %v", err)
	}
	d, err := store.Create(ctx, document.CreateParams{
		CloneID: c.ID, Name: "n", ContentType: "text/plain", SizeBytes: 1, StoragePath: "p",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := clones.Delete(ctx, c.ID); err != nil {
		t.Fatalf("deleting clone: %v", err)
	}
	if _, err := store.Get(ctx, d.ID); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Get after cascade = %v, want ErrNotFound", err)
	}
}

func TestStore_Delete_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := document.NewStore(db.Pool, log.NewNop())

	if err := store.Delete(context.Background(), uuid.New()); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Delete = %v, want ErrNotFound", err)
	}
}
