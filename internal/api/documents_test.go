package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/cloneai/cloneai/internal/clone"
	"github.com/cloneai/cloneai/internal/document"
)

type fakeDocumentStore struct {
	docs map[uuid.UUID]*document.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[uuid.UUID]*document.Document)}
}

func (s *fakeDocumentStore) Create(_ context.Context, p document.CreateParams) (*document.Document, error) {
	d := &document.Document{
		ID:          uuid.New(),
		CloneID:     p.CloneID,
		Name:        p.Name,
		ContentType: p.ContentType,
		SizeBytes:   p.SizeBytes,
		StoragePath: p.StoragePath,
	}
	s.docs[d.ID] = d
	return d, nil
}

func (s *fakeDocumentStore) Get(_ context.Context, id uuid.UUID) (*document.Document, error) {
	d, ok := s.docs[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	return d, nil
}

func (s *fakeDocumentStore) ListByClone(_ context.Context, cloneID uuid.UUID, _, _ int32) ([]*document.Document, error) {
	var out []*document.Document
	for _, d := range s.docs {
		if d.CloneID == cloneID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeDocumentStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.docs[id]; !ok {
		return document.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func TestDocumentHandler_Create(t *testing.T) {
	c := &clone.Clone{ID: uuid.New(), OwnerID: "u1", Name: "Ada"}
	h := &documentHandler{store: newFakeDocumentStore(), clones: newFakeCloneStore(c), logger: testLogger()}

	rec := httptest.NewRecorder()
	h.create(rec, request(http.MethodPost, "/api/v1/clones/x/documents",
		`{"name":"notes.pdf","content_type":"application/pdf","size_bytes":2048,"storage_path":"clones/a/notes.pdf"}`, c.ID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rec.Code, rec.Body.String())
	}

	var resp documentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Name != "notes.pdf" || resp.SizeBytes != 2048 {
		t.Errorf("response = %+v, want the registered document", resp)
	}
}

func TestDocumentHandler_Create_Validation(t *testing.T) {
	c := &clone.Clone{ID: uuid.New(), OwnerID: "u1", Name: "Ada"}
	h := &documentHandler{store: newFakeDocumentStore(), clones: newFakeCloneStore(c), logger: testLogger()}

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"content_type":"text/plain","size_bytes":1,"storage_path":"p"}`},
		{"negative size", `{"name":"n","size_bytes":-1,"storage_path":"p"}`},
		{"over size limit", fmt.Sprintf(`{"name":"n","size_bytes":%d,"storage_path":"p"}`, document.MaxDocumentSize+1)},
		{"missing storage path", `{"name":"n","size_bytes":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.create(rec, request(http.MethodPost, "/api/v1/clones/x/documents", tt.body, c.ID))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDocumentHandler_Create_UnknownClone(t *testing.T) {
	h := &documentHandler{store: newFakeDocumentStore(), clones: newFakeCloneStore(), logger: testLogger()}

	rec := httptest.NewRecorder()
	h.create(rec, request(http.MethodPost, "/api/v1/clones/x/documents",
		`{"name":"n","size_bytes":1,"storage_path":"p"}`, uuid.New()))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDocumentHandler_Delete(t *testing.T) {
	c := &clone.Clone{ID: uuid.New(), OwnerID: "u1", Name: "Ada"}
	store := newFakeDocumentStore()
	d, err := store.Create(context.Background(), document.CreateParams{
		CloneID: c.ID, Name: "n", SizeBytes: 1, StoragePath: "p",
	})
	if err != nil {
		t.Fatalf("seeding document: %v", err)
	}
	h := &documentHandler{store: store, clones: newFakeCloneStore(c), logger: testLogger()}

	rec := httptest.NewRecorder()
	h.delete(rec, request(http.MethodDelete, "/api/v1/documents/x", "", d.ID))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(store.docs) != 0 {
		t.Error("document still present after delete")
	}
}
