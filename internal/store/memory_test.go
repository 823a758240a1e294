package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/folio/internal/defra"
)

func TestMemoryStore_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	for _, n := range []int{2, 1, 3} {
		if _, err := m.Create(ctx, "Chapter", map[string]any{"revision_id": "rev-1", "number": n}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if _, err := m.Create(ctx, "Chapter", map[string]any{"revision_id": "rev-2", "number": 1}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	docs, err := defra.NewQuery("Chapter").Filter("revision_id", "rev-1").Fields("number").Execute(ctx, m)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len(docs) = %d, want 3", len(docs))
	}
	// docID order is creation order for auto IDs
	for i, want := range []int{2, 1, 3} {
		if got := Int(docs[i], "number"); got != want {
			t.Errorf("docs[%d].number = %d, want %d", i, got, want)
		}
	}
}

func TestMemoryStore_FilterIn(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.SetDoc("Flag", "f1", map[string]any{"status": "unresolved"})
	m.SetDoc("Flag", "f2", map[string]any{"status": "confirmed"})
	m.SetDoc("Flag", "f3", map[string]any{"status": "rejected"})

	docs, err := defra.NewQuery("Flag").FilterIn("status", []string{"confirmed", "rejected"}).Execute(ctx, m)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
}

func TestMemoryStore_GetByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.SetDoc("Revision", "rev-1", map[string]any{"seq": 1})

	doc, err := GetByID(ctx, m, "Revision", "rev-1", "seq")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if String(doc, "_docID") != "rev-1" {
		t.Errorf("_docID = %v, want rev-1", doc["_docID"])
	}

	if _, err := GetByID(ctx, m, "Revision", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_UniqueIndex(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.UniqueIndex("ActiveJob", "book_id")

	if _, err := m.Create(ctx, "ActiveJob", map[string]any{"book_id": "b1", "job_id": "j1"}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := m.Create(ctx, "ActiveJob", map[string]any{"book_id": "b1", "job_id": "j2"})
	if !errors.Is(err, defra.ErrUniqueViolation) {
		t.Fatalf("second Create() error = %v, want ErrUniqueViolation", err)
	}
	if _, err := m.Create(ctx, "ActiveJob", map[string]any{"book_id": "b2", "job_id": "j3"}); err != nil {
		t.Errorf("Create() for other book error = %v", err)
	}
}

func TestMemoryStore_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.SetDoc("Revision", "rev-1", map[string]any{"chapters_attached": false})

	_, err := m.Batch(ctx, []defra.WriteOp{
		{Collection: "Chapter", Op: defra.OpCreate, Document: map[string]any{"number": 1}},
		{Collection: "Revision", Op: defra.OpUpdate, DocID: "missing", Document: map[string]any{"chapters_attached": true}},
	})
	if err == nil {
		t.Fatal("expected batch error")
	}
	if m.Count("Chapter") != 0 {
		t.Errorf("Chapter count = %d after failed batch, want 0", m.Count("Chapter"))
	}

	results, err := m.Batch(ctx, []defra.WriteOp{
		{Collection: "Chapter", Op: defra.OpCreate, Document: map[string]any{"number": 1}},
		{Collection: "Revision", Op: defra.OpUpdate, DocID: "rev-1", Document: map[string]any{"chapters_attached": true}},
	})
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if results[0].DocID == "" {
		t.Error("expected generated DocID for create")
	}
	if !Bool(m.GetDoc("Revision", "rev-1"), "chapters_attached") {
		t.Error("revision update not applied")
	}
}

func TestMemoryStore_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	injected := errors.New("boom")

	t.Run("collection", func(t *testing.T) {
		m := NewMemoryStore()
		m.SetErrorOnCollection("Flag", injected)
		if _, err := m.Create(ctx, "Flag", map[string]any{}); !errors.Is(err, injected) {
			t.Errorf("Create() error = %v, want injected", err)
		}
		if _, err := m.Create(ctx, "Chapter", map[string]any{}); err != nil {
			t.Errorf("Create() on other collection error = %v", err)
		}
	})

	t.Run("after n writes", func(t *testing.T) {
		m := NewMemoryStore()
		m.SetErrorAfterNWrites(1)
		if _, err := m.Create(ctx, "Chapter", map[string]any{}); err != nil {
			t.Fatalf("first write error = %v", err)
		}
		if _, err := m.Create(ctx, "Chapter", map[string]any{}); err == nil {
			t.Error("expected injected error on second write")
		}
		m.ClearErrors()
		if _, err := m.Create(ctx, "Chapter", map[string]any{}); err != nil {
			t.Errorf("write after ClearErrors error = %v", err)
		}
	})
}

func TestFieldAccessors(t *testing.T) {
	doc := map[string]any{"a": "x", "n": float64(4), "m": 5, "b": true}
	if String(doc, "a") != "x" || String(doc, "missing") != "" {
		t.Error("String accessor mismatch")
	}
	if Int(doc, "n") != 4 || Int(doc, "m") != 5 || Int(doc, "a") != 0 {
		t.Error("Int accessor mismatch")
	}
	if !Bool(doc, "b") || Bool(doc, "a") {
		t.Error("Bool accessor mismatch")
	}
}
