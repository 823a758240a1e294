package defra

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildBatchMutation(t *testing.T) {
	ops := []WriteOp{
		{Collection: "Chapter", Op: OpCreate, Document: map[string]any{"number": 1, "revision_id": "rev-1"}},
		{Collection: "Chapter", Op: OpUpdate, DocID: "ch-2", Document: map[string]any{"number": 3}},
		{Collection: "Flag", Op: OpDelete, DocID: "fl-1"},
	}

	got, err := buildBatchMutation(ops)
	if err != nil {
		t.Fatalf("buildBatchMutation() error = %v", err)
	}

	want := `mutation {` +
		` op0: create_Chapter(input: {number: 1, revision_id: "rev-1"}) { _docID }` +
		` op1: update_Chapter(docID: "ch-2", input: {number: 3}) { _docID }` +
		` op2: delete_Flag(docID: "fl-1") { _docID } }`
	if got != want {
		t.Errorf("buildBatchMutation()\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildBatchMutation_RejectsUnsafeID(t *testing.T) {
	_, err := buildBatchMutation([]WriteOp{
		{Collection: "Chapter", Op: OpUpdate, DocID: `x") { _docID } evil: delete_Book(docID: "y`, Document: map[string]any{}},
	})
	if err == nil {
		t.Fatal("expected error for unsafe docID")
	}
}

func TestClient_Batch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotQuery = req.Query
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"op0": [{"_docID": "bae-new"}], "op1": [{"_docID": "rev-1"}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	results, err := client.Batch(context.Background(), []WriteOp{
		{Collection: "Chapter", Op: OpCreate, Document: map[string]any{"number": 1}},
		{Collection: "Revision", Op: OpUpdate, DocID: "rev-1", Document: map[string]any{"chapters_attached": true}},
	})
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].DocID != "bae-new" {
		t.Errorf("results[0].DocID = %s, want bae-new", results[0].DocID)
	}
	if results[1].DocID != "rev-1" {
		t.Errorf("results[1].DocID = %s, want rev-1", results[1].DocID)
	}
	if strings.Count(gotQuery, "mutation") != 1 {
		t.Errorf("expected a single mutation document, got %s", gotQuery)
	}
}

func TestClient_Batch_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors": [{"message": "can not index a doc's field(s) that violates unique index"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Batch(context.Background(), []WriteOp{
		{Collection: "ActiveJob", Op: OpCreate, Document: map[string]any{"book_id": "b"}},
	})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("Batch() error = %v, want ErrUniqueViolation", err)
	}
}

func TestClient_Batch_Empty(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	results, err := client.Batch(context.Background(), nil)
	if err != nil || results != nil {
		t.Errorf("Batch(nil) = %v, %v; want nil, nil", results, err)
	}
}
