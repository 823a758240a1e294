package defra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"defra doc id", "bae-0b5f7a1e-7a44-5b3b-9c1e-2f7d4b1c9e21", false},
		{"simple", "book_1", false},
		{"empty", "", true},
		{"quote", `abc"`, true},
		{"brace", "abc}", true},
		{"space", "a b", true},
		{"too long", strings.Repeat("a", 501), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidID) {
				t.Errorf("ValidateID(%q) error = %v, want ErrInvalidID", tt.id, err)
			}
		})
	}
}

func TestQueryBuilder_Build(t *testing.T) {
	query, vars := NewQuery("Chapter").
		Filter("revision_id", "rev-1").
		Filter("number", 2).
		Fields("number", "title").
		OrderBy("number", "ASC").
		Limit(10).
		Build()

	want := `query($v0: String, $v1: Int) { Chapter(filter: {revision_id: {_eq: $v0}, number: {_eq: $v1}}, order: {number: ASC}, limit: 10) { _docID number title } }`
	if query != want {
		t.Errorf("Build() query\n got: %s\nwant: %s", query, want)
	}
	if vars["v0"] != "rev-1" {
		t.Errorf("vars[v0] = %v, want rev-1", vars["v0"])
	}
	if vars["v1"] != 2 {
		t.Errorf("vars[v1] = %v, want 2", vars["v1"])
	}
}

func TestQueryBuilder_NoFilters(t *testing.T) {
	query, vars := NewQuery("Book").Build()
	if query != `{ Book { _docID } }` {
		t.Errorf("Build() = %s", query)
	}
	if len(vars) != 0 {
		t.Errorf("expected no vars, got %v", vars)
	}
}

func TestQueryBuilder_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Flag": [{"_docID": "f1", "status": "unresolved"}, "junk"]}}`))
	}))
	defer server.Close()

	docs, err := NewQuery("Flag").Filter("revision_id", "rev-1").Fields("status").
		Execute(context.Background(), NewClient(server.URL))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
	if docs[0]["status"] != "unresolved" {
		t.Errorf("status = %v, want unresolved", docs[0]["status"])
	}
}
