package defra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeNode answers GraphQL requests with reply and remembers the queries.
type fakeNode struct {
	mu      sync.Mutex
	queries []GQLRequest
	schemas []string
	health  int
	reply   func(q GQLRequest) (int, string)
}

func newFakeNode(t *testing.T, reply func(q GQLRequest) (int, string)) (*fakeNode, *Client) {
	t.Helper()
	n := &fakeNode{health: http.StatusOK, reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		switch r.URL.Path {
		case "/health-check":
			w.WriteHeader(n.health)
		case "/api/v0/schema":
			body, _ := io.ReadAll(r.Body)
			n.schemas = append(n.schemas, string(body))
			if strings.Contains(string(body), "broken") {
				http.Error(w, "parse error", http.StatusBadRequest)
			}
		case "/api/v0/graphql":
			var q GQLRequest
			if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			n.queries = append(n.queries, q)
			status, body := n.reply(q)
			w.WriteHeader(status)
			io.WriteString(w, body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return n, NewClient(srv.URL + "/")
}

func (n *fakeNode) last() GQLRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queries[len(n.queries)-1]
}

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"healthy", http.StatusOK, nil},
		{"starting", http.StatusServiceUnavailable, ErrUnhealthy},
		{"misrouted", http.StatusNotFound, ErrUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, c := newFakeNode(t, nil)
			n.mu.Lock()
			n.health = tt.status
			n.mu.Unlock()
			err := c.HealthCheck(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HealthCheck() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("cancelled", func(t *testing.T) {
		_, c := newFakeNode(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := c.HealthCheck(ctx); err == nil {
			t.Error("HealthCheck() with cancelled context should fail")
		}
	})
}

func TestClient_Execute(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		wantGQL   string
		wantCount int
	}{
		{
			name:      "documents",
			status:    http.StatusOK,
			body:      `{"data":{"Revision":[{"_docID":"r1","sequence":1},{"_docID":"r2","sequence":2},"junk"]}}`,
			wantCount: 2,
		},
		{
			name:    "graphql error stays in response",
			status:  http.StatusOK,
			body:    `{"errors":[{"message":"unknown field provenanse"}]}`,
			wantGQL: "unknown field provenanse",
		},
		{name: "server error", status: http.StatusBadGateway, body: "upstream", wantErr: true},
		{name: "empty body", status: http.StatusOK, body: "", wantErr: true},
		{name: "not json", status: http.StatusOK, body: "<html>", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, c := newFakeNode(t, func(GQLRequest) (int, string) { return tt.status, tt.body })
			vars := map[string]any{"book": "book-1"}
			resp, err := c.Execute(context.Background(), `query($book: String) { Revision(filter: {book_id: {_eq: $book}}) { _docID } }`, vars)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Execute() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if got := n.last().Variables["book"]; got != "book-1" {
				t.Errorf("variables not sent, got %v", got)
			}
			if resp.Error() != tt.wantGQL {
				t.Errorf("Error() = %q, want %q", resp.Error(), tt.wantGQL)
			}
			if got := len(resp.Docs("Revision")); got != tt.wantCount {
				t.Errorf("Docs() = %d, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestClient_AddSchema(t *testing.T) {
	n, c := newFakeNode(t, nil)
	ctx := context.Background()

	if err := c.AddSchema(ctx, "type Flag { revision_id: String @index }"); err != nil {
		t.Fatalf("AddSchema() error = %v", err)
	}
	n.mu.Lock()
	schemas := n.schemas
	n.mu.Unlock()
	if len(schemas) != 1 || !strings.Contains(schemas[0], "type Flag") {
		t.Errorf("schemas = %v", schemas)
	}
	if err := c.AddSchema(ctx, "broken {"); err == nil {
		t.Error("AddSchema() with rejected SDL should fail")
	}
}

func TestClient_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		n, c := newFakeNode(t, func(GQLRequest) (int, string) {
			return http.StatusOK, `{"data":{"create_Revision":[{"_docID":"bae-1"}]}}`
		})
		res, err := c.Create(ctx, "Revision", map[string]any{"book_id": "book-1", "sequence": 2, "is_ai_assisted": true})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if res.DocID != "bae-1" {
			t.Errorf("DocID = %q", res.DocID)
		}
		want := `mutation { create_Revision(input: {book_id: "book-1", is_ai_assisted: true, sequence: 2}) { _docID } }`
		if got := n.last().Query; got != want {
			t.Errorf("query = %s\nwant  %s", got, want)
		}
	})

	t.Run("create unique violation", func(t *testing.T) {
		_, c := newFakeNode(t, func(GQLRequest) (int, string) {
			return http.StatusOK, `{"errors":[{"message":"can not index a doc's field(s) that violates unique index"}]}`
		})
		_, err := c.Create(ctx, "ActiveJob", map[string]any{"book_id": "book-1"})
		if !errors.Is(err, ErrUniqueViolation) {
			t.Errorf("Create() error = %v, want ErrUniqueViolation", err)
		}
	})

	t.Run("create without document", func(t *testing.T) {
		_, c := newFakeNode(t, func(GQLRequest) (int, string) { return http.StatusOK, `{"data":{}}` })
		if _, err := c.Create(ctx, "Flag", map[string]any{"type": "ambiguous_punctuation"}); err == nil {
			t.Error("Create() with no document in response should fail")
		}
	})

	t.Run("update", func(t *testing.T) {
		n, c := newFakeNode(t, func(GQLRequest) (int, string) {
			return http.StatusOK, `{"data":{"update_CleanupJob":[{"_docID":"job-1"}]}}`
		})
		res, err := c.Update(ctx, "CleanupJob", "job-1", map[string]any{"stage": "unwrapping"})
		if err != nil || res.DocID != "job-1" {
			t.Fatalf("Update() = %+v, %v", res, err)
		}
		if q := n.last().Query; !strings.Contains(q, `update_CleanupJob(docID: "job-1", input: {stage: "unwrapping"})`) {
			t.Errorf("query = %s", q)
		}
	})

	t.Run("upsert", func(t *testing.T) {
		n, c := newFakeNode(t, func(GQLRequest) (int, string) {
			return http.StatusOK, `{"data":{"upsert_Setting":[{"_docID":"s-1"}]}}`
		})
		res, err := c.Upsert(ctx, "Setting",
			map[string]any{"name": map[string]any{"_eq": "cleanup.locale"}},
			map[string]any{"name": "cleanup.locale", "value": `"fr"`},
			map[string]any{"value": `"fr"`})
		if err != nil || res.DocID != "s-1" {
			t.Fatalf("Upsert() = %+v, %v", res, err)
		}
		if q := n.last().Query; !strings.Contains(q, `filter: {name: {_eq: "cleanup.locale"}}`) {
			t.Errorf("query = %s", q)
		}
	})

	t.Run("delete error", func(t *testing.T) {
		_, c := newFakeNode(t, func(GQLRequest) (int, string) {
			return http.StatusOK, `{"errors":[{"message":"document not found"}]}`
		})
		if err := c.Delete(ctx, "ActiveJob", "gone"); err == nil {
			t.Error("Delete() should surface the GraphQL error")
		}
	})
}

func TestValueToGraphQL(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"string", "CHAPTER I.", `"CHAPTER I."`},
		{"control chars use json escapes", "a\x07b", `"a\u0007b"`},
		{"quotes and newlines", "“Hi”\nthere", `"“Hi”\nthere"`},
		{"int", 42, "42"},
		{"int64", int64(7), "7"},
		{"float", 0.95, "0.95"},
		{"bool", false, "false"},
		{"string slice", []string{"a", "b"}, `["a", "b"]`},
		{"mixed slice", []any{1, "x", true}, `[1, "x", true]`},
		{"nested map sorted", map[string]any{"z": 1, "a": map[string]any{"_eq": "x"}}, `{a: {_eq: "x"}, z: 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := valueToGraphQL(tt.in)
			if err != nil {
				t.Fatalf("valueToGraphQL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewClient_TrimsSlash(t *testing.T) {
	if got := NewClient("http://localhost:9181/").URL(); got != "http://localhost:9181" {
		t.Errorf("URL() = %q", got)
	}
}
