package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/folio/internal/defra"
)

func TestAll(t *testing.T) {
	schemas, err := All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	names := Names()
	if len(schemas) != len(names) {
		t.Fatalf("got %d schemas, want %d", len(schemas), len(names))
	}
	for i, s := range schemas {
		if s.Name != names[i] {
			t.Errorf("schema %d = %s, want %s", i, s.Name, names[i])
		}
		if !strings.Contains(s.SDL, "type "+s.Name+" {") {
			t.Errorf("%s SDL doesn't declare type %s", s.Name, s.Name)
		}
	}
}

func TestUniqueIndexes(t *testing.T) {
	// Sequencing and the active job token rely on these.
	tests := []struct {
		name  string
		field string
	}{
		{"Original", "book_seq"},
		{"Revision", "book_seq"},
		{"ActiveJob", "book_id"},
		{"Setting", "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Get(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(s.SDL, tt.field+": String @index(unique: true)") {
				t.Errorf("%s.%s is not a unique index", tt.name, tt.field)
			}
		})
	}
}

func TestGet(t *testing.T) {
	t.Run("existing schema", func(t *testing.T) {
		s, err := Get("CleanupJob")
		if err != nil {
			t.Fatalf("Get(CleanupJob) error = %v", err)
		}
		if s.Name != "CleanupJob" {
			t.Errorf("expected name CleanupJob, got %s", s.Name)
		}
		if !strings.Contains(s.SDL, "checkpoint_stage") {
			t.Error("CleanupJob SDL has no checkpoint fields")
		}
	})

	t.Run("non-existent schema", func(t *testing.T) {
		_, err := Get("NonExistent")
		if err == nil {
			t.Error("expected error for non-existent schema")
		}
	})
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 8 || names[0] != "Original" || names[7] != "Setting" {
		t.Errorf("Names() = %v", names)
	}
	names[0] = "changed"
	if Names()[0] != "Original" {
		t.Error("Names() exposes the registry")
	}
}

// fakeNode records applied SDL and fails with err for collections in fail.
type fakeNode struct {
	applied []string
	fail    map[string]error
}

func (n *fakeNode) AddSchema(_ context.Context, sdl string) error {
	for name, err := range n.fail {
		if strings.Contains(sdl, "type "+name+" {") {
			return err
		}
	}
	n.applied = append(n.applied, sdl)
	return nil
}

func TestInitialize(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("applies in order", func(t *testing.T) {
		node := &fakeNode{}
		if err := Initialize(ctx, node, logger); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if len(node.applied) != len(Names()) {
			t.Fatalf("applied %d schemas", len(node.applied))
		}
		if !strings.Contains(node.applied[0], "type Original {") {
			t.Errorf("first schema applied = %s", node.applied[0])
		}
	})

	t.Run("existing collections are skipped", func(t *testing.T) {
		node := &fakeNode{fail: map[string]error{"Revision": errors.New("collection already exists. Name: Revision")}}
		if err := Initialize(ctx, node, logger); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if len(node.applied) != len(Names())-1 {
			t.Errorf("applied %d schemas", len(node.applied))
		}
	})

	t.Run("other errors stop", func(t *testing.T) {
		node := &fakeNode{fail: map[string]error{"Flag": errors.New("invalid schema syntax")}}
		err := Initialize(ctx, node, logger)
		if err == nil || !strings.Contains(err.Error(), "Flag") {
			t.Fatalf("Initialize() error = %v, want failure naming Flag", err)
		}
		if len(node.applied) != 3 {
			t.Errorf("applied %d schemas before failing, want 3", len(node.applied))
		}
	})

	t.Run("over http", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v0/schema" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
		}))
		defer server.Close()
		if err := Initialize(ctx, defra.NewClient(server.URL), logger); err != nil {
			t.Errorf("Initialize() error = %v", err)
		}
	})
}

func TestFileFor(t *testing.T) {
	if got := fileFor("CleanupJob"); got != "schemas/cleanupjob.graphql" {
		t.Errorf("fileFor() = %q", got)
	}
}
