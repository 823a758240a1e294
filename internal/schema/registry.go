// Package schema holds the DefraDB collection definitions for folio records.
package schema

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Schema is one collection's GraphQL SDL.
type Schema struct {
	Name string
	SDL  string
}

// collections are applied in this order. Revision, Chapter, Flag and
// Approval reference earlier collections by id, so they follow Original.
var collections = []string{
	"Original",
	"Revision",
	"Chapter",
	"Flag",
	"Approval",
	"CleanupJob",
	"ActiveJob",
	"Setting",
}

// Names returns the collection names in apply order.
func Names() []string {
	return append([]string(nil), collections...)
}

// All loads every schema in apply order.
func All() ([]Schema, error) {
	out := make([]Schema, 0, len(collections))
	for _, name := range collections {
		s, err := load(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Get loads the schema for one collection.
func Get(name string) (*Schema, error) {
	for _, c := range collections {
		if c == name {
			s, err := load(name)
			if err != nil {
				return nil, err
			}
			return &s, nil
		}
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

func load(name string) (Schema, error) {
	sdl, err := schemaFS.ReadFile(fileFor(name))
	if err != nil {
		return Schema{}, fmt.Errorf("read schema %s: %w", name, err)
	}
	return Schema{Name: name, SDL: string(sdl)}, nil
}

func fileFor(name string) string {
	return "schemas/" + strings.ToLower(name) + ".graphql"
}
