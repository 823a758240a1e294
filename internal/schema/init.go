package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Adder applies SDL to a node. *defra.Client satisfies it.
type Adder interface {
	AddSchema(ctx context.Context, sdl string) error
}

// Initialize applies every schema in order. Collections the node already
// has are skipped, so it is safe on every start.
func Initialize(ctx context.Context, node Adder, logger *slog.Logger) error {
	schemas, err := All()
	if err != nil {
		return err
	}
	added := 0
	for _, s := range schemas {
		err := node.AddSchema(ctx, s.SDL)
		switch {
		case err == nil:
			added++
		case alreadyExists(err):
			logger.Debug("schema exists", "collection", s.Name)
		default:
			return fmt.Errorf("add schema %s: %w", s.Name, err)
		}
	}
	logger.Info("schemas ready", "added", added, "total", len(schemas))
	return nil
}

// DefraDB reports duplicates only in the response body.
func alreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}
