// Package store defines the record store used by the revision, review and
// job packages. *defra.Client satisfies Store directly; MemoryStore backs
// unit tests.
package store

import (
	"context"
	"errors"

	"github.com/jackzampolin/folio/internal/defra"
)

// ErrNotFound is returned when a lookup by ID finds no document.
var ErrNotFound = errors.New("store: not found")

// Store is the document store collaborator.
//
// There are no transactions across calls. Batch is the only all-or-nothing
// write, so any step that must not leave partial state goes through it.
type Store interface {
	defra.Executor

	Create(ctx context.Context, collection string, input map[string]any) (defra.WriteResult, error)
	Update(ctx context.Context, collection, docID string, input map[string]any) (defra.WriteResult, error)
	Delete(ctx context.Context, collection, docID string) error
	Batch(ctx context.Context, ops []defra.WriteOp) ([]defra.WriteResult, error)
}

var _ Store = (*defra.Client)(nil)

// FindOne runs q and returns the first document, or ErrNotFound.
func FindOne(ctx context.Context, s Store, q *defra.QueryBuilder) (map[string]any, error) {
	docs, err := q.Limit(1).Execute(ctx, s)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// GetByID fetches one document by _docID.
func GetByID(ctx context.Context, s Store, collection, docID string, fields ...string) (map[string]any, error) {
	if err := defra.ValidateID(docID); err != nil {
		return nil, err
	}
	return FindOne(ctx, s, defra.NewQuery(collection).Filter("_docID", docID).Fields(fields...))
}
