package revision

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// Repository reads and writes revision-model records. Reads always sort
// in Go, never relying on store iteration order.
type Repository struct {
	store store.Store
}

// NewRepository wraps s.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

// Store returns the underlying record store.
func (r *Repository) Store() store.Store { return r.store }

func notFound(kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return err
}

// GetOriginal loads one original.
func (r *Repository) GetOriginal(ctx context.Context, id string) (*Original, error) {
	doc, err := store.GetByID(ctx, r.store, CollectionOriginal, id, originalFields...)
	if err != nil {
		return nil, notFound("original", id, err)
	}
	return originalFromDoc(doc), nil
}

// Originals lists a book's originals by sequence.
func (r *Repository) Originals(ctx context.Context, bookID string) ([]*Original, error) {
	docs, err := defra.NewQuery(CollectionOriginal).Filter("book_id", bookID).Fields(originalFields...).Execute(ctx, r.store)
	if err != nil {
		return nil, err
	}
	out := make([]*Original, 0, len(docs))
	for _, d := range docs {
		out = append(out, originalFromDoc(d))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// LatestOriginal returns the highest-sequence original of a book.
func (r *Repository) LatestOriginal(ctx context.Context, bookID string) (*Original, error) {
	originals, err := r.Originals(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if len(originals) == 0 {
		return nil, fmt.Errorf("original for book %s: %w", bookID, store.ErrNotFound)
	}
	return originals[len(originals)-1], nil
}

// GetRevision loads one revision.
func (r *Repository) GetRevision(ctx context.Context, id string) (*Revision, error) {
	doc, err := store.GetByID(ctx, r.store, CollectionRevision, id, revisionFields...)
	if err != nil {
		return nil, notFound("revision", id, err)
	}
	return revisionFromDoc(doc), nil
}

// Revisions lists a book's revisions by sequence.
func (r *Repository) Revisions(ctx context.Context, bookID string) ([]*Revision, error) {
	docs, err := defra.NewQuery(CollectionRevision).Filter("book_id", bookID).Fields(revisionFields...).Execute(ctx, r.store)
	if err != nil {
		return nil, err
	}
	out := make([]*Revision, 0, len(docs))
	for _, d := range docs {
		out = append(out, revisionFromDoc(d))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Chapters lists a revision's chapters by number.
func (r *Repository) Chapters(ctx context.Context, revisionID string) ([]types.Chapter, error) {
	docs, err := defra.NewQuery(CollectionChapter).Filter("revision_id", revisionID).Fields(chapterFields...).Execute(ctx, r.store)
	if err != nil {
		return nil, err
	}
	out := make([]types.Chapter, 0, len(docs))
	for _, d := range docs {
		out = append(out, chapterFromDoc(d))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Flags lists a revision's flags by (start, end, type).
func (r *Repository) Flags(ctx context.Context, revisionID string) ([]types.Flag, error) {
	docs, err := defra.NewQuery(CollectionFlag).Filter("revision_id", revisionID).Fields(flagFields...).Execute(ctx, r.store)
	if err != nil {
		return nil, err
	}
	out := make([]types.Flag, 0, len(docs))
	for _, d := range docs {
		out = append(out, flagFromDoc(d))
	}
	types.SortFlags(out)
	return out, nil
}

// GetFlag loads one flag.
func (r *Repository) GetFlag(ctx context.Context, id string) (types.Flag, error) {
	doc, err := store.GetByID(ctx, r.store, CollectionFlag, id, flagFields...)
	if err != nil {
		return types.Flag{}, notFound("flag", id, err)
	}
	return flagFromDoc(doc), nil
}

// CountUnresolved counts a revision's unresolved flags.
func (r *Repository) CountUnresolved(ctx context.Context, revisionID string) (int, error) {
	docs, err := defra.NewQuery(CollectionFlag).
		Filter("revision_id", revisionID).
		Filter("status", string(types.FlagUnresolved)).
		Execute(ctx, r.store)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Approvals lists a revision's approvals, oldest first.
func (r *Repository) Approvals(ctx context.Context, revisionID string) ([]types.Approval, error) {
	docs, err := defra.NewQuery(CollectionApproval).Filter("revision_id", revisionID).Fields(approvalFields...).Execute(ctx, r.store)
	if err != nil {
		return nil, err
	}
	out := make([]types.Approval, 0, len(docs))
	for _, d := range docs {
		out = append(out, approvalFromDoc(d))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LatestApproval returns the authoritative approval, or nil when none exists.
func (r *Repository) LatestApproval(ctx context.Context, revisionID string) (*types.Approval, error) {
	approvals, err := r.Approvals(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return nil, nil
	}
	latest := approvals[len(approvals)-1]
	return &latest, nil
}

// AttachOps builds the single batch that writes a revision's chapters and
// flags and marks it chapters_attached.
func AttachOps(revisionID string, chapters []types.Chapter, flags []types.Flag) []defra.WriteOp {
	ops := make([]defra.WriteOp, 0, len(chapters)+len(flags)+1)
	for _, ch := range chapters {
		ops = append(ops, defra.WriteOp{Collection: CollectionChapter, Document: ChapterDoc(revisionID, ch), Op: defra.OpCreate})
	}
	for _, f := range flags {
		ops = append(ops, defra.WriteOp{Collection: CollectionFlag, Document: FlagDoc(revisionID, f), Op: defra.OpCreate})
	}
	ops = append(ops, defra.WriteOp{
		Collection: CollectionRevision,
		DocID:      revisionID,
		Document:   map[string]any{"chapters_attached": true},
		Op:         defra.OpUpdate,
	})
	return ops
}
