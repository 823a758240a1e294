package revision

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/types"
)

// ErrInvariantViolation marks chapter or flag layouts that can only come
// from a bug. It aborts whatever job produced them.
var ErrInvariantViolation = errors.New("revision: invariant violation")

// InvariantError describes one violated invariant.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariantViolation, e.Op, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

func violation(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// ValidateChapters checks that chapters are numbered 1..n in span order,
// that every span is non-empty and inside [0, bodySize), and that no two
// spans overlap. Gaps between chapters are legal.
func ValidateChapters(chapters []types.Chapter, bodySize int) error {
	if len(chapters) == 0 {
		return violation("chapters", "revision has no chapters")
	}
	sorted := append([]types.Chapter(nil), chapters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	for i, ch := range sorted {
		if ch.Number != i+1 {
			return violation("chapters", "numbering gap: expected chapter %d, found %d", i+1, ch.Number)
		}
		if !ch.Span.Within(bodySize) {
			return violation("chapters", "chapter %d span %s outside body of %d bytes", ch.Number, ch.Span, bodySize)
		}
		if _, err := types.ParseSectionType(string(ch.SectionType)); err != nil {
			return violation("chapters", "chapter %d: %v", ch.Number, err)
		}
		if i > 0 && sorted[i-1].Span.End > ch.Span.Start {
			return violation("chapters", "chapter %d span %s overlaps or precedes chapter %d span %s",
				ch.Number, ch.Span, sorted[i-1].Number, sorted[i-1].Span)
		}
	}
	return nil
}

// ValidateFlags checks that every flag span is non-empty, inside the
// body, and names a known type and status.
func ValidateFlags(flags []types.Flag, bodySize int) error {
	for i, f := range flags {
		if !f.Span.Within(bodySize) {
			return violation("flags", "flag %d span %s outside body of %d bytes", i, f.Span, bodySize)
		}
		if _, err := types.ParseFlagType(string(f.Type)); err != nil {
			return violation("flags", "flag %d: %v", i, err)
		}
		if f.Status != "" {
			if _, err := types.ParseFlagStatus(string(f.Status)); err != nil {
				return violation("flags", "flag %d: %v", i, err)
			}
		}
	}
	return nil
}

// LayoutViolation is a record whose large body is still stored inline.
type LayoutViolation struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Size       int    `json:"size"`
}

// CheckLayout reports originals and revisions of a book whose bodies exceed
// threshold but are stored inline rather than by blob reference.
func (s *Service) CheckLayout(ctx context.Context, bookID string, threshold int) ([]LayoutViolation, error) {
	if threshold <= 0 {
		threshold = blob.DefaultInlineThreshold
	}
	var out []LayoutViolation

	originals, err := s.repo.Originals(ctx, bookID)
	if err != nil {
		return nil, err
	}
	for _, o := range originals {
		if o.Body.IsInline() && o.Body.Size() > threshold {
			out = append(out, LayoutViolation{Collection: CollectionOriginal, ID: o.ID, Size: o.Body.Size()})
		}
	}

	revisions, err := s.repo.Revisions(ctx, bookID)
	if err != nil {
		return nil, err
	}
	for _, r := range revisions {
		if r.Body.IsInline() && r.Body.Size() > threshold {
			out = append(out, LayoutViolation{Collection: CollectionRevision, ID: r.ID, Size: r.Body.Size()})
		}
	}
	return out, nil
}
