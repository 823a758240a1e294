package review

import (
	"fmt"
	"sort"

	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/types"
)

// Split is the chapter layout after promoting a boundary.
type Split struct {
	// Chapters is the full layout, sorted by start and numbered 1..n.
	Chapters []types.Chapter

	// Added is the new chapter starting at the promoted offset.
	Added types.Chapter

	// Changed holds existing chapters whose span or number moved.
	Changed []types.Chapter
}

// checkOffset rejects an override offset outside the flag span or inside a
// multibyte character.
func checkOffset(body []byte, span types.Span, at int) error {
	if !span.Contains(at) {
		return fmt.Errorf("%w: offset %d outside flag span %s", ErrInvalidResolution, at, span)
	}
	if at >= len(body) || !isRuneStart(body[at]) {
		return fmt.Errorf("%w: offset %d is not on a character boundary", ErrInvalidResolution, at)
	}
	return nil
}

// SplitChapters inserts a chapter boundary at offset at. When at falls inside
// a chapter, that chapter is cut exactly at at and the new chapter takes the
// remainder of its span. When at falls in a gap, the new chapter runs to the
// next chapter start or to the end of the body. Chapters are renumbered by
// start offset.
func SplitChapters(chapters []types.Chapter, at, bodySize int, title string, section types.SectionType) (*Split, error) {
	if at < 0 || at >= bodySize {
		return nil, fmt.Errorf("%w: offset %d outside body of %d bytes", ErrInvalidResolution, at, bodySize)
	}

	sorted := append([]types.Chapter(nil), chapters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Span.Start < sorted[j].Span.Start })

	added := types.Chapter{Title: title, SectionType: section, IsUserConfirmed: true}
	out := make([]types.Chapter, 0, len(sorted)+1)
	placed := false
	for _, ch := range sorted {
		switch {
		case ch.Span.Start == at:
			return nil, fmt.Errorf("%w: chapter %d already starts at offset %d", ErrInvalidResolution, ch.Number, at)
		case ch.Span.Contains(at):
			added.Span = types.Span{Start: at, End: ch.Span.End}
			ch.Span.End = at
			out = append(out, ch, added)
			placed = true
			continue
		case !placed && at < ch.Span.Start:
			added.Span = types.Span{Start: at, End: ch.Span.Start}
			out = append(out, added)
			placed = true
		}
		out = append(out, ch)
	}
	if !placed {
		added.Span = types.Span{Start: at, End: bodySize}
		out = append(out, added)
	}

	before := make(map[string]types.Chapter, len(chapters))
	for _, ch := range chapters {
		before[ch.ID] = ch
	}

	split := &Split{Chapters: out}
	for i := range out {
		out[i].Number = i + 1
		ch := out[i]
		if ch.ID == "" {
			split.Added = ch
			continue
		}
		if old := before[ch.ID]; old.Number != ch.Number || old.Span != ch.Span {
			split.Changed = append(split.Changed, ch)
		}
	}

	if err := revision.ValidateChapters(out, bodySize); err != nil {
		return nil, err
	}
	return split, nil
}
