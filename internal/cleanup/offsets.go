package cleanup

import (
	"sort"
	"strings"

	"github.com/jackzampolin/folio/internal/types"
)

// edit records that input bytes [oldStart, oldEnd) became output bytes
// [newStart, newEnd).
type edit struct {
	oldStart, oldEnd int
	newStart, newEnd int
}

// OffsetMap translates offsets in a stage's input to offsets in its output.
// The zero value is the identity.
type OffsetMap struct {
	edits []edit
}

// Map translates a start offset. An offset inside a replaced run maps to
// the start of its replacement.
func (m OffsetMap) Map(off int) int {
	i := sort.Search(len(m.edits), func(i int) bool { return m.edits[i].oldStart > off }) - 1
	if i < 0 {
		return off
	}
	e := m.edits[i]
	if off < e.oldEnd {
		return e.newStart
	}
	return off - e.oldEnd + e.newEnd
}

// mapEnd translates an exclusive end offset. An end inside a replaced run
// maps to the end of its replacement.
func (m OffsetMap) mapEnd(off int) int {
	i := sort.Search(len(m.edits), func(i int) bool { return m.edits[i].oldStart >= off }) - 1
	if i < 0 {
		return off
	}
	e := m.edits[i]
	if off <= e.oldEnd {
		return e.newEnd
	}
	return off - e.oldEnd + e.newEnd
}

// MapSpan translates a half-open span.
func (m OffsetMap) MapSpan(s types.Span) types.Span {
	return types.Span{Start: m.Map(s.Start), End: m.mapEnd(s.End)}
}

// Identity reports whether the map changes no offsets.
func (m OffsetMap) Identity() bool {
	for _, e := range m.edits {
		if e.oldEnd-e.oldStart != e.newEnd-e.newStart {
			return false
		}
	}
	return true
}

// rewriter copies src to an output buffer, replacing selected byte ranges
// and recording each replacement. Replacements must be made in ascending,
// non-overlapping order.
type rewriter struct {
	src   string
	out   strings.Builder
	pos   int
	edits []edit
}

func newRewriter(src string) *rewriter {
	r := &rewriter{src: src}
	r.out.Grow(len(src))
	return r
}

func (r *rewriter) replace(start, end int, with string) {
	r.out.WriteString(r.src[r.pos:start])
	newStart := r.out.Len()
	r.out.WriteString(with)
	r.pos = end
	if with == r.src[start:end] {
		return
	}
	r.edits = append(r.edits, edit{oldStart: start, oldEnd: end, newStart: newStart, newEnd: r.out.Len()})
}

// finish copies the remaining input and returns the output with its map.
func (r *rewriter) finish() (string, OffsetMap) {
	r.out.WriteString(r.src[r.pos:])
	r.pos = len(r.src)
	return r.out.String(), OffsetMap{edits: r.edits}
}
