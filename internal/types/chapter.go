// Package types provides the revision data model shared across packages.
// This package has no dependencies on other folio packages to avoid import cycles.
package types

import "fmt"

// SectionType classifies a chapter record.
type SectionType string

const (
	SectionChapter      SectionType = "chapter"
	SectionPreface      SectionType = "preface"
	SectionIntroduction SectionType = "introduction"
	SectionNotes        SectionType = "notes"
	SectionAppendix     SectionType = "appendix"
	SectionBody         SectionType = "body"
)

// ParseSectionType converts a string to a SectionType.
func ParseSectionType(s string) (SectionType, error) {
	switch t := SectionType(s); t {
	case SectionChapter, SectionPreface, SectionIntroduction, SectionNotes, SectionAppendix, SectionBody:
		return t, nil
	}
	return "", fmt.Errorf("unknown section type %q", s)
}

// Span is a half-open [Start, End) byte range into a revision body.
type Span struct {
	Start int `json:"start_offset"`
	End   int `json:"end_offset"`
}

// Len returns End-Start.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether off lies inside the span.
func (s Span) Contains(off int) bool { return off >= s.Start && off < s.End }

// Overlaps reports whether the two spans share any offset.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

// Within reports whether the span is non-empty and lies inside [0, size).
func (s Span) Within(size int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= size
}

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Chapter is a labeled span within one revision.
type Chapter struct {
	ID              string      `json:"id,omitempty"`
	RevisionID      string      `json:"revision_id,omitempty"`
	Number          int         `json:"number"`
	Title           string      `json:"title"`
	SectionType     SectionType `json:"section_type"`
	Span            Span        `json:"span"`
	DetectedHeading string      `json:"detected_heading,omitempty"`
	IsUserConfirmed bool        `json:"is_user_confirmed"`
}

// ChapterAt returns the number of the chapter containing off, or 0 when off
// falls in a gap.
func ChapterAt(chapters []Chapter, off int) int {
	for _, ch := range chapters {
		if ch.Span.Contains(off) {
			return ch.Number
		}
	}
	return 0
}
