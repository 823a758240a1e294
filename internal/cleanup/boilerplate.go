package cleanup

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackzampolin/folio/internal/types"
)

var (
	// ErrNoBoilerplateMarkers names the condition behind the flag raised when
	// a text carries neither license marker. It is never returned.
	ErrNoBoilerplateMarkers = errors.New("cleanup: no boilerplate markers found")

	// ErrEmptySource is returned when there is no text left to clean.
	ErrEmptySource = errors.New("cleanup: empty source text")
)

var (
	startMarker = regexp.MustCompile(`(?im)^[ \t]*\*{3}[ \t]*START OF\b.*\*{3}[ \t]*$`)
	endMarker   = regexp.MustCompile(`(?im)^[ \t]*\*{3}[ \t]*END OF\b.*\*{3}[ \t]*$`)
)

// RemoveBoilerplate keeps exactly the content between the START and END
// marker lines. With no markers the text is returned unchanged and a
// low-confidence flag is raised. With one marker only that side is trimmed.
// Flag spans are offsets into the returned text, which has LF line endings.
func RemoveBoilerplate(text string) (string, []types.Flag) {
	text = foldLineEndings(text)
	start := startMarker.FindStringIndex(text)

	searchFrom := 0
	if start != nil {
		searchFrom = start[1]
	}
	end := endMarker.FindStringIndex(text[searchFrom:])
	if end != nil {
		end[0] += searchFrom
		end[1] += searchFrom
	}

	switch {
	case start == nil && end == nil:
		return text, flagLine(text, firstLine(text),
			ErrNoBoilerplateMarkers.Error()+"; check front and back matter by hand")
	case start == nil:
		kept := text[:end[0]]
		return kept, flagLine(kept, firstLine(kept),
			"END marker found without a START marker; front matter was kept")
	case end == nil:
		kept := text[afterLine(text, start[1]):]
		return kept, flagLine(kept, lastLine(kept),
			"START marker found without an END marker; back matter was kept")
	default:
		return text[afterLine(text, start[1]):end[0]], nil
	}
}

// afterLine returns the offset just past the newline ending the line at i.
func afterLine(text string, i int) int {
	if j := strings.IndexByte(text[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(text)
}

func flagLine(text string, span types.Span, reason string) []types.Flag {
	if span.Len() == 0 {
		return nil
	}
	return []types.Flag{{
		Type:            types.FlagLowConfidence,
		Status:          types.FlagUnresolved,
		Span:            span,
		Context:         contextOf(text, span),
		SuggestedAction: reason,
	}}
}

// firstLine returns the span of the first non-blank line.
func firstLine(text string) types.Span {
	for _, l := range splitLines(text) {
		if !l.blank() {
			return l.Span
		}
	}
	return types.Span{}
}

// lastLine returns the span of the last non-blank line.
func lastLine(text string) types.Span {
	lines := splitLines(text)
	for i := len(lines) - 1; i >= 0; i-- {
		if !lines[i].blank() {
			return lines[i].Span
		}
	}
	return types.Span{}
}
