package cleanup

import (
	"unicode/utf8"

	"github.com/jackzampolin/folio/internal/types"
)

// Verse detection: a run of at least verseMinLines lines, each shorter
// than verseMaxLine runes, keeps its line breaks.
const (
	verseMinLines = 3
	verseMaxLine  = 45
)

// Unwrap joins hard-wrapped lines within a paragraph by turning each
// joining newline into a space. Blank-line paragraph breaks, heading lines
// and the newlines around them are kept. The output has the same length
// as the input, so offsets carry over unchanged.
func Unwrap(text string, cfg Config) (string, []types.Flag, error) {
	rules, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return "", nil, err
	}

	out := []byte(text)
	var flags []types.Flag
	var run []line

	flush := func() {
		defer func() { run = run[:0] }()
		if len(run) < 2 {
			return
		}
		if isVerse(run) {
			span := types.Span{Start: run[0].Start, End: run[len(run)-1].End}
			flags = append(flags, types.Flag{
				Type:            types.FlagLowConfidence,
				Status:          types.FlagUnresolved,
				Span:            span,
				Context:         contextOf(text, span),
				SuggestedAction: "possible verse or table; line breaks were kept",
			})
			return
		}
		for _, l := range run[:len(run)-1] {
			out[l.End] = ' '
		}
	}

	for _, l := range splitLines(text) {
		if l.blank() {
			flush()
			continue
		}
		if _, ok := matchHeading(rules, l.trimmed()); ok {
			flush()
			continue
		}
		run = append(run, l)
	}
	flush()

	return string(out), flags, nil
}

func isVerse(run []line) bool {
	if len(run) < verseMinLines {
		return false
	}
	for _, l := range run {
		if utf8.RuneCountInString(l.trimmed()) >= verseMaxLine {
			return false
		}
	}
	return true
}
