package cleanup

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jackzampolin/folio/internal/types"
)

var (
	archaicForm    = regexp.MustCompile(`(?i)['’](?:tis|twas|twere|twill|gainst|em)|(?:ne|o|e)['’]er|e['’]en|th['’]|\p{L}+['’]d`)
	spacedEllipsis = regexp.MustCompile(`^\.(?: \.){2,}`)
)

// modernD lists words whose -'d form is an ordinary contraction.
var modernD = map[string]bool{
	"i": true, "you": true, "he": true, "she": true, "we": true, "they": true, "it": true,
	"who": true, "that": true, "there": true, "what": true, "where": true, "how": true, "why": true,
}

// NormalizePunctuation maps typographic variants to the canonical set:
// curly quotes to ASCII, hyphen variants to '-', "--" and U+2015 to an em
// dash, and every ellipsis form to "...". With PreserveArchaic, forms on the
// archaic allowlist are left verbatim and flagged ambiguous_punctuation.
// Replacement characters and stray control bytes are never rewritten; they
// raise ocr_corruption_detected. Flag spans are offsets into the output.
func NormalizePunctuation(text string, cfg Config) (string, OffsetMap, []types.Flag) {
	var protected []types.Span
	var flags []types.Flag

	if cfg.PreserveArchaic {
		for _, loc := range archaicForm.FindAllStringIndex(text, -1) {
			if !isArchaic(text, loc[0], loc[1]) {
				continue
			}
			span := types.Span{Start: loc[0], End: loc[1]}
			protected = append(protected, span)
			flags = append(flags, types.Flag{
				Type:            types.FlagAmbiguousPunct,
				Status:          types.FlagUnresolved,
				Span:            span,
				SuggestedAction: fmt.Sprintf("archaic form %q kept verbatim; confirm or normalize", text[loc[0]:loc[1]]),
			})
		}
	}

	rw := newRewriter(text)
	fr := cfg.Locale == LocaleFR
	next := 0 // index into protected
	corruptStart := -1

	endCorrupt := func(at int) {
		if corruptStart < 0 {
			return
		}
		flags = append(flags, types.Flag{
			Type:            types.FlagOCRCorruption,
			Status:          types.FlagUnresolved,
			Span:            types.Span{Start: corruptStart, End: at},
			SuggestedAction: "replacement or control characters; check against a page scan",
		})
		corruptStart = -1
	}

	for i := 0; i < len(text); {
		for next < len(protected) && protected[next].End <= i {
			next++
		}
		if next < len(protected) && i >= protected[next].Start {
			endCorrupt(i)
			i = protected[next].End
			next++
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		if isCorrupt(r) {
			if corruptStart < 0 {
				corruptStart = i
			}
			i += size
			continue
		}
		endCorrupt(i)

		switch {
		case r == '-':
			n := runLen(text[i:], '-')
			if n == 2 || n == 3 {
				rw.replace(i, i+n, "\u2014")
			}
			i += n
			continue
		case r == '.':
			if n := runLen(text[i:], '.'); n >= 4 {
				rw.replace(i, i+n, "...")
				i += n
				continue
			} else if n == 1 {
				if loc := spacedEllipsis.FindStringIndex(text[i:]); loc != nil {
					rw.replace(i, i+loc[1], "...")
					i += loc[1]
					continue
				}
			}
			i += runLen(text[i:], '.')
			continue
		}

		if with, ok := punctuationFor(r, fr); ok {
			rw.replace(i, i+size, with)
		}
		i += size
	}
	endCorrupt(len(text))

	out, m := rw.finish()
	for i := range flags {
		flags[i].Span = m.MapSpan(flags[i].Span)
		flags[i].Context = contextOf(out, flags[i].Span)
		if flags[i].Type == types.FlagOCRCorruption {
			flags[i].Context = lineAround(out, flags[i].Span)
		}
	}
	return out, m, flags
}

func punctuationFor(r rune, fr bool) (string, bool) {
	switch r {
	case '\u2018', '\u2019', '\u201a', '\u201b', '\u2032':
		return "'", true
	case '\u201c', '\u201d', '\u201e', '\u201f', '\u2033':
		return `"`, true
	case '\u2010', '\u2011', '\u2012', '\u2212':
		return "-", true
	case '\u2015':
		return "\u2014", true
	case '\u2026':
		return "...", true
	}
	if fr {
		return "", false
	}
	switch r {
	case '\u00ab', '\u00bb':
		return `"`, true
	case '\u2039', '\u203a':
		return "'", true
	case '\u00a0', '\u202f':
		return " ", true
	}
	return "", false
}

func isCorrupt(r rune) bool {
	if r == utf8.RuneError {
		return true
	}
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}

func isArchaic(text string, start, end int) bool {
	if before, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && unicode.IsLetter(before) {
		return false
	}
	if after, _ := utf8.DecodeRuneInString(text[end:]); end < len(text) && unicode.IsLetter(after) {
		return false
	}
	form := strings.ToLower(text[start:end])
	if strings.HasSuffix(form, "d") && !strings.HasPrefix(form, "'") && !strings.HasPrefix(form, "’") {
		word := strings.TrimRight(strings.TrimSuffix(form, "d"), "'’")
		if utf8.RuneCountInString(word) < 2 || modernD[word] {
			return false
		}
	}
	return true
}

func runLen(s string, b byte) int {
	n := 0
	for n < len(s) && s[n] == b {
		n++
	}
	return n
}

// lineAround returns the output line holding span.
func lineAround(text string, span types.Span) string {
	start := strings.LastIndexByte(text[:span.Start], '\n') + 1
	end := len(text)
	if j := strings.IndexByte(text[span.End:], '\n'); j >= 0 {
		end = span.End + j
	}
	return contextOf(text, types.Span{Start: start, End: end})
}
