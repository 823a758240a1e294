package cleanup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jackzampolin/folio/internal/types"
)

// maxContext caps the verbatim context stored on a flag.
const maxContext = 240

// line is one line of a text, excluding its newline.
type line struct {
	types.Span
	text string
}

func (l line) blank() bool { return strings.TrimSpace(l.text) == "" }

func (l line) trimmed() string { return strings.TrimSpace(l.text) }

// foldLineEndings turns CRLF and lone CR into LF. Gutenberg .txt files are
// usually CRLF.
func foldLineEndings(text string) string {
	if !strings.ContainsRune(text, '\r') {
		return text
	}
	return strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
}

func splitLines(text string) []line {
	var lines []line
	start := 0
	for start <= len(text) {
		j := strings.IndexByte(text[start:], '\n')
		if j < 0 {
			if start < len(text) {
				lines = append(lines, line{Span: types.Span{Start: start, End: len(text)}, text: text[start:]})
			}
			break
		}
		lines = append(lines, line{Span: types.Span{Start: start, End: start + j}, text: text[start : start+j]})
		start += j + 1
	}
	return lines
}

// contextOf returns the text under span, cut at a rune boundary.
func contextOf(text string, span types.Span) string {
	if span.Start < 0 || span.End > len(text) || span.Start >= span.End {
		return ""
	}
	s := text[span.Start:span.End]
	if len(s) <= maxContext {
		return s
	}
	cut := maxContext
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// nonSpace counts the non-whitespace runes in s.
func nonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
