// Package normalize turns reading-order source sections into annotated plain
// text.
//
// The annotation grammar is deliberately small: emphasis becomes *text*,
// small caps become {smallcaps:text}, everything else is reduced to its text
// content. Block elements are separated by one blank line.
package normalize

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMalformedSource marks sections whose markup could not be walked cleanly.
// The section still produces text; see Warning.
var ErrMalformedSource = errors.New("normalize: malformed source")

// maxTokenBytes bounds a single token. Anything larger is treated as
// unparseable and falls back to tag stripping.
const maxTokenBytes = 1 << 20

// blockTags separate paragraphs in the annotated output.
var blockTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.Blockquote: true,
	atom.Hr:         true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Pre:        true,
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Dd:         true,
	atom.Dt:         true,
}

// skipTags drop their content entirely.
var skipTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Head:   true,
	atom.Title:  true,
}

// emphasisTags render as *text*.
var emphasisTags = map[atom.Atom]bool{
	atom.Em:   true,
	atom.I:    true,
	atom.Cite: true,
}

var voidTags = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Param: true, atom.Source: true,
	atom.Track: true, atom.Wbr: true,
}

// frame is an open element. Markers are written lazily so empty elements
// leave no trace.
type frame struct {
	name   string
	open   string
	close  string
	opened bool
}

type annotator struct {
	buf          strings.Builder
	plain        strings.Builder // text tokens only, untrimmed
	sawMarkup    bool
	stack        []*frame
	skipDepth    int
	pendingBreak bool
	unbalanced   int
}

// Annotate converts markup to annotated text. It never fails: markup that
// cannot be walked is reduced to its stripped text. Input with no tags at all
// comes back with its whitespace intact. A decoded < or & that would read as
// markup again is written as &lt; or &amp;, so Annotate(Annotate(x)) ==
// Annotate(x).
func Annotate(markup string) string {
	text, _ := annotate(markup)
	return text
}

func annotate(markup string) (string, error) {
	a := &annotator{pendingBreak: true}
	z := html.NewTokenizer(strings.NewReader(markup))
	z.SetMaxBuf(maxTokenBytes)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return stripTags(markup), fmt.Errorf("%w: %v", ErrMalformedSource, err)
			}
			if !a.sawMarkup {
				out := a.plain.String()
				if strings.TrimSpace(out) == "" {
					return "", nil
				}
				return out, nil
			}
			a.closeAll()
			out := strings.TrimRight(a.buf.String(), " \t\r\n")
			if a.unbalanced > 0 {
				return out, fmt.Errorf("%w: %d unbalanced tags", ErrMalformedSource, a.unbalanced)
			}
			return out, nil

		case html.CommentToken, html.DoctypeToken:
			a.sawMarkup = true

		case html.StartTagToken, html.SelfClosingTagToken:
			a.sawMarkup = true
			name, hasAttr := z.TagName()
			tag := atom.Lookup(name)
			attrs := readAttrs(z, hasAttr)
			a.start(string(name), tag, attrs, tt == html.SelfClosingTagToken)

		case html.EndTagToken:
			a.sawMarkup = true
			name, _ := z.TagName()
			a.end(string(name), atom.Lookup(name))

		case html.TextToken:
			if a.skipDepth > 0 {
				continue
			}
			text := escapeText(string(z.Text()))
			a.plain.WriteString(text)
			a.text(text)
		}
	}
}

func (a *annotator) start(name string, tag atom.Atom, attrs map[string]string, selfClosing bool) {
	if skipTags[tag] {
		if !selfClosing {
			a.skipDepth++
		}
		return
	}
	if a.skipDepth > 0 {
		return
	}
	if blockTags[tag] {
		a.boundary()
	}
	if tag == atom.Br {
		if !a.pendingBreak {
			a.write("\n")
		}
		return
	}
	if selfClosing || voidTags[tag] {
		return
	}

	f := &frame{name: name}
	switch {
	case emphasisTags[tag]:
		f.open, f.close = "*", "*"
	case isSmallCaps(attrs):
		f.open, f.close = "{smallcaps:", "}"
	}
	a.stack = append(a.stack, f)
}

func (a *annotator) end(name string, tag atom.Atom) {
	if skipTags[tag] {
		if a.skipDepth > 0 {
			a.skipDepth--
		}
		return
	}
	if a.skipDepth > 0 {
		return
	}

	idx := -1
	for i := len(a.stack) - 1; i >= 0; i-- {
		if a.stack[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.unbalanced++
	} else {
		// Elements opened inside the one being closed were never closed themselves.
		a.unbalanced += len(a.stack) - 1 - idx
		for i := len(a.stack) - 1; i >= idx; i-- {
			a.closeFrame(a.stack[i])
		}
		a.stack = a.stack[:idx]
	}

	if blockTags[tag] {
		a.boundary()
	}
}

func (a *annotator) text(s string) {
	if a.pendingBreak {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			return
		}
	}
	a.write(s)
}

// write emits content, first flushing any pending paragraph break and any
// markers whose elements have not produced content yet.
func (a *annotator) write(s string) {
	if a.pendingBreak {
		if a.buf.Len() > 0 {
			a.buf.WriteString("\n\n")
		}
		a.pendingBreak = false
	}
	for _, f := range a.stack {
		if f.open != "" && !f.opened {
			a.buf.WriteString(f.open)
			f.opened = true
		}
	}
	a.buf.WriteString(s)
}

func (a *annotator) closeFrame(f *frame) {
	if f.opened {
		a.buf.WriteString(f.close)
	}
}

func (a *annotator) closeAll() {
	a.unbalanced += len(a.stack)
	for i := len(a.stack) - 1; i >= 0; i-- {
		a.closeFrame(a.stack[i])
	}
	a.stack = nil
}

// boundary ends the current paragraph. Trailing whitespace before a block
// edge is dropped; the separator is written only once more content arrives.
func (a *annotator) boundary() {
	if a.pendingBreak {
		return
	}
	trimmed := strings.TrimRight(a.buf.String(), " \t\r\n")
	if len(trimmed) != a.buf.Len() {
		a.buf.Reset()
		a.buf.WriteString(trimmed)
	}
	a.pendingBreak = true
}

func readAttrs(z *html.Tokenizer, hasAttr bool) map[string]string {
	if !hasAttr {
		return nil
	}
	attrs := make(map[string]string)
	for {
		key, val, more := z.TagAttr()
		attrs[string(key)] = string(val)
		if !more {
			return attrs
		}
	}
}

var smallCapsStyle = regexp.MustCompile(`(?i)font-variant\s*:\s*small-caps`)

func isSmallCaps(attrs map[string]string) bool {
	for _, class := range strings.Fields(attrs["class"]) {
		switch strings.ToLower(class) {
		case "smallcaps", "small-caps", "sc":
			return true
		}
	}
	return smallCapsStyle.MatchString(attrs["style"])
}

var (
	tagPattern         = regexp.MustCompile(`<[^>]*>`)
	trailingTagPattern = regexp.MustCompile(`<[^>]*$`)
)

// stripTags is the degrade path for markup the tokenizer cannot walk.
func stripTags(markup string) string {
	s := tagPattern.ReplaceAllString(markup, " ")
	s = trailingTagPattern.ReplaceAllString(s, "")
	return escapeText(strings.TrimSpace(html.UnescapeString(s)))
}

// escapeText re-escapes decoded text where the tokenizer would otherwise
// see markup: < before a letter, /, ! or ?, and & before a letter or #.
// Any other < or & is left as is.
func escapeText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		var next byte
		if i+1 < len(s) {
			next = s[i+1]
		}
		switch {
		case c == '<' && (isASCIILetter(next) || next == '/' || next == '!' || next == '?'):
			b.WriteString("&lt;")
		case c == '&' && (isASCIILetter(next) || next == '#'):
			b.WriteString("&amp;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
