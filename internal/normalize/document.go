package normalize

import (
	"strconv"
	"strings"
)

// Section is one reading-order unit of a book: an EPUB spine item, or a
// plain-text body when Plain is set.
type Section struct {
	ID     string
	Title  string
	Markup string
	Plain  bool
}

// Chapter is the annotated form of one section.
type Chapter struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Text     string `json:"annotated_text"`
}

// Warning records a section that degraded to stripped text or whose markup
// was unbalanced.
type Warning struct {
	SectionID string `json:"section_id"`
	Reason    string `json:"reason"`
}

// Document is the normalized form of a book.
type Document struct {
	Chapters []Chapter `json:"chapters"`
	FullText string    `json:"full_text"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// HeadingPrefix marks section headings in FullText.
const HeadingPrefix = "## "

// AnnotateSection annotates one section. Plain sections skip markup parsing.
func AnnotateSection(s Section) (string, *Warning) {
	if s.Plain {
		return PlainText(s.Markup), nil
	}
	text, err := annotate(s.Markup)
	if err != nil {
		return text, &Warning{SectionID: s.ID, Reason: err.Error()}
	}
	return text, nil
}

// BuildDocument annotates sections in input order. Every section yields a
// chapter, including empty ones, and FullText carries one heading per
// section in the same order.
func BuildDocument(sections []Section) Document {
	doc := Document{Chapters: make([]Chapter, 0, len(sections))}
	parts := make([]string, 0, len(sections))

	for i, s := range sections {
		text, warn := AnnotateSection(s)
		if warn != nil {
			doc.Warnings = append(doc.Warnings, *warn)
		}
		doc.Chapters = append(doc.Chapters, Chapter{SourceID: s.ID, Title: s.Title, Text: text})

		part := HeadingPrefix + headingTitle(s, i)
		if text != "" {
			part += "\n\n" + text
		}
		parts = append(parts, part)
	}

	doc.FullText = strings.Join(parts, "\n\n")
	return doc
}

// headingTitle keeps a heading on one line and never empty.
func headingTitle(s Section, i int) string {
	title := strings.Join(strings.Fields(s.Title), " ")
	if title != "" {
		return title
	}
	if s.ID != "" {
		return s.ID
	}
	return "Section " + strconv.Itoa(i+1)
}

// PlainText normalizes a plain-text body: strips a UTF-8 BOM and folds
// CRLF and lone CR to LF. Nothing else is touched.
func PlainText(body string) string {
	body = strings.TrimPrefix(body, "\ufeff")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\r", "\n")
}

// PlainTextSection wraps a plain-text body as a single section.
func PlainTextSection(id, title, body string) Section {
	return Section{ID: id, Title: title, Markup: body, Plain: true}
}
