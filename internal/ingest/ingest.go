// Package ingest captures a book's source text as an original.
//
// Plain Gutenberg text is stored as is apart from line endings. An ePub is
// read in spine order and normalized; the stored body is the annotated full
// text with one "## title" heading per spine document.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/epub"
	"github.com/jackzampolin/folio/internal/normalize"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/types"
)

// Source kinds.
const (
	KindText = "text"
	KindEPUB = "epub"
)

// ErrUnknownKind is returned for a source kind other than text or epub.
var ErrUnknownKind = errors.New("ingest: unknown source kind")

var zipMagic = []byte("PK\x03\x04")

// Request contains the parameters for capturing an original.
type Request struct {
	BookID string       // generated when empty
	Kind   string       // KindText, KindEPUB, or empty to detect from Data
	Data   []byte       // raw source bytes
	Title  string       // optional, taken from ePub metadata when empty
	Author string       // optional, taken from ePub metadata when empty
	Logger *slog.Logger // optional
}

// Result contains the stored original and the document it was built from.
type Result struct {
	BookID   string
	Original *revision.Original
	Document normalize.Document
}

// Source is a source text read into its stored form.
type Source struct {
	Kind     string
	Format   types.SourceFormat
	Title    string
	Author   string
	Document normalize.Document
}

// DetectKind reports KindEPUB for zip data and KindText otherwise.
func DetectKind(data []byte) string {
	if bytes.HasPrefix(data, zipMagic) {
		return KindEPUB
	}
	return KindText
}

// ReadFile reads a source file, detecting its kind from the contents.
func ReadFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src, err := Read(DetectKind(data), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if src.Title == "" {
		src.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return src, nil
}

// Read converts raw source bytes of the given kind.
func Read(kind string, data []byte) (*Source, error) {
	switch kind {
	case KindText:
		return ReadText(data), nil
	case KindEPUB:
		return ReadEPUB(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// ReadText treats a plain-text body as a single section.
func ReadText(data []byte) *Source {
	doc := normalize.BuildDocument([]normalize.Section{
		normalize.PlainTextSection("body", "", string(data)),
	})
	return &Source{
		Kind:     KindText,
		Format:   types.FormatGutenbergTxt,
		Document: doc,
	}
}

// ReadEPUB normalizes the spine documents of an ePub.
func ReadEPUB(data []byte) (*Source, error) {
	book, err := epub.Parse(data)
	if err != nil {
		return nil, err
	}
	sections := make([]normalize.Section, 0, len(book.Items))
	for _, item := range book.Items {
		sections = append(sections, normalize.Section{
			ID:     item.ID,
			Title:  item.Title,
			Markup: string(item.Content),
		})
	}
	return &Source{
		Kind:     KindEPUB,
		Format:   types.FormatMarkdown,
		Title:    book.Title,
		Author:   strings.Join(book.Authors, ", "),
		Document: normalize.BuildDocument(sections),
	}, nil
}

// Body returns the text stored for the source. Plain text keeps its body
// without the synthetic section heading.
func (s *Source) Body() string {
	if s.Kind == KindText && len(s.Document.Chapters) == 1 {
		return s.Document.Chapters[0].Text
	}
	return s.Document.FullText
}

// Ingest reads req.Data and stores it as a new original of req.BookID.
func Ingest(ctx context.Context, revs *revision.Service, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty source", revision.ErrInvalidInput)
	}

	kind := req.Kind
	if kind == "" {
		kind = DetectKind(req.Data)
	}
	src, err := Read(kind, req.Data)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) || errors.Is(err, epub.ErrInvalidEPub) || errors.Is(err, epub.ErrDRMProtected) {
			return nil, fmt.Errorf("%w: %v", revision.ErrInvalidInput, err)
		}
		return nil, err
	}
	for _, w := range src.Document.Warnings {
		log.Warn("section degraded to stripped text", "section", w.SectionID, "reason", w.Reason)
	}

	bookID := req.BookID
	if bookID == "" {
		bookID = uuid.New().String()
	}
	title, author := req.Title, req.Author
	if title == "" {
		title = src.Title
	}
	if author == "" {
		author = src.Author
	}

	orig, err := revs.CreateOriginal(ctx, revision.OriginalInput{
		BookID: bookID,
		Format: src.Format,
		Title:  title,
		Author: author,
		Body:   []byte(src.Body()),
	})
	if err != nil {
		return nil, err
	}
	log.Info("original captured", "book_id", bookID, "original_id", orig.ID,
		"format", src.Format, "sections", len(src.Document.Chapters), "size", orig.Size)

	return &Result{BookID: bookID, Original: orig, Document: src.Document}, nil
}
