package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/folio/internal/blob"
	"github.com/jackzampolin/folio/internal/revision"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

func newService() *revision.Service {
	ms := store.NewMemoryStore()
	ms.UniqueIndex(revision.CollectionOriginal, "book_seq")
	return revision.NewService(revision.Config{Store: ms, Blobs: blob.NewMemoryStore()})
}

func buildEPUB(t *testing.T) []byte {
	t.Helper()
	files := []struct{ name, body string }{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", `<container><rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles></container>`},
		{"content.opf", `<package xmlns="http://www.idpf.org/2007/opf">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Moby Dick</dc:title><dc:creator>Herman Melville</dc:creator></metadata>
<manifest>
  <item id="toc" href="nav.xhtml" properties="nav"/>
  <item id="c1" href="c1.xhtml"/>
  <item id="c2" href="c2.xhtml"/>
</manifest>
<spine><itemref idref="c1"/><itemref idref="c2"/></spine>
</package>`},
		{"nav.xhtml", `<nav><a href="c1.xhtml">Loomings</a><a href="c2.xhtml">The Carpet-Bag</a></nav>`},
		{"c1.xhtml", `<html><head><title>x</title></head><body><p>Call me <em>Ishmael</em>.</p><p>Some years ago.</p></body></html>`},
		{"c2.xhtml", `<p>I stuffed a shirt or two.</p>`},
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIngest_Text(t *testing.T) {
	ctx := context.Background()
	revs := newService()

	res, err := Ingest(ctx, revs, Request{BookID: "book-1", Data: []byte("\ufeffCHAPTER I\r\n\r\nIt was.\r\n"), Title: "Tale"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Original.Format != types.FormatGutenbergTxt || res.Original.Title != "Tale" {
		t.Errorf("original = %+v", res.Original.Original)
	}
	body, err := revs.OriginalBody(ctx, res.Original)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "CHAPTER I\n\nIt was.\n" {
		t.Errorf("body = %q", body)
	}

	// Same content again is a duplicate.
	_, err = Ingest(ctx, revs, Request{BookID: "book-1", Kind: KindText, Data: []byte("CHAPTER I\n\nIt was.\n")})
	if !errors.Is(err, revision.ErrDuplicateOriginal) {
		t.Errorf("second ingest error = %v, want ErrDuplicateOriginal", err)
	}
}

func TestIngest_EPUB(t *testing.T) {
	ctx := context.Background()
	revs := newService()

	res, err := Ingest(ctx, revs, Request{BookID: "book-1", Data: buildEPUB(t)})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	o := res.Original
	if o.Format != types.FormatMarkdown || o.Title != "Moby Dick" || o.Author != "Herman Melville" {
		t.Errorf("original = %+v", o.Original)
	}
	body, err := revs.OriginalBody(ctx, o)
	if err != nil {
		t.Fatal(err)
	}
	want := "## Loomings\n\nCall me *Ishmael*.\n\nSome years ago.\n\n## The Carpet-Bag\n\nI stuffed a shirt or two."
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
	if len(res.Document.Chapters) != 2 || res.Document.Chapters[1].SourceID != "c2" {
		t.Errorf("chapters = %+v", res.Document.Chapters)
	}
}

func TestIngest_Errors(t *testing.T) {
	ctx := context.Background()
	revs := newService()

	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{BookID: "book-1"}},
		{"unknown kind", Request{BookID: "book-1", Kind: "pdf", Data: []byte("x")}},
		{"broken epub", Request{BookID: "book-1", Kind: KindEPUB, Data: []byte("PK\x03\x04junk")}},
		{"bad book id", Request{BookID: "a b", Data: []byte("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Ingest(ctx, revs, tt.req); !errors.Is(err, revision.ErrInvalidInput) {
				t.Errorf("Ingest() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestIngest_GeneratesBookID(t *testing.T) {
	res, err := Ingest(context.Background(), newService(), Request{Data: []byte("text")})
	if err != nil {
		t.Fatal(err)
	}
	if res.BookID == "" || res.Original.BookID != res.BookID {
		t.Errorf("book id = %q, original book id = %q", res.BookID, res.Original.BookID)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "pride-and-prejudice.txt")
	if err := os.WriteFile(txt, []byte("It is a truth."), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := ReadFile(txt)
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind != KindText || src.Title != "pride-and-prejudice" || src.Body() != "It is a truth." {
		t.Errorf("source = %+v", src)
	}

	ep := filepath.Join(dir, "moby.epub")
	if err := os.WriteFile(ep, buildEPUB(t), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err = ReadFile(ep)
	if err != nil {
		t.Fatal(err)
	}
	if src.Kind != KindEPUB || src.Title != "Moby Dick" {
		t.Errorf("source = %+v", src)
	}
}
