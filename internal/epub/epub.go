// Package epub reads the reading order of an ePub 2 or ePub 3 archive.
//
// Only what the normalizer needs is extracted: Dublin Core title and
// creators, and the spine documents with their table-of-contents titles.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrInvalidEPub means the archive has no usable container or package document.
	ErrInvalidEPub = errors.New("epub: invalid ePub file")

	// ErrDRMProtected means spine content is encrypted.
	ErrDRMProtected = errors.New("epub: file is DRM protected")
)

// maxEntrySize bounds a single decompressed archive entry.
const maxEntrySize = 64 << 20

const (
	containerPath  = "META-INF/container.xml"
	encryptionPath = "META-INF/encryption.xml"
	opfMediaType   = "application/oebps-package+xml"
)

// Font obfuscation is not DRM; these algorithms are allowed.
var fontObfuscation = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

// Item is one spine document.
type Item struct {
	ID      string
	Href    string // archive path
	Title   string // from the table of contents, may be empty
	Linear  bool
	Content []byte
}

// Book is the parsed reading order of an archive.
type Book struct {
	Title   string
	Authors []string
	Items   []Item
}

// Open reads the ePub at path.
func Open(p string) (*Book, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return Read(f, info.Size())
}

// Parse reads an ePub held in memory.
func Parse(data []byte) (*Book, error) {
	return Read(bytes.NewReader(data), int64(len(data)))
}

// Read reads an ePub from r.
func Read(r io.ReaderAt, size int64) (*Book, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", ErrInvalidEPub, err)
	}
	a := &archive{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		a.files[strings.ToLower(f.Name)] = f
	}

	if err := a.checkDRM(); err != nil {
		return nil, err
	}
	opfPath, err := a.rootFile(zr)
	if err != nil {
		return nil, err
	}
	data, err := a.read(opfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: package document %s: %v", ErrInvalidEPub, opfPath, err)
	}
	var pkg opfPackage
	if err := xml.Unmarshal(stripBOM(data), &pkg); err != nil {
		return nil, fmt.Errorf("%w: parse package document: %v", ErrInvalidEPub, err)
	}
	return a.book(&pkg, path.Dir(opfPath))
}

type archive struct {
	files map[string]*zip.File
}

func (a *archive) read(name string) ([]byte, error) {
	f, ok := a.files[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%s: not in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("%s: entry larger than %d bytes", name, maxEntrySize)
	}
	return data, nil
}

func (a *archive) has(name string) bool {
	_, ok := a.files[strings.ToLower(name)]
	return ok
}

type containerXML struct {
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// rootFile finds the package document, falling back to the first .opf entry
// when container.xml is missing.
func (a *archive) rootFile(zr *zip.Reader) (string, error) {
	if a.has(containerPath) {
		data, err := a.read(containerPath)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidEPub, err)
		}
		var c containerXML
		if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
			return "", fmt.Errorf("%w: parse container.xml: %v", ErrInvalidEPub, err)
		}
		var fallback string
		for _, rf := range c.RootFiles {
			p := strings.TrimSpace(rf.FullPath)
			if p == "" {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(rf.MediaType), opfMediaType) {
				return p, nil
			}
			if fallback == "" {
				fallback = p
			}
		}
		if fallback != "" {
			return fallback, nil
		}
		return "", fmt.Errorf("%w: container.xml has no rootfile", ErrInvalidEPub)
	}
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no package document", ErrInvalidEPub)
}

type encryptionXML struct {
	Data []struct {
		Method struct {
			Algorithm string `xml:"Algorithm,attr"`
		} `xml:"EncryptionMethod"`
	} `xml:"EncryptedData"`
}

func (a *archive) checkDRM() error {
	if !a.has(encryptionPath) {
		return nil
	}
	data, err := a.read(encryptionPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEPub, err)
	}
	var enc encryptionXML
	if err := xml.Unmarshal(stripBOM(data), &enc); err != nil {
		return fmt.Errorf("%w: parse encryption.xml: %v", ErrInvalidEPub, err)
	}
	for _, d := range enc.Data {
		if !fontObfuscation[strings.TrimSpace(d.Method.Algorithm)] {
			return ErrDRMProtected
		}
	}
	return nil
}

type opfPackage struct {
	Metadata struct {
		Titles   []string `xml:"http://purl.org/dc/elements/1.1/ title"`
		Creators []string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

func (a *archive) book(pkg *opfPackage, dir string) (*Book, error) {
	b := &Book{}
	for _, t := range pkg.Metadata.Titles {
		if t = strings.TrimSpace(t); t != "" {
			b.Title = t
			break
		}
	}
	for _, c := range pkg.Metadata.Creators {
		if c = strings.TrimSpace(c); c != "" {
			b.Authors = append(b.Authors, c)
		}
	}

	hrefs := make(map[string]string, len(pkg.Manifest.Items))
	var navHref, ncxHref string
	for _, it := range pkg.Manifest.Items {
		href := resolve(dir, it.Href)
		hrefs[it.ID] = href
		if hasToken(it.Properties, "nav") {
			navHref = href
		}
		if (pkg.Spine.Toc != "" && it.ID == pkg.Spine.Toc) || it.MediaType == "application/x-dtbncx+xml" {
			ncxHref = href
		}
	}

	titles := map[string]string{}
	switch {
	case navHref != "":
		if data, err := a.read(navHref); err == nil {
			titles = navTitles(data, path.Dir(navHref))
		}
	case ncxHref != "":
		if data, err := a.read(ncxHref); err == nil {
			titles = ncxTitles(data, path.Dir(ncxHref))
		}
	}

	for _, ref := range pkg.Spine.ItemRefs {
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		data, err := a.read(href)
		if err != nil {
			return nil, fmt.Errorf("%w: spine item %s: %v", ErrInvalidEPub, ref.IDRef, err)
		}
		b.Items = append(b.Items, Item{
			ID:      ref.IDRef,
			Href:    href,
			Title:   titles[href],
			Linear:  ref.Linear != "no",
			Content: stripBOM(data),
		})
	}
	if len(b.Items) == 0 {
		return nil, fmt.Errorf("%w: empty spine", ErrInvalidEPub)
	}
	return b, nil
}

type ncxDoc struct {
	Points []ncxPoint `xml:"navMap>navPoint"`
}

type ncxPoint struct {
	Label    string     `xml:"navLabel>text"`
	Content  ncxContent `xml:"content"`
	Children []ncxPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

func ncxTitles(data []byte, dir string) map[string]string {
	var doc ncxDoc
	titles := map[string]string{}
	if err := xml.Unmarshal(stripBOM(data), &doc); err != nil {
		return titles
	}
	var walk func([]ncxPoint)
	walk = func(points []ncxPoint) {
		for _, p := range points {
			addTitle(titles, resolve(dir, p.Content.Src), p.Label)
			walk(p.Children)
		}
	}
	walk(doc.Points)
	return titles
}

// navTitles reads the anchors of an ePub 3 navigation document.
func navTitles(data []byte, dir string) map[string]string {
	titles := map[string]string{}
	z := html.NewTokenizer(bytes.NewReader(data))
	var href string
	var label strings.Builder
	inAnchor := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return titles
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if atom.Lookup(name) != atom.A {
				continue
			}
			inAnchor, href = true, ""
			label.Reset()
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				if string(k) == "href" {
					href = string(v)
				}
			}
		case html.TextToken:
			if inAnchor {
				label.Write(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.A && inAnchor {
				addTitle(titles, resolve(dir, href), label.String())
				inAnchor = false
			}
		}
	}
}

// addTitle keeps the first title seen for a document.
func addTitle(titles map[string]string, href, label string) {
	label = strings.Join(strings.Fields(label), " ")
	if href == "" || label == "" {
		return
	}
	if _, ok := titles[href]; !ok {
		titles[href] = label
	}
}

// resolve turns a manifest or TOC href into an archive path without fragment.
func resolve(dir, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if href == "" {
		return ""
	}
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	if dir == "." || dir == "" {
		return path.Clean(href)
	}
	return path.Join(dir, href)
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if t == token {
			return true
		}
	}
	return false
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
